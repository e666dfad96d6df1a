package kitchen

import (
	"context"
	"errors"
	"time"

	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
)

var (
	// ErrVersionConflict is returned by Update when the stored ticket moved
	// past the version the caller read.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrDuplicateOrder is returned by Create when the order already has a ticket.
	ErrDuplicateOrder = errors.New("order already has a ticket")
)

type TicketFilter struct {
	LocationID  string
	Statuses    []kitchenstatus.Ticket
	Priority    Priority
	StationCode string
	Limit       int
	Offset      int
}

// TicketRepository persists tickets. Finders return nil, nil on a miss.
// Update only succeeds when t.ModelVersion matches the stored version and
// increments it on success.
type TicketRepository interface {
	Create(ctx context.Context, t *Ticket) error
	Update(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, id TicketID) (*Ticket, error)
	FindByOrderID(ctx context.Context, id OrderID) (*Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]Ticket, int, error)
	// ListByStatus returns every ticket in the given statuses; an empty
	// location matches all locations.
	ListByStatus(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]Ticket, error)
	CountByStatus(ctx context.Context, locationID string) (map[kitchenstatus.Ticket]int, error)
	// AvgReadyMinutes averages ready_at - fired_at over handed-off tickets
	// that became ready at or after since. A zero since covers all time.
	AvgReadyMinutes(ctx context.Context, locationID string, since time.Time) (float64, error)
}

type StationRepository interface {
	Upsert(ctx context.Context, s *Station) error
	// EnsureDefaults inserts the stations that do not exist yet and leaves
	// existing ones untouched.
	EnsureDefaults(ctx context.Context, stations []Station) error
	List(ctx context.Context, locationID string, status station.Status) ([]Station, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *TicketEvent) error
	Replay(ctx context.Context, q ReplayQuery) ([]TicketEvent, int, error)
	// ListByTicket returns the newest events of a ticket first.
	ListByTicket(ctx context.Context, ticketID TicketID, limit int) ([]TicketEvent, error)
}
