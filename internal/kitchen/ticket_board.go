package kitchen

import (
	"context"
	"sort"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

var boardStatuses = []kitchenstatus.Ticket{
	kitchenstatus.TicketNew,
	kitchenstatus.TicketPreparing,
	kitchenstatus.TicketReady,
	kitchenstatus.TicketExpoConfirmed,
}

// TicketBoard keeps non-terminal tickets in memory, indexed by location and
// station, for the kitchen board. The repository stays authoritative: the
// board is warmed from it on start and fed by the service after each write.
type TicketBoard struct {
	mu sync.RWMutex
	// tickets indexed by id
	tickets map[TicketID]*Ticket
	// location+station -> ticket ids
	byStation map[stationKey][]TicketID

	repo   TicketRepository
	logger apt.Logger
}

type stationKey struct {
	location string
	station  string
}

func NewTicketBoard(repo TicketRepository, logger apt.Logger) *TicketBoard {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &TicketBoard{
		tickets:   make(map[TicketID]*Ticket),
		byStation: make(map[stationKey][]TicketID),
		repo:      repo,
		logger:    logger,
	}
}

// Warm loads every board-visible ticket from the repository. A failed load
// leaves the board empty rather than blocking startup.
func (b *TicketBoard) Warm(ctx context.Context) error {
	if b.repo == nil {
		b.logger.Info("ticket board has no repository, starting empty")
		return nil
	}

	tickets, err := b.repo.ListByStatus(ctx, "", boardStatuses)
	if err != nil {
		b.logger.Info("cannot warm ticket board, starting empty", "error", err)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range tickets {
		b.setLocked(&tickets[i])
	}

	b.logger.Info("ticket board warmed", "count", len(tickets))
	return nil
}

// Set stores a copy of the ticket, or drops it once terminal. A ticket with a
// lower ModelVersion than the stored entry is ignored.
func (b *TicketBoard) Set(t *Ticket) {
	if t == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(t)
}

func (b *TicketBoard) setLocked(t *Ticket) {
	if old := b.tickets[t.ID]; old != nil && t.ModelVersion < old.ModelVersion {
		return
	}
	b.removeLocked(t.ID)
	if t.Status.Terminal() {
		return
	}

	cp := *t
	cp.Items = cloneItems(t.Items)
	b.tickets[cp.ID] = &cp
	for _, code := range stationCodes(cp.Items) {
		key := stationKey{location: cp.LocationID, station: code}
		b.byStation[key] = append(b.byStation[key], cp.ID)
	}
}

// ByStation returns the tickets with at least one live item on the station.
func (b *TicketBoard) ByStation(locationID, stationCode string) []Ticket {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collectLocked(b.byStation[stationKey{location: locationID, station: stationCode}])
}

func (b *TicketBoard) collectLocked(ids []TicketID) []Ticket {
	out := make([]Ticket, 0, len(ids))
	for _, id := range ids {
		if t := b.tickets[id]; t != nil {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority == PriorityRush
		}
		return out[i].firedAt().Before(out[j].firedAt())
	})
	return out
}

func (b *TicketBoard) removeLocked(id TicketID) {
	old := b.tickets[id]
	if old == nil {
		return
	}
	for _, code := range stationCodes(old.Items) {
		key := stationKey{location: old.LocationID, station: code}
		b.byStation[key] = removeID(b.byStation[key], id)
	}
	delete(b.tickets, id)
}

// stationCodes lists the distinct stations holding non-cancelled items.
func stationCodes(items []TicketItem) []string {
	seen := map[string]bool{}
	var codes []string
	for _, it := range items {
		if it.Status == kitchenstatus.ItemCancelled || seen[it.StationCode] {
			continue
		}
		seen[it.StationCode] = true
		codes = append(codes, it.StationCode)
	}
	return codes
}

func removeID(ids []TicketID, id TicketID) []TicketID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
