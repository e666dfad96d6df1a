package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
	"github.com/appetiteclub/kitchenops/pkg/event"
	"github.com/google/uuid"
)

const (
	maxUpdateAttempts = 5
	ticketEventsLimit = 100
	defaultListLimit  = 100
)

var openStatuses = []kitchenstatus.Ticket{kitchenstatus.TicketNew, kitchenstatus.TicketPreparing}

type ServiceDeps struct {
	Tickets   TicketRepository
	Stations  StationRepository
	Events    EventRepository
	OrderSync *OrderSyncBridge
	Publisher events.Publisher
	Board     *TicketBoard
	SLA       SLASettings
}

// Service runs the ticket lifecycle. Writes use optimistic concurrency:
// a mutation that loses a version race re-reads and re-applies itself.
type Service struct {
	tickets   TicketRepository
	stations  StationRepository
	events    EventRepository
	orderSync *OrderSyncBridge
	publisher events.Publisher
	board     *TicketBoard
	sla       SLASettings
	logger    apt.Logger
	now       func() time.Time
}

func NewService(deps ServiceDeps, logger apt.Logger) *Service {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	sla := deps.SLA
	if sla == (SLASettings{}) {
		sla = DefaultSLASettings()
	}
	return &Service{
		tickets:   deps.Tickets,
		stations:  deps.Stations,
		events:    deps.Events,
		orderSync: deps.OrderSync,
		publisher: deps.Publisher,
		board:     deps.Board,
		sla:       sla,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SLA() SLASettings {
	return s.sla
}

// OrderPlacement is what the kitchen needs from a placed order.
type OrderPlacement struct {
	OrderID         OrderID
	LocationID      string
	SourceType      string
	FulfillmentType string
	OrderStatus     string
	CustomerName    string
	TableRef        string
	Lines           []OrderLine
}

type OrderLine struct {
	Name     string
	Quantity int
	Notes    string
}

func (p OrderPlacement) validate() error {
	if p.OrderID == uuid.Nil {
		return apperr.Validation("order_id is required")
	}
	if len(p.Lines) == 0 {
		return apperr.Validation("order has no items")
	}
	for i, l := range p.Lines {
		if strings.TrimSpace(l.Name) == "" {
			return apperr.Validation("item %d has no name", i+1)
		}
		if l.Quantity < 1 {
			return apperr.Validation("item %d quantity must be at least 1", i+1)
		}
	}
	return nil
}

// CreateTicketForOrder creates the order's ticket, or returns the existing
// one. The bool reports whether a ticket was created.
func (s *Service) CreateTicketForOrder(ctx context.Context, p OrderPlacement, actor Actor) (*Ticket, bool, error) {
	if err := p.validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.tickets.FindByOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("cannot check existing ticket: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	loc := NormalizeLocationID(p.LocationID)
	now := s.now()

	if err := s.stations.EnsureDefaults(ctx, DefaultStations(loc, now)); err != nil {
		return nil, false, fmt.Errorf("cannot bootstrap stations: %w", err)
	}

	active, err := s.stations.List(ctx, loc, station.StatusActive)
	if err != nil {
		return nil, false, fmt.Errorf("cannot list stations: %w", err)
	}

	open, err := s.tickets.ListByStatus(ctx, loc, openStatuses)
	if err != nil {
		return nil, false, fmt.Errorf("cannot compute station load: %w", err)
	}

	cancelled := strings.EqualFold(strings.TrimSpace(p.OrderStatus), OrderStatusCancelled)

	items := make([]TicketItem, 0, len(p.Lines))
	for _, l := range p.Lines {
		it := TicketItem{
			ID:          uuid.New(),
			Name:        strings.TrimSpace(l.Name),
			Quantity:    l.Quantity,
			Notes:       strings.TrimSpace(l.Notes),
			StationCode: Classify(l.Name),
			Status:      kitchenstatus.ItemNew,
		}
		if cancelled {
			it.Status = kitchenstatus.ItemCancelled
		}
		items = append(items, it)
	}
	items = AssignStations(items, active, OpenLoad(open))

	slaMinutes := s.sla.MinutesFor(PriorityNormal)
	t := &Ticket{
		ID:                 uuid.New(),
		OrderID:            p.OrderID,
		LocationID:         loc,
		SourceType:         p.SourceType,
		FulfillmentType:    p.FulfillmentType,
		CustomerName:       p.CustomerName,
		TableRef:           p.TableRef,
		Status:             kitchenstatus.TicketNew,
		Priority:           PriorityNormal,
		SLAMinutes:         slaMinutes,
		Items:              items,
		FiredAt:            now,
		TargetReadyAt:      now.Add(time.Duration(slaMinutes) * time.Minute),
		LastStatusChangeAt: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if cancelled {
		t.stamp(kitchenstatus.TicketCancelled, now)
	}

	if err := s.tickets.Create(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			winner, ferr := s.tickets.FindByOrderID(ctx, p.OrderID)
			if ferr != nil {
				return nil, false, fmt.Errorf("cannot load concurrent ticket: %w", ferr)
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("cannot create ticket: %w", err)
	}

	s.logger.Info("kitchen ticket created", "ticket_id", t.ID.String(), "order_id", t.OrderID.String(), "location_id", loc, "items", len(items))

	s.record(ctx, t, EventTicketCreated, actor, map[string]interface{}{
		"source_type":      t.SourceType,
		"fulfillment_type": t.FulfillmentType,
		"priority":         string(t.Priority),
		"sla_minutes":      t.SLAMinutes,
		"target_ready_at":  t.TargetReadyAt,
	}, now)

	return t, true, nil
}

// SetStatus applies an explicit ticket status change.
func (s *Service) SetStatus(ctx context.Context, id TicketID, rawStatus string, actor Actor) (*Ticket, error) {
	status, ok := kitchenstatus.ParseTicket(rawStatus)
	if !ok {
		return nil, apperr.Validation("invalid ticket status: %s", rawStatus)
	}

	et := EventStatusUpdated
	switch status {
	case kitchenstatus.TicketExpoConfirmed:
		et = EventExpoConfirmed
	case kitchenstatus.TicketServed:
		et = EventServedConfirmed
	}

	return s.mutate(ctx, id, actor, mutation{
		eventType: et,
		syncOrder: true,
		apply: func(t *Ticket, now time.Time) (map[string]interface{}, error) {
			if err := t.ApplyStatus(status, now); err != nil {
				return nil, err
			}
			return map[string]interface{}{"status": string(status)}, nil
		},
	})
}

func (s *Service) SetItemStatus(ctx context.Context, id TicketID, itemID ItemID, rawStatus string, actor Actor) (*Ticket, error) {
	status, ok := kitchenstatus.ParseItem(rawStatus)
	if !ok {
		return nil, apperr.Validation("invalid item status: %s", rawStatus)
	}

	return s.mutate(ctx, id, actor, mutation{
		eventType: EventItemStatusUpdated,
		syncOrder: true,
		apply: func(t *Ticket, now time.Time) (map[string]interface{}, error) {
			if err := t.ApplyItemStatus(itemID, status, now); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"item_id":       itemID.String(),
				"status":        string(status),
				"ticket_status": string(t.Status),
			}, nil
		},
	})
}

func (s *Service) SetPriority(ctx context.Context, id TicketID, rawPriority string, actor Actor) (*Ticket, error) {
	p, ok := ParsePriority(rawPriority)
	if !ok {
		return nil, apperr.Validation("invalid priority: %s", rawPriority)
	}

	return s.mutate(ctx, id, actor, mutation{
		eventType: EventPriorityUpdated,
		apply: func(t *Ticket, now time.Time) (map[string]interface{}, error) {
			t.ApplyPriority(p, s.sla, now)
			return map[string]interface{}{
				"priority":        string(t.Priority),
				"sla_minutes":     t.SLAMinutes,
				"target_ready_at": t.TargetReadyAt,
			}, nil
		},
	})
}

func (s *Service) RequestExpedite(ctx context.Context, id TicketID, reason string, actor Actor) (*Ticket, error) {
	return s.mutate(ctx, id, actor, mutation{
		eventType: EventExpediteRequested,
		apply: func(t *Ticket, now time.Time) (map[string]interface{}, error) {
			if err := t.ApplyExpedite(reason, s.sla, now); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"reason":         strings.TrimSpace(reason),
				"expedite_count": t.ExpediteCount,
			}, nil
		},
	})
}

func (s *Service) ConfirmHandoff(ctx context.Context, id TicketID, rawStage string, actor Actor) (*Ticket, error) {
	stage, ok := ParseHandoffStage(rawStage)
	if !ok {
		return nil, apperr.Validation("stage must be EXPO or SERVED")
	}

	et := EventExpoConfirmed
	if stage == HandoffServed {
		et = EventServedConfirmed
	}

	return s.mutate(ctx, id, actor, mutation{
		eventType: et,
		syncOrder: true,
		apply: func(t *Ticket, now time.Time) (map[string]interface{}, error) {
			if err := t.ApplyHandoff(stage, now); err != nil {
				return nil, err
			}
			return map[string]interface{}{"stage": string(stage)}, nil
		},
	})
}

type mutation struct {
	eventType EventType
	syncOrder bool
	apply     func(t *Ticket, now time.Time) (map[string]interface{}, error)
}

// mutate loads, applies and conditionally writes a ticket, retrying on
// version conflicts. Side effects run once, after the winning write.
func (s *Service) mutate(ctx context.Context, id TicketID, actor Actor, m mutation) (*Ticket, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		t, err := s.tickets.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cannot load ticket: %w", err)
		}
		if t == nil {
			return nil, apperr.NotFound("kitchen ticket not found")
		}

		now := s.now()
		payload, err := m.apply(t, now)
		if err != nil {
			return nil, err
		}
		t.UpdatedAt = now

		err = s.tickets.Update(ctx, t)
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Debug("ticket version conflict, retrying", "ticket_id", id.String(), "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cannot update ticket: %w", err)
		}

		if m.syncOrder {
			s.syncOrder(ctx, t)
		}
		s.record(ctx, t, m.eventType, actor, payload, now)
		return t, nil
	}

	return nil, apperr.Wrap(apperr.KindConflict, "kitchen ticket was modified concurrently, retry", ErrVersionConflict)
}

func (s *Service) syncOrder(ctx context.Context, t *Ticket) {
	if s.orderSync == nil {
		return
	}
	if _, err := s.orderSync.Sync(ctx, t); err != nil {
		s.logger.Error("order sync failed", "ticket_id", t.ID.String(), "order_id", t.OrderID.String(), "error", err)
	}
}

// record appends the event, mirrors it on the bus and refreshes the board.
// None of these can fail the operation that triggered them.
func (s *Service) record(ctx context.Context, t *Ticket, et EventType, actor Actor, payload map[string]interface{}, now time.Time) {
	if s.board != nil {
		s.board.Set(t)
	}

	e := NewTicketEvent(t, et, actor, payload, now)
	if s.events != nil {
		if err := s.events.Append(ctx, &e); err != nil {
			s.logger.Error("cannot append kitchen event", "ticket_id", t.ID.String(), "event_type", string(et), "error", err)
		}
	}

	if s.publisher == nil {
		return
	}

	msg := event.KitchenTicketEvent{
		EventID:    e.ID.String(),
		EventType:  string(et),
		OccurredAt: now,
		TicketID:   t.ID.String(),
		OrderID:    t.OrderID.String(),
		LocationID: t.LocationID,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Payload:    payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("cannot encode kitchen event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event.KitchenTicketsTopic, data); err != nil {
		s.logger.Error("cannot publish kitchen event", "ticket_id", t.ID.String(), "event_type", string(et), "error", err)
	}
}

// TicketView is a ticket with its SLA computed at read time.
type TicketView struct {
	Ticket
	SLA SLA `json:"sla"`
}

type TicketDetail struct {
	TicketView
	Events []TicketEvent `json:"events"`
}

func (s *Service) View(t Ticket, now time.Time) TicketView {
	return TicketView{Ticket: t, SLA: ComputeSLA(t, s.sla, now)}
}

func (s *Service) Get(ctx context.Context, id TicketID) (*TicketDetail, error) {
	t, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot load ticket: %w", err)
	}
	if t == nil {
		return nil, apperr.NotFound("kitchen ticket not found")
	}

	evts := []TicketEvent{}
	if s.events != nil {
		evts, err = s.events.ListByTicket(ctx, id, ticketEventsLimit)
		if err != nil {
			return nil, fmt.Errorf("cannot load ticket events: %w", err)
		}
		if evts == nil {
			evts = []TicketEvent{}
		}
	}

	return &TicketDetail{TicketView: s.View(*t, s.now()), Events: evts}, nil
}

// ListParams is the raw ticket list request.
type ListParams struct {
	LocationID  string
	Status      string
	Priority    string
	StationCode string
	Limit       string
	Offset      string
}

type TicketPage struct {
	Tickets []TicketView `json:"tickets"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

func (s *Service) List(ctx context.Context, p ListParams) (*TicketPage, error) {
	f := TicketFilter{
		LocationID:  NormalizeLocationID(p.LocationID),
		StationCode: strings.ToUpper(strings.TrimSpace(p.StationCode)),
	}

	if strings.TrimSpace(p.Status) != "" {
		for _, raw := range strings.Split(p.Status, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			st, ok := kitchenstatus.ParseTicket(raw)
			if !ok {
				return nil, apperr.Validation("invalid ticket status: %s", raw)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}

	if strings.TrimSpace(p.Priority) != "" {
		pr, ok := ParsePriority(p.Priority)
		if !ok {
			return nil, apperr.Validation("invalid priority: %s", p.Priority)
		}
		f.Priority = pr
	}

	f.Limit, f.Offset = ParsePagination(p.Limit, p.Offset, defaultListLimit)

	tickets, total, err := s.tickets.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("cannot list tickets: %w", err)
	}

	now := s.now()
	views := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, s.View(t, now))
	}

	return &TicketPage{Tickets: views, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *Service) Replay(ctx context.Context, p ReplayParams) (*ReplayResult, error) {
	q, err := ParseReplayQuery(p)
	if err != nil {
		return nil, err
	}

	page, total, err := s.events.Replay(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("cannot replay events: %w", err)
	}

	res := BuildReplayResult(q, page, total)
	return &res, nil
}

// BoardColumn groups a station's live tickets.
type BoardColumn struct {
	StationCode string       `json:"station_code"`
	DisplayName string       `json:"display_name"`
	Tickets     []TicketView `json:"tickets"`
}

// Board returns one column per active station, served from the in-memory board.
func (s *Service) Board(ctx context.Context, locationID string) ([]BoardColumn, error) {
	loc := NormalizeLocationID(locationID)
	stations, err := s.stations.List(ctx, loc, station.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("cannot list stations: %w", err)
	}

	now := s.now()
	cols := make([]BoardColumn, 0, len(stations))
	for _, st := range stations {
		col := BoardColumn{StationCode: st.Code, DisplayName: st.DisplayName, Tickets: []TicketView{}}
		if s.board != nil {
			for _, t := range s.board.ByStation(loc, st.Code) {
				col.Tickets = append(col.Tickets, s.View(t, now))
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (s *Service) ListStations(ctx context.Context, locationID, rawStatus string) ([]Station, error) {
	var status station.Status
	if strings.TrimSpace(rawStatus) != "" {
		st, ok := station.ParseStatus(rawStatus)
		if !ok {
			return nil, apperr.Validation("invalid station status: %s", rawStatus)
		}
		status = st
	}

	stations, err := s.stations.List(ctx, NormalizeLocationID(locationID), status)
	if err != nil {
		return nil, fmt.Errorf("cannot list stations: %w", err)
	}
	return stations, nil
}

func (s *Service) UpsertStation(ctx context.Context, in StationInput) (*Station, error) {
	st, err := in.Validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	st.ID = uuid.New()
	st.CreatedAt = now
	st.UpdatedAt = now

	if err := s.stations.Upsert(ctx, &st); err != nil {
		return nil, fmt.Errorf("cannot upsert station: %w", err)
	}

	s.logger.Info("kitchen station upserted", "location_id", st.LocationID, "code", st.Code)
	return &st, nil
}

func (s *Service) BootstrapStations(ctx context.Context, locationID string) ([]Station, error) {
	loc := NormalizeLocationID(locationID)
	if err := s.stations.EnsureDefaults(ctx, DefaultStations(loc, s.now())); err != nil {
		return nil, fmt.Errorf("cannot bootstrap stations: %w", err)
	}
	return s.ListStations(ctx, loc, "")
}

type StationQueue struct {
	StationCode string `json:"station_code"`
	Count       int    `json:"count"`
}

type StationLoad struct {
	StationCode          string         `json:"station_code"`
	DisplayName          string         `json:"display_name"`
	Type                 station.Type   `json:"type"`
	Status               station.Status `json:"status"`
	QueueCount           int            `json:"queue_count"`
	MaxConcurrentTickets int            `json:"max_concurrent_tickets"`
	Utilization          float64        `json:"utilization"`
}

type Stats struct {
	LocationID        string         `json:"location_id"`
	StatusCounts      map[string]int `json:"status_counts"`
	OpenTickets       int            `json:"open_tickets"`
	OverdueCount      int            `json:"overdue_count"`
	WarningCount      int            `json:"warning_count"`
	OnTrackCount      int            `json:"on_track_count"`
	ExpediteOpenCount int            `json:"expedite_open_count"`
	AvgReadyMinutes   float64        `json:"avg_ready_minutes"`
	QueueByStation    []StationQueue `json:"queue_by_station"`
	StationLoad       []StationLoad  `json:"station_load"`
}

func (s *Service) Stats(ctx context.Context, locationID string) (*Stats, error) {
	loc := NormalizeLocationID(locationID)

	counts, err := s.tickets.CountByStatus(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("cannot count tickets: %w", err)
	}
	open, err := s.tickets.ListByStatus(ctx, loc, openStatuses)
	if err != nil {
		return nil, fmt.Errorf("cannot list open tickets: %w", err)
	}
	avg, err := s.tickets.AvgReadyMinutes(ctx, loc, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("cannot average ready time: %w", err)
	}
	stations, err := s.stations.List(ctx, loc, "")
	if err != nil {
		return nil, fmt.Errorf("cannot list stations: %w", err)
	}

	now := s.now()
	buckets := KitchenSLABuckets(open, s.sla, now)

	st := &Stats{
		LocationID:      loc,
		StatusCounts:    map[string]int{},
		OpenTickets:     buckets.OpenTickets,
		OverdueCount:    buckets.OverdueCount,
		WarningCount:    buckets.WarningCount,
		OnTrackCount:    buckets.OnTrackCount,
		AvgReadyMinutes: Round(avg, 2),
		QueueByStation:  []StationQueue{},
		StationLoad:     []StationLoad{},
	}
	for k, v := range counts {
		st.StatusCounts[string(k)] = v
	}

	queue := map[string]int{}
	for _, t := range open {
		if t.ExpediteCount > 0 {
			st.ExpediteOpenCount++
		}
		for _, it := range t.Items {
			if it.Outstanding() {
				queue[it.StationCode]++
			}
		}
	}

	for code, n := range queue {
		st.QueueByStation = append(st.QueueByStation, StationQueue{StationCode: code, Count: n})
	}
	sort.Slice(st.QueueByStation, func(i, j int) bool {
		a, b := st.QueueByStation[i], st.QueueByStation[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.StationCode < b.StationCode
	})

	for _, stn := range stations {
		n := queue[stn.Code]
		st.StationLoad = append(st.StationLoad, StationLoad{
			StationCode:          stn.Code,
			DisplayName:          stn.DisplayName,
			Type:                 stn.Type,
			Status:               stn.Status,
			QueueCount:           n,
			MaxConcurrentTickets: stn.Capacity(),
			Utilization:          Round(float64(n)/float64(stn.Capacity()), 3),
		})
	}

	return st, nil
}
