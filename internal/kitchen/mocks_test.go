package kitchen

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
)

// MockTicketRepository is an in-memory TicketRepository that stores copies
// and enforces the model version on Update.
type MockTicketRepository struct {
	mu      sync.Mutex
	tickets map[TicketID]Ticket

	CreateFunc       func(ctx context.Context, t *Ticket) error
	UpdateFunc       func(ctx context.Context, t *Ticket) error
	FindByIDFunc     func(ctx context.Context, id TicketID) (*Ticket, error)
	ListByStatusFunc func(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]Ticket, error)

	UpdateCalls int
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{tickets: make(map[TicketID]Ticket)}
}

func copyTicket(t Ticket) Ticket {
	t.Items = cloneItems(t.Items)
	return t
}

// Put stores a ticket directly, bypassing Create.
func (m *MockTicketRepository) Put(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = copyTicket(t)
}

func (m *MockTicketRepository) Create(ctx context.Context, t *Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tickets {
		if existing.OrderID == t.OrderID {
			return ErrDuplicateOrder
		}
	}
	m.tickets[t.ID] = copyTicket(*t)
	return nil
}

func (m *MockTicketRepository) Update(ctx context.Context, t *Ticket) error {
	m.mu.Lock()
	m.UpdateCalls++
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	return m.update(t)
}

func (m *MockTicketRepository) update(t *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[t.ID]
	if !ok || stored.ModelVersion != t.ModelVersion {
		return ErrVersionConflict
	}
	t.ModelVersion++
	m.tickets[t.ID] = copyTicket(*t)
	return nil
}

func (m *MockTicketRepository) FindByID(ctx context.Context, id TicketID) (*Ticket, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := copyTicket(t)
	return &cp, nil
}

func (m *MockTicketRepository) FindByOrderID(ctx context.Context, id OrderID) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.OrderID == id {
			cp := copyTicket(t)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockTicketRepository) all() []Ticket {
	out := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, copyTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.Before(out[j].FiredAt) })
	return out
}

func (m *MockTicketRepository) List(ctx context.Context, f TicketFilter) ([]Ticket, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Ticket
	for _, t := range m.all() {
		if f.LocationID != "" && t.LocationID != f.LocationID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.StationCode != "" && !hasStation(t, f.StationCode) {
			continue
		}
		matched = append(matched, t)
	}

	total := len(matched)
	if f.Offset >= total {
		return []Ticket{}, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m *MockTicketRepository) ListByStatus(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]Ticket, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, locationID, statuses)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Ticket
	for _, t := range m.all() {
		if locationID != "" && t.LocationID != locationID {
			continue
		}
		if containsStatus(statuses, t.Status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockTicketRepository) CountByStatus(ctx context.Context, locationID string) (map[kitchenstatus.Ticket]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[kitchenstatus.Ticket]int{}
	for _, t := range m.tickets {
		if t.LocationID == locationID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (m *MockTicketRepository) AvgReadyMinutes(ctx context.Context, locationID string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	var n int
	for _, t := range m.tickets {
		if t.LocationID != locationID || t.ReadyAt == nil || t.ReadyAt.Before(since) {
			continue
		}
		switch t.Status {
		case kitchenstatus.TicketReady, kitchenstatus.TicketExpoConfirmed, kitchenstatus.TicketServed:
			sum += t.ReadyAt.Sub(t.FiredAt).Minutes()
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func containsStatus(statuses []kitchenstatus.Ticket, s kitchenstatus.Ticket) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func hasStation(t Ticket, code string) bool {
	for _, it := range t.Items {
		if it.StationCode == code {
			return true
		}
	}
	return false
}

// MockStationRepository keys stations by location and code.
type MockStationRepository struct {
	mu       sync.Mutex
	stations map[string]Station

	ListFunc func(ctx context.Context, locationID string, status station.Status) ([]Station, error)
}

func NewMockStationRepository() *MockStationRepository {
	return &MockStationRepository{stations: make(map[string]Station)}
}

func stationMapKey(loc, code string) string {
	return loc + "/" + code
}

func (m *MockStationRepository) Upsert(ctx context.Context, s *Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stationMapKey(s.LocationID, s.Code)
	if existing, ok := m.stations[key]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	}
	m.stations[key] = *s
	return nil
}

func (m *MockStationRepository) EnsureDefaults(ctx context.Context, stations []Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range stations {
		key := stationMapKey(s.LocationID, s.Code)
		if _, ok := m.stations[key]; !ok {
			m.stations[key] = s
		}
	}
	return nil
}

func (m *MockStationRepository) List(ctx context.Context, locationID string, status station.Status) ([]Station, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, locationID, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Station{}
	for _, s := range m.stations {
		if s.LocationID != locationID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// MockEventRepository keeps events in append order.
type MockEventRepository struct {
	mu     sync.Mutex
	events []TicketEvent

	AppendFunc func(ctx context.Context, e *TicketEvent) error
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{}
}

func (m *MockEventRepository) Append(ctx context.Context, e *TicketEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *MockEventRepository) Replay(ctx context.Context, q ReplayQuery) ([]TicketEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []TicketEvent
	for _, e := range m.events {
		if e.LocationID != q.LocationID {
			continue
		}
		if q.TicketID != nil && e.TicketID != *q.TicketID {
			continue
		}
		if q.OrderID != nil && e.OrderID != *q.OrderID {
			continue
		}
		if len(q.EventTypes) > 0 && !containsEventType(q.EventTypes, e.EventType) {
			continue
		}
		if q.From != nil && e.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && e.CreatedAt.After(*q.To) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	if q.Offset >= total {
		return []TicketEvent{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return matched[q.Offset:end], total, nil
}

func (m *MockEventRepository) ListByTicket(ctx context.Context, ticketID TicketID, limit int) ([]TicketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []TicketEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].TicketID == ticketID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MockEventRepository) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func containsEventType(types []EventType, et EventType) bool {
	for _, v := range types {
		if v == et {
			return true
		}
	}
	return false
}

// MockOrderGateway records status pushes.
type MockOrderGateway struct {
	mu       sync.Mutex
	statuses map[OrderID]string
	Updates  []string

	CurrentStatusFunc func(ctx context.Context, orderID OrderID) (string, error)
	UpdateStatusFunc  func(ctx context.Context, orderID OrderID, status string) error
}

func NewMockOrderGateway() *MockOrderGateway {
	return &MockOrderGateway{statuses: make(map[OrderID]string)}
}

func (m *MockOrderGateway) CurrentStatus(ctx context.Context, orderID OrderID) (string, error) {
	if m.CurrentStatusFunc != nil {
		return m.CurrentStatusFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[orderID], nil
}

func (m *MockOrderGateway) UpdateStatus(ctx context.Context, orderID OrderID, status string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, orderID, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderID] = status
	m.Updates = append(m.Updates, status)
	return nil
}

// MockPublisher captures published messages per topic.
type MockPublisher struct {
	mu        sync.Mutex
	Published map[string][][]byte

	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

var _ events.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Published: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published[topic] = append(m.Published[topic], msg)
	return nil
}

func (m *MockPublisher) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published[topic])
}
