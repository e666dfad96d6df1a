package ops

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

// MockIncidentRepository is an in-memory IncidentRepository that enforces
// one active incident per location and alert code on Create.
type MockIncidentRepository struct {
	mu        sync.Mutex
	incidents map[IncidentID]Incident

	CreateFunc     func(ctx context.Context, i *Incident) error
	SaveFunc       func(ctx context.Context, i *Incident) error
	ListActiveFunc func(ctx context.Context, locationID string) ([]Incident, error)

	SaveCalls int
}

func NewMockIncidentRepository() *MockIncidentRepository {
	return &MockIncidentRepository{incidents: make(map[IncidentID]Incident)}
}

func copyIncident(i Incident) Incident {
	i.EscalationHistory = append([]EscalationEntry(nil), i.EscalationHistory...)
	return i
}

// Put stores an incident directly, bypassing the uniqueness check.
func (m *MockIncidentRepository) Put(i Incident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[i.ID] = copyIncident(i)
}

func (m *MockIncidentRepository) Get(id IncidentID) (Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	return copyIncident(i), ok
}

func (m *MockIncidentRepository) All() []Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Incident, 0, len(m.incidents))
	for _, i := range m.incidents {
		out = append(out, copyIncident(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (m *MockIncidentRepository) Create(ctx context.Context, i *Incident) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.incidents {
		if existing.Active && existing.LocationID == i.LocationID && strings.EqualFold(existing.AlertCode, i.AlertCode) {
			return ErrDuplicateIncident
		}
	}
	m.incidents[i.ID] = copyIncident(*i)
	return nil
}

func (m *MockIncidentRepository) Save(ctx context.Context, i *Incident) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	m.incidents[i.ID] = copyIncident(*i)
	return nil
}

func (m *MockIncidentRepository) FindByID(ctx context.Context, id IncidentID) (*Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, nil
	}
	c := copyIncident(i)
	return &c, nil
}

func (m *MockIncidentRepository) ListActive(ctx context.Context, locationID string) ([]Incident, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, locationID)
	}
	return m.list(IncidentFilter{LocationID: locationID, Statuses: []IncidentStatus{IncidentOpen, IncidentAcked}}), nil
}

func (m *MockIncidentRepository) List(ctx context.Context, f IncidentFilter) ([]Incident, int, error) {
	all := m.list(f)
	total := len(all)
	if f.Offset >= total {
		return []Incident{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return all[f.Offset:end], total, nil
}

func (m *MockIncidentRepository) list(f IncidentFilter) []Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Incident
	for _, i := range m.incidents {
		if f.LocationID != "" && i.LocationID != f.LocationID {
			continue
		}
		if len(f.Statuses) > 0 && !containsIncidentStatus(f.Statuses, i.Status) {
			continue
		}
		if f.Severity != "" && i.Severity != f.Severity {
			continue
		}
		out = append(out, copyIncident(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	return out
}

func containsIncidentStatus(list []IncidentStatus, s IncidentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MockMetricsSource returns fixed collaborator metrics and records queries.
type MockMetricsSource struct {
	Inventory InventoryMetrics
	Payment   PaymentMetrics
	Cash      CashMetrics
	Err       error

	PaymentQueries []PaymentQuery
	CashQueries    []CashQuery
}

func (m *MockMetricsSource) InventoryMetrics(ctx context.Context, locationID string) (InventoryMetrics, error) {
	return m.Inventory, m.Err
}

func (m *MockMetricsSource) PaymentMetrics(ctx context.Context, q PaymentQuery) (PaymentMetrics, error) {
	m.PaymentQueries = append(m.PaymentQueries, q)
	return m.Payment, m.Err
}

func (m *MockMetricsSource) CashMetrics(ctx context.Context, q CashQuery) (CashMetrics, error) {
	m.CashQueries = append(m.CashQueries, q)
	return m.Cash, m.Err
}

// MockTicketSource serves open tickets and a fixed average ready time.
type MockTicketSource struct {
	Tickets  []kitchen.Ticket
	AvgReady float64
	Err      error

	Since time.Time
}

func (m *MockTicketSource) ListByStatus(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]kitchen.Ticket, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []kitchen.Ticket
	for _, t := range m.Tickets {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (m *MockTicketSource) AvgReadyMinutes(ctx context.Context, locationID string, since time.Time) (float64, error) {
	m.Since = since
	return m.AvgReady, m.Err
}

// MockPublisher implements events.Publisher for testing
type MockPublisher struct {
	mu          sync.Mutex
	Published   map[string][][]byte
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

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

// MockLocker counts lock acquisitions.
type MockLocker struct {
	Keys     []string
	Releases int
	LockErr  error
}

func (m *MockLocker) Lock(ctx context.Context, key string) (func(), error) {
	if m.LockErr != nil {
		return nil, m.LockErr
	}
	m.Keys = append(m.Keys, key)
	return func() { m.Releases++ }, nil
}
