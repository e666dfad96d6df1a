package kitchen

import (
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/google/uuid"
)

type EventType string

const (
	EventTicketCreated     EventType = "TICKET_CREATED"
	EventStatusUpdated     EventType = "STATUS_UPDATED"
	EventItemStatusUpdated EventType = "ITEM_STATUS_UPDATED"
	EventPriorityUpdated   EventType = "PRIORITY_UPDATED"
	EventExpediteRequested EventType = "EXPEDITE_REQUESTED"
	EventExpoConfirmed     EventType = "EXPO_CONFIRMED"
	EventServedConfirmed   EventType = "SERVED_CONFIRMED"
)

var AllEventTypes = []EventType{
	EventTicketCreated,
	EventStatusUpdated,
	EventItemStatusUpdated,
	EventPriorityUpdated,
	EventExpediteRequested,
	EventExpoConfirmed,
	EventServedConfirmed,
}

func ParseEventType(raw string) (EventType, bool) {
	code := EventType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, et := range AllEventTypes {
		if et == code {
			return et, true
		}
	}
	return "", false
}

// TicketEvent is one immutable entry of the kitchen event log.
type TicketEvent struct {
	ID         uuid.UUID              `bson:"_id" json:"id"`
	TicketID   TicketID               `bson:"ticket_id" json:"ticket_id"`
	OrderID    OrderID                `bson:"order_id" json:"order_id"`
	LocationID string                 `bson:"location_id" json:"location_id"`
	EventType  EventType              `bson:"event_type" json:"event_type"`
	Actor      Actor                  `bson:"actor" json:"actor"`
	Payload    map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt  time.Time              `bson:"created_at" json:"created_at"`
}

// NewTicketEvent builds an event with a time-ordered id so (created_at, id)
// sorts in append order.
func NewTicketEvent(t *Ticket, et EventType, actor Actor, payload map[string]interface{}, now time.Time) TicketEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return TicketEvent{
		ID:         id,
		TicketID:   t.ID,
		OrderID:    t.OrderID,
		LocationID: t.LocationID,
		EventType:  et,
		Actor:      actor,
		Payload:    payload,
		CreatedAt:  now,
	}
}

const (
	defaultReplayLimit = 100
	maxPageLimit       = 500
)

// ReplayParams is the raw, unvalidated replay request.
type ReplayParams struct {
	LocationID string
	TicketID   string
	OrderID    string
	EventTypes string
	From       string
	To         string
	Limit      string
	Offset     string
}

// ReplayQuery is a validated replay filter.
type ReplayQuery struct {
	LocationID string
	TicketID   *TicketID
	OrderID    *OrderID
	EventTypes []EventType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ParseEventTypes splits a comma list, normalizes case, drops duplicates
// keeping first occurrence, and rejects the whole list on any unknown value.
func ParseEventTypes(raw string) ([]EventType, error) {
	var out []EventType
	var invalid []string
	seen := map[string]bool{}

	for _, part := range strings.Split(raw, ",") {
		v := strings.ToUpper(strings.TrimSpace(part))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		et, ok := ParseEventType(v)
		if !ok {
			invalid = append(invalid, v)
			continue
		}
		out = append(out, et)
	}

	if len(invalid) > 0 {
		return nil, apperr.Validation("invalid event_type values: %s", strings.Join(invalid, ", "))
	}
	return out, nil
}

func ParseReplayQuery(p ReplayParams) (ReplayQuery, error) {
	q := ReplayQuery{LocationID: NormalizeLocationID(p.LocationID)}

	if v := strings.TrimSpace(p.TicketID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ReplayQuery{}, apperr.Validation("invalid ticket_id")
		}
		q.TicketID = &id
	}

	if v := strings.TrimSpace(p.OrderID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ReplayQuery{}, apperr.Validation("invalid order_id")
		}
		q.OrderID = &id
	}

	types, err := ParseEventTypes(p.EventTypes)
	if err != nil {
		return ReplayQuery{}, err
	}
	q.EventTypes = types

	if q.From, err = parseTime(p.From, "from"); err != nil {
		return ReplayQuery{}, err
	}
	if q.To, err = parseTime(p.To, "to"); err != nil {
		return ReplayQuery{}, err
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return ReplayQuery{}, apperr.Validation("from must be earlier than to")
	}

	q.Limit, q.Offset = ParsePagination(p.Limit, p.Offset, defaultReplayLimit)
	return q, nil
}

// ParsePagination clamps limit to [1,500] and offset to >= 0. Values that are
// not numbers fall back to def and zero.
func ParsePagination(rawLimit, rawOffset string, def int) (limit, offset int) {
	limit = def
	if v, err := strconv.Atoi(strings.TrimSpace(rawLimit)); err == nil {
		limit = clamp(v, 1, maxPageLimit)
	}
	if v, err := strconv.Atoi(strings.TrimSpace(rawOffset)); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func parseTime(raw, field string) (*time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("%s must be a valid RFC3339 datetime", field)
	}
	return &t, nil
}

// ReplayRow is an event annotated with its 1-based position in the result.
type ReplayRow struct {
	TicketEvent `bson:",inline"`
	Sequence    int `json:"sequence"`
}

// ReplayFilter echoes the normalized filter back to the caller.
type ReplayFilter struct {
	LocationID string      `json:"location_id"`
	TicketID   *TicketID   `json:"ticket_id"`
	OrderID    *OrderID    `json:"order_id"`
	EventTypes []EventType `json:"event_types"`
	From       *time.Time  `json:"from"`
	To         *time.Time  `json:"to"`
}

type ReplayResult struct {
	Events       []ReplayRow  `json:"events"`
	Total        int          `json:"total"`
	Limit        int          `json:"limit"`
	Offset       int          `json:"offset"`
	HasMore      bool         `json:"has_more"`
	FirstEventAt *time.Time   `json:"first_event_at"`
	LastEventAt  *time.Time   `json:"last_event_at"`
	Filter       ReplayFilter `json:"filter"`
}

// BuildReplayResult numbers a page of events and fills the page summary.
func BuildReplayResult(q ReplayQuery, page []TicketEvent, total int) ReplayResult {
	rows := make([]ReplayRow, len(page))
	for i, e := range page {
		rows[i] = ReplayRow{TicketEvent: e, Sequence: q.Offset + i + 1}
	}

	types := q.EventTypes
	if types == nil {
		types = []EventType{}
	}

	res := ReplayResult{
		Events:  rows,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: q.Offset+len(rows) < total,
		Filter: ReplayFilter{
			LocationID: q.LocationID,
			TicketID:   q.TicketID,
			OrderID:    q.OrderID,
			EventTypes: types,
			From:       q.From,
			To:         q.To,
		},
	}
	if len(rows) > 0 {
		first := rows[0].CreatedAt
		last := rows[len(rows)-1].CreatedAt
		res.FirstEventAt = &first
		res.LastEventAt = &last
	}
	return res
}
