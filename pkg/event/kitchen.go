package event

import "time"

const (
	KitchenTicketsTopic = "kitchen.tickets"
)

// KitchenTicketEvent mirrors one appended kitchen event log entry on the bus.
// EventType carries the log's event type (TICKET_CREATED, STATUS_UPDATED, ...).
type KitchenTicketEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	OccurredAt time.Time              `json:"occurred_at"`
	TicketID   string                 `json:"ticket_id"`
	OrderID    string                 `json:"order_id"`
	LocationID string                 `json:"location_id"`
	Status     string                 `json:"status"`
	Priority   string                 `json:"priority"`
	ActorID    string                 `json:"actor_id,omitempty"`
	ActorRole  string                 `json:"actor_role,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}
