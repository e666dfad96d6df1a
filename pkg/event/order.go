package event

import "time"

const (
	OrdersPlacedTopic = "orders.placed"
	EventOrderPlaced  = "order.placed"
)

// OrderPlacedEvent is published by the order service when an order is placed.
// The kitchen consumes it to create the order's ticket.
type OrderPlacedEvent struct {
	EventType       string            `json:"event_type"`
	OccurredAt      time.Time         `json:"occurred_at"`
	OrderID         string            `json:"order_id"`
	LocationID      string            `json:"location_id"`
	SourceType      string            `json:"source_type"`
	FulfillmentType string            `json:"fulfillment_type"`
	OrderStatus     string            `json:"order_status,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	TableRef        string            `json:"table_ref,omitempty"`
	Items           []OrderPlacedItem `json:"items"`
}

type OrderPlacedItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}
