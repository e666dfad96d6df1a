package event

import "time"

const (
	OpsIncidentsTopic      = "ops.incidents"
	EventIncidentOpened    = "ops.incident.opened"
	EventIncidentEscalated = "ops.incident.escalated"
	EventIncidentResolved  = "ops.incident.resolved"
)

// OpsIncidentEvent notifies the role currently targeted by an incident.
// Delivery (push, SMS, chat) is left to subscribers.
type OpsIncidentEvent struct {
	EventType       string    `json:"event_type"`
	OccurredAt      time.Time `json:"occurred_at"`
	IncidentID      string    `json:"incident_id"`
	LocationID      string    `json:"location_id"`
	AlertCode       string    `json:"alert_code"`
	Severity        string    `json:"severity"`
	Status          string    `json:"status"`
	EscalationLevel int       `json:"escalation_level"`
	TargetRole      string    `json:"target_role"`
	AutoResolved    bool      `json:"auto_resolved,omitempty"`
}
