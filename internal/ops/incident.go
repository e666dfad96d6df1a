package ops

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/google/uuid"
)

type IncidentID = uuid.UUID

type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "OPEN"
	IncidentAcked    IncidentStatus = "ACKED"
	IncidentResolved IncidentStatus = "RESOLVED"
)

// Active reports whether the incident still needs attention.
func (s IncidentStatus) Active() bool {
	return s == IncidentOpen || s == IncidentAcked
}

// Escalation history reasons and resolution notes.
const (
	ReasonIncidentOpened = "INCIDENT_OPENED"
	reasonEscalatedPfx   = "INCIDENT_ESCALATED_L"

	NoteAutoCleared     = "AUTO_CLEARED"
	NoteManualResolved  = "MANUAL_RESOLVED"
	NoteMergedDuplicate = "MERGED_DUPLICATE"
)

// ErrDuplicateIncident is returned by Create when the location already has
// an active incident for the alert code.
var ErrDuplicateIncident = errors.New("active incident already exists")

type EscalationEntry struct {
	Level       int       `bson:"level" json:"level"`
	TargetRole  string    `bson:"target_role" json:"target_role"`
	EscalatedAt time.Time `bson:"escalated_at" json:"escalated_at"`
	Reason      string    `bson:"reason" json:"reason"`
}

// Incident is the persistent record of an alert over time. Active mirrors
// Status and backs the one-active-incident-per-code index.
type Incident struct {
	ID         IncidentID     `bson:"_id" json:"id"`
	LocationID string         `bson:"location_id" json:"location_id"`
	AlertCode  string         `bson:"alert_code" json:"alert_code"`
	Category   string         `bson:"category" json:"category"`
	Severity   Severity       `bson:"severity" json:"severity"`
	Title      string         `bson:"title" json:"title"`
	Message    string         `bson:"message" json:"message"`
	Value      float64        `bson:"value" json:"value"`
	Threshold  float64        `bson:"threshold" json:"threshold"`
	Unit       string         `bson:"unit,omitempty" json:"unit,omitempty"`
	Status     IncidentStatus `bson:"status" json:"status"`
	Active     bool           `bson:"active" json:"-"`

	FirstSeenAt time.Time `bson:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time `bson:"last_seen_at" json:"last_seen_at"`

	EscalationLevel   int               `bson:"escalation_level" json:"escalation_level"`
	CurrentTargetRole string            `bson:"current_target_role" json:"current_target_role"`
	EscalationHistory []EscalationEntry `bson:"escalation_history" json:"escalation_history"`

	AcknowledgedBy string     `bson:"acknowledged_by,omitempty" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `bson:"acknowledged_at,omitempty" json:"acknowledged_at,omitempty"`
	AckNote        string     `bson:"ack_note,omitempty" json:"ack_note,omitempty"`

	ResolvedBy     string     `bson:"resolved_by,omitempty" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	ResolutionNote string     `bson:"resolution_note,omitempty" json:"resolution_note,omitempty"`
	AutoResolved   bool       `bson:"auto_resolved" json:"auto_resolved"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (i *Incident) setStatus(s IncidentStatus, now time.Time) {
	i.Status = s
	i.Active = s.Active()
	i.UpdatedAt = now
}

// resolve closes the incident. by is empty for system resolutions.
func (i *Incident) resolve(by, note string, auto bool, now time.Time) {
	i.setStatus(IncidentResolved, now)
	i.ResolvedBy = by
	i.ResolvedAt = &now
	i.ResolutionNote = note
	i.AutoResolved = auto
}

// OpenMinutes is the whole minutes since first seen, rounded up, measured
// until resolution for resolved incidents.
func (i Incident) OpenMinutes(now time.Time) int {
	end := now
	if i.Status == IncidentResolved && i.ResolvedAt != nil {
		end = *i.ResolvedAt
	}
	m := int(math.Ceil(end.Sub(i.FirstSeenAt).Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

type IncidentView struct {
	Incident
	OpenMinutes int `json:"open_minutes"`
}

func ViewIncident(i Incident, now time.Time) IncidentView {
	return IncidentView{Incident: i, OpenMinutes: i.OpenMinutes(now)}
}

// ParseIncidentStatuses parses a comma separated status filter. Blank means
// OPEN,ACKED.
func ParseIncidentStatuses(raw string) ([]IncidentStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return []IncidentStatus{IncidentOpen, IncidentAcked}, nil
	}

	var out []IncidentStatus
	var invalid []string
	seen := make(map[IncidentStatus]bool)
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		s := IncidentStatus(code)
		switch s {
		case IncidentOpen, IncidentAcked, IncidentResolved:
		default:
			invalid = append(invalid, code)
			continue
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	if len(invalid) > 0 {
		return nil, apperr.Validation("Invalid incident status values: %s", strings.Join(invalid, ", "))
	}
	if len(out) == 0 {
		return []IncidentStatus{IncidentOpen, IncidentAcked}, nil
	}
	return out, nil
}

// ParseSeverity returns the severity filter; anything but WARN or CRITICAL
// disables it.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SeverityWarn, SeverityCritical:
		return s
	default:
		return ""
	}
}

type IncidentFilter struct {
	LocationID string
	Statuses   []IncidentStatus
	Severity   Severity
	Limit      int
	Offset     int
}

// IncidentRepository persists incidents. FindByID returns nil, nil on a miss.
type IncidentRepository interface {
	// Create fails with ErrDuplicateIncident when an active incident with the
	// same location and alert code exists.
	Create(ctx context.Context, i *Incident) error
	Save(ctx context.Context, i *Incident) error
	FindByID(ctx context.Context, id IncidentID) (*Incident, error)
	// ListActive returns OPEN and ACKED incidents of a location, most
	// recently updated first.
	ListActive(ctx context.Context, locationID string) ([]Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]Incident, int, error)
}
