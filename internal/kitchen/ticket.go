package kitchen

import (
	"strings"
	"time"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
	"github.com/google/uuid"
)

type TicketID = uuid.UUID
type OrderID = uuid.UUID
type ItemID = uuid.UUID

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityRush   Priority = "RUSH"
)

func ParsePriority(raw string) (Priority, bool) {
	switch Priority(strings.ToUpper(strings.TrimSpace(raw))) {
	case PriorityNormal:
		return PriorityNormal, true
	case PriorityRush:
		return PriorityRush, true
	}
	return "", false
}

// HandoffStage is the front-of-house confirmation step.
type HandoffStage string

const (
	HandoffExpo   HandoffStage = "EXPO"
	HandoffServed HandoffStage = "SERVED"
)

func ParseHandoffStage(raw string) (HandoffStage, bool) {
	switch HandoffStage(strings.ToUpper(strings.TrimSpace(raw))) {
	case HandoffExpo:
		return HandoffExpo, true
	case HandoffServed:
		return HandoffServed, true
	}
	return "", false
}

// Actor identifies who performed a ticket operation.
type Actor struct {
	ID   string `bson:"id,omitempty" json:"id,omitempty"`
	Role string `bson:"role,omitempty" json:"role,omitempty"`
}

type Ticket struct {
	ID              TicketID             `bson:"_id" json:"id"`
	OrderID         OrderID              `bson:"order_id" json:"order_id"`
	LocationID      string               `bson:"location_id" json:"location_id"`
	SourceType      string               `bson:"source_type,omitempty" json:"source_type,omitempty"`
	FulfillmentType string               `bson:"fulfillment_type,omitempty" json:"fulfillment_type,omitempty"`
	CustomerName    string               `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	TableRef        string               `bson:"table_ref,omitempty" json:"table_ref,omitempty"`
	Status          kitchenstatus.Ticket `bson:"status" json:"status"`
	Priority        Priority             `bson:"priority" json:"priority"`
	SLAMinutes      int                  `bson:"sla_minutes" json:"sla_minutes"`
	Items           []TicketItem         `bson:"items" json:"items"`

	FiredAt            time.Time  `bson:"fired_at" json:"fired_at"`
	TargetReadyAt      time.Time  `bson:"target_ready_at" json:"target_ready_at"`
	LastStatusChangeAt time.Time  `bson:"last_status_change_at" json:"last_status_change_at"`
	PrepStartedAt      *time.Time `bson:"prep_started_at,omitempty" json:"prep_started_at,omitempty"`
	ReadyAt            *time.Time `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
	ExpoConfirmedAt    *time.Time `bson:"expo_confirmed_at,omitempty" json:"expo_confirmed_at,omitempty"`
	ServedAt           *time.Time `bson:"served_at,omitempty" json:"served_at,omitempty"`
	CancelledAt        *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`

	ExpediteCount      int        `bson:"expedite_count" json:"expedite_count"`
	LastExpediteAt     *time.Time `bson:"last_expedite_at,omitempty" json:"last_expedite_at,omitempty"`
	LastExpediteReason string     `bson:"last_expedite_reason,omitempty" json:"last_expedite_reason,omitempty"`

	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
	ModelVersion int       `bson:"model_version" json:"model_version"`
}

type TicketItem struct {
	ID           ItemID             `bson:"id" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`
	StationCode  string             `bson:"station_code" json:"station_code"`
	StationType  station.Type       `bson:"station_type,omitempty" json:"station_type,omitempty"`
	LoadBalanced bool               `bson:"load_balanced" json:"load_balanced"`
	Status       kitchenstatus.Item `bson:"status" json:"status"`
	StartedAt    *time.Time         `bson:"started_at,omitempty" json:"started_at,omitempty"`
	ReadyAt      *time.Time         `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
}

// Outstanding reports whether the item still needs kitchen work.
func (i TicketItem) Outstanding() bool {
	return i.Status == kitchenstatus.ItemNew || i.Status == kitchenstatus.ItemPreparing
}

func (i *TicketItem) setStatus(status kitchenstatus.Item, now time.Time) {
	i.Status = status
	if status == kitchenstatus.ItemPreparing && i.StartedAt == nil {
		i.StartedAt = timePtr(now)
	}
	if status == kitchenstatus.ItemReady && i.ReadyAt == nil {
		i.ReadyAt = timePtr(now)
	}
}

// DeriveStatus computes the ticket status implied by its items.
func DeriveStatus(items []TicketItem) kitchenstatus.Ticket {
	if len(items) == 0 {
		return kitchenstatus.TicketNew
	}

	allCancelled := true
	allDone := true
	anyPreparing := false
	for _, it := range items {
		if it.Status != kitchenstatus.ItemCancelled {
			allCancelled = false
		}
		if it.Status != kitchenstatus.ItemReady && it.Status != kitchenstatus.ItemCancelled {
			allDone = false
		}
		if it.Status == kitchenstatus.ItemPreparing {
			anyPreparing = true
		}
	}

	switch {
	case allCancelled:
		return kitchenstatus.TicketCancelled
	case allDone:
		return kitchenstatus.TicketReady
	case anyPreparing:
		return kitchenstatus.TicketPreparing
	default:
		return kitchenstatus.TicketNew
	}
}

// Item returns a pointer to the ticket line with the given id.
func (t *Ticket) Item(id ItemID) *TicketItem {
	for i := range t.Items {
		if t.Items[i].ID == id {
			return &t.Items[i]
		}
	}
	return nil
}

// stamp records the status change and its per-status timestamp.
func (t *Ticket) stamp(status kitchenstatus.Ticket, now time.Time) {
	t.Status = status
	t.LastStatusChangeAt = now

	switch status {
	case kitchenstatus.TicketPreparing:
		if t.PrepStartedAt == nil {
			t.PrepStartedAt = timePtr(now)
		}
	case kitchenstatus.TicketReady:
		t.ReadyAt = timePtr(now)
	case kitchenstatus.TicketExpoConfirmed:
		t.ExpoConfirmedAt = timePtr(now)
	case kitchenstatus.TicketServed:
		t.ServedAt = timePtr(now)
	case kitchenstatus.TicketCancelled:
		t.CancelledAt = timePtr(now)
	}
}

// cascade pushes an explicit ticket status down to the items.
func (t *Ticket) cascade(status kitchenstatus.Ticket, now time.Time) {
	for i := range t.Items {
		it := &t.Items[i]
		switch status {
		case kitchenstatus.TicketPreparing:
			if it.Status == kitchenstatus.ItemNew {
				it.setStatus(kitchenstatus.ItemPreparing, now)
			}
		case kitchenstatus.TicketReady:
			if it.Status != kitchenstatus.ItemCancelled {
				it.setStatus(kitchenstatus.ItemReady, now)
			}
		case kitchenstatus.TicketCancelled:
			it.setStatus(kitchenstatus.ItemCancelled, now)
		}
	}
}

// ApplyStatus performs an explicit ticket status change. Handoff statuses go
// through ApplyHandoff. Derivable statuses cascade to the items and are only
// accepted when the items then derive the same status.
func (t *Ticket) ApplyStatus(status kitchenstatus.Ticket, now time.Time) error {
	if t.Status.Terminal() {
		return apperr.Conflict("ticket is %s and cannot change status", t.Status)
	}

	switch status {
	case kitchenstatus.TicketExpoConfirmed:
		return t.ApplyHandoff(HandoffExpo, now)
	case kitchenstatus.TicketServed:
		return t.ApplyHandoff(HandoffServed, now)
	}

	if !status.Derivable() {
		return apperr.Validation("invalid ticket status: %s", status)
	}

	before := cloneItems(t.Items)
	t.cascade(status, now)
	if derived := DeriveStatus(t.Items); derived != status {
		t.Items = before
		return apperr.Conflict("ticket items are %s, cannot set %s", derived, status)
	}

	t.stamp(status, now)
	return nil
}

// ApplyItemStatus changes one item and re-derives the ticket status.
func (t *Ticket) ApplyItemStatus(itemID ItemID, status kitchenstatus.Item, now time.Time) error {
	switch t.Status {
	case kitchenstatus.TicketNew, kitchenstatus.TicketPreparing, kitchenstatus.TicketReady:
	default:
		return apperr.Conflict("ticket is %s, items can no longer change", t.Status)
	}

	it := t.Item(itemID)
	if it == nil {
		return apperr.NotFound("kitchen ticket item not found")
	}

	it.setStatus(status, now)

	if derived := DeriveStatus(t.Items); derived.Derivable() {
		t.stamp(derived, now)
	}
	return nil
}

// ApplyPriority sets the priority and recomputes the SLA window anchored at
// the original fire time.
func (t *Ticket) ApplyPriority(p Priority, sla SLASettings, now time.Time) {
	t.Priority = p
	t.SLAMinutes = sla.MinutesFor(p)
	t.TargetReadyAt = t.firedAt().Add(time.Duration(t.SLAMinutes) * time.Minute)
	t.LastStatusChangeAt = now
}

// ApplyExpedite bumps an open ticket to rush. A blank reason keeps the last one.
func (t *Ticket) ApplyExpedite(reason string, sla SLASettings, now time.Time) error {
	if !t.Status.Open() {
		return apperr.Conflict("only NEW/PREPARING tickets can be expedited")
	}

	t.ExpediteCount++
	t.LastExpediteAt = timePtr(now)
	if r := strings.TrimSpace(reason); r != "" {
		t.LastExpediteReason = r
	}
	t.ApplyPriority(PriorityRush, sla, now)
	return nil
}

// ApplyHandoff confirms expo or served. The ticket must have reached READY;
// repeating a confirmation is allowed.
func (t *Ticket) ApplyHandoff(stage HandoffStage, now time.Time) error {
	switch t.Status {
	case kitchenstatus.TicketReady, kitchenstatus.TicketExpoConfirmed, kitchenstatus.TicketServed:
	default:
		if stage == HandoffExpo {
			return apperr.Conflict("ticket must be READY before expo handoff")
		}
		return apperr.Conflict("ticket must be READY/EXPO_CONFIRMED before served")
	}

	switch stage {
	case HandoffExpo:
		if t.Status == kitchenstatus.TicketServed {
			return nil
		}
		t.stamp(kitchenstatus.TicketExpoConfirmed, now)
	case HandoffServed:
		t.stamp(kitchenstatus.TicketServed, now)
	default:
		return apperr.Validation("stage must be EXPO or SERVED")
	}
	return nil
}

func (t *Ticket) firedAt() time.Time {
	if !t.FiredAt.IsZero() {
		return t.FiredAt
	}
	return t.CreatedAt
}

func cloneItems(items []TicketItem) []TicketItem {
	out := make([]TicketItem, len(items))
	copy(out, items)
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
