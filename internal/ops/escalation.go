package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/event"
	"github.com/google/uuid"
)

const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 500
)

type SyncResult struct {
	CreatedCount      int `json:"created_count"`
	EscalatedCount    int `json:"escalated_count"`
	AutoResolvedCount int `json:"auto_resolved_count"`
	MergedCount       int `json:"merged_count,omitempty"`
}

type EngineDeps struct {
	Incidents IncidentRepository
	Locker    Locker
	Policy    EscalationPolicy
	Publisher events.Publisher
}

// Engine reconciles incidents with the current alerts and escalates the
// ones that stay open. Passes for one location are serialized by the Locker.
type Engine struct {
	incidents IncidentRepository
	locker    Locker
	policy    EscalationPolicy
	publisher events.Publisher
	logger    apt.Logger
	now       func() time.Time
}

func NewEngine(deps EngineDeps, logger apt.Logger) *Engine {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	policy := deps.Policy
	if policy.LevelRoles == nil {
		policy = DefaultEscalationPolicy()
	}
	return &Engine{
		incidents: deps.Incidents,
		locker:    locker,
		policy:    policy,
		publisher: deps.Publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Policy() EscalationPolicy {
	return e.policy
}

// Sync runs one reconciliation pass for a location: alerts without an
// active incident open one, alerts with one refresh and escalate it, and
// active incidents whose alert is gone are resolved automatically.
func (e *Engine) Sync(ctx context.Context, locationID string, alerts []Alert, now time.Time) (SyncResult, error) {
	locationID = kitchen.NormalizeLocationID(locationID)

	unlock, err := e.locker.Lock(ctx, "ops:sync:"+locationID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("lock location %s: %w", locationID, err)
	}
	defer unlock()

	var res SyncResult
	byCode, err := e.loadActive(ctx, locationID, now, &res)
	if err != nil {
		return res, err
	}

	touched := make(map[IncidentID]bool)
	for _, a := range alerts {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			continue
		}
		a.Code = code

		inc, ok := byCode[code]
		if !ok {
			created, err := e.open(ctx, locationID, a, now, &res)
			if err != nil {
				return res, err
			}
			if created != nil {
				byCode[code] = created
				touched[created.ID] = true
				continue
			}
			// Lost a creation race to another instance; refresh the winner.
			byCode, err = e.loadActive(ctx, locationID, now, &res)
			if err != nil {
				return res, err
			}
			if inc, ok = byCode[code]; !ok {
				return res, fmt.Errorf("incident for %s vanished after duplicate create", code)
			}
		}

		if touched[inc.ID] {
			continue
		}
		if err := e.refresh(ctx, inc, a, now, &res); err != nil {
			return res, err
		}
		touched[inc.ID] = true
	}

	for _, inc := range byCode {
		if touched[inc.ID] {
			continue
		}
		inc.resolve("", NoteAutoCleared, true, now)
		if err := e.incidents.Save(ctx, inc); err != nil {
			return res, fmt.Errorf("auto resolve incident %s: %w", inc.ID, err)
		}
		res.AutoResolvedCount++
		e.publish(ctx, event.EventIncidentResolved, inc, now)
	}

	e.logger.Info("incident sync finished",
		"location_id", locationID,
		"created", res.CreatedCount,
		"escalated", res.EscalatedCount,
		"auto_resolved", res.AutoResolvedCount,
	)
	return res, nil
}

// loadActive indexes the active incidents by alert code. Duplicates keep the
// oldest first-seen incident and the rest are resolved as merged.
func (e *Engine) loadActive(ctx context.Context, locationID string, now time.Time, res *SyncResult) (map[string]*Incident, error) {
	active, err := e.incidents.ListActive(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}

	groups := make(map[string][]*Incident)
	for i := range active {
		inc := &active[i]
		code := strings.ToUpper(inc.AlertCode)
		groups[code] = append(groups[code], inc)
	}

	byCode := make(map[string]*Incident, len(groups))
	for code, group := range groups {
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].FirstSeenAt.Before(group[b].FirstSeenAt)
		})
		byCode[code] = group[0]

		for _, dup := range group[1:] {
			dup.resolve("", NoteMergedDuplicate, true, now)
			if err := e.incidents.Save(ctx, dup); err != nil {
				return nil, fmt.Errorf("merge duplicate incident %s: %w", dup.ID, err)
			}
			res.MergedCount++
			e.logger.Info("merged duplicate incident", "incident_id", dup.ID, "alert_code", code, "kept", group[0].ID)
		}
	}
	return byCode, nil
}

// open creates an incident for the alert. It returns nil, nil when another
// writer created the active incident first.
func (e *Engine) open(ctx context.Context, locationID string, a Alert, now time.Time, res *SyncResult) (*Incident, error) {
	category := strings.TrimSpace(a.Category)
	if category == "" {
		category = "general"
	}
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = a.Code
	}
	role := e.policy.RoleFor(1)

	inc := &Incident{
		ID:                uuid.New(),
		LocationID:        locationID,
		AlertCode:         a.Code,
		Category:          category,
		Severity:          severity(a.Severity == SeverityCritical),
		Title:             title,
		Message:           a.Message,
		Value:             a.Value,
		Threshold:         a.Threshold,
		Unit:              a.Unit,
		FirstSeenAt:       now,
		LastSeenAt:        now,
		EscalationLevel:   1,
		CurrentTargetRole: role,
		EscalationHistory: []EscalationEntry{{
			Level:       1,
			TargetRole:  role,
			EscalatedAt: now,
			Reason:      ReasonIncidentOpened,
		}},
		CreatedAt: now,
	}
	inc.setStatus(IncidentOpen, now)
	escalated := e.escalate(inc, 0, now)

	if err := e.incidents.Create(ctx, inc); err != nil {
		if errors.Is(err, ErrDuplicateIncident) {
			return nil, nil
		}
		return nil, fmt.Errorf("create incident %s: %w", a.Code, err)
	}

	res.CreatedCount++
	e.publish(ctx, event.EventIncidentOpened, inc, now)
	if escalated {
		res.EscalatedCount++
		e.publish(ctx, event.EventIncidentEscalated, inc, now)
	}
	return inc, nil
}

func (e *Engine) refresh(ctx context.Context, inc *Incident, a Alert, now time.Time, res *SyncResult) error {
	if c := strings.TrimSpace(a.Category); c != "" {
		inc.Category = c
	}
	if t := strings.TrimSpace(a.Title); t != "" {
		inc.Title = t
	}
	inc.Severity = severity(a.Severity == SeverityCritical)
	inc.Message = a.Message
	inc.Value = a.Value
	inc.Threshold = a.Threshold
	inc.Unit = a.Unit
	inc.LastSeenAt = now
	inc.AutoResolved = false

	if inc.Status == IncidentResolved {
		inc.ResolvedAt = nil
		inc.ResolvedBy = ""
		inc.ResolutionNote = ""
		inc.setStatus(IncidentOpen, now)
	}
	inc.UpdatedAt = now

	openMinutes := math.Floor(now.Sub(inc.FirstSeenAt).Minutes())
	escalated := e.escalate(inc, openMinutes, now)

	if err := e.incidents.Save(ctx, inc); err != nil {
		return fmt.Errorf("refresh incident %s: %w", inc.ID, err)
	}
	if escalated {
		res.EscalatedCount++
		e.publish(ctx, event.EventIncidentEscalated, inc, now)
	}
	return nil
}

// escalate raises the incident to the level its age deserves. Levels never
// go down; every level crossed gets its own history entry.
func (e *Engine) escalate(inc *Incident, openMinutes float64, now time.Time) bool {
	target := e.policy.LevelFor(openMinutes, inc.Severity)
	if target <= inc.EscalationLevel {
		return false
	}
	for level := inc.EscalationLevel + 1; level <= target; level++ {
		inc.EscalationHistory = append(inc.EscalationHistory, EscalationEntry{
			Level:       level,
			TargetRole:  e.policy.RoleFor(level),
			EscalatedAt: now,
			Reason:      reasonEscalatedPfx + strconv.Itoa(level),
		})
	}
	inc.EscalationLevel = target
	inc.CurrentTargetRole = e.policy.RoleFor(target)
	inc.UpdatedAt = now
	return true
}

func (e *Engine) Acknowledge(ctx context.Context, id IncidentID, actor kitchen.Actor, note string) (*IncidentView, error) {
	inc, err := e.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == IncidentResolved {
		return nil, apperr.Conflict("Resolved incident cannot be acknowledged.")
	}

	now := e.now()
	inc.setStatus(IncidentAcked, now)
	inc.AcknowledgedBy = actor.ID
	inc.AcknowledgedAt = &now
	inc.AckNote = strings.TrimSpace(note)

	if err := e.incidents.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("acknowledge incident %s: %w", id, err)
	}
	v := ViewIncident(*inc, now)
	return &v, nil
}

func (e *Engine) Resolve(ctx context.Context, id IncidentID, actor kitchen.Actor, note string) (*IncidentView, error) {
	inc, err := e.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == IncidentResolved {
		return nil, apperr.Conflict("Incident is already resolved.")
	}

	note = strings.TrimSpace(note)
	if note == "" {
		note = NoteManualResolved
	}
	now := e.now()
	inc.resolve(actor.ID, note, false, now)

	if err := e.incidents.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", id, err)
	}
	e.publish(ctx, event.EventIncidentResolved, inc, now)
	v := ViewIncident(*inc, now)
	return &v, nil
}

func (e *Engine) find(ctx context.Context, id IncidentID) (*Incident, error) {
	inc, err := e.incidents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find incident %s: %w", id, err)
	}
	if inc == nil {
		return nil, apperr.NotFound("Incident not found.")
	}
	return inc, nil
}

type IncidentListParams struct {
	LocationID string
	Statuses   string
	Severity   string
	Limit      string
	Offset     string
}

type IncidentPage struct {
	LocationID string           `json:"location_id"`
	Statuses   []IncidentStatus `json:"statuses"`
	Severity   Severity         `json:"severity,omitempty"`
	Total      int              `json:"total"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
	Incidents  []IncidentView   `json:"incidents"`
}

func (e *Engine) List(ctx context.Context, p IncidentListParams) (*IncidentPage, error) {
	statuses, err := ParseIncidentStatuses(p.Statuses)
	if err != nil {
		return nil, err
	}
	limit, offset := kitchen.ParsePagination(p.Limit, p.Offset, defaultIncidentLimit)
	if limit > maxIncidentLimit {
		limit = maxIncidentLimit
	}

	filter := IncidentFilter{
		LocationID: kitchen.NormalizeLocationID(p.LocationID),
		Statuses:   statuses,
		Severity:   ParseSeverity(p.Severity),
		Limit:      limit,
		Offset:     offset,
	}
	items, total, err := e.incidents.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	now := e.now()
	views := make([]IncidentView, 0, len(items))
	for _, inc := range items {
		views = append(views, ViewIncident(inc, now))
	}
	return &IncidentPage{
		LocationID: filter.LocationID,
		Statuses:   statuses,
		Severity:   filter.Severity,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		Incidents:  views,
	}, nil
}

// publish notifies subscribers of incident transitions. Failures are logged.
func (e *Engine) publish(ctx context.Context, eventType string, inc *Incident, now time.Time) {
	if e.publisher == nil {
		return
	}
	evt := event.OpsIncidentEvent{
		EventType:       eventType,
		OccurredAt:      now,
		IncidentID:      inc.ID.String(),
		LocationID:      inc.LocationID,
		AlertCode:       inc.AlertCode,
		Severity:        string(inc.Severity),
		Status:          string(inc.Status),
		EscalationLevel: inc.EscalationLevel,
		TargetRole:      inc.CurrentTargetRole,
		AutoResolved:    inc.AutoResolved,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.Errorf("Failed to marshal incident event: %v", err)
		return
	}
	if err := e.publisher.Publish(ctx, event.OpsIncidentsTopic, payload); err != nil {
		e.logger.Errorf("Failed to publish %s for incident %s: %v", eventType, inc.ID, err)
	}
}
