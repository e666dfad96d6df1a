package kitchen

import (
	"math"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
)

const (
	defaultNormalSLAMinutes = 20
	defaultRushSLAMinutes   = 12
)

// SLASettings holds the target preparation minutes per priority.
type SLASettings struct {
	NormalMinutes int
	RushMinutes   int
}

func DefaultSLASettings() SLASettings {
	return SLASettings{
		NormalMinutes: defaultNormalSLAMinutes,
		RushMinutes:   defaultRushSLAMinutes,
	}
}

// SLASettingsFromConfig reads kitchen.sla.normal.minutes and
// kitchen.sla.rush.minutes. Unparseable values keep the defaults.
func SLASettingsFromConfig(cfg *apt.Config) SLASettings {
	s := DefaultSLASettings()
	if cfg == nil {
		return s
	}
	s.NormalMinutes = configInt(cfg, "kitchen.sla.normal.minutes", s.NormalMinutes)
	s.RushMinutes = configInt(cfg, "kitchen.sla.rush.minutes", s.RushMinutes)
	return s
}

// MinutesFor returns the SLA for a priority, never below one minute.
func (s SLASettings) MinutesFor(p Priority) int {
	m := s.NormalMinutes
	if p == PriorityRush {
		m = s.RushMinutes
	}
	if m < 1 {
		return 1
	}
	return m
}

type AlertLevel string

const (
	AlertOnTrack  AlertLevel = "ON_TRACK"
	AlertWarning  AlertLevel = "WARNING"
	AlertOverdue  AlertLevel = "OVERDUE"
	AlertResolved AlertLevel = "RESOLVED"
)

// SLA is the computed timer view of a ticket at a given instant.
type SLA struct {
	SLAMinutes       int        `json:"sla_minutes"`
	TargetReadyAt    time.Time  `json:"target_ready_at"`
	ElapsedMinutes   int        `json:"elapsed_minutes"`
	RemainingMinutes int        `json:"remaining_minutes"`
	AlertLevel       AlertLevel `json:"alert_level"`
	IsOverdue        bool       `json:"is_overdue"`
}

func ComputeSLA(t Ticket, settings SLASettings, now time.Time) SLA {
	fired := t.firedAt()
	if fired.IsZero() {
		fired = now
	}

	slaMinutes := t.SLAMinutes
	if slaMinutes <= 0 {
		slaMinutes = settings.MinutesFor(t.Priority)
	}

	target := t.TargetReadyAt
	if target.IsZero() {
		target = fired.Add(time.Duration(slaMinutes) * time.Minute)
	}

	elapsed := int(math.Floor(now.Sub(fired).Minutes()))
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int(math.Ceil(target.Sub(now).Minutes()))

	level := AlertOnTrack
	switch {
	case !t.Status.Open():
		level = AlertResolved
	case remaining <= 0:
		level = AlertOverdue
	case remaining <= warningThreshold(slaMinutes):
		level = AlertWarning
	}

	return SLA{
		SLAMinutes:       slaMinutes,
		TargetReadyAt:    target,
		ElapsedMinutes:   elapsed,
		RemainingMinutes: remaining,
		AlertLevel:       level,
		IsOverdue:        level == AlertOverdue,
	}
}

// warningThreshold is a quarter of the SLA, at least two minutes.
func warningThreshold(slaMinutes int) int {
	w := int(math.Ceil(float64(slaMinutes) * 0.25))
	if w < 2 {
		return 2
	}
	return w
}

// SLABuckets counts open tickets by SLA alert level.
type SLABuckets struct {
	OpenTickets  int `json:"open_tickets"`
	OverdueCount int `json:"overdue_count"`
	WarningCount int `json:"warning_count"`
	OnTrackCount int `json:"on_track_count"`
}

// KitchenSLABuckets classifies the given open tickets. Tickets that are not
// open are skipped.
func KitchenSLABuckets(tickets []Ticket, settings SLASettings, now time.Time) SLABuckets {
	var b SLABuckets
	for _, t := range tickets {
		if !t.Status.Open() {
			continue
		}
		b.OpenTickets++
		switch ComputeSLA(t, settings, now).AlertLevel {
		case AlertOverdue:
			b.OverdueCount++
		case AlertWarning:
			b.WarningCount++
		default:
			b.OnTrackCount++
		}
	}
	return b
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func configInt(cfg *apt.Config, key string, def int) int {
	raw, ok := cfg.GetString(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
