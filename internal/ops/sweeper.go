package ops

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
)

type SweepResult struct {
	LocationID    string           `json:"location_id"`
	WindowMinutes int              `json:"window_minutes"`
	Policy        EscalationPolicy `json:"policy"`
	HealthStatus  HealthStatus     `json:"health_status"`
	AlertSummary  AlertSummary     `json:"alert_summary"`
	SyncResult    SyncResult       `json:"sync_result"`
}

// SweepSettings drive the periodic sweep. A zero Interval disables it.
type SweepSettings struct {
	Interval      time.Duration
	Locations     []string
	WindowMinutes int
}

// SweepSettingsFromConfig reads ops.sweep.interval (a Go duration, empty
// disables the timer) and ops.sweep.locations (comma separated).
func SweepSettingsFromConfig(cfg *apt.Config) (SweepSettings, error) {
	s := SweepSettings{
		Locations:     []string{kitchen.DefaultLocationID},
		WindowMinutes: DefaultWindowMinutes,
	}
	if cfg == nil {
		return s, nil
	}

	if raw := strings.TrimSpace(cfg.GetStringOrDef("ops.sweep.interval", "")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return s, fmt.Errorf("invalid ops.sweep.interval %q: %w", raw, err)
		}
		s.Interval = d
	}

	if raw := cfg.GetStringOrDef("ops.sweep.locations", ""); raw != "" {
		var locs []string
		seen := make(map[string]bool)
		for _, part := range strings.Split(raw, ",") {
			loc := kitchen.NormalizeLocationID(part)
			if !seen[loc] {
				seen[loc] = true
				locs = append(locs, loc)
			}
		}
		s.Locations = locs
	}

	if raw := cfg.GetStringOrDef("ops.sweep.window.minutes", ""); raw != "" {
		w, err := ParseWindowMinutes(raw)
		if err != nil {
			return s, fmt.Errorf("invalid ops.sweep.window.minutes: %w", err)
		}
		s.WindowMinutes = w
	}
	return s, nil
}

// Sweeper evaluates a location and reconciles its incidents with the result.
type Sweeper struct {
	evaluator *Evaluator
	engine    *Engine
	health    *HealthReporter
	settings  SweepSettings
	logger    apt.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(evaluator *Evaluator, engine *Engine, health *HealthReporter, settings SweepSettings, logger apt.Logger) *Sweeper {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Sweeper{
		evaluator: evaluator,
		engine:    engine,
		health:    health,
		settings:  settings,
		logger:    logger,
	}
}

func (s *Sweeper) Sweep(ctx context.Context, locationID string, windowMinutes int) (*SweepResult, error) {
	snap, err := s.evaluator.Snapshot(ctx, locationID, windowMinutes)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Sync(ctx, snap.LocationID, snap.Alerts, snap.GeneratedAt)
	if err != nil {
		return nil, err
	}
	s.health.Report(snap.LocationID, snap.HealthStatus)

	return &SweepResult{
		LocationID:    snap.LocationID,
		WindowMinutes: snap.WindowMinutes,
		Policy:        s.engine.Policy(),
		HealthStatus:  snap.HealthStatus,
		AlertSummary:  snap.AlertSummary,
		SyncResult:    res,
	}, nil
}

// Start launches the periodic sweep when an interval is configured.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.settings.Interval <= 0 {
		s.logger.Info("Periodic escalation sweep disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting escalation sweeper", "interval", s.settings.Interval.String(), "locations", strings.Join(s.settings.Locations, ","))
	go s.run(runCtx, s.done)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	// On-demand sweeps report health even when the timer never ran.
	defer s.health.Shutdown()

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

// SweepAll sweeps every configured location. Locations are independent, so
// they run in parallel and one failure does not stop the others.
func (s *Sweeper) SweepAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, loc := range s.settings.Locations {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()
			res, err := s.Sweep(ctx, loc, s.settings.WindowMinutes)
			if err != nil {
				s.logger.Errorf("Escalation sweep failed for %s: %v", loc, err)
				return
			}
			s.logger.Debug("escalation sweep finished", "location_id", loc, "health", res.HealthStatus)
		}(loc)
	}
	wg.Wait()
}
