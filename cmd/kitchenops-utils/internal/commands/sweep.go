package commands

import (
	"context"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/kitchenops/internal/mongo"
	"github.com/appetiteclub/kitchenops/internal/ops"
)

// Sweep runs one escalation sweep for a location. It takes the same
// per-location lock as the running service when redis.addr is set.
func Sweep(ctx context.Context, config *apt.Config, logger apt.Logger, locationID string) (*ops.SweepResult, error) {
	db, stop, err := openStore(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	defer stop()

	locker, closeLocker, err := ops.LockerFromConfig(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	defer closeLocker()

	settings, err := ops.SweepSettingsFromConfig(config)
	if err != nil {
		return nil, err
	}

	evaluator := ops.NewEvaluator(ops.EvaluatorDeps{
		Metrics:    mongo.NewOpsMetricsRepo(db),
		Tickets:    mongo.NewTicketRepo(db),
		Thresholds: ops.ThresholdsFromConfig(config),
	}, logger)

	engine := ops.NewEngine(ops.EngineDeps{
		Incidents: mongo.NewIncidentRepo(db),
		Locker:    locker,
		Policy:    ops.EscalationPolicyFromConfig(config),
	}, logger)

	sweeper := ops.NewSweeper(evaluator, engine, nil, settings, logger)
	return sweeper.Sweep(ctx, locationID, settings.WindowMinutes)
}
