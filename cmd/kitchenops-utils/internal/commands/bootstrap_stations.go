package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/internal/mongo"
)

// BootstrapStations creates the default stations of a location that do not
// exist yet and returns the location's stations.
func BootstrapStations(ctx context.Context, config *apt.Config, logger apt.Logger, locationID string) ([]kitchen.Station, error) {
	db, stop, err := openStore(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	defer stop()

	stationRepo := mongo.NewStationRepo(db)
	if err := stationRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	svc := kitchen.NewService(kitchen.ServiceDeps{
		Tickets:  mongo.NewTicketRepo(db),
		Stations: stationRepo,
		Events:   mongo.NewEventRepo(db),
		SLA:      kitchen.SLASettingsFromConfig(config),
	}, logger)

	stations, err := svc.BootstrapStations(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", kitchen.NormalizeLocationID(locationID), err)
	}
	return stations, nil
}
