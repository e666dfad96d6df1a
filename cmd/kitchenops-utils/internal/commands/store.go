package commands

import (
	"context"
	"errors"

	"github.com/appetiteclub/apt"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/appetiteclub/kitchenops/internal/mongo"
)

// openStore connects to the service database. The caller must call the
// returned stop func.
func openStore(ctx context.Context, config *apt.Config, logger apt.Logger) (*mongodriver.Database, func(), error) {
	base := mongo.NewBaseRepo(config, logger)
	if err := base.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		if err := base.Stop(context.Background()); err != nil {
			logger.Error("cannot stop store", "error", err)
		}
	}

	db := base.GetDatabase()
	if db == nil {
		stop()
		return nil, nil, errors.New("repository database is nil")
	}
	return db, stop, nil
}
