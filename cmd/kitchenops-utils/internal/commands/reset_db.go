package commands

import (
	"context"

	"github.com/appetiteclub/apt"
)

// ownedCollections are the collections this service writes. Collaborator
// collections read by the SLO snapshot are never touched.
var ownedCollections = []string{
	"kitchen_tickets",
	"kitchen_stations",
	"kitchen_ticket_events",
	"ops_incidents",
}

// ResetDB drops every collection owned by kitchenops. USE WITH CAUTION.
func ResetDB(ctx context.Context, config *apt.Config, logger apt.Logger) error {
	logger.Info("dropping kitchenops collections; this cannot be undone")

	db, stop, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer stop()

	for _, name := range ownedCollections {
		if err := db.Collection(name).Drop(ctx); err != nil {
			logger.Error("cannot drop collection", "collection", name, "error", err)
			continue
		}
		logger.Info("collection dropped", "collection", name)
	}
	return nil
}
