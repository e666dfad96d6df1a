package mongo

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type StationRepo struct {
	collection *mongo.Collection
}

func NewStationRepo(db *mongo.Database) *StationRepo {
	return &StationRepo{
		collection: db.Collection("kitchen_stations"),
	}
}

func (r *StationRepo) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "location_id", Value: 1}, {Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("cannot create location_id+code index: %w", err)
	}
	return nil
}

// Upsert writes the station keyed by location and code. An existing station
// keeps its id and creation time, and s is updated to match the stored one.
func (r *StationRepo) Upsert(ctx context.Context, s *kitchen.Station) error {
	filter := bson.M{"location_id": s.LocationID, "code": s.Code}
	update := bson.M{
		"$set": bson.M{
			"display_name":           s.DisplayName,
			"type":                   s.Type,
			"status":                 s.Status,
			"display_order":          s.DisplayOrder,
			"max_concurrent_tickets": s.MaxConcurrentTickets,
			"updated_at":             s.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        s.ID,
			"created_at": s.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored kitchen.Station
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return fmt.Errorf("cannot upsert station: %w", err)
	}
	*s = stored
	return nil
}

func (r *StationRepo) EnsureDefaults(ctx context.Context, stations []kitchen.Station) error {
	if len(stations) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(stations))
	for _, s := range stations {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"location_id": s.LocationID, "code": s.Code}).
			SetUpdate(bson.M{"$setOnInsert": s}).
			SetUpsert(true))
	}

	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("cannot ensure default stations: %w", err)
	}
	return nil
}

func (r *StationRepo) List(ctx context.Context, locationID string, status station.Status) ([]kitchen.Station, error) {
	query := bson.M{"location_id": locationID}
	if status != "" {
		query["status"] = status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "display_order", Value: 1}, {Key: "code", Value: 1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find stations: %w", err)
	}
	defer cursor.Close(ctx)

	stations := []kitchen.Station{}
	if err := cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("cannot decode stations: %w", err)
	}
	return stations, nil
}
