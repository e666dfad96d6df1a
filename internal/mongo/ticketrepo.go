package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var handedOffStatuses = []kitchenstatus.Ticket{
	kitchenstatus.TicketReady,
	kitchenstatus.TicketExpoConfirmed,
	kitchenstatus.TicketServed,
}

type TicketRepo struct {
	collection *mongo.Collection
}

func NewTicketRepo(db *mongo.Database) *TicketRepo {
	return &TicketRepo{
		collection: db.Collection("kitchen_tickets"),
	}
}

func (r *TicketRepo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "items.station_code", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("cannot create ticket indexes: %w", err)
	}
	return nil
}

func (r *TicketRepo) Create(ctx context.Context, t *kitchen.Ticket) error {
	if _, err := r.collection.InsertOne(ctx, t); err != nil {
		if isDuplicateKey(err) {
			return kitchen.ErrDuplicateOrder
		}
		return fmt.Errorf("cannot insert ticket: %w", err)
	}
	return nil
}

// Update replaces the stored ticket only while its version still matches.
func (r *TicketRepo) Update(ctx context.Context, t *kitchen.Ticket) error {
	expected := t.ModelVersion
	next := *t
	next.ModelVersion = expected + 1

	filter := bson.M{"_id": t.ID, "model_version": expected}
	result, err := r.collection.ReplaceOne(ctx, filter, next)
	if err != nil {
		return fmt.Errorf("cannot update ticket: %w", err)
	}
	if result.MatchedCount == 0 {
		return kitchen.ErrVersionConflict
	}

	t.ModelVersion = next.ModelVersion
	return nil
}

func (r *TicketRepo) FindByID(ctx context.Context, id kitchen.TicketID) (*kitchen.Ticket, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *TicketRepo) FindByOrderID(ctx context.Context, id kitchen.OrderID) (*kitchen.Ticket, error) {
	return r.findOne(ctx, bson.M{"order_id": id})
}

func (r *TicketRepo) findOne(ctx context.Context, filter bson.M) (*kitchen.Ticket, error) {
	var ticket kitchen.Ticket
	err := r.collection.FindOne(ctx, filter).Decode(&ticket)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot find ticket: %w", err)
	}
	return &ticket, nil
}

func (r *TicketRepo) List(ctx context.Context, filter kitchen.TicketFilter) ([]kitchen.Ticket, int, error) {
	query := bson.M{}
	if filter.LocationID != "" {
		query["location_id"] = filter.LocationID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if filter.StationCode != "" {
		query["items.station_code"] = filter.StationCode
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot count tickets: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "fired_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	tickets, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return tickets, int(total), nil
}

func (r *TicketRepo) ListByStatus(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]kitchen.Ticket, error) {
	query := bson.M{"status": bson.M{"$in": statuses}}
	if locationID != "" {
		query["location_id"] = locationID
	}
	opts := options.Find().SetSort(bson.D{{Key: "fired_at", Value: 1}})
	return r.find(ctx, query, opts)
}

func (r *TicketRepo) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]kitchen.Ticket, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find tickets: %w", err)
	}
	defer cursor.Close(ctx)

	tickets := []kitchen.Ticket{}
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("cannot decode tickets: %w", err)
	}
	return tickets, nil
}

func (r *TicketRepo) CountByStatus(ctx context.Context, locationID string) (map[kitchenstatus.Ticket]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"location_id": locationID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("cannot count tickets by status: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status kitchenstatus.Ticket `bson:"_id"`
		Count  int                  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("cannot decode status counts: %w", err)
	}

	counts := make(map[kitchenstatus.Ticket]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *TicketRepo) AvgReadyMinutes(ctx context.Context, locationID string, since time.Time) (float64, error) {
	match := bson.M{
		"location_id": locationID,
		"status":      bson.M{"$in": handedOffStatuses},
		"ready_at":    bson.M{"$ne": nil},
	}
	if !since.IsZero() {
		match["ready_at"] = bson.M{"$ne": nil, "$gte": since}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"avg_ms": bson.M{"$avg": bson.M{
				"$subtract": bson.A{"$ready_at", "$fired_at"},
			}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("cannot aggregate ready time: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		AvgMS float64 `bson:"avg_ms"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("cannot decode ready time: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].AvgMS / float64(time.Minute/time.Millisecond), nil
}
