package mongo

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventRepo struct {
	collection *mongo.Collection
}

func NewEventRepo(db *mongo.Database) *EventRepo {
	return &EventRepo{
		collection: db.Collection("kitchen_ticket_events"),
	}
}

func (r *EventRepo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ticket_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("cannot create ticket event indexes: %w", err)
	}
	return nil
}

func (r *EventRepo) Append(ctx context.Context, e *kitchen.TicketEvent) error {
	if _, err := r.collection.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("cannot insert ticket event: %w", err)
	}
	return nil
}

// Replay returns one page of matching events, oldest first, and the total
// number of matches.
func (r *EventRepo) Replay(ctx context.Context, q kitchen.ReplayQuery) ([]kitchen.TicketEvent, int, error) {
	query := replayFilter(q)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot count ticket events: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	events, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return events, int(total), nil
}

func replayFilter(q kitchen.ReplayQuery) bson.M {
	query := bson.M{}
	if q.LocationID != "" {
		query["location_id"] = q.LocationID
	}
	if q.TicketID != nil {
		query["ticket_id"] = *q.TicketID
	}
	if q.OrderID != nil {
		query["order_id"] = *q.OrderID
	}
	if len(q.EventTypes) > 0 {
		query["event_type"] = bson.M{"$in": q.EventTypes}
	}

	created := bson.M{}
	if q.From != nil {
		created["$gte"] = *q.From
	}
	if q.To != nil {
		created["$lte"] = *q.To
	}
	if len(created) > 0 {
		query["created_at"] = created
	}
	return query
}

func (r *EventRepo) ListByTicket(ctx context.Context, ticketID kitchen.TicketID, limit int) ([]kitchen.TicketEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"ticket_id": ticketID}, opts)
}

func (r *EventRepo) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]kitchen.TicketEvent, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find ticket events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []kitchen.TicketEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("cannot decode ticket events: %w", err)
	}
	return events, nil
}
