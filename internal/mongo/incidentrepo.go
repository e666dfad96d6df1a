package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/kitchenops/internal/ops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type IncidentRepo struct {
	collection *mongo.Collection
}

func NewIncidentRepo(db *mongo.Database) *IncidentRepo {
	return &IncidentRepo{
		collection: db.Collection("ops_incidents"),
	}
}

// EnsureIndexes adds a partial unique index so a location holds at most one
// active incident per alert code.
func (r *IncidentRepo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "alert_code", Value: 1}},
			Options: options.Index().
				SetName("active_alert_code").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("cannot create incident indexes: %w", err)
	}
	return nil
}

func (r *IncidentRepo) Create(ctx context.Context, i *ops.Incident) error {
	if _, err := r.collection.InsertOne(ctx, i); err != nil {
		if isDuplicateKey(err) {
			return ops.ErrDuplicateIncident
		}
		return fmt.Errorf("cannot insert incident: %w", err)
	}
	return nil
}

func (r *IncidentRepo) Save(ctx context.Context, i *ops.Incident) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": i.ID}, i)
	if err != nil {
		if isDuplicateKey(err) {
			return ops.ErrDuplicateIncident
		}
		return fmt.Errorf("cannot save incident: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("cannot save incident %s: not found", i.ID)
	}
	return nil
}

func (r *IncidentRepo) FindByID(ctx context.Context, id ops.IncidentID) (*ops.Incident, error) {
	var incident ops.Incident
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&incident)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot find incident: %w", err)
	}
	return &incident, nil
}

func (r *IncidentRepo) ListActive(ctx context.Context, locationID string) ([]ops.Incident, error) {
	query := bson.M{"location_id": locationID, "active": true}
	return r.find(ctx, query, options.Find().SetSort(recentFirst))
}

func (r *IncidentRepo) List(ctx context.Context, filter ops.IncidentFilter) ([]ops.Incident, int, error) {
	query := bson.M{"location_id": filter.LocationID}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.Severity != "" {
		query["severity"] = filter.Severity
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot count incidents: %w", err)
	}

	opts := options.Find().SetSort(recentFirst)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	incidents, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return incidents, int(total), nil
}

var recentFirst = bson.D{{Key: "updated_at", Value: -1}, {Key: "created_at", Value: -1}}

func (r *IncidentRepo) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]ops.Incident, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find incidents: %w", err)
	}
	defer cursor.Close(ctx)

	incidents := []ops.Incident{}
	if err := cursor.All(ctx, &incidents); err != nil {
		return nil, fmt.Errorf("cannot decode incidents: %w", err)
	}
	return incidents, nil
}
