package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/kitchenops/internal/ops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// OpsMetricsRepo reads the inventory, payment and cash collections owned by
// other services. It never writes to them.
type OpsMetricsRepo struct {
	inventory *mongo.Collection
	payments  *mongo.Collection
	shifts    *mongo.Collection
}

func NewOpsMetricsRepo(db *mongo.Database) *OpsMetricsRepo {
	return &OpsMetricsRepo{
		inventory: db.Collection("inventory_items"),
		payments:  db.Collection("payments"),
		shifts:    db.Collection("cash_shifts"),
	}
}

func (r *OpsMetricsRepo) InventoryMetrics(ctx context.Context, locationID string) (ops.InventoryMetrics, error) {
	countIf := func(cond interface{}) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
	}
	outOfStock := bson.M{"$eq": bson.A{"$is_out_of_stock", true}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"location_id": locationID}}},
		{{Key: "$group", Value: bson.M{
			"_id":                 nil,
			"total_items":         bson.M{"$sum": 1},
			"out_of_stock_count":  countIf(outOfStock),
			"low_stock_count":     countIf(bson.M{"$lte": bson.A{"$available_quantity", "$low_stock_threshold"}}),
			"auto_disabled_count": countIf(bson.M{"$and": bson.A{outOfStock, bson.M{"$eq": bson.A{"$auto_disabled_by_stock", true}}}}),
			"inactive_count":      countIf(bson.M{"$eq": bson.A{"$status", "inactive"}}),
		}}},
	}

	cursor, err := r.inventory.Aggregate(ctx, pipeline)
	if err != nil {
		return ops.InventoryMetrics{}, fmt.Errorf("cannot aggregate inventory: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TotalItems        int `bson:"total_items"`
		OutOfStockCount   int `bson:"out_of_stock_count"`
		LowStockCount     int `bson:"low_stock_count"`
		AutoDisabledCount int `bson:"auto_disabled_count"`
		InactiveCount     int `bson:"inactive_count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return ops.InventoryMetrics{}, fmt.Errorf("cannot decode inventory metrics: %w", err)
	}
	if len(rows) == 0 {
		return ops.InventoryMetrics{}, nil
	}

	row := rows[0]
	return ops.InventoryMetrics{
		TotalItems:        row.TotalItems,
		OutOfStockCount:   row.OutOfStockCount,
		LowStockCount:     row.LowStockCount,
		AutoDisabledCount: row.AutoDisabledCount,
		InactiveCount:     row.InactiveCount,
	}, nil
}

// PaymentMetrics counts payments across all locations; payment documents
// carry no location.
func (r *OpsMetricsRepo) PaymentMetrics(ctx context.Context, q ops.PaymentQuery) (ops.PaymentMetrics, error) {
	inWindow := bson.M{"$gte": q.WindowFrom}

	var m ops.PaymentMetrics
	err := runCounts(ctx,
		r.countTask("payments", r.payments, bson.M{"created_at": inWindow}, &m.TotalWindow),
		r.countTask("failed payments", r.payments, bson.M{
			"created_at": inWindow,
			"status":     bson.M{"$in": bson.A{"failed", "canceled"}},
		}, &m.FailedWindow),
		r.countTask("verified payments", r.payments, bson.M{
			"created_at": inWindow,
			"verified":   true,
		}, &m.VerifiedWindow),
		r.countTask("unverified payments", r.payments, bson.M{
			"verified":   false,
			"created_at": bson.M{"$lte": q.UnverifiedBefore},
		}, &m.UnverifiedAgingCount),
		r.countTask("unlinked payments", r.payments, bson.M{
			"created_at":     inWindow,
			"verified":       true,
			"used_for_order": false,
		}, &m.UnlinkedVerifiedWindow),
		countTask{dst: &m.PendingRefundApprovals, run: r.pendingRefundApprovals},
	)
	if err != nil {
		return ops.PaymentMetrics{}, err
	}
	return m, nil
}

func (r *OpsMetricsRepo) pendingRefundApprovals(ctx context.Context) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$refund_approvals"}},
		{{Key: "$match", Value: bson.M{"refund_approvals.status": "PENDING"}}},
		{{Key: "$count", Value: "count"}},
	}
	return r.aggregateCount(ctx, r.payments, pipeline, "pending refund approvals")
}

func (r *OpsMetricsRepo) CashMetrics(ctx context.Context, q ops.CashQuery) (ops.CashMetrics, error) {
	closedInWindow := bson.M{
		"location_id": q.LocationID,
		"status":      "CLOSED",
		"closed_at":   bson.M{"$gte": q.WindowFrom},
	}
	highVariance := mongo.Pipeline{
		{{Key: "$match", Value: closedInWindow}},
		{{Key: "$project", Value: bson.M{"abs_variance": bson.M{"$abs": "$variance"}}}},
		{{Key: "$match", Value: bson.M{"abs_variance": bson.M{"$gte": q.VarianceAtLeast}}}},
		{{Key: "$count", Value: "count"}},
	}

	var m ops.CashMetrics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runCounts(gctx,
			r.countTask("open shifts", r.shifts, bson.M{"location_id": q.LocationID, "status": "OPEN"}, &m.OpenShiftCount),
			r.countTask("closed shifts", r.shifts, closedInWindow, &m.ClosedShiftWindow),
			countTask{dst: &m.HighVarianceShiftCount, run: func(ctx context.Context) (int, error) {
				return r.aggregateCount(ctx, r.shifts, highVariance, "high variance shifts")
			}},
		)
	})
	g.Go(func() error {
		latest, err := r.latestClosedShift(gctx, q.LocationID)
		m.LatestClosedShift = latest
		return err
	})
	if err := g.Wait(); err != nil {
		return ops.CashMetrics{}, err
	}
	return m, nil
}

func (r *OpsMetricsRepo) latestClosedShift(ctx context.Context, locationID string) (*ops.ClosedShift, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "closed_at", Value: -1}}).
		SetProjection(bson.M{"closed_at": 1, "variance": 1, "closing_expected": 1, "closing_counted": 1})

	var shift struct {
		ClosedAt        time.Time `bson:"closed_at"`
		Variance        float64   `bson:"variance"`
		ClosingExpected float64   `bson:"closing_expected"`
		ClosingCounted  float64   `bson:"closing_counted"`
	}
	err := r.shifts.FindOne(ctx, bson.M{"location_id": locationID, "status": "CLOSED"}, opts).Decode(&shift)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot find latest closed shift: %w", err)
	}
	return &ops.ClosedShift{
		ClosedAt:        shift.ClosedAt,
		Variance:        shift.Variance,
		ClosingExpected: shift.ClosingExpected,
		ClosingCounted:  shift.ClosingCounted,
	}, nil
}

// countTask is one independent metric query writing into its own field.
type countTask struct {
	dst *int
	run func(ctx context.Context) (int, error)
}

func (r *OpsMetricsRepo) countTask(what string, c *mongo.Collection, filter bson.M, dst *int) countTask {
	return countTask{dst: dst, run: func(ctx context.Context) (int, error) {
		n, err := c.CountDocuments(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("cannot count %s: %w", what, err)
		}
		return int(n), nil
	}}
}

// runCounts runs the tasks in parallel. The first failure cancels the rest.
func runCounts(ctx context.Context, tasks ...countTask) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			n, err := task.run(gctx)
			if err != nil {
				return err
			}
			*task.dst = n
			return nil
		})
	}
	return g.Wait()
}

func (r *OpsMetricsRepo) aggregateCount(ctx context.Context, c *mongo.Collection, pipeline mongo.Pipeline, what string) (int, error) {
	cursor, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("cannot count %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("cannot decode %s: %w", what, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}
