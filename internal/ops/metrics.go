package ops

import (
	"context"
	"time"

	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

type InventoryMetrics struct {
	TotalItems        int     `json:"total_items"`
	OutOfStockCount   int     `json:"out_of_stock_count"`
	LowStockCount     int     `json:"low_stock_count"`
	AutoDisabledCount int     `json:"auto_disabled_count"`
	InactiveCount     int     `json:"inactive_count"`
	LowStockRate      float64 `json:"low_stock_rate"`
}

type KitchenMetrics struct {
	kitchen.SLABuckets
	AvgReadyMinutes float64 `json:"avg_ready_minutes"`
}

type PaymentMetrics struct {
	TotalWindow            int     `json:"total_window"`
	FailedWindow           int     `json:"failed_window"`
	VerifiedWindow         int     `json:"verified_window"`
	UnverifiedAgingCount   int     `json:"unverified_aging_count"`
	PendingRefundApprovals int     `json:"pending_refund_approvals"`
	UnlinkedVerifiedWindow int     `json:"unlinked_verified_window"`
	FailureRate            float64 `json:"failure_rate"`
	VerificationRate       float64 `json:"verification_rate"`
}

type ClosedShift struct {
	ClosedAt        time.Time `json:"closed_at"`
	Variance        float64   `json:"variance"`
	ClosingExpected float64   `json:"closing_expected"`
	ClosingCounted  float64   `json:"closing_counted"`
}

type CashMetrics struct {
	OpenShiftCount         int          `json:"open_shift_count"`
	ClosedShiftWindow      int          `json:"closed_shift_window"`
	HighVarianceShiftCount int          `json:"high_variance_shift_count"`
	LatestClosedShift      *ClosedShift `json:"latest_closed_shift"`
}

// PaymentQuery bounds the payment aggregation.
type PaymentQuery struct {
	LocationID string
	WindowFrom time.Time
	// UnverifiedBefore is the creation cutoff past which an unverified
	// payment counts as aging.
	UnverifiedBefore time.Time
}

type CashQuery struct {
	LocationID      string
	WindowFrom      time.Time
	VarianceAtLeast float64
}

// MetricsSource reads the collaborator aggregates the evaluator does not own.
// Implementations return raw counts; rates are computed by the evaluator.
type MetricsSource interface {
	InventoryMetrics(ctx context.Context, locationID string) (InventoryMetrics, error)
	PaymentMetrics(ctx context.Context, q PaymentQuery) (PaymentMetrics, error)
	CashMetrics(ctx context.Context, q CashQuery) (CashMetrics, error)
}

// TicketSource is the part of the ticket store the kitchen metrics need.
// kitchen.TicketRepository satisfies it.
type TicketSource interface {
	ListByStatus(ctx context.Context, locationID string, statuses []kitchenstatus.Ticket) ([]kitchen.Ticket, error)
	AvgReadyMinutes(ctx context.Context, locationID string, since time.Time) (float64, error)
}

var openTicketStatuses = []kitchenstatus.Ticket{kitchenstatus.TicketNew, kitchenstatus.TicketPreparing}

func kitchenMetrics(ctx context.Context, src TicketSource, sla kitchen.SLASettings, locationID string, windowFrom, now time.Time) (KitchenMetrics, error) {
	open, err := src.ListByStatus(ctx, locationID, openTicketStatuses)
	if err != nil {
		return KitchenMetrics{}, err
	}
	avg, err := src.AvgReadyMinutes(ctx, locationID, windowFrom)
	if err != nil {
		return KitchenMetrics{}, err
	}
	return KitchenMetrics{
		SLABuckets:      kitchen.KitchenSLABuckets(open, sla, now),
		AvgReadyMinutes: kitchen.Round(avg, 2),
	}, nil
}

// SafeRate returns num/den as a percentage rounded to two decimals, or 0
// when den is not positive.
func SafeRate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return kitchen.Round(float64(num)/float64(den)*100, 2)
}
