package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestParseWindowMinutes(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: 240},
		{raw: "60", want: 60},
		{raw: "59.6", want: 60},
		{raw: "1", want: 5},
		{raw: "0", want: 5},
		{raw: "-30", want: 5},
		{raw: "5000", want: 1440},
		{raw: "hour", wantErr: true},
		{raw: "NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseWindowMinutes(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrValidation) {
					t.Errorf("ParseWindowMinutes(%q) error = %v, want validation", tt.raw, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseWindowMinutes(%q) = (%d, %v), want %d", tt.raw, got, err, tt.want)
			}
		})
	}
}

func TestSafeRate(t *testing.T) {
	tests := []struct {
		name     string
		num, den int
		want     float64
	}{
		{name: "zeroDenominator", num: 3, den: 0, want: 0},
		{name: "negativeDenominator", num: 3, den: -1, want: 0},
		{name: "half", num: 1, den: 2, want: 50},
		{name: "third", num: 1, den: 3, want: 33.33},
		{name: "twoThirds", num: 2, den: 3, want: 66.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeRate(tt.num, tt.den); got != tt.want {
				t.Errorf("SafeRate(%d, %d) = %v, want %v", tt.num, tt.den, got, tt.want)
			}
		})
	}
}

func alertByCode(alerts []Alert, code string) (Alert, bool) {
	for _, a := range alerts {
		if a.Code == code {
			return a, true
		}
	}
	return Alert{}, false
}

func TestBuildAlerts(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name         string
		inv          InventoryMetrics
		km           KitchenMetrics
		pay          PaymentMetrics
		cash         CashMetrics
		wantCode     string
		wantSeverity Severity
		wantMessage  string
	}{
		{
			name:         "outOfStockWarn",
			inv:          InventoryMetrics{OutOfStockCount: 2},
			wantCode:     AlertInventoryOutOfStock,
			wantSeverity: SeverityWarn,
			wantMessage:  "2 item(s) are out of stock.",
		},
		{
			name:         "outOfStockCritical",
			inv:          InventoryMetrics{OutOfStockCount: 3},
			wantCode:     AlertInventoryOutOfStock,
			wantSeverity: SeverityCritical,
			wantMessage:  "3 item(s) are out of stock.",
		},
		{
			name:         "lowStockRate",
			inv:          InventoryMetrics{LowStockRate: 25.5},
			wantCode:     AlertInventoryLowStockRateHigh,
			wantSeverity: SeverityWarn,
			wantMessage:  "Low stock ratio 25.5% exceeded threshold 20%.",
		},
		{
			name:         "lowStockRateCritical",
			inv:          InventoryMetrics{LowStockRate: 40},
			wantCode:     AlertInventoryLowStockRateHigh,
			wantSeverity: SeverityCritical,
			wantMessage:  "Low stock ratio 40% exceeded threshold 20%.",
		},
		{
			name:         "kitchenOverdue",
			km:           KitchenMetrics{SLABuckets: kitchen.SLABuckets{OverdueCount: 6}},
			wantCode:     AlertKitchenOverdueTickets,
			wantSeverity: SeverityCritical,
			wantMessage:  "6 open ticket(s) are overdue.",
		},
		{
			name:         "avgReady",
			km:           KitchenMetrics{AvgReadyMinutes: 30.25},
			wantCode:     AlertKitchenAvgReadyHigh,
			wantSeverity: SeverityWarn,
			wantMessage:  "Average ready time 30.25m exceeded threshold 25m.",
		},
		{
			name:         "avgReadyCritical",
			km:           KitchenMetrics{AvgReadyMinutes: 37.5},
			wantCode:     AlertKitchenAvgReadyHigh,
			wantSeverity: SeverityCritical,
			wantMessage:  "Average ready time 37.5m exceeded threshold 25m.",
		},
		{
			name:         "paymentFailures",
			pay:          PaymentMetrics{FailureRate: 7.5},
			wantCode:     AlertPaymentFailureRateHigh,
			wantSeverity: SeverityWarn,
			wantMessage:  "Payment failure rate 7.5% exceeded threshold 5%.",
		},
		{
			name:         "unverifiedAging",
			pay:          PaymentMetrics{UnverifiedAgingCount: 6},
			wantCode:     AlertPaymentUnverifiedAging,
			wantSeverity: SeverityCritical,
			wantMessage:  "6 payment(s) remain unverified beyond grace period.",
		},
		{
			name:         "pendingRefunds",
			pay:          PaymentMetrics{PendingRefundApprovals: 5},
			wantCode:     AlertPaymentPendingRefunds,
			wantSeverity: SeverityWarn,
			wantMessage:  "5 pending refund approval(s).",
		},
		{
			name:         "cashVariance",
			cash:         CashMetrics{HighVarianceShiftCount: 1},
			wantCode:     AlertCashShiftVariance,
			wantSeverity: SeverityWarn,
			wantMessage:  "1 closed shift(s) exceeded variance threshold.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := BuildAlerts(tt.inv, tt.km, tt.pay, tt.cash, th)
			if len(alerts) != 1 {
				t.Fatalf("BuildAlerts() = %d alerts, want 1: %+v", len(alerts), alerts)
			}
			a := alerts[0]
			if a.Code != tt.wantCode || a.Severity != tt.wantSeverity {
				t.Errorf("alert = %s/%s, want %s/%s", a.Code, a.Severity, tt.wantCode, tt.wantSeverity)
			}
			if a.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", a.Message, tt.wantMessage)
			}
		})
	}
}

func TestBuildAlertsQuiet(t *testing.T) {
	alerts := BuildAlerts(InventoryMetrics{TotalItems: 10}, KitchenMetrics{}, PaymentMetrics{}, CashMetrics{}, DefaultThresholds())
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("BuildAlerts() = %v, want empty non-nil", alerts)
	}
	if got := DeriveHealth(alerts); got != HealthOK {
		t.Errorf("DeriveHealth() = %s, want OK", got)
	}
}

func TestDeriveHealthAndSummary(t *testing.T) {
	warn := Alert{Code: "A", Severity: SeverityWarn}
	crit := Alert{Code: "B", Severity: SeverityCritical}

	tests := []struct {
		name   string
		alerts []Alert
		want   HealthStatus
		sum    AlertSummary
	}{
		{name: "none", want: HealthOK},
		{name: "warnOnly", alerts: []Alert{warn, warn}, want: HealthWarn, sum: AlertSummary{Total: 2, Warn: 2}},
		{name: "mixed", alerts: []Alert{warn, crit}, want: HealthCritical, sum: AlertSummary{Total: 2, Warn: 1, Critical: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveHealth(tt.alerts); got != tt.want {
				t.Errorf("DeriveHealth() = %s, want %s", got, tt.want)
			}
			if got := Summarize(tt.alerts); got != tt.sum {
				t.Errorf("Summarize() = %+v, want %+v", got, tt.sum)
			}
		})
	}
}

func overdueTicket(now time.Time) kitchen.Ticket {
	fired := now.Add(-30 * time.Minute)
	return kitchen.Ticket{
		ID:            uuid.New(),
		Status:        kitchenstatus.TicketPreparing,
		Priority:      kitchen.PriorityNormal,
		SLAMinutes:    20,
		FiredAt:       fired,
		TargetReadyAt: fired.Add(20 * time.Minute),
	}
}

func newTestEvaluator(metrics *MockMetricsSource, tickets *MockTicketSource) *Evaluator {
	e := NewEvaluator(EvaluatorDeps{Metrics: metrics, Tickets: tickets}, nil)
	e.now = func() time.Time { return testNow }
	return e
}

func TestEvaluatorSnapshot(t *testing.T) {
	metrics := &MockMetricsSource{
		Inventory: InventoryMetrics{TotalItems: 8, LowStockCount: 2, OutOfStockCount: 1},
		Payment:   PaymentMetrics{TotalWindow: 40, FailedWindow: 4, VerifiedWindow: 30},
		Cash:      CashMetrics{OpenShiftCount: 1},
	}
	tickets := &MockTicketSource{
		Tickets: []kitchen.Ticket{
			overdueTicket(testNow),
			overdueTicket(testNow),
			overdueTicket(testNow),
			{ID: uuid.New(), Status: kitchenstatus.TicketReady},
		},
		AvgReady: 12.346,
	}
	e := newTestEvaluator(metrics, tickets)

	snap, err := e.Snapshot(context.Background(), "  ", 60)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.LocationID != kitchen.DefaultLocationID || snap.WindowMinutes != 60 {
		t.Errorf("location/window = %s/%d", snap.LocationID, snap.WindowMinutes)
	}
	wantFrom := testNow.Add(-60 * time.Minute)
	if !snap.WindowFrom.Equal(wantFrom) || !tickets.Since.Equal(wantFrom) {
		t.Errorf("window from = %v (tickets since %v), want %v", snap.WindowFrom, tickets.Since, wantFrom)
	}
	if snap.Inventory.LowStockRate != 25 {
		t.Errorf("low stock rate = %v, want 25", snap.Inventory.LowStockRate)
	}
	if snap.Payment.FailureRate != 10 || snap.Payment.VerificationRate != 75 {
		t.Errorf("payment rates = %v/%v, want 10/75", snap.Payment.FailureRate, snap.Payment.VerificationRate)
	}
	if snap.Kitchen.OpenTickets != 3 || snap.Kitchen.OverdueCount != 3 || snap.Kitchen.AvgReadyMinutes != 12.35 {
		t.Errorf("kitchen = %+v", snap.Kitchen)
	}

	wantGrace := testNow.Add(-15 * time.Minute)
	if len(metrics.PaymentQueries) != 1 || !metrics.PaymentQueries[0].UnverifiedBefore.Equal(wantGrace) {
		t.Errorf("payment queries = %+v", metrics.PaymentQueries)
	}
	if len(metrics.CashQueries) != 1 || metrics.CashQueries[0].VarianceAtLeast != 20 {
		t.Errorf("cash queries = %+v", metrics.CashQueries)
	}

	// out of stock (warn), low stock rate (warn), overdue (warn), failure rate (critical)
	if snap.AlertSummary != (AlertSummary{Total: 4, Warn: 3, Critical: 1}) {
		t.Errorf("summary = %+v", snap.AlertSummary)
	}
	if snap.HealthStatus != HealthCritical {
		t.Errorf("health = %s, want CRITICAL", snap.HealthStatus)
	}
	if _, ok := alertByCode(snap.Alerts, AlertPaymentFailureRateHigh); !ok {
		t.Error("missing payment failure alert")
	}
}

func TestEvaluatorSnapshotErrors(t *testing.T) {
	boom := errors.New("mongo down")

	e := newTestEvaluator(&MockMetricsSource{Err: boom}, &MockTicketSource{})
	if _, err := e.Snapshot(context.Background(), "north", 0); !errors.Is(err, boom) {
		t.Errorf("metrics failure error = %v", err)
	}

	e = newTestEvaluator(&MockMetricsSource{}, &MockTicketSource{Err: boom})
	if _, err := e.Snapshot(context.Background(), "north", 0); !errors.Is(err, boom) {
		t.Errorf("tickets failure error = %v", err)
	}
}
