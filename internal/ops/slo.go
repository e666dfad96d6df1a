package ops

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
)

const (
	DefaultWindowMinutes = 240
	minWindowMinutes     = 5
	maxWindowMinutes     = 1440
)

type Severity string

const (
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

type HealthStatus string

const (
	HealthOK       HealthStatus = "OK"
	HealthWarn     HealthStatus = "WARN"
	HealthCritical HealthStatus = "CRITICAL"
)

// Alert codes raised by the evaluator.
const (
	AlertInventoryOutOfStock       = "INVENTORY_OUT_OF_STOCK"
	AlertInventoryLowStockRateHigh = "INVENTORY_LOW_STOCK_RATE_HIGH"
	AlertKitchenOverdueTickets     = "KITCHEN_OVERDUE_TICKETS"
	AlertKitchenAvgReadyHigh       = "KITCHEN_AVG_READY_HIGH"
	AlertPaymentFailureRateHigh    = "PAYMENT_FAILURE_RATE_HIGH"
	AlertPaymentUnverifiedAging    = "PAYMENT_UNVERIFIED_AGING"
	AlertPaymentPendingRefunds     = "PAYMENT_PENDING_REFUND_APPROVALS"
	AlertCashShiftVariance         = "CASH_SHIFT_VARIANCE"
)

type Alert struct {
	Code      string   `json:"code"`
	Category  string   `json:"category"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Unit      string   `json:"unit,omitempty"`
}

type AlertSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Warn     int `json:"warn"`
}

type Snapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	LocationID    string           `json:"location_id"`
	WindowMinutes int              `json:"window_minutes"`
	WindowFrom    time.Time        `json:"window_from"`
	HealthStatus  HealthStatus     `json:"health_status"`
	Thresholds    Thresholds       `json:"thresholds"`
	AlertSummary  AlertSummary     `json:"alert_summary"`
	Alerts        []Alert          `json:"alerts"`
	Inventory     InventoryMetrics `json:"inventory"`
	Kitchen       KitchenMetrics   `json:"kitchen"`
	Payment       PaymentMetrics   `json:"payment"`
	Cash          CashMetrics      `json:"cash"`
}

// ParseWindowMinutes reads the evaluation window. Blank means the default;
// other values are rounded and clamped to 5..1440.
func ParseWindowMinutes(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultWindowMinutes, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperr.Validation("windowMinutes must be a number.")
	}
	return clampWindow(int(math.Round(v))), nil
}

// ClampWindowMinutes treats a non-positive window as unset.
func ClampWindowMinutes(v int) int {
	if v <= 0 {
		return DefaultWindowMinutes
	}
	return clampWindow(v)
}

func clampWindow(v int) int {
	if v < minWindowMinutes {
		return minWindowMinutes
	}
	if v > maxWindowMinutes {
		return maxWindowMinutes
	}
	return v
}

type EvaluatorDeps struct {
	Metrics    MetricsSource
	Tickets    TicketSource
	SLA        kitchen.SLASettings
	Thresholds Thresholds
}

// Evaluator builds read-only SLO snapshots for a location.
type Evaluator struct {
	metrics    MetricsSource
	tickets    TicketSource
	sla        kitchen.SLASettings
	thresholds Thresholds
	logger     apt.Logger
	now        func() time.Time
}

func NewEvaluator(deps EvaluatorDeps, logger apt.Logger) *Evaluator {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	sla := deps.SLA
	if sla == (kitchen.SLASettings{}) {
		sla = kitchen.DefaultSLASettings()
	}
	th := deps.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return &Evaluator{
		metrics:    deps.Metrics,
		tickets:    deps.Tickets,
		sla:        sla,
		thresholds: th,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

func (e *Evaluator) Snapshot(ctx context.Context, locationID string, windowMinutes int) (*Snapshot, error) {
	locationID = kitchen.NormalizeLocationID(locationID)
	windowMinutes = ClampWindowMinutes(windowMinutes)
	now := e.now()
	windowFrom := now.Add(-time.Duration(windowMinutes) * time.Minute)
	th := e.thresholds

	inv, err := e.metrics.InventoryMetrics(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("inventory metrics: %w", err)
	}
	inv.LowStockRate = SafeRate(inv.LowStockCount, inv.TotalItems)

	km, err := kitchenMetrics(ctx, e.tickets, e.sla, locationID, windowFrom, now)
	if err != nil {
		return nil, fmt.Errorf("kitchen metrics: %w", err)
	}

	grace := time.Duration(th.PaymentUnverifiedGraceMinutes * float64(time.Minute))
	pay, err := e.metrics.PaymentMetrics(ctx, PaymentQuery{
		LocationID:       locationID,
		WindowFrom:       windowFrom,
		UnverifiedBefore: now.Add(-grace),
	})
	if err != nil {
		return nil, fmt.Errorf("payment metrics: %w", err)
	}
	pay.FailureRate = SafeRate(pay.FailedWindow, pay.TotalWindow)
	pay.VerificationRate = SafeRate(pay.VerifiedWindow, pay.TotalWindow)

	cash, err := e.metrics.CashMetrics(ctx, CashQuery{
		LocationID:      locationID,
		WindowFrom:      windowFrom,
		VarianceAtLeast: th.CashVarianceWarnAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("cash metrics: %w", err)
	}

	alerts := BuildAlerts(inv, km, pay, cash, th)
	snap := &Snapshot{
		GeneratedAt:   now,
		LocationID:    locationID,
		WindowMinutes: windowMinutes,
		WindowFrom:    windowFrom,
		HealthStatus:  DeriveHealth(alerts),
		Thresholds:    th,
		AlertSummary:  Summarize(alerts),
		Alerts:        alerts,
		Inventory:     inv,
		Kitchen:       km,
		Payment:       pay,
		Cash:          cash,
	}

	e.logger.Debug("slo snapshot built", "location_id", locationID, "health", snap.HealthStatus, "alerts", len(alerts))
	return snap, nil
}

// BuildAlerts evaluates every metric against its warn and critical levels.
// Alerts come out in a fixed order: inventory, kitchen, payment, cash.
func BuildAlerts(inv InventoryMetrics, km KitchenMetrics, pay PaymentMetrics, cash CashMetrics, th Thresholds) []Alert {
	alerts := []Alert{}

	if v := float64(inv.OutOfStockCount); v >= th.InventoryOutOfStockWarnCount {
		alerts = append(alerts, Alert{
			Code:      AlertInventoryOutOfStock,
			Category:  "inventory",
			Severity:  severity(v >= th.InventoryOutOfStockWarnCount*3),
			Title:     "Out of stock items detected",
			Message:   fmt.Sprintf("%d item(s) are out of stock.", inv.OutOfStockCount),
			Value:     v,
			Threshold: th.InventoryOutOfStockWarnCount,
		})
	}

	if v := inv.LowStockRate; v >= th.InventoryLowRateWarnPercent {
		alerts = append(alerts, Alert{
			Code:      AlertInventoryLowStockRateHigh,
			Category:  "inventory",
			Severity:  severity(v >= math.Min(100, th.InventoryLowRateWarnPercent*2)),
			Title:     "Low stock ratio is high",
			Message:   fmt.Sprintf("Low stock ratio %s%% exceeded threshold %s%%.", num(v), num(th.InventoryLowRateWarnPercent)),
			Value:     v,
			Threshold: th.InventoryLowRateWarnPercent,
			Unit:      "%",
		})
	}

	if v := float64(km.OverdueCount); v >= th.KitchenOverdueWarnCount {
		alerts = append(alerts, Alert{
			Code:      AlertKitchenOverdueTickets,
			Category:  "kitchen",
			Severity:  severity(v >= th.KitchenOverdueWarnCount*2),
			Title:     "Kitchen overdue tickets",
			Message:   fmt.Sprintf("%d open ticket(s) are overdue.", km.OverdueCount),
			Value:     v,
			Threshold: th.KitchenOverdueWarnCount,
		})
	}

	if v := km.AvgReadyMinutes; v >= th.KitchenAvgReadyWarnMinutes {
		alerts = append(alerts, Alert{
			Code:      AlertKitchenAvgReadyHigh,
			Category:  "kitchen",
			Severity:  severity(v >= th.KitchenAvgReadyWarnMinutes*1.5),
			Title:     "Kitchen ready time degraded",
			Message:   fmt.Sprintf("Average ready time %sm exceeded threshold %sm.", num(v), num(th.KitchenAvgReadyWarnMinutes)),
			Value:     v,
			Threshold: th.KitchenAvgReadyWarnMinutes,
			Unit:      "min",
		})
	}

	if v := pay.FailureRate; v >= th.PaymentFailureRateWarnPercent {
		alerts = append(alerts, Alert{
			Code:      AlertPaymentFailureRateHigh,
			Category:  "payment",
			Severity:  severity(v >= math.Min(100, th.PaymentFailureRateWarnPercent*2)),
			Title:     "Payment failure rate high",
			Message:   fmt.Sprintf("Payment failure rate %s%% exceeded threshold %s%%.", num(v), num(th.PaymentFailureRateWarnPercent)),
			Value:     v,
			Threshold: th.PaymentFailureRateWarnPercent,
			Unit:      "%",
		})
	}

	if v := float64(pay.UnverifiedAgingCount); v >= th.PaymentUnverifiedWarnCount {
		alerts = append(alerts, Alert{
			Code:      AlertPaymentUnverifiedAging,
			Category:  "payment",
			Severity:  severity(v >= th.PaymentUnverifiedWarnCount*2),
			Title:     "Unverified payments aging",
			Message:   fmt.Sprintf("%d payment(s) remain unverified beyond grace period.", pay.UnverifiedAgingCount),
			Value:     v,
			Threshold: th.PaymentUnverifiedWarnCount,
		})
	}

	if v := float64(pay.PendingRefundApprovals); v >= th.PendingRefundApprovalWarnCount {
		alerts = append(alerts, Alert{
			Code:      AlertPaymentPendingRefunds,
			Category:  "payment",
			Severity:  severity(v >= th.PendingRefundApprovalWarnCount*2),
			Title:     "Refund approvals backlog",
			Message:   fmt.Sprintf("%d pending refund approval(s).", pay.PendingRefundApprovals),
			Value:     v,
			Threshold: th.PendingRefundApprovalWarnCount,
		})
	}

	if v := float64(cash.HighVarianceShiftCount); v >= th.CashVarianceWarnCount {
		alerts = append(alerts, Alert{
			Code:      AlertCashShiftVariance,
			Category:  "cash",
			Severity:  severity(v >= th.CashVarianceWarnCount*2),
			Title:     "Cash variance exceeded threshold",
			Message:   fmt.Sprintf("%d closed shift(s) exceeded variance threshold.", cash.HighVarianceShiftCount),
			Value:     v,
			Threshold: th.CashVarianceWarnCount,
		})
	}

	return alerts
}

func DeriveHealth(alerts []Alert) HealthStatus {
	status := HealthOK
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			return HealthCritical
		}
		status = HealthWarn
	}
	return status
}

func Summarize(alerts []Alert) AlertSummary {
	s := AlertSummary{Total: len(alerts)}
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			s.Critical++
		} else {
			s.Warn++
		}
	}
	return s
}

func severity(critical bool) Severity {
	if critical {
		return SeverityCritical
	}
	return SeverityWarn
}

// num formats a metric value without trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
