package ops

import (
	"strconv"
	"strings"

	"github.com/appetiteclub/apt"
)

// Thresholds are the warn levels of the SLO alerts. Critical levels are
// derived from them per alert.
type Thresholds struct {
	InventoryLowRateWarnPercent    float64 `json:"inventory_low_rate_warn_percent"`
	InventoryOutOfStockWarnCount   float64 `json:"inventory_out_of_stock_warn_count"`
	KitchenOverdueWarnCount        float64 `json:"kitchen_overdue_warn_count"`
	KitchenAvgReadyWarnMinutes     float64 `json:"kitchen_avg_ready_warn_minutes"`
	PaymentFailureRateWarnPercent  float64 `json:"payment_failure_rate_warn_percent"`
	PaymentUnverifiedWarnCount     float64 `json:"payment_unverified_warn_count"`
	PendingRefundApprovalWarnCount float64 `json:"pending_refund_approval_warn_count"`
	CashVarianceWarnCount          float64 `json:"cash_variance_warn_count"`
	CashVarianceWarnAmount         float64 `json:"cash_variance_warn_amount"`
	PaymentUnverifiedGraceMinutes  float64 `json:"payment_unverified_grace_minutes"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		InventoryLowRateWarnPercent:    20,
		InventoryOutOfStockWarnCount:   1,
		KitchenOverdueWarnCount:        3,
		KitchenAvgReadyWarnMinutes:     25,
		PaymentFailureRateWarnPercent:  5,
		PaymentUnverifiedWarnCount:     3,
		PendingRefundApprovalWarnCount: 5,
		CashVarianceWarnCount:          1,
		CashVarianceWarnAmount:         20,
		PaymentUnverifiedGraceMinutes:  15,
	}
}

// ThresholdsFromConfig reads the ops.slo.* keys. Missing, zero or
// unparseable values keep the defaults.
func ThresholdsFromConfig(cfg *apt.Config) Thresholds {
	th := DefaultThresholds()
	if cfg == nil {
		return th
	}
	th.InventoryLowRateWarnPercent = configFloat(cfg, "ops.slo.inventory.low.rate.warn.percent", th.InventoryLowRateWarnPercent)
	th.InventoryOutOfStockWarnCount = configFloat(cfg, "ops.slo.inventory.out.of.stock.warn.count", th.InventoryOutOfStockWarnCount)
	th.KitchenOverdueWarnCount = configFloat(cfg, "ops.slo.kitchen.overdue.warn.count", th.KitchenOverdueWarnCount)
	th.KitchenAvgReadyWarnMinutes = configFloat(cfg, "ops.slo.kitchen.avg.ready.warn.minutes", th.KitchenAvgReadyWarnMinutes)
	th.PaymentFailureRateWarnPercent = configFloat(cfg, "ops.slo.payment.failure.rate.warn.percent", th.PaymentFailureRateWarnPercent)
	th.PaymentUnverifiedWarnCount = configFloat(cfg, "ops.slo.payment.unverified.warn.count", th.PaymentUnverifiedWarnCount)
	th.PendingRefundApprovalWarnCount = configFloat(cfg, "ops.slo.pending.refund.approval.warn.count", th.PendingRefundApprovalWarnCount)
	th.CashVarianceWarnCount = configFloat(cfg, "ops.slo.cash.variance.warn.count", th.CashVarianceWarnCount)
	th.CashVarianceWarnAmount = configFloat(cfg, "ops.slo.cash.variance.warn.amount", th.CashVarianceWarnAmount)
	th.PaymentUnverifiedGraceMinutes = configFloat(cfg, "ops.slo.payment.unverified.grace.minutes", th.PaymentUnverifiedGraceMinutes)
	return th
}

func configFloat(cfg *apt.Config, key string, def float64) float64 {
	raw, ok := cfg.GetString(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}
