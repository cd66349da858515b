// README: Cancellation window and refund bucket policy; pure time-injected functions.
package refund

import (
	"time"

	"carpool/internal/observability"
	"carpool/internal/types"
)

// Category labels the time-to-departure bucket a cancellation fell into.
type Category string

const (
	CategoryFullRefund   Category = "full-refund"
	CategoryMinorPenalty Category = "minor-penalty"
	CategoryMajorPenalty Category = "major-penalty"
	CategoryNoRefund     Category = "no-refund"
)

// HardCutoff is how long after departure a ride or booking may still be
// cancelled. Past it, cancellation is terminally disallowed.
const HardCutoff = 30 * time.Minute

// Bucket boundaries, evaluated against departure minus now.
const (
	fullRefundWindow   = 24 * time.Hour
	minorPenaltyWindow = 2 * time.Hour
	majorPenaltyWindow = 30 * time.Minute
)

// Outcome is the refund/penalty split computed at cancellation time.
// RefundAmount + PenaltyAmount always equals the amount paid exactly;
// the penalty absorbs any residual cent from rounding.
type Outcome struct {
	RefundAmount  types.Money `json:"refund_amount"`
	PenaltyAmount types.Money `json:"penalty_amount"`
	Category      Category    `json:"category"`
}

// Decision reports whether cancellation is still possible, with a
// caller-facing reason when it is not.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanCancelAt checks the hard time boundary. Lifecycle modules layer the
// status check (terminal entities are rejected before it comes to time).
func CanCancelAt(departure, now time.Time) Decision {
	if now.After(departure.Add(HardCutoff)) {
		return Decision{Allowed: false, Reason: "cancellation window closed 30 minutes after departure"}
	}
	return Decision{Allowed: true}
}

// Preview computes the refund/penalty split for an amount paid, given the
// departure time. Callers must have checked CanCancelAt; inside the hard
// cutoff every instant maps to a bucket, largest window first.
func Preview(totalPaid types.Money, departure, now time.Time) Outcome {
	pct := refundPercent(departure.Sub(now))
	refund := totalPaid.Percent(pct)
	observability.RefundPreviewsTotal.Inc()
	return Outcome{
		RefundAmount:  refund,
		PenaltyAmount: totalPaid.Sub(refund),
		Category:      categoryFor(pct),
	}
}

func refundPercent(untilDeparture time.Duration) int {
	switch {
	case untilDeparture > fullRefundWindow:
		return 100
	case untilDeparture >= minorPenaltyWindow:
		return 90
	case untilDeparture >= majorPenaltyWindow:
		return 50
	default:
		return 0
	}
}

func categoryFor(pct int) Category {
	switch pct {
	case 100:
		return CategoryFullRefund
	case 90:
		return CategoryMinorPenalty
	case 50:
		return CategoryMajorPenalty
	default:
		return CategoryNoRefund
	}
}
