// Package pricing contains the target-price derivation and guardrail math.
// Everything here is pure and synchronous; callers own all state.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

var (
	// ErrMissingReferencePrice means the reference security has no usable
	// quote this cycle. A normal skip, not a fault.
	ErrMissingReferencePrice = errors.New("reference price unavailable")
	// ErrMissingForecast means the fund has no usable estimated NAV.
	ErrMissingForecast = errors.New("estimated NAV unavailable")
	// ErrZeroPrice means a computation would divide by a zero or missing price.
	ErrZeroPrice = errors.New("zero or missing price")
)

var one = decimal.NewFromInt(1)

// DeriveRefIndex computes a reference-index order's new target price from the
// reference security's live quote. The reference move is translated through
// the order's adjustment model, bounded by the asymmetric price cap, and
// applied to the previous target:
//
//	newTarget = prevTarget * (1 + cappedChange)
//
// The second return value is the reference price the derivation was based on;
// callers persist it as the basis for the next cycle.
func DeriveRefIndex(o *models.Order, ref models.SecurityPrice) (decimal.Decimal, decimal.Decimal, error) {
	live := ref.Field(o.RefIndexField)
	if !live.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrMissingReferencePrice
	}

	prevRef := o.RefIndexPrevPrice
	if !prevRef.IsPositive() {
		// First evaluation after submission prices off the reference's close.
		prevRef = ref.PrevClose
	}
	if !prevRef.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrMissingReferencePrice
	}

	prevTarget := o.Price
	if !prevTarget.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrZeroPrice
	}

	var change decimal.Decimal
	switch o.BetaAdjust {
	case models.BetaAdjustPercentage:
		change = applyBeta(live.Div(prevRef).Sub(one), o.Beta, o.BetaShift)
	case models.BetaAdjustDelta:
		change = applyBeta(live.Sub(prevRef), o.Beta, o.BetaShift).Div(prevTarget)
	case models.BetaAdjustAbsolute:
		change = live.Sub(prevRef).Div(prevTarget)
	}

	change = capChange(change, o.Cap(), o.CapShift)
	return prevTarget.Mul(one.Add(change)), live, nil
}

// DeriveDiscount computes a discount-target order's new target price from the
// fund's estimated NAV:
//
//	newPrice = (1 + discountTarget + discountTargetAdjust) * estimatedNav
//
// An explicitly configured price cap bounds the move versus the previous
// target with the same asymmetric policy. The default cap is a reference-price
// cap and does not apply here: an unconfigured discount order tracks the NAV
// wherever it goes.
func DeriveDiscount(o *models.Order, forecast *models.FundForecast) (decimal.Decimal, error) {
	if o.DiscountTarget == nil || forecast == nil {
		return decimal.Zero, ErrMissingForecast
	}
	nav := forecast.Nav(o.NavType)
	if !nav.IsPositive() {
		return decimal.Zero, ErrMissingForecast
	}

	raw := one.Add(*o.DiscountTarget).Add(o.DiscountTargetAdjust).Mul(nav)

	prevTarget := o.Price
	if !prevTarget.IsPositive() || o.PriceCap.IsZero() {
		return raw, nil
	}
	change := capChange(raw.Div(prevTarget).Sub(one), o.PriceCap, o.CapShift)
	return prevTarget.Mul(one.Add(change)), nil
}

// applyBeta scales a move by beta for the directions the beta shift selector
// covers; excluded directions pass through unscaled. A zero beta means unset
// and leaves the move unscaled.
func applyBeta(v, beta decimal.Decimal, shift models.CapShift) decimal.Decimal {
	if beta.IsZero() {
		return v
	}
	switch shift {
	case models.CapShiftUp:
		if v.IsNegative() {
			return v
		}
	case models.CapShiftDown:
		if v.IsPositive() {
			return v
		}
	}
	return v.Mul(beta)
}

// capChange clamps a fractional change to the cap for the directions the
// shift selector covers. The cap is asymmetric: Up bounds only positive
// changes, Down only negative ones, Both bounds both sides.
func capChange(change, cap decimal.Decimal, shift models.CapShift) decimal.Decimal {
	if !cap.IsPositive() {
		return change
	}
	switch {
	case change.GreaterThan(cap) && (shift == models.CapShiftBoth || shift == models.CapShiftUp):
		return cap
	case change.LessThan(cap.Neg()) && (shift == models.CapShiftBoth || shift == models.CapShiftDown):
		return cap.Neg()
	}
	return change
}
