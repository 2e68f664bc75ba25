package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// GuardrailResult is a validated candidate replace price plus the telemetry
// the decision engine needs.
type GuardrailResult struct {
	Price decimal.Decimal

	// ClampedToLimit is set when the configured max-buy/min-sell bound held
	// the price back.
	ClampedToLimit bool
	// ClampedToMarket is set when the live ask/bid held the price back.
	ClampedToMarket bool

	// Spread is marketPrice/currentOrderPrice - 1, computed against the
	// order's configured market-price field.
	Spread decimal.Decimal
}

// Guardrail clamps and rounds a raw target price against the venue limit and
// the live market, then computes the order's spread to market. A zero or
// missing price anywhere in the pipeline returns an error; the caller keeps
// the prior price and skips the replace decision for this cycle.
func Guardrail(raw decimal.Decimal, o *models.Order, live models.SecurityPrice, useLastWhenClosed bool) (GuardrailResult, error) {
	var res GuardrailResult

	if !raw.IsPositive() {
		return res, ErrZeroPrice
	}

	price := raw

	// Venue max/min limit, interpreted per side.
	if o.MaxPrice.IsPositive() {
		switch o.Side {
		case models.OrderSideBuy:
			if price.GreaterThan(o.MaxPrice) {
				price = o.MaxPrice
				res.ClampedToLimit = true
			}
		case models.OrderSideSell:
			if price.LessThan(o.MaxPrice) {
				price = o.MaxPrice
				res.ClampedToLimit = true
			}
		}
	}

	// Live bid/ask clamp. Outside market hours the last trade may stand in
	// for the quote when configured.
	bid, ask := live.Bid, live.Ask
	if useLastWhenClosed && live.MarketClosed && live.Last.IsPositive() {
		bid, ask = live.Last, live.Last
	}
	switch o.Side {
	case models.OrderSideBuy:
		if ask.IsPositive() && price.GreaterThan(ask) {
			price = ask
			res.ClampedToMarket = true
		}
	case models.OrderSideSell:
		if bid.IsPositive() && price.LessThan(bid) {
			price = bid
			res.ClampedToMarket = true
		}
	}

	res.Price = RoundPrice(price, o.Side)

	market := live.MarketField(o.MarketPriceField)
	if !market.IsPositive() || !o.Price.IsPositive() {
		return res, ErrZeroPrice
	}
	res.Spread = market.Div(o.Price).Sub(one)

	return res, nil
}

// RoundPrice rounds to the cent per order side: buys round down, sells round
// up, anything else rounds half-up to two decimals. Idempotent on already
// rounded prices.
func RoundPrice(price decimal.Decimal, side string) decimal.Decimal {
	switch side {
	case models.OrderSideBuy:
		return price.Mul(hundred).Floor().Div(hundred)
	case models.OrderSideSell:
		return price.Mul(hundred).Ceil().Div(hundred)
	default:
		return price.Round(2)
	}
}
