// Package replace implements the auto-replace decision engine: it walks the
// tracked orders each driver cycle, derives fresh target prices, and emits
// replace or cancel instructions when the thresholds warrant one.
package replace

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/forecast"
	"github.com/cefalpha/almengine/internal/metrics"
	"github.com/cefalpha/almengine/internal/models"
	"github.com/cefalpha/almengine/internal/orders"
	"github.com/cefalpha/almengine/internal/outbound"
	"github.com/cefalpha/almengine/internal/pricestore"
	"github.com/cefalpha/almengine/internal/pricing"
)

// Engine decides when working orders are repriced or canceled.
type Engine struct {
	orders    *orders.Store
	routes    *orders.RouteStore
	prices    *pricestore.Store
	forecasts forecast.Source
	inflight  *orders.InFlightSet
	publisher outbound.Publisher
	logger    *zap.Logger

	// UseLastWhenClosed substitutes the last trade for bid/ask in the
	// guardrail clamp outside market hours.
	UseLastWhenClosed bool
}

// NewEngine wires the decision engine to its stores and publisher.
func NewEngine(
	ordersStore *orders.Store,
	routes *orders.RouteStore,
	prices *pricestore.Store,
	forecasts forecast.Source,
	inflight *orders.InFlightSet,
	publisher outbound.Publisher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		orders:    ordersStore,
		routes:    routes,
		prices:    prices,
		forecasts: forecasts,
		inflight:  inflight,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessRefIndexOrders evaluates every reference-index order once. Failures
// local to one order never abort the remaining orders in the cycle.
func (e *Engine) ProcessRefIndexOrders(ctx context.Context) {
	for _, o := range e.orders.Snapshot() {
		if !o.RefIndexMode() {
			continue
		}
		if !e.eligible(&o) {
			continue
		}

		ref, ok := e.prices.Lookup(o.RefIndexTicker)
		if !ok {
			metrics.PricingSkips.WithLabelValues("missing_reference").Inc()
			continue
		}

		if e.handleCrossedMarket(ctx, &o, ref) {
			continue
		}

		target, refLive, err := pricing.DeriveRefIndex(&o, ref)
		if err != nil {
			e.skip(&o, "derive", err)
			continue
		}
		e.decide(ctx, &o, target, refLive)
	}
}

// ProcessDiscountOrders evaluates every discount-target order once.
func (e *Engine) ProcessDiscountOrders(ctx context.Context) {
	for _, o := range e.orders.Snapshot() {
		if !o.DiscountMode() {
			continue
		}
		if !e.eligible(&o) {
			continue
		}

		f, ok := e.forecasts.Lookup(ctx, o.Symbol)
		if !ok {
			metrics.PricingSkips.WithLabelValues("missing_forecast").Inc()
			continue
		}

		target, err := pricing.DeriveDiscount(&o, f)
		if err != nil {
			e.skip(&o, "derive", err)
			continue
		}
		e.decide(ctx, &o, target, decimal.Zero)
	}
}

// eligible applies the status gate: plain orders against the order working
// set, routed orders against the route working set, and never while an
// instruction is in flight.
func (e *Engine) eligible(o *models.Order) bool {
	if !o.Active || !o.AutoUpdate {
		return false
	}
	if e.inflight.Held(o.ID) {
		return false
	}
	if o.RouteID != "" {
		if r, ok := e.routes.Get(o.RouteID); ok {
			return models.IsWorkingRouteStatus(r.Status)
		}
	}
	return models.IsWorkingOrderStatus(o.Status)
}

// handleCrossedMarket counts consecutive cycles the reference market is
// crossed and cancels the order outright once the tolerance is exhausted.
// Returns true when the order is consumed for this cycle.
func (e *Engine) handleCrossedMarket(ctx context.Context, o *models.Order, ref models.SecurityPrice) bool {
	crossed := ref.Bid.IsPositive() && ref.Ask.IsPositive() && ref.Bid.GreaterThan(ref.Ask)
	if !crossed {
		if o.CrossedCount > 0 {
			e.orders.ResetCrossed(o.ID)
		}
		return false
	}

	count := e.orders.BumpCrossed(o.ID)
	if count <= models.CrossedMarketCancelAfter {
		return true
	}

	if !e.inflight.TryAcquire(o.ID) {
		return true
	}
	ins := models.NewInstruction(models.InstructionCancel, o, o.Price, "crossed reference market")
	if err := e.publisher.Publish(ctx, ins); err != nil {
		e.inflight.Release(o.ID)
		e.logger.Error("cancel emission failed",
			zap.String("order_id", o.ID),
			zap.Error(err))
		return true
	}
	e.orders.Deactivate(o.ID)
	metrics.InstructionsEmitted.WithLabelValues(ins.Kind).Inc()
	metrics.CrossedMarketCancels.Inc()
	e.logger.Warn("order canceled on crossed reference market",
		zap.String("order_id", o.ID),
		zap.String("reference", o.RefIndexTicker),
		zap.Int("consecutive", count))
	return true
}

// decide runs the guardrail over the derived target and applies the
// two-regime threshold policy: outside the market-price threshold only a move
// past the maximum delta replaces; within it, past the minimum delta.
func (e *Engine) decide(ctx context.Context, o *models.Order, target, refLive decimal.Decimal) {
	live, ok := e.prices.Lookup(o.Symbol)
	if !ok {
		metrics.PricingSkips.WithLabelValues("missing_quote").Inc()
		return
	}

	res, err := pricing.Guardrail(target, o, live, e.UseLastWhenClosed)
	if err != nil {
		e.skip(o, "guardrail", err)
		return
	}
	if res.ClampedToLimit || res.ClampedToMarket {
		e.logger.Debug("target clamped",
			zap.String("order_id", o.ID),
			zap.Bool("limit", res.ClampedToLimit),
			zap.Bool("market", res.ClampedToMarket),
			zap.String("price", res.Price.String()))
	}

	delta := res.Price.Div(o.Price).Sub(decimal.NewFromInt(1)).Abs()
	required := models.MinAutoUpdateDelta
	if res.Spread.Abs().GreaterThan(o.Threshold()) {
		required = models.MaxAutoUpdateDelta
	}
	if delta.LessThan(required) || res.Price.Equal(o.Price) {
		return
	}

	if !e.inflight.TryAcquire(o.ID) {
		return
	}
	ins := models.NewInstruction(models.InstructionReplace, o, res.Price, "auto price update")
	if err := e.publisher.Publish(ctx, ins); err != nil {
		e.inflight.Release(o.ID)
		e.logger.Error("replace emission failed",
			zap.String("order_id", o.ID),
			zap.Error(err))
		return
	}
	e.orders.ApplyReplace(o.ID, res.Price, refLive)
	metrics.InstructionsEmitted.WithLabelValues(ins.Kind).Inc()
	e.logger.Info("replace emitted",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("from", o.Price.String()),
		zap.String("to", res.Price.String()),
		zap.String("spread", res.Spread.String()))
}

// skip logs a per-order pricing failure with full identity and leaves the
// stored price untouched (fail closed).
func (e *Engine) skip(o *models.Order, stage string, err error) {
	metrics.PricingSkips.WithLabelValues(stage).Inc()
	e.logger.Warn("order skipped this cycle",
		zap.String("order_id", o.ID),
		zap.String("main_id", o.MainID),
		zap.String("route_id", o.RouteID),
		zap.String("symbol", o.Symbol),
		zap.String("stage", stage),
		zap.Error(err))
}
