package pairs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/metrics"
	"github.com/cefalpha/almengine/internal/models"
	"github.com/cefalpha/almengine/internal/outbound"
	"github.com/cefalpha/almengine/internal/pricestore"
	"github.com/cefalpha/almengine/internal/pricing"
)

// validTransitions is the sequencer's closed transition table.
var validTransitions = map[models.PairState][]models.PairState{
	models.PairDormant:          {models.PairTriggered},
	models.PairTriggered:        {models.PairFirstLegWorking},
	models.PairFirstLegWorking:  {models.PairSecondLegWorking, models.PairBothLegsDone},
	models.PairSecondLegWorking: {models.PairBothLegsDone},
	models.PairBothLegsDone:     {},
}

func canTransition(from, to models.PairState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// legRatios is the live ratio telemetry for one pair.
type legRatios struct {
	market  decimal.Decimal
	passive decimal.Decimal
	last    decimal.Decimal
}

// Sequencer advances pair orders through
// Dormant -> Triggered -> FirstLegWorking -> SecondLegWorking -> BothLegsDone.
type Sequencer struct {
	pairs     *Store
	prices    *pricestore.Store
	publisher outbound.Publisher
	logger    *zap.Logger
}

// NewSequencer wires the sequencer to its stores and publisher.
func NewSequencer(pairs *Store, prices *pricestore.Store, publisher outbound.Publisher, logger *zap.Logger) *Sequencer {
	return &Sequencer{pairs: pairs, prices: prices, publisher: publisher, logger: logger}
}

// ProcessOrders re-evaluates every active pair once. Evaluation is idempotent:
// an already-triggered pair only refreshes its ratio telemetry; submission
// happens exactly once per leg, on the state transition.
func (s *Sequencer) ProcessOrders(ctx context.Context) {
	for _, p := range s.pairs.Snapshot() {
		if !p.Active {
			continue
		}
		s.process(ctx, p)
	}
}

func (s *Sequencer) process(ctx context.Context, p models.PairOrder) {
	ratios, ok := s.ratios(&p)
	if ok {
		s.pairs.Mutate(p.ID, func(sp *models.PairOrder) {
			for _, leg := range []*models.PairLeg{&sp.BuyLeg, &sp.SellLeg} {
				leg.RatioMarket = ratios.market
				leg.RatioPassive = ratios.passive
				leg.RatioLast = ratios.last
				leg.Distance = ratios.market.Sub(sp.Ratio)
			}
		})
	}

	switch p.State {
	case models.PairDormant:
		// Missing counterpart quotes mean no trigger this cycle, never a fault.
		if !ok || !s.triggered(&p, ratios.market) {
			return
		}
		s.transition(p.ID, models.PairTriggered)
		s.pairs.Mutate(p.ID, func(sp *models.PairOrder) {
			sp.Tradable = true
			sp.BuyLeg.Tradable = true
			sp.SellLeg.Tradable = true
		})
		s.submitFirstLeg(ctx, p.ID)

	case models.PairTriggered:
		// A pair left Triggered by an earlier failed submission retries here.
		s.submitFirstLeg(ctx, p.ID)

	case models.PairFirstLegWorking:
		first, _ := p.FirstLeg()
		if first.OrderActive {
			return
		}
		if !first.Traded.IsPositive() {
			// First leg died without a fill: nothing to pair against.
			s.finish(p.ID)
			return
		}
		s.submitSecondLeg(ctx, p.ID)

	case models.PairSecondLegWorking:
		_, second := p.FirstLeg()
		if second.OrderActive {
			return
		}
		s.finish(p.ID)

	case models.PairBothLegsDone:
	}
}

// ratios computes the live ratio telemetry from both legs' quotes. The market
// ratio pairs each aggressive side with the passive price of its counter-leg
// so the pair cannot cross itself.
func (s *Sequencer) ratios(p *models.PairOrder) (legRatios, bool) {
	buy, okB := s.prices.Lookup(p.BuyLeg.Ticker)
	sell, okS := s.prices.Lookup(p.SellLeg.Ticker)
	if !okB || !okS {
		return legRatios{}, false
	}

	var r legRatios
	switch p.RatioSetup {
	case models.RatioSellOverBuy:
		r.market = safeDiv(sell.Bid, buy.Ask)
		r.passive = safeDiv(sell.Ask, buy.Bid)
		r.last = safeDiv(sell.Last, buy.Last)
	case models.RatioBuyOverSell:
		r.market = safeDiv(buy.Ask, sell.Bid)
		r.passive = safeDiv(buy.Bid, sell.Ask)
		r.last = safeDiv(buy.Last, sell.Last)
	}
	if r.market.IsZero() {
		return legRatios{}, false
	}
	return r, true
}

func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if !a.IsPositive() || !b.IsPositive() {
		return decimal.Zero
	}
	return a.Div(b)
}

func (s *Sequencer) triggered(p *models.PairOrder, market decimal.Decimal) bool {
	switch p.SpreadOp {
	case models.SpreadLTE:
		return market.LessThanOrEqual(p.Ratio)
	default:
		return market.GreaterThanOrEqual(p.Ratio)
	}
}

// submitFirstLeg prices and releases the initiate leg: an aggressor buy lifts
// its own ask, an aggressor sell hits its own bid. When the counter-leg
// already carries an average fill the price is ratio-derived from it instead.
func (s *Sequencer) submitFirstLeg(ctx context.Context, pairID string) {
	p, ok := s.pairs.Get(pairID)
	if !ok {
		return
	}
	first, second := p.FirstLeg()
	if first.Submitted {
		return
	}

	var price decimal.Decimal
	if second.AvgPrice.IsPositive() {
		price = s.ratioPrice(&p, first.Side, second.AvgPrice)
	} else {
		quote, ok := s.prices.Lookup(first.Ticker)
		if !ok {
			return
		}
		if first.Side == models.OrderSideBuy {
			price = quote.Ask
		} else {
			price = quote.Bid
		}
	}
	if !price.IsPositive() {
		return
	}

	s.submitLeg(ctx, pairID, first.Side, price, models.PairFirstLegWorking)
}

// submitSecondLeg releases the dormant leg at a ratio-derived price from the
// first leg's realized average.
func (s *Sequencer) submitSecondLeg(ctx context.Context, pairID string) {
	p, ok := s.pairs.Get(pairID)
	if !ok {
		return
	}
	first, second := p.FirstLeg()
	if second.Submitted {
		return
	}

	price := s.ratioPrice(&p, second.Side, first.AvgPrice)
	if !price.IsPositive() {
		return
	}

	s.submitLeg(ctx, pairID, second.Side, price, models.PairSecondLegWorking)
}

// ratioPrice derives one leg's price from the counter-leg's realized price and
// the configured pair ratio, honoring the ratio orientation.
func (s *Sequencer) ratioPrice(p *models.PairOrder, side string, counterAvg decimal.Decimal) decimal.Decimal {
	if !counterAvg.IsPositive() || !p.Ratio.IsPositive() {
		return decimal.Zero
	}
	sellOverBuy := p.RatioSetup == models.RatioSellOverBuy
	if side == models.OrderSideSell {
		// Counter leg is the buy.
		if sellOverBuy {
			return counterAvg.Mul(p.Ratio)
		}
		return counterAvg.Div(p.Ratio)
	}
	// Pricing the buy leg from the sell leg's average.
	if sellOverBuy {
		return counterAvg.Div(p.Ratio)
	}
	return counterAvg.Mul(p.Ratio)
}

func (s *Sequencer) submitLeg(ctx context.Context, pairID, side string, price decimal.Decimal, next models.PairState) {
	p, ok := s.pairs.Get(pairID)
	if !ok || !canTransition(p.State, next) {
		return
	}

	leg := &p.BuyLeg
	if side == models.OrderSideSell {
		leg = &p.SellLeg
	}

	orderID := uuid.NewString()
	price = pricing.RoundPrice(price, side)
	ins := &models.Instruction{
		ID:       uuid.NewString(),
		Kind:     models.InstructionNew.String(),
		OrderID:  orderID,
		Symbol:   leg.Ticker,
		Side:     side,
		Price:    price,
		Quantity: leg.Quantity,
		Reason:   "pair leg release",
		IssuedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ins); err != nil {
		s.logger.Error("pair leg submission failed",
			zap.String("pair_id", pairID),
			zap.String("side", side),
			zap.Error(err))
		return
	}

	s.pairs.Mutate(pairID, func(sp *models.PairOrder) {
		l := &sp.BuyLeg
		if side == models.OrderSideSell {
			l = &sp.SellLeg
		}
		l.OrderID = orderID
		l.OrderRefID = ins.ID
		l.OrderActive = true
		l.Submitted = true
		l.DerivedType = "LIMIT"
		l.DerivedPrice = price
		l.Leaves = l.Quantity
		sp.State = next
	})
	metrics.PairTransitions.WithLabelValues(next.String()).Inc()
	metrics.InstructionsEmitted.WithLabelValues(ins.Kind).Inc()
	s.logger.Info("pair leg released",
		zap.String("pair_id", pairID),
		zap.String("side", side),
		zap.String("price", price.String()),
		zap.String("state", next.String()))
}

// finish marks the pair done and records the executed ratio on both legs.
func (s *Sequencer) finish(pairID string) {
	s.pairs.Mutate(pairID, func(sp *models.PairOrder) {
		if !canTransition(sp.State, models.PairBothLegsDone) {
			return
		}
		sp.State = models.PairBothLegsDone
		sp.Active = false
		sp.Tradable = false

		var executed decimal.Decimal
		switch sp.RatioSetup {
		case models.RatioSellOverBuy:
			executed = safeDiv(sp.SellLeg.AvgPrice, sp.BuyLeg.AvgPrice)
		case models.RatioBuyOverSell:
			executed = safeDiv(sp.BuyLeg.AvgPrice, sp.SellLeg.AvgPrice)
		}
		sp.ExecutedRatio = executed
		sp.BuyLeg.RatioLast = executed
		sp.SellLeg.RatioLast = executed
	})
	metrics.PairTransitions.WithLabelValues(models.PairBothLegsDone.String()).Inc()
	s.logger.Info("pair completed", zap.String("pair_id", pairID))
}

func (s *Sequencer) transition(pairID string, next models.PairState) {
	s.pairs.Mutate(pairID, func(sp *models.PairOrder) {
		if canTransition(sp.State, next) {
			sp.State = next
		}
	})
	metrics.PairTransitions.WithLabelValues(next.String()).Inc()
}
