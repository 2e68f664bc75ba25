// Package ingest builds the per-feed broker consumers. Each consumer decodes
// one queue's payloads, applies them to the shared stores, and acknowledges
// after processing.
package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/messaging"
	"github.com/cefalpha/almengine/internal/metrics"
	"github.com/cefalpha/almengine/internal/models"
	"github.com/cefalpha/almengine/internal/orders"
	"github.com/cefalpha/almengine/internal/pairs"
	"github.com/cefalpha/almengine/internal/pricestore"
)

// logEvery batches informational logging; every message is still processed
// and applied individually.
const logEvery = 5000

var errMissingKeyField = errors.New("payload missing key field")

// progress counts applied messages for one feed and reports when an
// informational log line is due.
type progress struct {
	n atomic.Uint64
}

func (p *progress) tick() (uint64, bool) {
	n := p.n.Add(1)
	return n, n%logEvery == 0
}

func decodeFailure(queue string, err error) error {
	metrics.DecodeFailures.WithLabelValues(queue).Inc()
	return &messaging.DecodeError{Err: err}
}

// PriceHandler applies security price ticks to the price store.
func PriceHandler(queue string, store *pricestore.Store, logger *zap.Logger) messaging.Handler {
	prog := &progress{}
	return func(_ context.Context, _, value []byte) error {
		var pl securityPricePayload
		if err := jsonAPI.Unmarshal(value, &pl); err != nil {
			return decodeFailure(queue, err)
		}
		if pl.Ticker == "" {
			return decodeFailure(queue, errMissingKeyField)
		}

		store.Upsert(pricestore.PriceUpdate{
			Ticker:       pl.Ticker,
			Last:         pl.Last,
			Bid:          pl.Bid,
			Ask:          pl.Ask,
			Mid:          pl.Mid,
			BidSize:      pl.BidSize,
			AskSize:      pl.AskSize,
			Volume:       pl.Volume,
			PrevClose:    pl.PrevClose,
			Source:       pl.Source,
			RealTime:     pl.RealTime,
			MarketClosed: pl.MarketClosed,
			Timestamp:    pl.Timestamp,
		})
		metrics.MessagesConsumed.WithLabelValues(queue).Inc()
		metrics.TrackedSecurities.Set(float64(store.Len()))
		if n, due := prog.tick(); due {
			logger.Info("price feed progress",
				zap.String("queue", queue),
				zap.Uint64("applied", n),
				zap.Int("tracked", store.Len()))
		}
		return nil
	}
}

// NewPriceConsumer consumes security price ticks into the price store.
func NewPriceConsumer(cfg messaging.Config, queue string, store *pricestore.Store, dlq *messaging.Producer, logger *zap.Logger) *messaging.Consumer {
	return messaging.NewConsumer(cfg, queue, PriceHandler(queue, store, logger), dlq, logger)
}

// FXHandler applies FX rate ticks to the FX store.
func FXHandler(queue string, store *pricestore.FXStore, logger *zap.Logger) messaging.Handler {
	prog := &progress{}
	return func(_ context.Context, _, value []byte) error {
		var pl fxRatePayload
		if err := jsonAPI.Unmarshal(value, &pl); err != nil {
			return decodeFailure(queue, err)
		}
		if pl.Pair == "" {
			return decodeFailure(queue, errMissingKeyField)
		}

		store.Upsert(pl.Pair, pl.Rate, pl.Timestamp)
		metrics.MessagesConsumed.WithLabelValues(queue).Inc()
		if n, due := prog.tick(); due {
			logger.Info("fx feed progress", zap.String("queue", queue), zap.Uint64("applied", n))
		}
		return nil
	}
}

// NewFXConsumer consumes FX rate ticks into the FX store.
func NewFXConsumer(cfg messaging.Config, queue string, store *pricestore.FXStore, dlq *messaging.Producer, logger *zap.Logger) *messaging.Consumer {
	return messaging.NewConsumer(cfg, queue, FXHandler(queue, store, logger), dlq, logger)
}

// OrderStatusHandler applies order-status events to the order store. A status
// event for an order with an instruction in flight is the venue's
// acknowledgment and releases the in-flight marker. Terminal statuses also
// clear the pair-leg active flag when the order works a pair leg.
func OrderStatusHandler(
	queue string,
	store *orders.Store,
	inflight *orders.InFlightSet,
	pairStore *pairs.Store,
	logger *zap.Logger,
) messaging.Handler {
	prog := &progress{}
	return func(_ context.Context, _, value []byte) error {
		var pl orderStatusPayload
		if err := jsonAPI.Unmarshal(value, &pl); err != nil {
			return decodeFailure(queue, err)
		}
		if pl.OrderID == "" {
			return decodeFailure(queue, errMissingKeyField)
		}

		u := orders.OrderUpdate{
			ID:         pl.OrderID,
			MainID:     pl.MainID,
			RouteID:    pl.RouteID,
			RefID:      pl.RefID,
			Side:       pl.Side,
			Symbol:     pl.Symbol,
			Quantity:   pl.Quantity,
			Price:      pl.Price,
			OrderType:  pl.OrderType,
			Status:     pl.Status,
			Broker:     pl.Broker,
			Trader:     pl.Trader,
			AlgoParams: pl.AlgoParams,
			Timestamp:  pl.Timestamp,
		}
		if pl.present() {
			policy, err := pl.toModel()
			if err != nil {
				return decodeFailure(queue, err)
			}
			u.Policy = policy
		}
		store.Upsert(u)

		if inflight != nil {
			inflight.Release(pl.OrderID)
		}
		if pairStore != nil && pl.Status != "" && models.IsTerminalStatus(pl.Status) {
			pairStore.SetLegActive(pl.OrderID, false)
		}

		metrics.MessagesConsumed.WithLabelValues(queue).Inc()
		if n, due := prog.tick(); due {
			logger.Info("order status progress", zap.String("queue", queue), zap.Uint64("applied", n))
		}
		return nil
	}
}

// NewOrderStatusConsumer consumes order-status events into the order store.
func NewOrderStatusConsumer(
	cfg messaging.Config,
	queue string,
	store *orders.Store,
	inflight *orders.InFlightSet,
	pairStore *pairs.Store,
	dlq *messaging.Producer,
	logger *zap.Logger,
) *messaging.Consumer {
	return messaging.NewConsumer(cfg, queue, OrderStatusHandler(queue, store, inflight, pairStore, logger), dlq, logger)
}

// RouteStatusHandler applies route-status events to the route store.
func RouteStatusHandler(queue string, store *orders.RouteStore, logger *zap.Logger) messaging.Handler {
	prog := &progress{}
	return func(_ context.Context, _, value []byte) error {
		var pl routeStatusPayload
		if err := jsonAPI.Unmarshal(value, &pl); err != nil {
			return decodeFailure(queue, err)
		}
		if pl.RouteID == "" {
			return decodeFailure(queue, errMissingKeyField)
		}

		u := orders.RouteUpdate{
			OrderID:    pl.OrderID,
			RouteID:    pl.RouteID,
			Status:     pl.Status,
			Filled:     pl.Filled,
			Remaining:  pl.Remaining,
			LimitPrice: pl.LimitPrice,
			StopPrice:  pl.StopPrice,
			LastTraded: pl.LastTraded,
			Timestamp:  pl.Timestamp,
		}
		if pl.present() {
			policy, err := pl.toModel()
			if err != nil {
				return decodeFailure(queue, err)
			}
			u.Policy = policy
		}
		store.Upsert(u)

		metrics.MessagesConsumed.WithLabelValues(queue).Inc()
		if n, due := prog.tick(); due {
			logger.Info("route status progress", zap.String("queue", queue), zap.Uint64("applied", n))
		}
		return nil
	}
}

// NewRouteStatusConsumer consumes route-status events into the route store.
func NewRouteStatusConsumer(cfg messaging.Config, queue string, store *orders.RouteStore, dlq *messaging.Producer, logger *zap.Logger) *messaging.Consumer {
	return messaging.NewConsumer(cfg, queue, RouteStatusHandler(queue, store, logger), dlq, logger)
}

// FillHandler applies execution fills to the order store and to the pair leg
// worked by the filled order.
func FillHandler(queue string, store *orders.Store, pairStore *pairs.Store, logger *zap.Logger) messaging.Handler {
	prog := &progress{}
	return func(_ context.Context, _, value []byte) error {
		var pl fillPayload
		if err := jsonAPI.Unmarshal(value, &pl); err != nil {
			return decodeFailure(queue, err)
		}
		if pl.OrderID == "" {
			return decodeFailure(queue, errMissingKeyField)
		}

		store.ApplyFill(pl.OrderID, pl.Quantity, pl.Price)
		if pairStore != nil {
			pairStore.ApplyLegFill(pl.OrderID, pl.Quantity, pl.Price)
		}

		metrics.MessagesConsumed.WithLabelValues(queue).Inc()
		if n, due := prog.tick(); due {
			logger.Info("fill feed progress", zap.String("queue", queue), zap.Uint64("applied", n))
		}
		return nil
	}
}

// NewFillConsumer consumes execution fills into the order store and the pair
// legs worked by the filled order.
func NewFillConsumer(cfg messaging.Config, queue string, store *orders.Store, pairStore *pairs.Store, dlq *messaging.Producer, logger *zap.Logger) *messaging.Consumer {
	return messaging.NewConsumer(cfg, queue, FillHandler(queue, store, pairStore, logger), dlq, logger)
}
