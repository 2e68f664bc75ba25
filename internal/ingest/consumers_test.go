package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/messaging"
	"github.com/cefalpha/almengine/internal/models"
	"github.com/cefalpha/almengine/internal/orders"
	"github.com/cefalpha/almengine/internal/pairs"
	"github.com/cefalpha/almengine/internal/pricestore"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func isDecodeError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var de *messaging.DecodeError
	assert.True(t, errors.As(err, &de), "want DecodeError, got %T: %v", err, err)
}

func TestPriceHandler(t *testing.T) {
	store := pricestore.NewStore()
	handler := PriceHandler("md.security-prices", store, zap.NewNop())
	ctx := context.Background()

	err := handler(ctx, nil, []byte(`{"ticker":"XYZ","last":"10.02","bid":"10.00","ask":"10.05","prev_close":"9.90"}`))
	require.NoError(t, err)

	p, ok := store.Lookup("XYZ")
	require.True(t, ok)
	assert.True(t, p.Last.Equal(d("10.02")))
	assert.True(t, p.PrevClose.Equal(d("9.90")))

	// A sparse tick merges instead of replacing.
	err = handler(ctx, nil, []byte(`{"ticker":"XYZ","last":"10.04"}`))
	require.NoError(t, err)
	p, _ = store.Lookup("XYZ")
	assert.True(t, p.Last.Equal(d("10.04")))
	assert.True(t, p.Bid.Equal(d("10.00")))
}

func TestPriceHandlerDecodeFailures(t *testing.T) {
	store := pricestore.NewStore()
	handler := PriceHandler("md.security-prices", store, zap.NewNop())
	ctx := context.Background()

	t.Run("malformed json", func(t *testing.T) {
		isDecodeError(t, handler(ctx, nil, []byte(`{"ticker":`)))
	})
	t.Run("missing ticker", func(t *testing.T) {
		isDecodeError(t, handler(ctx, nil, []byte(`{"last":"10.02"}`)))
	})
	assert.Equal(t, 0, store.Len())
}

func TestFXHandler(t *testing.T) {
	store := pricestore.NewFXStore()
	handler := FXHandler("md.fx-rates", store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, handler(ctx, nil, []byte(`{"pair":"EURUSD","rate":"1.0842"}`)))
	r, ok := store.Lookup("EURUSD")
	require.True(t, ok)
	assert.True(t, r.Rate.Equal(d("1.0842")))

	isDecodeError(t, handler(ctx, nil, []byte(`{"rate":"1.0842"}`)))
}

func TestOrderStatusHandler(t *testing.T) {
	store := orders.NewStore()
	inflight := orders.NewInFlightSet()
	pairStore := pairs.NewStore()
	handler := OrderStatusHandler("oms.order-status", store, inflight, pairStore, zap.NewNop())
	ctx := context.Background()

	payload := `{
		"order_id":"ord-1","side":"BUY","symbol":"XYZ",
		"quantity":"1000","price":"10.00","status":"Pending",
		"ref_index_ticker":"SPX","beta":"0.5","beta_adjust_type":"Percentage",
		"auto_update":true,"market_price_field":"BID"
	}`
	require.NoError(t, handler(ctx, nil, []byte(payload)))

	o, ok := store.Get("ord-1")
	require.True(t, ok)
	assert.Equal(t, "XYZ", o.Symbol)
	assert.True(t, o.Price.Equal(d("10.00")))
	assert.Equal(t, "SPX", o.RefIndexTicker)
	assert.True(t, o.Beta.Equal(d("0.5")))
	assert.Equal(t, models.BetaAdjustPercentage, o.BetaAdjust)
	assert.True(t, o.AutoUpdate)

	// Venue acknowledgment for an emitted instruction releases the marker.
	inflight.TryAcquire("ord-1")
	require.NoError(t, handler(ctx, nil, []byte(`{"order_id":"ord-1","status":"Replaced","price":"10.05"}`)))
	assert.False(t, inflight.Held("ord-1"))
	o, _ = store.Get("ord-1")
	assert.True(t, o.Price.Equal(d("10.05")))
	// Policy survives the bare status event.
	assert.Equal(t, "SPX", o.RefIndexTicker)
}

func TestOrderStatusHandlerTerminalClearsPairLeg(t *testing.T) {
	store := orders.NewStore()
	pairStore := pairs.NewStore()
	pairStore.Put(&models.PairOrder{
		ID:     "pair-1",
		BuyLeg: models.PairLeg{Ticker: "BBB", OrderID: "ord-7", OrderActive: true},
		Active: true,
	})
	handler := OrderStatusHandler("oms.order-status", store, nil, pairStore, zap.NewNop())

	require.NoError(t, handler(context.Background(), nil, []byte(`{"order_id":"ord-7","status":"Canceled"}`)))

	p, _ := pairStore.Get("pair-1")
	assert.False(t, p.BuyLeg.OrderActive)
}

func TestOrderStatusHandlerDecodeFailures(t *testing.T) {
	store := orders.NewStore()
	handler := OrderStatusHandler("oms.order-status", store, nil, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("missing order id", func(t *testing.T) {
		isDecodeError(t, handler(ctx, nil, []byte(`{"status":"Pending"}`)))
	})
	t.Run("unknown beta adjust type", func(t *testing.T) {
		isDecodeError(t, handler(ctx, nil, []byte(`{"order_id":"ord-1","ref_index_ticker":"SPX","beta_adjust_type":"Quadratic"}`)))
	})
}

func TestRouteStatusHandler(t *testing.T) {
	store := orders.NewRouteStore()
	handler := RouteStatusHandler("oms.route-status", store, zap.NewNop())
	ctx := context.Background()

	payload := `{"order_id":"ord-1","route_id":"rt-1","status":"WORKING","limit_price":"10.00","remaining":"1000"}`
	require.NoError(t, handler(ctx, nil, []byte(payload)))

	r, ok := store.Get("rt-1")
	require.True(t, ok)
	assert.Equal(t, "ord-1", r.OrderID)
	assert.Equal(t, models.RouteStatusWorking, r.Status)
	assert.True(t, r.Price().Equal(d("10.00")))

	isDecodeError(t, handler(ctx, nil, []byte(`{"order_id":"ord-1"}`)))
}

func TestFillHandler(t *testing.T) {
	store := orders.NewStore()
	pairStore := pairs.NewStore()
	store.Upsert(orders.OrderUpdate{ID: "ord-1", Status: models.OrderStatusPartial})
	qty := d("300")
	pairStore.Put(&models.PairOrder{
		ID:     "pair-1",
		BuyLeg: models.PairLeg{Ticker: "BBB", OrderID: "ord-1", Quantity: qty, OrderActive: true},
		Active: true,
	})
	handler := FillHandler("oms.fills", store, pairStore, zap.NewNop())

	require.NoError(t, handler(context.Background(), nil, []byte(`{"order_id":"ord-1","quantity":"100","price":"10.00"}`)))

	o, _ := store.Get("ord-1")
	assert.True(t, o.Traded.Equal(d("100")))
	assert.True(t, o.AvgFillPrice.Equal(d("10.00")))

	p, _ := pairStore.Get("pair-1")
	assert.True(t, p.BuyLeg.Traded.Equal(d("100")))
	assert.True(t, p.BuyLeg.Leaves.Equal(d("200")))
	assert.True(t, p.BuyLeg.OrderActive)
}
