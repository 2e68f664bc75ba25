package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cefalpha/almengine/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func refIndexOrder(price string) *models.Order {
	return &models.Order{
		ID:    "ord-1",
		Side:  models.OrderSideBuy,
		Price: d(price),
		PricingPolicy: models.PricingPolicy{
			RefIndexTicker:    "SPX",
			RefIndexField:     models.PriceFieldLast,
			Beta:              d("0.5"),
			BetaAdjust:        models.BetaAdjustPercentage,
			RefIndexPrevPrice: d("4000"),
			AutoUpdate:        true,
		},
	}
}

func TestDeriveRefIndexPercentage(t *testing.T) {
	o := refIndexOrder("10.00")
	ref := models.SecurityPrice{Ticker: "SPX", Last: d("4010")}

	target, live, err := DeriveRefIndex(o, ref)
	require.NoError(t, err)

	// +0.25% reference move scaled by beta 0.5 is +0.125%.
	assert.True(t, target.Equal(d("10.0125")), "got %s", target)
	assert.True(t, live.Equal(d("4010")))
}

func TestDeriveRefIndexPrevCloseFallback(t *testing.T) {
	o := refIndexOrder("10.00")
	o.RefIndexPrevPrice = decimal.Zero
	ref := models.SecurityPrice{Ticker: "SPX", Last: d("4010"), PrevClose: d("4000")}

	target, _, err := DeriveRefIndex(o, ref)
	require.NoError(t, err)
	assert.True(t, target.Equal(d("10.0125")), "got %s", target)
}

func TestDeriveRefIndexDelta(t *testing.T) {
	o := refIndexOrder("1000")
	o.Beta = d("2")
	o.BetaAdjust = models.BetaAdjustDelta
	ref := models.SecurityPrice{Ticker: "SPX", Last: d("4010")}

	// Raw delta +10 scaled by beta 2, normalized by the 1000 target: +2%.
	target, _, err := DeriveRefIndex(o, ref)
	require.NoError(t, err)
	assert.True(t, target.Equal(d("1020")), "got %s", target)
}

func TestDeriveRefIndexAbsoluteIgnoresBeta(t *testing.T) {
	o := refIndexOrder("1000")
	o.Beta = d("2")
	o.BetaAdjust = models.BetaAdjustAbsolute
	ref := models.SecurityPrice{Ticker: "SPX", Last: d("4010")}

	target, _, err := DeriveRefIndex(o, ref)
	require.NoError(t, err)
	assert.True(t, target.Equal(d("1010")), "got %s", target)
}

func TestDeriveRefIndexSelectedField(t *testing.T) {
	o := refIndexOrder("10.00")
	o.RefIndexField = models.PriceFieldMid
	ref := models.SecurityPrice{Ticker: "SPX", Last: d("9999"), Mid: d("4010")}

	target, live, err := DeriveRefIndex(o, ref)
	require.NoError(t, err)
	assert.True(t, target.Equal(d("10.0125")), "got %s", target)
	assert.True(t, live.Equal(d("4010")))
}

func TestDeriveRefIndexBetaShiftDirection(t *testing.T) {
	tests := []struct {
		name   string
		shift  models.CapShift
		last   string
		expect string
	}{
		// Beta 0.5, shift Up: only positive moves are scaled.
		{"up shift scales gain", models.CapShiftUp, "4040", "10.05"},
		{"up shift passes loss unscaled", models.CapShiftUp, "3960", "9.90"},
		// Shift Down mirrors.
		{"down shift scales loss", models.CapShiftDown, "3960", "9.95"},
		{"down shift passes gain unscaled", models.CapShiftDown, "4040", "10.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := refIndexOrder("10.00")
			o.BetaShift = tt.shift
			ref := models.SecurityPrice{Ticker: "SPX", Last: d(tt.last)}

			target, _, err := DeriveRefIndex(o, ref)
			require.NoError(t, err)
			assert.True(t, target.Equal(d(tt.expect)), "got %s want %s", target, tt.expect)
		})
	}
}

func TestDeriveRefIndexCap(t *testing.T) {
	tests := []struct {
		name   string
		shift  models.CapShift
		last   string
		expect string
	}{
		// Beta 1, default 3% cap. A 10% reference move clamps to the cap.
		{"both caps gain", models.CapShiftBoth, "4400", "10.30"},
		{"both caps loss", models.CapShiftBoth, "3600", "9.70"},
		{"up caps gain only", models.CapShiftUp, "4400", "10.30"},
		{"up passes loss", models.CapShiftUp, "3600", "9.00"},
		{"down caps loss only", models.CapShiftDown, "3600", "9.70"},
		{"down passes gain", models.CapShiftDown, "4400", "11.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := refIndexOrder("10.00")
			o.Beta = d("1")
			o.CapShift = tt.shift
			ref := models.SecurityPrice{Ticker: "SPX", Last: d(tt.last)}

			target, _, err := DeriveRefIndex(o, ref)
			require.NoError(t, err)
			assert.True(t, target.Equal(d(tt.expect)), "got %s want %s", target, tt.expect)
		})
	}
}

func TestDeriveRefIndexErrors(t *testing.T) {
	t.Run("missing live quote", func(t *testing.T) {
		o := refIndexOrder("10.00")
		_, _, err := DeriveRefIndex(o, models.SecurityPrice{Ticker: "SPX"})
		assert.ErrorIs(t, err, ErrMissingReferencePrice)
	})

	t.Run("no previous reference anywhere", func(t *testing.T) {
		o := refIndexOrder("10.00")
		o.RefIndexPrevPrice = decimal.Zero
		_, _, err := DeriveRefIndex(o, models.SecurityPrice{Ticker: "SPX", Last: d("4010")})
		assert.ErrorIs(t, err, ErrMissingReferencePrice)
	})

	t.Run("zero target price", func(t *testing.T) {
		o := refIndexOrder("0")
		_, _, err := DeriveRefIndex(o, models.SecurityPrice{Ticker: "SPX", Last: d("4010")})
		assert.ErrorIs(t, err, ErrZeroPrice)
	})
}

func discountOrder(price string) *models.Order {
	return &models.Order{
		ID:    "ord-2",
		Side:  models.OrderSideBuy,
		Price: d(price),
		PricingPolicy: models.PricingPolicy{
			DiscountTarget: dp("-0.05"),
			AutoUpdate:     true,
		},
	}
}

func TestDeriveDiscount(t *testing.T) {
	forecast := &models.FundForecast{Ticker: "FUND", EstNav: d("20.00")}

	t.Run("basic discount to NAV", func(t *testing.T) {
		o := discountOrder("20.00")
		price, err := DeriveDiscount(o, forecast)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.00")), "got %s", price)
	})

	t.Run("adjustment added to discount", func(t *testing.T) {
		o := discountOrder("20.00")
		o.DiscountTargetAdjust = d("0.01")
		price, err := DeriveDiscount(o, forecast)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.20")), "got %s", price)
	})

	t.Run("no previous target stands uncapped", func(t *testing.T) {
		o := discountOrder("0")
		price, err := DeriveDiscount(o, forecast)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.00")), "got %s", price)
	})

	t.Run("default cap never engages", func(t *testing.T) {
		// A discount order with no configured cap tracks the NAV through a
		// move far past the default reference-price cap.
		o := discountOrder("10.00")
		price, err := DeriveDiscount(o, forecast)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.00")), "got %s", price)
	})

	t.Run("configured cap bounds the move", func(t *testing.T) {
		o := discountOrder("10.00")
		o.PriceCap = d("0.03")
		price, err := DeriveDiscount(o, forecast)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("10.30")), "got %s", price)
	})

	t.Run("nav source with fallback", func(t *testing.T) {
		o := discountOrder("20.00")
		o.NavType = models.NavHoldings
		f := &models.FundForecast{Ticker: "FUND", EstNav: d("20.00"), Holdings: d("21.00")}
		price, err := DeriveDiscount(o, f)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.95")), "got %s", price)

		// Holdings estimate missing falls back to the primary estimate.
		f.Holdings = decimal.Zero
		price, err = DeriveDiscount(o, f)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("19.00")), "got %s", price)
	})
}

func TestDeriveDiscountErrors(t *testing.T) {
	t.Run("no discount target", func(t *testing.T) {
		o := &models.Order{Price: d("10")}
		_, err := DeriveDiscount(o, &models.FundForecast{EstNav: d("20")})
		assert.ErrorIs(t, err, ErrMissingForecast)
	})

	t.Run("nil forecast", func(t *testing.T) {
		_, err := DeriveDiscount(discountOrder("10"), nil)
		assert.ErrorIs(t, err, ErrMissingForecast)
	})

	t.Run("zero nav", func(t *testing.T) {
		_, err := DeriveDiscount(discountOrder("10"), &models.FundForecast{Ticker: "FUND"})
		assert.ErrorIs(t, err, ErrMissingForecast)
	})
}
