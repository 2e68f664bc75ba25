package forecast

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cefalpha/almengine/internal/models"
)

func TestMemorySource(t *testing.T) {
	s := NewMemorySource()
	ctx := context.Background()

	_, ok := s.Lookup(ctx, "FUND")
	assert.False(t, ok)

	s.Put(models.FundForecast{Ticker: "FUND", EstNav: decimal.RequireFromString("20.00")})

	f, ok := s.Lookup(ctx, "FUND")
	require.True(t, ok)
	assert.True(t, f.EstNav.Equal(decimal.RequireFromString("20.00")))

	// Callers get their own copy.
	f.EstNav = decimal.Zero
	again, _ := s.Lookup(ctx, "FUND")
	assert.True(t, again.EstNav.Equal(decimal.RequireFromString("20.00")))
}
