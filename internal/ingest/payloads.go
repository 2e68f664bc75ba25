package ingest

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

// jsonAPI decodes inbound payloads. Configured for standard-library
// compatibility so decimal fields unmarshal through their own codec.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// securityPricePayload is one inbound quote. Pointer fields distinguish
// absent from zero so the merge never nulls out stored values.
type securityPricePayload struct {
	Ticker       string           `json:"ticker"`
	Last         *decimal.Decimal `json:"last,omitempty"`
	Bid          *decimal.Decimal `json:"bid,omitempty"`
	Ask          *decimal.Decimal `json:"ask,omitempty"`
	Mid          *decimal.Decimal `json:"mid,omitempty"`
	BidSize      *decimal.Decimal `json:"bid_size,omitempty"`
	AskSize      *decimal.Decimal `json:"ask_size,omitempty"`
	Volume       *decimal.Decimal `json:"volume,omitempty"`
	PrevClose    *decimal.Decimal `json:"prev_close,omitempty"`
	Source       string           `json:"source,omitempty"`
	RealTime     *bool            `json:"real_time,omitempty"`
	MarketClosed *bool            `json:"market_closed,omitempty"`
	Timestamp    time.Time        `json:"timestamp,omitempty"`
}

type fxRatePayload struct {
	Pair      string          `json:"pair"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// policyPayload is the pricing-policy block denormalized onto order and route
// events.
type policyPayload struct {
	RefIndexTicker string           `json:"ref_index_ticker,omitempty"`
	RefIndexField  string           `json:"ref_index_field,omitempty"`
	Beta           *decimal.Decimal `json:"beta,omitempty"`
	BetaAdjustType string           `json:"beta_adjust_type,omitempty"`
	BetaShift      string           `json:"beta_shift,omitempty"`
	PriceCap       *decimal.Decimal `json:"price_cap,omitempty"`
	CapShift       string           `json:"cap_shift,omitempty"`
	MaxPrice       *decimal.Decimal `json:"max_price,omitempty"`
	RefIndexPrev   *decimal.Decimal `json:"ref_index_prev,omitempty"`

	DiscountTarget       *decimal.Decimal `json:"discount_target,omitempty"`
	DiscountTargetAdjust *decimal.Decimal `json:"discount_target_adjust,omitempty"`
	EstNavType           string           `json:"est_nav_type,omitempty"`

	AutoUpdate           *bool            `json:"auto_update,omitempty"`
	MarketPriceThreshold *decimal.Decimal `json:"market_price_threshold,omitempty"`
	MarketPriceField     string           `json:"market_price_field,omitempty"`
}

// present reports whether the event carried any pricing-policy fields. Bare
// status events must not wipe a stored policy.
func (p *policyPayload) present() bool {
	return p.RefIndexTicker != "" || p.DiscountTarget != nil
}

// toModel converts the payload block into the domain policy.
func (p *policyPayload) toModel() (*models.PricingPolicy, error) {
	adjust, err := models.ParseBetaAdjust(p.BetaAdjustType)
	if err != nil {
		return nil, err
	}
	betaShift, err := models.ParseCapShift(p.BetaShift)
	if err != nil {
		return nil, err
	}
	capShift, err := models.ParseCapShift(p.CapShift)
	if err != nil {
		return nil, err
	}

	out := &models.PricingPolicy{
		RefIndexTicker: p.RefIndexTicker,
		RefIndexField:  models.ParsePriceField(p.RefIndexField),
		BetaAdjust:     adjust,
		BetaShift:      betaShift,
		CapShift:       capShift,
		NavType:        models.ParseNavType(p.EstNavType),

		DiscountTarget:   p.DiscountTarget,
		MarketPriceField: models.ParseMarketPriceField(p.MarketPriceField),
	}
	if p.Beta != nil {
		out.Beta = *p.Beta
	}
	if p.PriceCap != nil {
		out.PriceCap = *p.PriceCap
	}
	if p.MaxPrice != nil {
		out.MaxPrice = *p.MaxPrice
	}
	if p.RefIndexPrev != nil {
		out.RefIndexPrevPrice = *p.RefIndexPrev
	}
	if p.DiscountTargetAdjust != nil {
		out.DiscountTargetAdjust = *p.DiscountTargetAdjust
	}
	if p.AutoUpdate != nil {
		out.AutoUpdate = *p.AutoUpdate
	}
	if p.MarketPriceThreshold != nil {
		out.MarketPriceThreshold = *p.MarketPriceThreshold
	}
	return out, nil
}

type orderStatusPayload struct {
	OrderID    string            `json:"order_id"`
	MainID     string            `json:"main_id,omitempty"`
	RouteID    string            `json:"route_id,omitempty"`
	RefID      string            `json:"ref_id,omitempty"`
	Side       string            `json:"side,omitempty"`
	Symbol     string            `json:"symbol,omitempty"`
	Quantity   *decimal.Decimal  `json:"quantity,omitempty"`
	Price      *decimal.Decimal  `json:"price,omitempty"`
	OrderType  string            `json:"order_type,omitempty"`
	Status     string            `json:"status,omitempty"`
	Broker     string            `json:"broker,omitempty"`
	Trader     string            `json:"trader,omitempty"`
	AlgoParams map[string]string `json:"algo_params,omitempty"`
	Timestamp  time.Time         `json:"timestamp,omitempty"`

	policyPayload
}

type routeStatusPayload struct {
	OrderID    string           `json:"order_id"`
	RouteID    string           `json:"route_id"`
	Status     string           `json:"status,omitempty"`
	Filled     *decimal.Decimal `json:"filled,omitempty"`
	Remaining  *decimal.Decimal `json:"remaining,omitempty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
	LastTraded *decimal.Decimal `json:"last_traded,omitempty"`
	Timestamp  time.Time        `json:"timestamp,omitempty"`

	policyPayload
}

type fillPayload struct {
	OrderID   string          `json:"order_id"`
	RouteID   string          `json:"route_id,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}
