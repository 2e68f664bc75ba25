package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order sides, statuses and instruction reasons as delivered by the venue.
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	// Working statuses for plain orders
	OrderStatusPending         = "Pending"
	OrderStatusReplaced        = "Replaced"
	OrderStatusReplaceRejected = "Replace Rejected"
	OrderStatusPartial         = "Partial"

	// Terminal statuses
	OrderStatusFilled   = "Filled"
	OrderStatusCanceled = "Canceled"
	OrderStatusRejected = "Rejected"
	OrderStatusExpired  = "Expired"

	// Working statuses for routed orders
	RouteStatusPartFill   = "PARTFILL"
	RouteStatusPartFilled = "PARTFILLED"
	RouteStatusWorking    = "WORKING"
)

// Engine thresholds. Deltas and caps are fractional (0.005 = 50 bps).
var (
	DefaultMarketPriceThreshold  = decimal.RequireFromString("0.005")
	DiscountMarketPriceThreshold = decimal.RequireFromString("0.01")
	MinAutoUpdateDelta           = decimal.RequireFromString("0.0005")
	MaxAutoUpdateDelta           = decimal.RequireFromString("0.005")
	DefaultPriceCap              = decimal.RequireFromString("0.03")
)

// CrossedMarketCancelAfter is the number of consecutive crossed-market
// observations tolerated before a reference-index order is canceled.
const CrossedMarketCancelAfter = 5

// IsWorkingOrderStatus reports whether a plain order status qualifies for
// auto-replacement.
func IsWorkingOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusReplaced, OrderStatusReplaceRejected, OrderStatusPartial:
		return true
	}
	return false
}

// IsWorkingRouteStatus reports whether a routed order status qualifies for
// auto-replacement.
func IsWorkingRouteStatus(s string) bool {
	switch s {
	case RouteStatusPartFill, RouteStatusPartFilled, RouteStatusWorking:
		return true
	}
	return false
}

// IsTerminalStatus reports whether a status ends an order's working life.
func IsTerminalStatus(s string) bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// SecurityPrice is the latest observed quote for one security. Records are
// created on first observation and merged in place afterwards; they are never
// removed during a session.
type SecurityPrice struct {
	Ticker       string
	Last         decimal.Decimal
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	Mid          decimal.Decimal
	BidSize      decimal.Decimal
	AskSize      decimal.Decimal
	Volume       decimal.Decimal
	PrevClose    decimal.Decimal
	Source       string
	RealTime     bool
	MarketClosed bool
	UpdatedAt    time.Time
}

// Field returns the quote field selected by f.
func (p *SecurityPrice) Field(f PriceField) decimal.Decimal {
	switch f {
	case PriceFieldMid:
		return p.Mid
	case PriceFieldBid:
		return p.Bid
	case PriceFieldAsk:
		return p.Ask
	default:
		return p.Last
	}
}

// MarketField returns the bid or ask per the order's market-price selector.
func (p *SecurityPrice) MarketField(f MarketPriceField) decimal.Decimal {
	if f == MarketPriceAsk {
		return p.Ask
	}
	return p.Bid
}

// FXRate is the latest observed rate for a currency pair.
type FXRate struct {
	Pair      string
	Rate      decimal.Decimal
	UpdatedAt time.Time
}

// PricingPolicy carries the auto-pricing configuration of an order. The same
// fields are denormalized onto route records for fast access. Exactly one of
// the two modes is in effect: reference-index when RefIndexTicker is set,
// discount-target when DiscountTarget is set.
type PricingPolicy struct {
	RefIndexTicker    string
	RefIndexField     PriceField
	Beta              decimal.Decimal
	BetaAdjust        BetaAdjust
	BetaShift         CapShift
	PriceCap          decimal.Decimal
	CapShift          CapShift
	MaxPrice          decimal.Decimal
	RefIndexPrevPrice decimal.Decimal

	DiscountTarget       *decimal.Decimal
	DiscountTargetAdjust decimal.Decimal
	NavType              NavType

	AutoUpdate           bool
	MarketPriceThreshold decimal.Decimal
	MarketPriceField     MarketPriceField
}

// RefIndexMode reports whether the order tracks a reference security.
func (p *PricingPolicy) RefIndexMode() bool { return p.RefIndexTicker != "" }

// DiscountMode reports whether the order tracks a discount to estimated NAV.
func (p *PricingPolicy) DiscountMode() bool { return p.DiscountTarget != nil }

// Threshold returns the order's market-price threshold, defaulting per mode
// when unset.
func (p *PricingPolicy) Threshold() decimal.Decimal {
	if !p.MarketPriceThreshold.IsZero() {
		return p.MarketPriceThreshold
	}
	if p.DiscountMode() {
		return DiscountMarketPriceThreshold
	}
	return DefaultMarketPriceThreshold
}

// Cap returns the configured price cap, defaulting to 3%.
func (p *PricingPolicy) Cap() decimal.Decimal {
	if p.PriceCap.IsZero() {
		return DefaultPriceCap
	}
	return p.PriceCap
}

// Order is a working order tracked by the engine. Status fields are written by
// ingestion, derived-price fields and the in-flight marker by the decision
// engine.
type Order struct {
	ID      string
	MainID  string
	RouteID string
	RefID   string

	Side         string
	Symbol       string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Traded       decimal.Decimal
	AvgFillPrice decimal.Decimal
	OrderType    string
	Status       string
	Active       bool
	Broker       string
	Trader       string
	AlgoParams   map[string]string

	PricingPolicy

	// CrossedCount counts consecutive cycles the reference market was crossed.
	CrossedCount int

	UpdatedAt time.Time
}

// RouteStatus is the venue-side execution leg of an order.
type RouteStatus struct {
	OrderID string
	RouteID string

	Status     string
	Filled     decimal.Decimal
	Remaining  decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	LastTraded decimal.Decimal

	PricingPolicy

	UpdatedAt time.Time
}

// Price returns the route's working price: limit, then stop, then last traded.
func (r *RouteStatus) Price() decimal.Decimal {
	if !r.LimitPrice.IsZero() {
		return r.LimitPrice
	}
	if !r.StopPrice.IsZero() {
		return r.StopPrice
	}
	return r.LastTraded
}

// PairLeg is one side of a pair order plus its derived state.
type PairLeg struct {
	Ticker     string
	Side       string
	Quantity   decimal.Decimal
	OrderRefID string
	OrderID    string

	Traded   decimal.Decimal
	Canceled decimal.Decimal
	Leaves   decimal.Decimal
	AvgPrice decimal.Decimal

	OrderActive bool
	Submitted   bool

	RatioLast    decimal.Decimal
	RatioMarket  decimal.Decimal
	RatioPassive decimal.Decimal
	Distance     decimal.Decimal
	Tradable     bool

	DerivedType  string
	DerivedPrice decimal.Decimal
}

// PairOrder is a two-legged order worked one leg at a time.
type PairOrder struct {
	ID      string
	BuyLeg  PairLeg
	SellLeg PairLeg

	Ratio       decimal.Decimal
	RatioSetup  RatioSetup
	SpreadOp    SpreadOp
	InitiateLeg InitiateLeg

	State         PairState
	Tradable      bool
	Active        bool
	ExecutedRatio decimal.Decimal

	UpdatedAt time.Time
}

// FirstLeg returns the leg worked first and its counterpart.
func (p *PairOrder) FirstLeg() (first, second *PairLeg) {
	if p.InitiateLeg == InitiateSell {
		return &p.SellLeg, &p.BuyLeg
	}
	return &p.BuyLeg, &p.SellLeg
}

// FundForecast is a fund's estimated NAV record, one estimate per source.
type FundForecast struct {
	Ticker    string
	EstNav    decimal.Decimal
	Holdings  decimal.Decimal
	ETFReg    decimal.Decimal
	Proxy     decimal.Decimal
	AltProxy  decimal.Decimal
	Published decimal.Decimal
	AsOf      time.Time
}

// Nav resolves the estimate for the requested source, falling back to the
// primary estimate when the source has no value.
func (f *FundForecast) Nav(t NavType) decimal.Decimal {
	var v decimal.Decimal
	switch t {
	case NavHoldings:
		v = f.Holdings
	case NavETFReg:
		v = f.ETFReg
	case NavProxy:
		v = f.Proxy
	case NavAltProxy:
		v = f.AltProxy
	case NavPublished:
		v = f.Published
	case NavDefault:
		v = f.EstNav
	}
	if v.IsZero() {
		return f.EstNav
	}
	return v
}

// Instruction is an outbound new/replace/cancel order instruction.
type Instruction struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	OrderID  string          `json:"order_id"`
	RouteID  string          `json:"route_id,omitempty"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason,omitempty"`
	IssuedAt time.Time       `json:"issued_at"`
}

// NewInstruction builds an instruction for an order with a fresh id.
func NewInstruction(kind InstructionKind, o *Order, price decimal.Decimal, reason string) *Instruction {
	return &Instruction{
		ID:       uuid.NewString(),
		Kind:     kind.String(),
		OrderID:  o.ID,
		RouteID:  o.RouteID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    price,
		Quantity: o.Quantity,
		Reason:   reason,
		IssuedAt: time.Now().UTC(),
	}
}
