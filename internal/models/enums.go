package models

import "fmt"

// PriceField selects which field of a reference security's quote drives a
// reference-index order.
type PriceField uint8

const (
	PriceFieldLast PriceField = iota
	PriceFieldMid
	PriceFieldBid
	PriceFieldAsk
)

func (f PriceField) String() string {
	switch f {
	case PriceFieldLast:
		return "LAST"
	case PriceFieldMid:
		return "MID"
	case PriceFieldBid:
		return "BID"
	case PriceFieldAsk:
		return "ASK"
	}
	return "UNKNOWN"
}

// ParsePriceField maps the venue string onto the closed enum. Unrecognized
// values fall back to LAST, matching the feed's default quote field.
func ParsePriceField(s string) PriceField {
	switch s {
	case "MID":
		return PriceFieldMid
	case "BID":
		return PriceFieldBid
	case "ASK":
		return PriceFieldAsk
	default:
		return PriceFieldLast
	}
}

// BetaAdjust selects how a reference security's move is translated into an
// adjustment of the order's target price.
type BetaAdjust uint8

const (
	// BetaAdjustPercentage scales the reference's relative change by beta.
	BetaAdjustPercentage BetaAdjust = iota
	// BetaAdjustDelta applies the reference's raw price delta scaled by beta.
	BetaAdjustDelta
	// BetaAdjustAbsolute applies the reference's raw price delta unscaled.
	BetaAdjustAbsolute
)

func (b BetaAdjust) String() string {
	switch b {
	case BetaAdjustPercentage:
		return "Percentage"
	case BetaAdjustDelta:
		return "Delta"
	case BetaAdjustAbsolute:
		return "Absolute"
	}
	return "UNKNOWN"
}

func ParseBetaAdjust(s string) (BetaAdjust, error) {
	switch s {
	case "Percentage", "":
		return BetaAdjustPercentage, nil
	case "Delta":
		return BetaAdjustDelta, nil
	case "Absolute":
		return BetaAdjustAbsolute, nil
	}
	return BetaAdjustPercentage, fmt.Errorf("unknown beta adjustment type %q", s)
}

// CapShift selects which move directions the price cap bounds.
type CapShift uint8

const (
	CapShiftBoth CapShift = iota
	CapShiftUp
	CapShiftDown
)

func (c CapShift) String() string {
	switch c {
	case CapShiftBoth:
		return "Both"
	case CapShiftUp:
		return "Up"
	case CapShiftDown:
		return "Down"
	}
	return "UNKNOWN"
}

func ParseCapShift(s string) (CapShift, error) {
	switch s {
	case "Both", "":
		return CapShiftBoth, nil
	case "Up":
		return CapShiftUp, nil
	case "Down":
		return CapShiftDown, nil
	}
	return CapShiftBoth, fmt.Errorf("unknown cap shift direction %q", s)
}

// NavType selects which estimated NAV a discount-target order prices against.
type NavType uint8

const (
	NavDefault NavType = iota
	NavHoldings
	NavETFReg
	NavProxy
	NavAltProxy
	NavPublished
)

func (n NavType) String() string {
	switch n {
	case NavDefault:
		return "default"
	case NavHoldings:
		return "Holdings"
	case NavETFReg:
		return "ETFReg"
	case NavProxy:
		return "Proxy"
	case NavAltProxy:
		return "AltProxy"
	case NavPublished:
		return "Published"
	}
	return "UNKNOWN"
}

func ParseNavType(s string) NavType {
	switch s {
	case "Holdings":
		return NavHoldings
	case "ETFReg":
		return NavETFReg
	case "Proxy":
		return NavProxy
	case "AltProxy":
		return NavAltProxy
	case "Published":
		return NavPublished
	default:
		return NavDefault
	}
}

// MarketPriceField selects the quote side an order's spread-to-market is
// measured against.
type MarketPriceField uint8

const (
	MarketPriceBid MarketPriceField = iota
	MarketPriceAsk
)

func (m MarketPriceField) String() string {
	if m == MarketPriceAsk {
		return "ASK"
	}
	return "BID"
}

func ParseMarketPriceField(s string) MarketPriceField {
	if s == "ASK" {
		return MarketPriceAsk
	}
	return MarketPriceBid
}

// RatioSetup selects the numerator/denominator orientation of a pair order's
// ratio.
type RatioSetup uint8

const (
	RatioSellOverBuy RatioSetup = iota
	RatioBuyOverSell
)

func (r RatioSetup) String() string {
	if r == RatioBuyOverSell {
		return "BUY/SELL"
	}
	return "SELL/BUY"
}

func ParseRatioSetup(s string) (RatioSetup, error) {
	switch s {
	case "SELL/BUY", "":
		return RatioSellOverBuy, nil
	case "BUY/SELL":
		return RatioBuyOverSell, nil
	}
	return RatioSellOverBuy, fmt.Errorf("unknown ratio setup %q", s)
}

// SpreadOp is the comparison applied between the live ratio and the configured
// pair ratio.
type SpreadOp uint8

const (
	SpreadGTE SpreadOp = iota
	SpreadLTE
)

func (o SpreadOp) String() string {
	if o == SpreadLTE {
		return "<="
	}
	return ">="
}

func ParseSpreadOp(s string) (SpreadOp, error) {
	switch s {
	case ">=", "":
		return SpreadGTE, nil
	case "<=":
		return SpreadLTE, nil
	}
	return SpreadGTE, fmt.Errorf("unknown spread operator %q", s)
}

// InitiateLeg selects which leg of a pair order is worked first.
type InitiateLeg uint8

const (
	InitiateBuy InitiateLeg = iota
	InitiateSell
)

func (l InitiateLeg) String() string {
	if l == InitiateSell {
		return "SELL first"
	}
	return "BUY first"
}

func ParseInitiateLeg(s string) (InitiateLeg, error) {
	switch s {
	case "BUY first", "":
		return InitiateBuy, nil
	case "SELL first":
		return InitiateSell, nil
	}
	return InitiateBuy, fmt.Errorf("unknown initiate leg %q", s)
}

// PairState is the leg sequencer's per-pair state.
type PairState uint8

const (
	PairDormant PairState = iota
	PairTriggered
	PairFirstLegWorking
	PairSecondLegWorking
	PairBothLegsDone
)

func (s PairState) String() string {
	switch s {
	case PairDormant:
		return "Dormant"
	case PairTriggered:
		return "Triggered"
	case PairFirstLegWorking:
		return "FirstLegWorking"
	case PairSecondLegWorking:
		return "SecondLegWorking"
	case PairBothLegsDone:
		return "BothLegsDone"
	}
	return "UNKNOWN"
}

// InstructionKind is the kind of outbound order instruction.
type InstructionKind uint8

const (
	InstructionNew InstructionKind = iota
	InstructionReplace
	InstructionCancel
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionNew:
		return "NEW"
	case InstructionReplace:
		return "REPLACE"
	case InstructionCancel:
		return "CANCEL"
	}
	return "UNKNOWN"
}
