// Package pricestore holds the live quote state shared by ingestion and the
// pricing engines. Stores are injected explicitly; there is no ambient state.
package pricestore

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

// PriceUpdate carries the populated fields of one inbound quote. Nil fields
// are absent from the payload and never overwrite stored values.
type PriceUpdate struct {
	Ticker       string
	Last         *decimal.Decimal
	Bid          *decimal.Decimal
	Ask          *decimal.Decimal
	Mid          *decimal.Decimal
	BidSize      *decimal.Decimal
	AskSize      *decimal.Decimal
	Volume       *decimal.Decimal
	PrevClose    *decimal.Decimal
	Source       string
	RealTime     *bool
	MarketClosed *bool
	Timestamp    time.Time
}

// Store is the keyed live-price store with ticker-alias indirection. Records
// are created on first observation and merged in place afterwards; nothing is
// removed while the process runs.
type Store struct {
	mu      sync.RWMutex
	prices  map[string]*models.SecurityPrice
	aliases map[string]string
}

// NewStore creates an empty price store.
func NewStore() *Store {
	return &Store{
		prices:  make(map[string]*models.SecurityPrice),
		aliases: make(map[string]string),
	}
}

// SetAlias maps a venue ticker onto its canonical ticker.
func (s *Store) SetAlias(venue, canonical string) {
	s.mu.Lock()
	s.aliases[venue] = canonical
	s.mu.Unlock()
}

// resolve must be called under the lock.
func (s *Store) resolve(ticker string) string {
	if canonical, ok := s.aliases[ticker]; ok {
		return canonical
	}
	return ticker
}

// Upsert merges an update into the record for its (alias-resolved) ticker.
// A full record is built before publication so readers never observe a
// partially constructed entry.
func (s *Store) Upsert(u PriceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.resolve(u.Ticker)

	next := &models.SecurityPrice{Ticker: key}
	if prev, ok := s.prices[key]; ok {
		*next = *prev
	}

	if u.Last != nil {
		next.Last = *u.Last
	}
	if u.Bid != nil {
		next.Bid = *u.Bid
	}
	if u.Ask != nil {
		next.Ask = *u.Ask
	}
	if u.Mid != nil {
		next.Mid = *u.Mid
	} else if u.Bid != nil && u.Ask != nil && u.Bid.IsPositive() && u.Ask.IsPositive() {
		next.Mid = u.Bid.Add(*u.Ask).Div(decimal.NewFromInt(2))
	}
	if u.BidSize != nil {
		next.BidSize = *u.BidSize
	}
	if u.AskSize != nil {
		next.AskSize = *u.AskSize
	}
	if u.Volume != nil {
		next.Volume = *u.Volume
	}
	if u.PrevClose != nil {
		next.PrevClose = *u.PrevClose
	}
	if u.Source != "" {
		next.Source = u.Source
	}
	if u.RealTime != nil {
		next.RealTime = *u.RealTime
	}
	if u.MarketClosed != nil {
		next.MarketClosed = *u.MarketClosed
	}
	if u.Timestamp.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	} else {
		next.UpdatedAt = u.Timestamp
	}

	s.prices[key] = next
}

// Lookup resolves a ticker through the alias map, then the direct key. The
// returned record is a copy; callers never share mutable state with the store.
func (s *Store) Lookup(ticker string) (models.SecurityPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[s.resolve(ticker)]
	if !ok {
		return models.SecurityPrice{}, false
	}
	return *p, true
}

// Len returns the number of tracked securities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

// FXStore is the keyed live FX-rate store.
type FXStore struct {
	mu    sync.RWMutex
	rates map[string]models.FXRate
}

// NewFXStore creates an empty FX store.
func NewFXStore() *FXStore {
	return &FXStore{rates: make(map[string]models.FXRate)}
}

// Upsert stores the latest rate for a currency pair.
func (s *FXStore) Upsert(pair string, rate decimal.Decimal, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.mu.Lock()
	s.rates[pair] = models.FXRate{Pair: pair, Rate: rate, UpdatedAt: ts}
	s.mu.Unlock()
}

// Lookup returns the latest rate for a currency pair.
func (s *FXStore) Lookup(pair string) (models.FXRate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[pair]
	return r, ok
}
