// Package pairs sequences two-legged orders: one leg is worked first and the
// second is released only once ratio/trigger conditions are met.
package pairs

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

// Store is the keyed pair-order store. Pairs persist for the session; a pair
// that never triggers stays Dormant indefinitely.
type Store struct {
	mu    sync.RWMutex
	pairs map[string]*models.PairOrder
}

// NewStore creates an empty pair store.
func NewStore() *Store {
	return &Store{pairs: make(map[string]*models.PairOrder)}
}

// Put registers or replaces a pair order.
func (s *Store) Put(p *models.PairOrder) {
	s.mu.Lock()
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	s.pairs[p.ID] = &cp
	s.mu.Unlock()
}

// Get returns a copy of the pair with the given id.
func (s *Store) Get(id string) (models.PairOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[id]
	if !ok {
		return models.PairOrder{}, false
	}
	return *p, true
}

// Snapshot returns copies of all tracked pairs for one driver cycle.
func (s *Store) Snapshot() []models.PairOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PairOrder, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, *p)
	}
	return out
}

// Mutate applies fn to the stored pair under the store lock. The sequencer
// uses this for state transitions so a transition and its telemetry update
// are atomic per pair.
func (s *Store) Mutate(id string, fn func(*models.PairOrder)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[id]
	if !ok {
		return false
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return true
}

// ApplyLegFill folds a fill into the leg working the given order id and
// refreshes the leg's active flag from the order store view.
func (s *Store) ApplyLegFill(orderID string, qty, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pairs {
		for _, leg := range []*models.PairLeg{&p.BuyLeg, &p.SellLeg} {
			if leg.OrderID != orderID || !qty.IsPositive() {
				continue
			}
			notional := leg.AvgPrice.Mul(leg.Traded).Add(price.Mul(qty))
			leg.Traded = leg.Traded.Add(qty)
			if leg.Traded.IsPositive() {
				leg.AvgPrice = notional.Div(leg.Traded)
			}
			leg.Leaves = leg.Quantity.Sub(leg.Traded).Sub(leg.Canceled)
			if !leg.Leaves.IsPositive() {
				leg.OrderActive = false
			}
			p.UpdatedAt = time.Now().UTC()
		}
	}
}

// SetLegActive updates the active flag of the leg working the given order id
// (driven by inbound order-status events).
func (s *Store) SetLegActive(orderID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pairs {
		for _, leg := range []*models.PairLeg{&p.BuyLeg, &p.SellLeg} {
			if leg.OrderID == orderID {
				leg.OrderActive = active
				p.UpdatedAt = time.Now().UTC()
			}
		}
	}
}
