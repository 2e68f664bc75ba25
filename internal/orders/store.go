// Package orders holds the working-order, route and pair-order state shared
// by ingestion and the decision engines.
package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

// OrderUpdate carries the populated fields of one inbound order-status event.
// Nil fields are absent from the payload and never overwrite stored values.
type OrderUpdate struct {
	ID      string
	MainID  string
	RouteID string
	RefID   string

	Side       string
	Symbol     string
	Quantity   *decimal.Decimal
	Price      *decimal.Decimal
	OrderType  string
	Status     string
	Broker     string
	Trader     string
	AlgoParams map[string]string

	Policy *models.PricingPolicy

	Timestamp time.Time
}

// Store is the keyed working-order store. Upserts are atomic per key; reads
// return copies so callers never share mutable state with ingestion.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewStore creates an empty order store.
func NewStore() *Store {
	return &Store{orders: make(map[string]*models.Order)}
}

// Upsert applies an inbound status event. An unknown id constructs a full new
// record; a known id merges only populated fields. A Replaced status always
// overwrites the price, even when the merge path would otherwise skip it.
// Reaching a terminal status clears the active flag; the record is retained
// for reporting.
func (s *Store) Upsert(u OrderUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[u.ID]
	if !ok {
		o = &models.Order{ID: u.ID, Active: true}
		s.orders[u.ID] = o
	}

	if u.MainID != "" {
		o.MainID = u.MainID
	}
	if u.RouteID != "" {
		o.RouteID = u.RouteID
	}
	if u.RefID != "" {
		o.RefID = u.RefID
	}
	if u.Side != "" {
		o.Side = u.Side
	}
	if u.Symbol != "" {
		o.Symbol = u.Symbol
	}
	if u.Quantity != nil {
		o.Quantity = *u.Quantity
	}
	if u.Price != nil && (u.Price.IsPositive() || u.Status == models.OrderStatusReplaced) {
		o.Price = *u.Price
	}
	if u.OrderType != "" {
		o.OrderType = u.OrderType
	}
	if u.Broker != "" {
		o.Broker = u.Broker
	}
	if u.Trader != "" {
		o.Trader = u.Trader
	}
	if len(u.AlgoParams) > 0 {
		o.AlgoParams = u.AlgoParams
	}
	if u.Policy != nil {
		o.PricingPolicy = *u.Policy
	}
	if u.Status != "" {
		o.Status = u.Status
		if models.IsTerminalStatus(u.Status) {
			o.Active = false
		}
	}
	if u.Timestamp.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	} else {
		o.UpdatedAt = u.Timestamp
	}
}

// Get returns a copy of the order with the given id.
func (s *Store) Get(id string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// Snapshot returns copies of all tracked orders for one driver cycle.
func (s *Store) Snapshot() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

// ApplyReplace records the engine-derived price and, for reference-index
// orders, the reference price the derivation was based on.
func (s *Store) ApplyReplace(id string, price, refPrev decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return
	}
	o.Price = price
	if !refPrev.IsZero() {
		o.RefIndexPrevPrice = refPrev
	}
	o.UpdatedAt = time.Now().UTC()
}

// BumpCrossed increments the order's consecutive crossed-market counter and
// returns the new count.
func (s *Store) BumpCrossed(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return 0
	}
	o.CrossedCount++
	return o.CrossedCount
}

// ResetCrossed clears the order's crossed-market counter.
func (s *Store) ResetCrossed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.CrossedCount = 0
	}
}

// Deactivate clears the active flag without a status change (engine-originated
// cancels).
func (s *Store) Deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Active = false
	}
}

// ApplyFill folds a fill into the order's traded quantity and average price.
func (s *Store) ApplyFill(id string, qty, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || !qty.IsPositive() {
		return
	}
	notional := o.AvgFillPrice.Mul(o.Traded).Add(price.Mul(qty))
	o.Traded = o.Traded.Add(qty)
	if o.Traded.IsPositive() {
		o.AvgFillPrice = notional.Div(o.Traded)
	}
	o.UpdatedAt = time.Now().UTC()
}

// InFlightSet tracks orders with an emitted instruction awaiting venue
// acknowledgment. Acquire is a compare-and-set so a decision racing the next
// driver cycle cannot emit twice for the same order.
type InFlightSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewInFlightSet creates an empty in-flight set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{m: make(map[string]struct{})}
}

// TryAcquire claims the id. It returns false if an instruction is already in
// flight for it.
func (s *InFlightSet) TryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; ok {
		return false
	}
	s.m[id] = struct{}{}
	return true
}

// Release clears the id after venue acknowledgment or a failed emission.
func (s *InFlightSet) Release(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

// Held reports whether an instruction is in flight for the id.
func (s *InFlightSet) Held(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[id]
	return ok
}
