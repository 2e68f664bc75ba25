package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cefalpha/almengine/internal/models"
)

// RouteUpdate carries the populated fields of one inbound route-status event.
type RouteUpdate struct {
	OrderID string
	RouteID string

	Status     string
	Filled     *decimal.Decimal
	Remaining  *decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	LastTraded *decimal.Decimal

	Policy *models.PricingPolicy

	Timestamp time.Time
}

// RouteStore is the keyed route-status store. One order may accumulate several
// routes over its life; records are keyed by route id.
type RouteStore struct {
	mu     sync.RWMutex
	routes map[string]*models.RouteStatus
}

// NewRouteStore creates an empty route store.
func NewRouteStore() *RouteStore {
	return &RouteStore{routes: make(map[string]*models.RouteStatus)}
}

// Upsert applies an inbound route-status event with the same merge semantics
// as the order store: construct on first sight, merge populated fields after,
// Replaced status always overwrites the working price.
func (s *RouteStore) Upsert(u RouteUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[u.RouteID]
	if !ok {
		r = &models.RouteStatus{RouteID: u.RouteID}
		s.routes[u.RouteID] = r
	}

	if u.OrderID != "" {
		r.OrderID = u.OrderID
	}
	if u.Filled != nil {
		r.Filled = *u.Filled
	}
	if u.Remaining != nil {
		r.Remaining = *u.Remaining
	}
	replaced := u.Status == models.OrderStatusReplaced
	if u.LimitPrice != nil && (u.LimitPrice.IsPositive() || replaced) {
		r.LimitPrice = *u.LimitPrice
	}
	if u.StopPrice != nil && (u.StopPrice.IsPositive() || replaced) {
		r.StopPrice = *u.StopPrice
	}
	if u.LastTraded != nil {
		r.LastTraded = *u.LastTraded
	}
	if u.Policy != nil {
		r.PricingPolicy = *u.Policy
	}
	if u.Status != "" {
		r.Status = u.Status
	}
	if u.Timestamp.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	} else {
		r.UpdatedAt = u.Timestamp
	}
}

// Get returns a copy of the route with the given id.
func (s *RouteStore) Get(routeID string) (models.RouteStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[routeID]
	if !ok {
		return models.RouteStatus{}, false
	}
	return *r, true
}

// Snapshot returns copies of all tracked routes for one driver cycle.
func (s *RouteStore) Snapshot() []models.RouteStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RouteStatus, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, *r)
	}
	return out
}

// ByOrder returns copies of all routes belonging to an order.
func (s *RouteStore) ByOrder(orderID string) []models.RouteStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RouteStatus
	for _, r := range s.routes {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	return out
}
