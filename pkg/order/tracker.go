package order

import (
	"fmt"
	"sync"
)

// Tracker keeps the single authoritative in-memory view of every order seen
// by this process. Observations from any source go through Merge, so whichever
// of poll and push reports progress first wins and nothing ever rewinds.
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewTracker() *Tracker {
	return &Tracker{orders: map[string]Order{}}
}

// Update merges the observation into the tracked view and returns the
// resulting order.
func (tracker *Tracker) Update(ord Order) Order {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	if old, ok := tracker.orders[ord.ID]; ok {
		ord = Merge(ord, old)
	}
	tracker.orders[ord.ID] = ord
	return ord
}

func (tracker *Tracker) OrderByID(id string) (Order, error) {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	ord, ok := tracker.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %v not found", id)
	}
	return ord, nil
}

// PendingOrders returns the tracked orders which may still need an action.
func (tracker *Tracker) PendingOrders() []Order {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	pending := make([]Order, 0, len(tracker.orders))
	for _, ord := range tracker.orders {
		if !ord.Status.Done() {
			pending = append(pending, ord)
		}
	}
	return pending
}
