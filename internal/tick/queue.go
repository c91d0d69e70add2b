package tick

import (
	"sync"

	"github.com/atmx/classroom-exchange/internal/model"
)

// Queue buffers orders submitted between ticks. The tick loop drains it once
// per tick, so each order executes at the next bar.
type Queue struct {
	mu     sync.Mutex
	orders []model.Order
}

// Submit appends o; submission order is preserved.
func (q *Queue) Submit(o model.Order) {
	q.mu.Lock()
	q.orders = append(q.orders, o)
	q.mu.Unlock()
}

// Drain returns and clears the pending orders.
func (q *Queue) Drain() []model.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.orders
	q.orders = nil
	return out
}

// Len is the number of pending orders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.orders)
}

// Requeue puts orders back ahead of anything submitted since they were
// drained. Used when a tick is skipped before executing them.
func (q *Queue) Requeue(orders []model.Order) {
	if len(orders) == 0 {
		return
	}
	q.mu.Lock()
	q.orders = append(append(make([]model.Order, 0, len(orders)+len(q.orders)), orders...), q.orders...)
	q.mu.Unlock()
}
