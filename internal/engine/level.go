package engine

import (
	. "mjolnir/internal/common"
)

// priceLevelQueue is the FIFO of resting orders at one price. It caches the
// aggregate remaining quantity so top-of-book sizes are O(1).
//
// The cached total must track in-place decrements of the front order during
// matching; the book calls reduce with the traded quantity at the same time
// it decrements the order.
type priceLevelQueue struct {
	orders []*Order
	total  Quantity
}

func (q *priceLevelQueue) addOrder(o *Order) {
	q.orders = append(q.orders, o)
	q.total += o.Remaining
}

// removeOrder drops o from the queue, wherever it sits, subtracting its
// current remaining quantity from the cached total. No-op if absent.
func (q *priceLevelQueue) removeOrder(o *Order) {
	for i, resting := range q.orders {
		if resting == o {
			q.total -= resting.Remaining
			q.orders = append(q.orders[:i], q.orders[i+1:]...)
			return
		}
	}
}

func (q *priceLevelQueue) front() *Order {
	if len(q.orders) == 0 {
		return nil
	}
	return q.orders[0]
}

func (q *priceLevelQueue) popFront() {
	q.orders[0] = nil
	q.orders = q.orders[1:]
}

// reduce keeps the cached total consistent with an in-place fill of the
// front order.
func (q *priceLevelQueue) reduce(qty Quantity) {
	q.total -= qty
}

func (q *priceLevelQueue) empty() bool             { return len(q.orders) == 0 }
func (q *priceLevelQueue) orderCount() int         { return len(q.orders) }
func (q *priceLevelQueue) totalQuantity() Quantity { return q.total }
