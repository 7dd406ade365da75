package engine

import (
	"sync"

	"github.com/quantave/quantave/internal/models"
)

// signalQueue is an unbounded FIFO. Push never blocks so strategy
// callbacks on the streaming path cannot stall behind a slow brokerage.
type signalQueue struct {
	mu     sync.Mutex
	items  []*models.TradeSignal
	notify chan struct{}
	closed bool
}

func newSignalQueue() *signalQueue {
	return &signalQueue{notify: make(chan struct{}, 1)}
}

// Push appends a signal. Returns false after Close.
func (q *signalQueue) Push(signal *models.TradeSignal) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, signal)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest signal, returning false when the queue is empty
func (q *signalQueue) Pop() (*models.TradeSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Wait returns a channel that receives when new items may be available
func (q *signalQueue) Wait() <-chan struct{} {
	return q.notify
}

// Len reports the number of queued signals
func (q *signalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the queue has stopped accepting signals
func (q *signalQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting new signals and returns whatever remains
// queued. The notify channel is signaled so a blocked consumer wakes
// up and observes the close.
func (q *signalQueue) Close() []*models.TradeSignal {
	q.mu.Lock()
	q.closed = true
	remaining := q.items
	q.items = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return remaining
}
