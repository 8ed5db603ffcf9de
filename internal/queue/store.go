package queue

import (
	"context"
	"time"
)

// Entry is one pending order reference. Entries are consumed in strict FIFO
// order by the settlement worker.
type Entry struct {
	SellerID   int64     `json:"seller_id"`
	OrderID    int64     `json:"order_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Store is the durable command queue. Peek must not remove the head; Dequeue
// removes and returns it. Both return nil when the queue is empty. Every
// mutation is a read-modify-write of the whole backing document under the
// store's own lock.
type Store interface {
	Enqueue(ctx context.Context, entry Entry) error
	Peek(ctx context.Context) (*Entry, error)
	Dequeue(ctx context.Context) (*Entry, error)
	Len(ctx context.Context) (int, error)
}
