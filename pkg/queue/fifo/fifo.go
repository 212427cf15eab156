// Package fifo defines the blocking FIFO capability that rate-limited queues
// compose with, and an in-memory implementation with completion tracking.
package fifo

import (
	"context"
	"sync"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

// Queue is a first-in-first-out queue with blocking put/get and
// task-completion tracking. Implementations must be safe for concurrent use.
type Queue[T any] interface {
	// Put appends item, blocking while the queue is full or until ctx is done.
	Put(ctx context.Context, item T) error

	// TryPut appends item or fails with ErrCapacityExceeded.
	TryPut(item T) error

	// Get removes the oldest item, blocking while the queue is empty or
	// until ctx is done.
	Get(ctx context.Context) (T, error)

	// TryGet removes the oldest item or fails with ErrEmpty.
	TryGet() (T, error)

	// TaskDone marks one previously put item as fully processed.
	TaskDone() error

	// Join blocks until every put item has a matching TaskDone or ctx is done.
	Join(ctx context.Context) error

	// Len returns the number of items waiting.
	Len() int

	// Empty reports whether no items are waiting.
	Empty() bool

	// Full reports whether a bounded queue is at capacity.
	Full() bool
}

// Memory is an in-process Queue backed by a slice. State changes are
// broadcast by closing and replacing a channel, which lets waiters select
// on it together with ctx.Done.
type Memory[T any] struct {
	mu         sync.Mutex
	items      []T
	maxSize    int
	unfinished int
	changed    chan struct{}
}

var _ Queue[int] = (*Memory[int])(nil)

// NewMemory creates an in-memory queue holding at most maxSize items.
// maxSize <= 0 means unbounded.
func NewMemory[T any](maxSize int) *Memory[T] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Memory[T]{
		maxSize: maxSize,
		changed: make(chan struct{}),
	}
}

// Put appends item, blocking while the queue is full.
func (q *Memory[T]) Put(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if !q.full() {
			q.push(item)
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return sqerrors.NewOperationError("fifo", "Put", ctx.Err())
		}
	}
}

// TryPut appends item or fails with ErrCapacityExceeded.
func (q *Memory[T]) TryPut(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.full() {
		return sqerrors.ErrCapacityExceeded
	}
	q.push(item)
	return nil
}

// Get removes the oldest item, blocking while the queue is empty.
func (q *Memory[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.pop()
			q.mu.Unlock()
			return item, nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, sqerrors.NewOperationError("fifo", "Get", ctx.Err())
		}
	}
}

// TryGet removes the oldest item or fails with ErrEmpty.
func (q *Memory[T]) TryGet() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, sqerrors.ErrEmpty
	}
	return q.pop(), nil
}

// TaskDone marks one item as processed. It fails with ErrTaskDoneOverflow
// when every put item is already done.
func (q *Memory[T]) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return sqerrors.ErrTaskDoneOverflow
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.broadcast()
	}
	return nil
}

// Join blocks until all put items are done.
func (q *Memory[T]) Join(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.unfinished == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return sqerrors.NewOperationError("fifo", "Join", ctx.Err())
		}
	}
}

// Len returns the number of items waiting.
func (q *Memory[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether no items are waiting.
func (q *Memory[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the queue is bounded and at capacity.
func (q *Memory[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.full()
}

// Unfinished returns the number of put items still awaiting TaskDone.
func (q *Memory[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

func (q *Memory[T]) full() bool {
	return q.maxSize > 0 && len(q.items) >= q.maxSize
}

func (q *Memory[T]) push(item T) {
	q.items = append(q.items, item)
	q.unfinished++
	q.broadcast()
}

func (q *Memory[T]) pop() T {
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	q.broadcast()
	return item
}

// broadcast must be called with mu held.
func (q *Memory[T]) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}
