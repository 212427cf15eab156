package slowqueue

import (
	"time"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

// GetOption adjusts a call to GetWith.
type GetOption func(*getOptions)

type getOptions struct {
	noWait  bool
	timeout time.Duration
}

// NoWait asks for a non-blocking dequeue. Rate-limited queues only release
// items through a blocking dequeue, so GetWith rejects it.
func NoWait() GetOption {
	return func(o *getOptions) {
		o.noWait = true
	}
}

// WithTimeout asks for a dequeue bounded by d. Any non-zero d is rejected by
// GetWith; bound the FIFO wait with a context deadline instead.
func WithTimeout(d time.Duration) GetOption {
	return func(o *getOptions) {
		o.timeout = d
	}
}

func (o getOptions) validate() error {
	if o.noWait {
		return sqerrors.NewValidationError("slowqueue", "block", false, "only blocking dequeue is supported").
			WithHint("call Get, which blocks until an item and a token are available")
	}
	if o.timeout != 0 {
		return sqerrors.NewValidationError("slowqueue", "timeout", o.timeout, "only a zero timeout is supported").
			WithHint("use a context deadline to bound the wait for an item")
	}
	return nil
}
