package host

import (
	"context"
	"errors"
	"sync"
)

// ErrRecycleRequested is the cancellation cause set by ExitRecycler.
var ErrRecycleRequested = errors.New("recycle requested")

// ErrNoHost is returned by ExitRecycler when it was built without a cancel
// function.
var ErrNoHost = errors.New("no host to recycle")

// ExitRecycler recycles by ending the current process run: it cancels the
// run context with ErrRecycleRequested so the caller can exit and let an
// outer supervisor start the application again.
type ExitRecycler struct {
	cancel context.CancelCauseFunc
	once   sync.Once
}

// NewExitRecycler returns an ExitRecycler bound to cancel.
func NewExitRecycler(cancel context.CancelCauseFunc) *ExitRecycler {
	return &ExitRecycler{cancel: cancel}
}

// Recycle cancels the run context. Only the first call has an effect.
func (r *ExitRecycler) Recycle() error {
	if r.cancel == nil {
		return ErrNoHost
	}

	r.once.Do(func() { r.cancel(ErrRecycleRequested) })

	return nil
}

// RecycleRequested reports whether ctx ended because of an ExitRecycler.
func RecycleRequested(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrRecycleRequested)
}
