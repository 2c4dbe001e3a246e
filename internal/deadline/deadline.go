// package deadline bounds the blocking operations of one logical request by
// a single time budget.
//
// The same [Deadline] is passed to every phase of a request (connect,
// handshake, send, receive) so the remaining budget only ever shrinks. The
// clock starts at the first blocking operation, not when the Deadline is
// created.
package deadline

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Deadline struct {
	budget time.Duration

	mu      sync.Mutex
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// New returns a Deadline with the given budget. a budget <= 0 never runs
// out, but can still be expired explicitly.
func New(budget time.Duration) *Deadline {
	return &Deadline{budget: budget}
}

// Budget returns the total budget, zero when unlimited.
func (d *Deadline) Budget() time.Duration {
	if d == nil || d.budget <= 0 {
		return 0
	}
	return d.budget
}

// Start starts the clock. Only the first call has an effect.
func (d *Deadline) Start() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.startLocked()
	d.mu.Unlock()
}

func (d *Deadline) startLocked() {
	if d.ctx != nil {
		return
	}
	d.started = time.Now()
	if d.budget > 0 {
		d.ctx, d.cancel = context.WithDeadline(context.Background(), d.started.Add(d.budget))
	} else {
		d.ctx, d.cancel = context.WithCancel(context.Background())
	}
}

// StartedAt returns when the clock started, zero if it has not.
func (d *Deadline) StartedAt() time.Time {
	if d == nil {
		return time.Time{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Remaining returns the budget left and whether the Deadline is limited at
// all. It never increases.
func (d *Deadline) Remaining() (time.Duration, bool) {
	if d == nil {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil && d.ctx.Err() != nil {
		return 0, true
	}
	if d.budget <= 0 {
		return 0, false
	}
	if d.ctx == nil {
		return d.budget, true
	}
	left := d.budget - time.Since(d.started)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Expire ends the Deadline early. Blocked operations are abandoned exactly as
// if the budget had run out.
func (d *Deadline) Expire() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.startLocked()
	cancel := d.cancel
	d.mu.Unlock()
	cancel()
}

// Done is closed when the budget runs out or the Deadline is expired. It
// starts the clock. A nil Deadline returns a nil channel.
func (d *Deadline) Done() <-chan struct{} {
	if d == nil {
		return nil
	}
	return d.context().Done()
}

// Err is non-nil once Done is closed.
func (d *Deadline) Err() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	return d.ctx.Err()
}

func (d *Deadline) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLocked()
	return d.ctx
}

// bind returns a context that ends with either ctx or d.
func (d *Deadline) bind(ctx context.Context) (context.Context, func()) {
	if d == nil {
		return ctx, func() {}
	}
	dctx := d.context()
	var (
		c      context.Context
		cancel context.CancelFunc
	)
	if at, ok := dctx.Deadline(); ok {
		c, cancel = context.WithDeadline(ctx, at)
	} else {
		c, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(dctx, func() {
		// budget exhaustion fires c's own timer, only Expire needs forwarding
		if !errors.Is(dctx.Err(), context.DeadlineExceeded) {
			cancel()
		}
	})
	return c, func() {
		stop()
		cancel()
	}
}
