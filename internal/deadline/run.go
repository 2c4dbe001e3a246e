package deadline

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
)

type Phase int

const (
	PhaseConnect Phase = iota
	PhaseHandshake
	PhaseSend
	PhaseReceive
)

func (p Phase) String() string {
	switch p {
	case PhaseConnect:
		return "connect"
	case PhaseHandshake:
		return "handshake"
	case PhaseSend:
		return "send"
	case PhaseReceive:
		return "receive"
	}
	return "unknown"
}

// Timeout builds the error reported when the budget runs out during p.
// connect and handshake share the connect class.
func (p Phase) Timeout(budget time.Duration, err error) error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	switch p {
	case PhaseSend:
		return herrors.NewSendTimeout(p.String(), budget, err)
	case PhaseReceive:
		return herrors.NewReceiveTimeout(p.String(), budget, err)
	default:
		return herrors.NewConnectTimeout(p.String(), budget, err)
	}
}

func exhausted(ctx context.Context, d *Deadline) error {
	if err := d.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// Run executes op, a blocking call on closer. When ctx or d ends before op
// returns, a watchdog closes closer so op cannot stay blocked, and Run
// reports the timeout error of phase instead of the I/O error op returned.
func Run(ctx context.Context, d *Deadline, phase Phase, closer io.Closer, op func() error) error {
	d.Start()
	if err := exhausted(ctx, d); err != nil {
		return phase.Timeout(d.Budget(), err)
	}
	if d == nil && ctx.Done() == nil {
		return op()
	}

	c, cleanup := d.bind(ctx)
	defer cleanup()
	var fired atomic.Bool
	stop := context.AfterFunc(c, func() {
		fired.Store(true)
		if closer != nil {
			closer.Close()
		}
	})
	err := op()
	if !stop() || fired.Load() {
		return phase.Timeout(d.Budget(), err)
	}
	return err
}

// RunContext executes op with a context that ends with ctx or d, or after
// limit if that comes first. limit <= 0 adds no cap. A timeout error returned
// by a nested phase is reported as is.
func RunContext(ctx context.Context, d *Deadline, phase Phase, limit time.Duration, op func(ctx context.Context) error) error {
	d.Start()
	if err := exhausted(ctx, d); err != nil {
		return phase.Timeout(d.Budget(), err)
	}

	c, cleanup := d.bind(ctx)
	defer cleanup()
	budget := d.Budget()
	if limit > 0 {
		if left, limited := d.Remaining(); !limited || limit < left {
			budget = limit
		}
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, limit)
		defer cancel()
	}
	err := op(c)
	if err != nil && c.Err() != nil && !herrors.IsTimeout(err) {
		return phase.Timeout(budget, err)
	}
	return err
}
