package internal

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/frankli0324/go-httpssl/internal/deadline"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

// drainLimit is how much of an unread body Close consumes to keep the
// session reusable.
const drainLimit = 4 << 10

// body reads the response under the request deadline and hands the session
// back once the message ends or the body is closed.
type body struct {
	ctx      context.Context
	d        Dialer
	s        *netpool.Session
	dl       *deadline.Deadline
	r        io.ReadCloser
	reusable bool

	closing atomic.Bool

	mu  sync.Mutex
	err error // sticky once the session is released
}

func (b *body) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	var n int
	err := deadline.Run(b.ctx, b.dl, deadline.PhaseReceive, b.s, func() (err error) {
		n, err = b.r.Read(p)
		if err == io.EOF {
			return err
		}
		return ioError("receive", b.s, err)
	})
	switch {
	case err == io.EOF:
		b.release(b.reusable, io.EOF)
	case err != nil:
		b.release(false, err)
		if b.closing.Load() {
			err = http.ErrBodyReadAfterClose
		}
	}
	return n, err
}

// Close may be called while a Read is blocked in another goroutine, the
// session is then closed under it and never reused.
func (b *body) Close() error {
	b.closing.Store(true)
	if !b.mu.TryLock() {
		b.s.Close()
		b.dl.Expire()
		b.mu.Lock()
	}
	defer b.mu.Unlock()
	if b.err != nil {
		b.err = http.ErrBodyReadAfterClose
		return nil
	}
	reusable := false
	if b.reusable {
		err := deadline.Run(b.ctx, b.dl, deadline.PhaseReceive, b.s, func() error {
			_, err := io.CopyN(io.Discard, b.r, drainLimit)
			return err
		})
		reusable = err == io.EOF
	}
	b.release(reusable, http.ErrBodyReadAfterClose)
	return nil
}

func (b *body) release(reusable bool, err error) {
	b.err = err
	b.d.Release(b.s, reusable)
	b.dl.Expire()
}
