//go:build linux

package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/frankli0324/go-httpssl/internal/testhelpers"
)

func sockopt(t *testing.T, c net.Conn, level, opt int) int {
	t.Helper()
	if tc, ok := c.(*tls.Conn); ok {
		c = tc.NetConn()
	}
	raw, err := c.(*net.TCPConn).SyscallConn()
	require.NoError(t, err)
	var v int
	var serr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		v, serr = unix.GetsockoptInt(int(fd), level, opt)
	}))
	require.NoError(t, serr)
	return v
}

func TestTCPKeepAlive(t *testing.T) {
	p := testhelpers.NewPKI(t)
	s := testhelpers.NewTLSServer(t, p.Server, testhelpers.Hello)
	cfg := trusting(p)
	r := prep(t, s.URLFor("localhost", "/"))

	d, _ := newDialer(t)
	d.TCPKeepAlive = 30 * time.Second
	sess, err := d.Acquire(context.Background(), r, cfg.Snapshot(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sockopt(t, sess.Raw(), unix.SOL_SOCKET, unix.SO_KEEPALIVE))
	assert.Equal(t, 30, sockopt(t, sess.Raw(), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE))
	d.Release(sess, false)

	d.TCPKeepAlive = -1
	sess, err = d.Acquire(context.Background(), r, cfg.Snapshot(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, 0, sockopt(t, sess.Raw(), unix.SOL_SOCKET, unix.SO_KEEPALIVE))
	d.Release(sess, false)
}
