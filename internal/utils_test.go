package internal_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-httpssl/internal"
	"github.com/frankli0324/go-httpssl/internal/deadline"
	"github.com/frankli0324/go-httpssl/internal/dialer"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/trust"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

// TestDialer serves every request on a single in-memory connection.
type TestDialer struct {
	net.Conn
}

func (t *TestDialer) Acquire(ctx context.Context, r *http.PreparedRequest, snap *trust.Snapshot, d *deadline.Deadline, fresh bool) (*netpool.Session, error) {
	return netpool.NewSession(dialer.KeyFor(r, snap), t.Conn), nil
}

func (t *TestDialer) Release(s *netpool.Session, reusable bool) {
	s.Close()
}

func (t *TestDialer) Unwrap() internal.Dialer {
	return nil
}

const closeResponse = "HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// SendSingleRequest sends req through a client and returns what reached
// the wire, up to the end of the request head.
func SendSingleRequest(t *testing.T, req *http.Request) []byte {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	c := &internal.Client{}
	c.UseDialer(func(internal.Dialer) internal.Dialer {
		return &TestDialer{Conn: client}
	})
	wire := make(chan []byte, 1)
	go func() {
		br := bufio.NewReader(server)
		var buf bytes.Buffer
		for {
			line, err := br.ReadString('\n')
			buf.WriteString(line)
			if err != nil || line == "\r\n" {
				break
			}
		}
		io.WriteString(server, closeResponse)
		wire <- buf.Bytes()
	}()

	resp, err := c.CtxDo(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return <-wire
}
