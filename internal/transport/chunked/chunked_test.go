package chunked

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkedWriter(&buf)
	for _, s := range []string{"hello", "", strings.Repeat("x", 26)} {
		_, err := io.WriteString(w, s)
		require.NoError(t, err)
	}
	require.NoError(t, w.CloseWithTrailer(http.Header{"X-Sum": {"1"}}))
	assert.Equal(t, "5\r\nhello\r\n1a\r\n"+strings.Repeat("x", 26)+"\r\n0\r\nX-Sum: 1\r\n\r\n", buf.String())

	body, err := io.ReadAll(NewChunkedReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "hello"+strings.Repeat("x", 26), string(body))
}

func TestReader(t *testing.T) {
	for name, tc := range map[string]struct {
		wire, body string
		fails      bool
	}{
		"Extension":  {wire: "3;name=value\r\nabc\r\n0\r\n\r\n", body: "abc"},
		"Trailer":    {wire: "1\r\na\r\n0\r\nA: b\r\nC: d\r\n\r\n", body: "a"},
		"UpperHex":   {wire: "A\r\n0123456789\r\n0\r\n\r\n", body: "0123456789"},
		"BadSize":    {wire: "zz\r\nabc\r\n0\r\n\r\n", fails: true},
		"HugeSize":   {wire: "10000000000000000\r\n", fails: true},
		"MissingEnd": {wire: "3\r\nabcX\r\n0\r\n\r\n", fails: true},
		"Truncated":  {wire: "5\r\nab", fails: true},
	} {
		t.Run(name, func(t *testing.T) {
			body, err := io.ReadAll(NewChunkedReader(strings.NewReader(tc.wire)))
			if tc.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(body))
		})
	}
}

func TestReaderStopsAtMessageEnd(t *testing.T) {
	r := strings.NewReader("2\r\nok\r\n0\r\n\r\nHTTP/1.1 200 OK\r\n")
	body, err := io.ReadAll(NewChunkedReader(r))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
