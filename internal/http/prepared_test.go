package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBody(t *testing.T, pr *PreparedRequest) string {
	t.Helper()
	rc, err := pr.GetBody()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestPrepareBody(t *testing.T) {
	for name, body := range map[string]interface{}{
		"String":        "payload",
		"Bytes":         []byte("payload"),
		"Buffer":        bytes.NewBufferString("payload"),
		"BytesReader":   bytes.NewReader([]byte("payload")),
		"StringsReader": strings.NewReader("payload"),
	} {
		t.Run(name, func(t *testing.T) {
			pr, err := (&Request{Method: "POST", URL: "https://example.com/", Body: body}).Prepare()
			require.NoError(t, err)
			assert.EqualValues(t, 7, pr.ContentLength)
			assert.True(t, pr.Rewindable())
			assert.Equal(t, "payload", readBody(t, pr))
			assert.Equal(t, "payload", readBody(t, pr))
		})
	}
}

func TestPrepareStreamBody(t *testing.T) {
	pr, err := (&Request{Method: "POST", URL: "https://example.com/", Body: iotest.HalfReader(strings.NewReader("abc"))}).Prepare()
	require.NoError(t, err)
	assert.EqualValues(t, -1, pr.ContentLength)
	assert.False(t, pr.Rewindable())
	assert.Equal(t, "abc", readBody(t, pr))
	_, err = pr.GetBody()
	assert.ErrorIs(t, err, http.ErrBodyReadAfterClose)

	pr, err = (&Request{
		Method: "PUT", URL: "https://example.com/",
		Header: http.Header{"Content-Length": {"3"}},
		Body:   iotest.HalfReader(strings.NewReader("abc")),
	}).Prepare()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pr.ContentLength)
	assert.NotContains(t, pr.Header, "Content-Length")
}

func TestPrepareNoBody(t *testing.T) {
	pr, err := (&Request{URL: "http://example.com"}).Prepare()
	require.NoError(t, err)
	assert.Equal(t, "GET", pr.Method)
	assert.EqualValues(t, -1, pr.ContentLength)
	assert.True(t, pr.Rewindable())
	rc, err := pr.GetBody()
	require.NoError(t, err)
	assert.Equal(t, NoBody, rc)
}

func TestPrepareHost(t *testing.T) {
	req := &Request{URL: "https://example.com/a", Header: http.Header{"Host": {"example.org"}, "X-A": {"1"}}}
	pr, err := req.Prepare()
	require.NoError(t, err)
	assert.Equal(t, "example.org", pr.HeaderHost)
	assert.Equal(t, "example.com", pr.U.Host)
	assert.NotContains(t, pr.Header, "Host")

	pr.Header.Set("X-A", "2")
	assert.Equal(t, "1", req.Header.Get("X-A"))
	assert.Empty(t, req.Method)
}

func TestPrepareErrors(t *testing.T) {
	for name, req := range map[string]*Request{
		"Scheme":        {URL: "ftp://example.com"},
		"EmptyHost":     {URL: "https:///path"},
		"BadHost":       {URL: "https://example.com", Header: http.Header{"Host": {"a b"}}},
		"Method":        {Method: "GE T", URL: "https://example.com"},
		"HeaderName":    {URL: "https://example.com", Header: http.Header{"X A": {"1"}}},
		"HeaderValue":   {URL: "https://example.com", Header: http.Header{"X-A": {"1\r\n2"}}},
		"ContentLength": {URL: "https://example.com", Header: http.Header{"Content-Length": {"-1"}}},
		"Conflict":      {Method: "POST", URL: "https://example.com", Body: "abc", Header: http.Header{"Content-Length": {"4"}}},
		"BodyType":      {Method: "POST", URL: "https://example.com", Body: 42},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := req.Prepare()
			assert.Error(t, err)
		})
	}
}
