package transport

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ihttp "github.com/frankli0324/go-httpssl/internal/http"
)

func prepare(t *testing.T, r *ihttp.Request) *ihttp.PreparedRequest {
	t.Helper()
	pr, err := r.Prepare()
	require.NoError(t, err)
	return pr
}

func read(t *testing.T, br *bufio.Reader, pr *ihttp.PreparedRequest) (*ihttp.Response, string) {
	t.Helper()
	resp := &ihttp.Response{}
	require.NoError(t, HTTP1{}.Read(br, pr, resp))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestReadSequence(t *testing.T) {
	wire := "HTTP/1.1 100 Continue\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello" +
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3;ext=1\r\nabc\r\n2\r\nde\r\n0\r\nX-Trailer: 1\r\n\r\n" +
		"HTTP/1.1 204 No Content\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nrest of stream"
	br := bufio.NewReader(strings.NewReader(wire))
	get := prepare(t, &ihttp.Request{URL: "http://example.com/"})

	resp, body := read(t, br, get)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello", body)
	assert.EqualValues(t, 5, resp.ContentLength)
	assert.False(t, resp.Close)

	resp, body = read(t, br, get)
	assert.Equal(t, "abcde", body)
	assert.EqualValues(t, -1, resp.ContentLength)

	resp, body = read(t, br, get)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = read(t, br, get)
	assert.True(t, resp.Close)
	assert.Equal(t, "rest of stream", body)
}

func TestReadHead(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nHTTP/1.0 200 OK\r\nContent-Length: 2\r\n\r\nok"
	br := bufio.NewReader(strings.NewReader(wire))

	resp, body := read(t, br, prepare(t, &ihttp.Request{Method: "HEAD", URL: "http://example.com/"}))
	assert.EqualValues(t, 100, resp.ContentLength)
	assert.Empty(t, body)

	resp, body = read(t, br, prepare(t, &ihttp.Request{URL: "http://example.com/"}))
	assert.Equal(t, "ok", body)
	assert.True(t, resp.Close, "HTTP/1.0 closes unless asked otherwise")
}

func TestReadMalformed(t *testing.T) {
	for name, wire := range map[string]string{
		"StatusLine":     "garbage\r\n\r\n",
		"StatusCode":     "HTTP/1.1 2000 OK\r\n\r\n",
		"ContentLength":  "HTTP/1.1 200 OK\r\nContent-Length: x\r\n\r\n",
		"ConflictingLen": "HTTP/1.1 200 OK\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n",
		"Truncated":      "HTTP/1.1 200 OK\r\n",
	} {
		t.Run(name, func(t *testing.T) {
			err := HTTP1{}.Read(bufio.NewReader(strings.NewReader(wire)), nil, &ihttp.Response{})
			assert.Error(t, err)
		})
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	pr := prepare(t, &ihttp.Request{Method: "POST", URL: "http://example.com/p?q=1", Body: "abc"})
	require.NoError(t, HTTP1{}.Write(&buf, pr))
	assert.Equal(t, "POST /p?q=1 HTTP/1.1\r\nHost: example.com\r\nContent-Length: 3\r\n\r\nabc", buf.String())

	buf.Reset()
	pr = prepare(t, &ihttp.Request{Method: "PUT", URL: "http://example.com/", Body: io.MultiReader(strings.NewReader("hello"))})
	require.NoError(t, HTTP1{}.Write(&buf, pr))
	assert.Equal(t, "PUT / HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n", buf.String())

	buf.Reset()
	pr = prepare(t, &ihttp.Request{URL: "http://example.com/", Close: true})
	require.NoError(t, HTTP1{}.Write(&buf, pr))
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n", buf.String())
}
