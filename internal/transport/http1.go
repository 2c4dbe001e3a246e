package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	ihttp "github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/transport/chunked"
)

// HTTP1 reads and writes HTTP/1.1 messages on a persistent connection. A
// response body it returns ends exactly where the message ends, so the
// connection can carry the next exchange once the body hit io.EOF.
type HTTP1 struct{}

func (t HTTP1) Write(w io.Writer, r *ihttp.PreparedRequest) error {
	body, err := r.GetBody() // can write body
	if err != nil {
		return err
	}
	if body != nil {
		defer body.Close() // request body is ALWAYS closed
	}
	hasBody := body != nil && body != ihttp.NoBody
	chunk := hasBody && r.ContentLength == -1

	bw := bufio.NewWriter(w) // default bufsize is 4096
	t.writeHeader(bw, r, chunk)
	if hasBody {
		if chunk {
			cw := chunked.NewChunkedWriter(bw)
			if _, err := io.Copy(cw, body); err != nil {
				return err
			}
			if err := cw.CloseWithTrailer(nil); err != nil {
				return err
			}
		} else if _, err := io.Copy(bw, body); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeHeader writes the status and header part of an http 1.1 request
// e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
func (t HTTP1) writeHeader(header *bufio.Writer, r *ihttp.PreparedRequest, chunk bool) {
	header.WriteString(r.Method)
	header.WriteByte(' ')
	header.WriteString(r.U.RequestURI())
	header.WriteString(" HTTP/1.1\r\n")

	header.WriteString("Host: ")
	header.WriteString(r.HeaderHost)
	header.WriteString("\r\n")
	if r.ContentLength != -1 {
		header.WriteString("Content-Length: ")
		header.WriteString(strconv.FormatInt(r.ContentLength, 10))
		header.WriteString("\r\n")
	} else if chunk {
		header.WriteString("Transfer-Encoding: chunked\r\n")
	}
	if r.Close && !hasToken(r.Header, "Connection", "close") {
		header.WriteString("Connection: close\r\n")
	}
	for k, v := range r.Header {
		for _, v := range v {
			header.WriteString(k)
			header.WriteString(": ")
			header.WriteString(v)
			header.WriteString("\r\n")
		}
	}
	header.WriteString("\r\n")
}

// Read parses one response from br. The body is left unread.
func (t HTTP1) Read(br *bufio.Reader, r *ihttp.PreparedRequest, resp *ihttp.Response) (err error) {
	tp := textproto.NewReader(br)
	for {
		if err := t.readHead(tp, resp); err != nil {
			return err
		}
		// interim responses carry no body, the final one follows
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != 101 {
			continue
		}
		break
	}
	resp.Close = shouldClose(resp)
	return t.readTransfer(br, r, resp)
}

func (t HTTP1) readHead(tp *textproto.Reader, resp *ihttp.Response) error {
	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return errors.New("malformed HTTP response")
	}
	resp.Proto = proto
	resp.Status = strings.TrimLeft(status, " ")

	statusCode, _, _ := strings.Cut(resp.Status, " ")
	if len(statusCode) != 3 {
		return errors.New("malformed HTTP status code " + statusCode)
	}
	resp.StatusCode, err = strconv.Atoi(statusCode)
	if err != nil || resp.StatusCode < 0 {
		return errors.New("malformed HTTP status code")
	}

	// Parse the response headers.
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if hp, ok := mimeHeader["Pragma"]; ok && len(hp) > 0 && hp[0] == "no-cache" {
		if _, presentcc := mimeHeader["Cache-Control"]; !presentcc {
			mimeHeader["Cache-Control"] = []string{"no-cache"}
		}
	}
	resp.Header = http.Header(mimeHeader)
	return nil
}

func (t HTTP1) readTransfer(br *bufio.Reader, r *ihttp.PreparedRequest, resp *ihttp.Response) error {
	contentLens := resp.Header["Content-Length"]

	// Hardening against HTTP request smuggling, taken from standard library
	if len(contentLens) > 1 {
		// Per RFC 7230 Section 3.3.2
		first := textproto.TrimString(contentLens[0])
		for _, ct := range contentLens[1:] {
			if first != textproto.TrimString(ct) {
				return fmt.Errorf("http: message cannot contain multiple Content-Length headers; got %q", contentLens)
			}
		}

		// deduplicate Content-Length
		resp.Header.Del("Content-Length")
		resp.Header.Add("Content-Length", first)

		contentLens = resp.Header["Content-Length"]
	}

	cl := int64(-1)
	if len(contentLens) > 0 {
		// Logic based on Content-Length
		n, err := strconv.ParseUint(textproto.TrimString(contentLens[0]), 10, 63)
		if err != nil {
			return fmt.Errorf("http: bad Content-Length %q", contentLens[0])
		}
		cl = int64(n)
	}
	resp.ContentLength = cl

	switch {
	case r != nil && r.Method == "HEAD",
		resp.StatusCode == 204, resp.StatusCode == 304,
		r != nil && r.Method == "CONNECT" && resp.StatusCode/100 == 2:
		resp.Body = ihttp.NoBody
		return nil
	case hasToken(resp.Header, "Transfer-Encoding", "chunked"):
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Body = io.NopCloser(chunked.NewChunkedReader(br))
	case cl == 0:
		resp.Body = ihttp.NoBody
	case cl > 0:
		resp.Body = io.NopCloser(io.LimitReader(br, cl))
	default:
		// the body runs until the server closes the connection
		resp.Close = true
		resp.Body = io.NopCloser(br)
	}
	return nil
}

func shouldClose(resp *ihttp.Response) bool {
	if hasToken(resp.Header, "Connection", "close") {
		return true
	}
	if resp.Proto == "HTTP/1.0" {
		return !hasToken(resp.Header, "Connection", "keep-alive")
	}
	return false
}

// hasToken reports whether the comma separated header key lists token.
// user supplied headers are not canonicalized, so keys compare folded.
func hasToken(h http.Header, key, token string) bool {
	for k, vs := range h {
		if !strings.EqualFold(k, key) {
			continue
		}
		for _, v := range vs {
			for _, t := range strings.Split(v, ",") {
				if strings.EqualFold(strings.TrimSpace(t), token) {
					return true
				}
			}
		}
	}
	return false
}
