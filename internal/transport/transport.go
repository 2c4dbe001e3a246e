package transport

import (
	"bufio"
	"io"

	"github.com/frankli0324/go-httpssl/internal/http"
)

type Transport interface {
	Write(w io.Writer, req *http.PreparedRequest) error
	Read(br *bufio.Reader, req *http.PreparedRequest, resp *http.Response) error
}

var _ Transport = HTTP1{}
