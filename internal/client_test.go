package internal_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	ihttp "github.com/frankli0324/go-httpssl/internal/http"
)

type tCase struct {
	data []byte
	req  *ihttp.Request
}

var reqShouldBe = map[string]tCase{
	"BasicRequest": {
		req: &ihttp.Request{
			Method: "GET",
			URL:    "http://www.example.com",
		},
		data: []byte("GET / HTTP/1.1\r\nHost: www.example.com\r\n\r\n"),
	},
	"QueryNonStandard": {
		req: &ihttp.Request{
			Method: "GET",
			URL:    "http://www.example.com/test?1=33=1",
		},
		data: []byte("GET /test?1=33=1 HTTP/1.1\r\nHost: www.example.com\r\n\r\n"),
	},
	"HeaderNotCanonicalized": {
		req: &ihttp.Request{
			Method: "GET",
			URL:    "http://www.example.com/",
			Header: http.Header{"x-123-vv": {"1"}},
		},
		data: []byte("GET / HTTP/1.1\r\nHost: www.example.com\r\nx-123-vv: 1\r\n\r\n"),
	},
	"URIFragmentNotIncluded": {
		req: &ihttp.Request{
			Method: "GET",
			URL:    "http://www.example.com/?test=1#frag",
		},
		data: []byte("GET /?test=1 HTTP/1.1\r\nHost: www.example.com\r\n\r\n"),
	},
	"DefaultMethod": {
		req:  &ihttp.Request{URL: "https://www.example.com/a"},
		data: []byte("GET /a HTTP/1.1\r\nHost: www.example.com\r\n\r\n"),
	},
	"HostOverride": {
		req: &ihttp.Request{
			URL:    "http://127.0.0.1/",
			Header: http.Header{"Host": {"example.org"}},
		},
		data: []byte("GET / HTTP/1.1\r\nHost: example.org\r\n\r\n"),
	},
}

func TestRequestSerialize(t *testing.T) {
	for name, cas := range reqShouldBe {
		tCase := cas
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, string(tCase.data), string(SendSingleRequest(t, tCase.req)))
		})
	}
}
