package httpssl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

func ExampleClient() {
	cl := &Client{}
	if err := cl.TLS().AddTrustAnchor("/etc/ssl/certs/ca-certificates.crt"); err != nil {
		fmt.Println(err)
		return
	}
	cl.TLS().SetVerifyDepth(4)
	cl.SetReceiveTimeout(10 * time.Second)

	resp, err := cl.CtxDo(context.Background(), &Request{
		Method: "GET",
		URL:    "https://www.google.com/?a=b",
		Header: Header{
			// "Connection": {"close"},
		},
	})
	var cve *CertificateVerifyError
	switch {
	case errors.As(err, &cve):
		fmt.Println("untrusted peer:", cve.Reason)
		return
	case err != nil:
		fmt.Println(err)
		return
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	fmt.Println(err)
	fmt.Println(string(b))
}
