package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/frankli0324/go-httpssl/internal/hostname"
	"github.com/frankli0324/go-httpssl/internal/trust"
)

func newInspectCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect URL",
		Short: "Show the negotiated protocol, cipher and peer chain of URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}
			if u.Scheme != "https" {
				return errors.New("inspect needs an https URL")
			}
			c, err := o.client(cmd)
			if err != nil {
				return err
			}
			defer c.ResetAll()

			resp, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status:   %s\n", resp.Status)
			printState(w, resp.TLS, u.Hostname(), c.TLS().Snapshot())
			return nil
		},
	}
}

func printState(w io.Writer, st *tls.ConnectionState, host string, snap *trust.Snapshot) {
	fmt.Fprintf(w, "version:  %s\n", tls.VersionName(st.Version))
	fmt.Fprintf(w, "cipher:   %s\n", tls.CipherSuiteName(st.CipherSuite))
	if st.NegotiatedProtocol != "" {
		fmt.Fprintf(w, "alpn:     %s\n", st.NegotiatedProtocol)
	}
	fmt.Fprintf(w, "verify:   %s\n", snap.VerifyMode())
	fmt.Fprintln(w, "chain:")
	for i, cert := range st.PeerCertificates {
		fmt.Fprintf(w, "  %d %s\n", i, describe(cert))
	}
	if len(st.PeerCertificates) == 0 {
		return
	}
	leaf := st.PeerCertificates[0]
	verdict := "ok"
	if !hostname.Check(leaf, host) {
		verdict = "mismatch"
	}
	fmt.Fprintf(w, "hostname: %s %s (names: %s)\n", host, verdict, strings.Join(hostname.Candidates(leaf), ", "))
}

func describe(cert *x509.Certificate) string {
	return fmt.Sprintf("subject=%q issuer=%q not_after=%s",
		cert.Subject.String(), cert.Issuer.String(), cert.NotAfter.UTC().Format(time.RFC3339))
}
