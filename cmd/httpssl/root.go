package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frankli0324/go-httpssl/internal"
	"github.com/frankli0324/go-httpssl/internal/config"
	"github.com/frankli0324/go-httpssl/utils/logging"
)

const defaultLogLevel = "warn"

type options struct {
	config  string
	cacerts []string
	cert    string
	key     string
	pass    string
	ciphers string
	verify  string
	depth   int

	connectTimeout time.Duration
	receiveTimeout time.Duration

	logLevel string
	pretty   bool
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "httpssl",
		Short: "HTTPS client with an explicit trust configuration",
		Long: `httpssl fetches URLs over HTTPS with its own trust anchors, client
identity, cipher policy and verification policy.

Flags override the values of the configuration file.

Example:
  httpssl get --cacert ca.pem https://localhost:8443/
  httpssl inspect --verify none https://self-signed.example/`,
		SilenceUsage: true,
	}

	fl := root.PersistentFlags()
	fl.StringVarP(&o.config, "config", "c", "", "Path to configuration file (YAML)")
	fl.StringArrayVar(&o.cacerts, "cacert", nil, "Trust anchor file, may be repeated")
	fl.StringVar(&o.cert, "cert", "", "Client certificate file")
	fl.StringVar(&o.key, "key", "", "Client private key file")
	fl.StringVar(&o.pass, "pass", "", "Passphrase of the client key")
	fl.StringVar(&o.ciphers, "ciphers", "", "Cipher policy, e.g. ALL:!aNULL")
	fl.StringVar(&o.verify, "verify", "", "Verify mode (none, peer, peer_require_cert)")
	fl.IntVar(&o.depth, "depth", -1, "Maximum number of certificates above the leaf")
	fl.DurationVar(&o.connectTimeout, "connect-timeout", internal.DefaultConnectTimeout, "Connect and handshake timeout")
	fl.DurationVar(&o.receiveTimeout, "receive-timeout", internal.DefaultReceiveTimeout, "Budget of the whole request")
	fl.StringVarP(&o.logLevel, "log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	fl.BoolVar(&o.pretty, "pretty", false, "Human readable logs")

	root.AddCommand(newGetCmd(o), newInspectCmd(o))
	return root
}

// file merges the flags that were set into the configuration file.
func (o *options) file(cmd *cobra.Command) (config.File, error) {
	var f config.File
	if o.config != "" {
		var err error
		if f, err = config.Load(o.config); err != nil {
			return f, err
		}
	}
	flags := cmd.Flags()
	f.TLS.CAFiles = append(f.TLS.CAFiles, o.cacerts...)
	if flags.Changed("cert") || flags.Changed("key") {
		f.TLS.Cert, f.TLS.Key, f.TLS.PKCS12 = o.cert, o.key, ""
	}
	if flags.Changed("pass") {
		f.TLS.Passphrase = o.pass
	}
	if flags.Changed("ciphers") {
		f.TLS.Ciphers = o.ciphers
	}
	if flags.Changed("verify") {
		f.TLS.Verify = o.verify
	}
	if flags.Changed("depth") {
		depth := o.depth
		f.TLS.Depth = &depth
	}
	if flags.Changed("connect-timeout") || f.Timeouts.Connect == "" {
		f.Timeouts.Connect = o.connectTimeout.String()
	}
	if flags.Changed("receive-timeout") || f.Timeouts.Receive == "" {
		f.Timeouts.Receive = o.receiveTimeout.String()
	}
	if flags.Changed("log-level") || f.Log.Level == "" {
		f.Log.Level = o.logLevel
	}
	if flags.Changed("pretty") {
		f.Log.Pretty = o.pretty
	}
	// the CLI makes a single request, reloading anchors is pointless
	f.TLS.Watch = false
	return f, nil
}

func (o *options) client(cmd *cobra.Command) (*internal.Client, error) {
	f, err := o.file(cmd)
	if err != nil {
		return nil, err
	}
	logging.SetupWriter(cmd.ErrOrStderr(), f.Log.Level, f.Log.Pretty)
	c, err := f.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to build client: %w", err)
	}
	return c, nil
}
