package trust_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-httpssl/internal/testhelpers"
	"github.com/frankli0324/go-httpssl/internal/trust"
)

func TestWatcherReloadsAnchors(t *testing.T) {
	p := testhelpers.NewPKI(t)
	path := filepath.Join(t.TempDir(), "anchors.pem")
	require.NoError(t, os.WriteFile(path, p.Root.CertPEM, 0o600))

	var c trust.Config
	w, err := trust.Watch(&c, []string{path}, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	defer w.Close()
	require.Len(t, c.Snapshot().Anchors(), 1)

	bundle := bytes.Join([][]byte{p.Root.CertPEM, p.Sub.CertPEM}, nil)
	require.NoError(t, os.WriteFile(path, bundle, 0o600))
	require.Eventually(t, func() bool {
		return len(c.Snapshot().Anchors()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// a broken file keeps what was loaded before
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, c.Snapshot().Anchors(), 2)
}

func TestWatchFailsOnUnreadableFile(t *testing.T) {
	var c trust.Config
	_, err := trust.Watch(&c, []string{filepath.Join(t.TempDir(), "nope.pem")}, zerolog.Nop())
	assert.Error(t, err)
}
