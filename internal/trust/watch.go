package trust

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher keeps the anchors of a Config in sync with a set of files.
type Watcher struct {
	cfg    *Config
	paths  []string
	w      *fsnotify.Watcher
	logger zerolog.Logger

	done chan struct{}
	once sync.Once
}

// Watch loads paths into cfg as its anchor set and reloads them whenever one
// of the files changes. A reload that fails to parse keeps the previous
// anchors.
func Watch(cfg *Config, paths []string, logger zerolog.Logger) (*Watcher, error) {
	w := &Watcher{cfg: cfg, paths: paths, logger: logger, done: make(chan struct{})}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// files are often replaced by rename, watch their directories
	dirs := map[string]bool{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, err
		}
	}
	w.w = fw
	go w.loop()
	return w, nil
}

func (w *Watcher) watched(name string) bool {
	for _, p := range w.paths {
		if filepath.Clean(p) == filepath.Clean(name) {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !w.watched(ev.Name) || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn().Err(err).Str("file", ev.Name).Msg("trust anchor reload failed, keeping previous anchors")
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("trust anchor watcher error")
		}
	}
}

// Reload re-reads every watched file and replaces the anchor set.
func (w *Watcher) Reload() error {
	var all []*x509.Certificate
	for _, p := range w.paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		certs, err := ParseCertificates(data, p)
		if err != nil {
			return err
		}
		all = append(all, certs...)
	}
	w.cfg.SetTrustAnchors(all...)
	w.logger.Info().Int("anchors", len(all)).Strs("files", w.paths).Msg("trust anchors loaded")
	return nil
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.w != nil {
			err = w.w.Close()
		}
	})
	return err
}
