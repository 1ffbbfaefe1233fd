package policy

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Holder publishes the active policy to concurrent readers. A run reads the
// policy once at start and keeps that snapshot, so a reload never changes a
// run midway.
type Holder struct {
	cur atomic.Pointer[Policy]
}

// NewHolder returns a Holder serving p.
func NewHolder(p *Policy) *Holder {
	h := &Holder{}
	h.cur.Store(p)
	return h
}

// Current returns the active policy.
func (h *Holder) Current() *Policy {
	return h.cur.Load()
}

// Store swaps in a new policy.
func (h *Holder) Store(p *Policy) {
	h.cur.Store(p)
}

// Reload re-reads path and swaps it in. On error the active policy is kept.
func (h *Holder) Reload(path string) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	prev := h.Current()
	h.Store(p)
	zap.L().Info("policy reloaded",
		zap.String("path", path),
		zap.String("from_version", prev.Version),
		zap.String("to_version", p.Version),
	)
	return nil
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so atomic-rename saves are seen.
func (h *Holder) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "policy: create watcher")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return eris.Wrap(err, "policy: resolve path")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "policy: watch %s", filepath.Dir(abs))
	}

	go func() {
		defer w.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := h.Reload(abs); err != nil {
					zap.L().Warn("policy reload failed, keeping current", zap.String("path", abs), zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				zap.L().Warn("policy watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
