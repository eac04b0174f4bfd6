// Package watcher reloads the credential file when it changes on disk.
//
// The parent directory is watched instead of the file itself, so that
// replacing the file by rename, as editors and Kubernetes ConfigMap/Secret
// volumes do, is noticed as well.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/arrikto/simpleauth/common"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultDebounce = 500 * time.Millisecond

// ReloadFunc is called after the file changed. credentials.Store.Reload fits.
type ReloadFunc func() (int, error)

type Watcher struct {
	path     string
	realPath string
	reload   ReloadFunc
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// New starts watching the directory of path. Call Run to handle events.
func New(path string, reload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", path)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watching %s", filepath.Dir(abs))
	}
	realPath, _ := common.RealPath(abs)
	return &Watcher{
		path:     abs,
		realPath: realPath,
		reload:   reload,
		debounce: defaultDebounce,
		fsw:      fsw,
	}, nil
}

// Run handles file events until ctx is done. Bursts of events are collapsed
// into a single reload after the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	logger := log.WithField("path", w.path)
	logger.Info("Watching credential file for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debugf("Credential file event: %s", ev.Op)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("File watcher error: %v", err)
		case <-fire:
			fire = nil
			if _, err := w.reload(); err != nil {
				logger.Errorf("Automatic reload failed: %v", err)
				continue
			}
			logger.Info("Credentials reloaded after file change")
		}
	}
}

// relevant reports whether ev may have changed the credential file's
// content. Besides direct writes to the file, a change of the file's
// resolved path counts, which is how symlinked volumes swap content.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if filepath.Clean(ev.Name) == w.path {
		return true
	}
	realPath, err := common.RealPath(w.path)
	if err != nil || realPath == w.realPath {
		return false
	}
	w.realPath = realPath
	return true
}
