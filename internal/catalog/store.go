package catalog

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store publishes the current catalog snapshot. Readers never block; a reload swaps the
// pointer so in-flight lookups keep the snapshot they started with.
type Store struct {
	current atomic.Pointer[Catalog]
	path    string
	logger  *zap.Logger
}

// NewStore loads path, or the embedded default when path is empty.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an already parsed catalog.
func NewStaticStore(c *Catalog) *Store {
	s := &Store{logger: zap.NewNop()}
	s.current.Store(c)
	return s
}

// Current returns the live snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Reload re-reads the source. On failure the previous snapshot stays live.
func (s *Store) Reload() error {
	var (
		c   *Catalog
		err error
	)
	if s.path == "" {
		c, err = Default()
	} else {
		c, err = LoadFile(s.path)
	}
	if err != nil {
		return err
	}

	prev := s.current.Swap(c)
	if prev == nil || prev.Revision() != c.Revision() {
		s.logger.Info("prompt catalog loaded",
			zap.String("path", s.path),
			zap.String("revision", c.Revision()),
			zap.Int("categories", len(c.Categories())))
	}
	return nil
}

// Watch reloads the catalog when its file changes, until ctx is done. It is a no-op for
// the embedded catalog.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files atomically, so watch the directory rather than the inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		const debounce = 500 * time.Millisecond
		target := filepath.Clean(s.path)
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if err := s.Reload(); err != nil {
					s.logger.Warn("prompt catalog reload failed; keeping previous revision", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("prompt catalog watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
