package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Watcher picks up payload files dropped into the spool's incoming
// directory by external producers, typically a recovery sweep after a
// crash, and registers them as pending_local records.
//
// File names follow `<sessionID>_<unix-seconds>.raw`.
type Watcher struct {
	spool   *Spool
	records Records
	logger  *zap.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a spool watcher. Call Start to begin watching.
func NewWatcher(spool *Spool, records Records, logger *zap.Logger) (*Watcher, error) {
	if spool == nil {
		return nil, fmt.Errorf("spool is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		spool:   spool,
		records: records,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start sweeps files already sitting in the incoming directory, then
// watches for new ones until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.spool.IncomingDir()); err != nil {
		fsw.Close()
		return fmt.Errorf("watch incoming directory: %w", err)
	}
	w.fsw = fsw

	if err := w.sweep(ctx); err != nil {
		w.logger.Warn("initial incoming sweep failed", zap.Error(err))
	}

	go w.loop(ctx)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.adopt(ctx, ev.Name); err != nil {
				w.logger.Warn("failed to adopt incoming payload",
					zap.String("path", ev.Name), zap.Error(err))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spool watcher error", zap.Error(err))
		}
	}
}

// sweep registers files that landed before the watcher started.
func (w *Watcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.spool.IncomingDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.spool.IncomingDir(), e.Name())
		if err := w.adopt(ctx, path); err != nil {
			w.logger.Warn("failed to adopt incoming payload",
				zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// adopt moves one incoming file into the spool and records it.
func (w *Watcher) adopt(ctx context.Context, path string) error {
	sessionID, capturedAt, err := parseIncomingName(filepath.Base(path))
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with another consumer; not ours anymore.
			return nil
		}
		return err
	}

	dst, err := w.spool.Adopt(path)
	if err != nil {
		return err
	}

	rec := &Record{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		CapturedAt: capturedAt,
		State:      StatePendingLocal,
		LocalPath:  dst,
		SizeBytes:  info.Size(),
	}
	if err := w.records.InsertMedia(ctx, rec); err != nil {
		return fmt.Errorf("record adopted payload: %w", err)
	}

	w.logger.Info("adopted incoming payload",
		zap.String("media_id", rec.ID),
		zap.String("session_id", sessionID),
		zap.Int64("bytes", rec.SizeBytes))
	return nil
}

// parseIncomingName splits `<sessionID>_<unix-seconds>.raw`.
func parseIncomingName(name string) (sessionID string, capturedAt time.Time, err error) {
	base, ok := strings.CutSuffix(name, ".raw")
	if !ok {
		return "", time.Time{}, fmt.Errorf("unrecognized incoming file name: %s", name)
	}
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", time.Time{}, fmt.Errorf("unrecognized incoming file name: %s", name)
	}
	secs, err := strconv.ParseInt(base[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("bad timestamp in incoming file name %s: %w", name, err)
	}
	return base[:idx], time.Unix(secs, 0).UTC(), nil
}
