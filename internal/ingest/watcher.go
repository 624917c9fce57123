package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shellscribe/pkg/models"
)

// Sink receives normalized rows. *store.Store satisfies it.
type Sink interface {
	UpsertSession(session *models.Session) error
	UpsertCommands(commands []models.Command) error
	PruneCommands(sessionID string, maxSeq int) error
	AppendEvent(ev *models.Event) error
}

// Watcher ingests session record files from a directory: a one-time backfill
// over existing files, then fsnotify-driven ingest of created and modified
// files. A malformed file is logged and skipped; the watch continues.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	sink        Sink
	dir         string
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	eventsSeen  map[string]int // events already appended per file, to keep re-ingest idempotent
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for debugging and tests.
type WatcherStats struct {
	FilesIngested int
	FilesUpdated  int
	ParseErrors   int
	LastFile      string
	LastEventTime time.Time
}

// NewWatcher creates a watcher over dir feeding sink. debounce collapses the
// rapid write bursts editors and recorders produce.
func NewWatcher(dir string, sink Sink, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		sink:        sink,
		dir:         dir,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		eventsSeen:  make(map[string]int),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start backfills existing records, then takes ownership of the watch. The
// backfill completes before any watch event is processed so no history is
// lost across restarts. Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.logger.Warn("failed to create watch dir", zap.String("dir", w.dir), zap.Error(err))
	}

	if err := w.backfill(ctx); err != nil {
		return err
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching session directory", zap.String("dir", w.dir))

	go w.loop(ctx)
	return nil
}

// Stop shuts the watch loop down and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// backfill ingests every record already present in the directory.
func (w *Watcher) backfill(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		g.Go(func() error {
			w.ingestFile(path, false)
			return nil
		})
	}
	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isRecordFile(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		// Mark the debounce window so the Write that trails a fresh file's
		// Create does not ingest it twice.
		w.debounced(ev.Name)
		w.ingestFile(ev.Name, false)
	case ev.Op.Has(fsnotify.Write):
		if w.debounced(ev.Name) {
			return
		}
		w.ingestFile(ev.Name, true)
	}
}

// debounced reports whether this path fired within the debounce window and
// records the new firing time.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

// ingestFile parses one record and writes the normalized rows. update marks
// a re-ingest of a modified file: command slots are overwritten by sequence
// number, and only events beyond the previously seen count are appended.
func (w *Watcher) ingestFile(path string, update bool) {
	record, err := ParseRecordFile(path)
	if err != nil {
		w.logger.Warn("skipping malformed record", zap.String("file", path), zap.Error(err))
		w.mu.Lock()
		w.stats.ParseErrors++
		w.mu.Unlock()
		return
	}

	session, commands, events := Normalize(record)

	if err := w.sink.UpsertSession(session); err != nil {
		w.logger.Error("failed to upsert session", zap.String("session", session.ID), zap.Error(err))
		return
	}
	if err := w.sink.UpsertCommands(commands); err != nil {
		w.logger.Error("failed to upsert commands", zap.String("session", session.ID), zap.Error(err))
		return
	}
	// A rewritten record may hold fewer commands than the last pass; drop
	// slots above the new high sequence so the rows match command_count.
	maxSeq := -1
	for _, cmd := range commands {
		if cmd.SequenceNumber > maxSeq {
			maxSeq = cmd.SequenceNumber
		}
	}
	if err := w.sink.PruneCommands(session.ID, maxSeq); err != nil {
		w.logger.Error("failed to prune stale commands", zap.String("session", session.ID), zap.Error(err))
		return
	}

	w.mu.Lock()
	seen := w.eventsSeen[path]
	w.mu.Unlock()
	for i, ev := range events {
		if i < seen {
			continue
		}
		ev := ev
		if err := w.sink.AppendEvent(&ev); err != nil {
			w.logger.Error("failed to append event", zap.String("session", session.ID), zap.Error(err))
			return
		}
	}

	w.mu.Lock()
	w.eventsSeen[path] = len(events)
	if update {
		w.stats.FilesUpdated++
	} else {
		w.stats.FilesIngested++
	}
	w.stats.LastFile = path
	w.stats.LastEventTime = time.Now()
	w.mu.Unlock()

	w.logger.Info("ingested session record",
		zap.String("file", filepath.Base(path)),
		zap.String("session", session.ID),
		zap.Int("commands", len(commands)),
		zap.Int("events", len(events)),
		zap.Bool("update", update))
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}
