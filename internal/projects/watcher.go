package projects

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultWatchQueueSize bounds the channel between the fsnotify
	// reader and the dispatcher when no size is configured.
	defaultWatchQueueSize = 256

	// minDispatchTick is the fastest the dispatcher polls for settled
	// events.
	minDispatchTick = 10 * time.Millisecond
)

// EventKind classifies a local change reported by the watcher.
type EventKind int

const (
	EventCreate EventKind = iota
	EventUpdate
	EventDelete
	EventCreateDir
	EventDeleteDir
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	case EventCreateDir:
		return "create-dir"
	case EventDeleteDir:
		return "delete-dir"
	default:
		return "unknown"
	}
}

// WatchEvent is one local change, by tenant-relative path. Time is
// when the change was observed; after coalescing it is the latest
// observation for the path.
type WatchEvent struct {
	Path string
	Kind EventKind
	Time time.Time
}

// eventHandler performs the remote write for a watch event. Extracted
// from Executor for testability.
type eventHandler interface {
	HandleEvent(ctx context.Context, ev WatchEvent) error
}

// WatchOptions tune the watcher.
type WatchOptions struct {
	// Debounce is how long a path must be quiet before its event is
	// dispatched. Zero dispatches immediately.
	Debounce time.Duration

	// QueueSize bounds the reader-to-dispatcher channel. When full the
	// reader blocks.
	QueueSize int
}

// Watcher reports local changes under a tenant root to the remote. One
// goroutine reads fsnotify events into a bounded queue; a single
// dispatcher drains it, coalesces rapid changes per path and performs
// transfers one at a time, so writes to the same path never overlap.
type Watcher struct {
	project  *Project
	handler  eventHandler
	filter   *Filter
	logger   *slog.Logger
	debounce time.Duration
	queue    chan WatchEvent
	watcher  *fsnotify.Watcher

	// dirs holds the relative paths of watched directories. Owned by
	// the reader goroutine.
	dirs map[string]struct{}
}

// NewWatcher creates a watcher for project that sends changes through
// exec.
func NewWatcher(project *Project, exec *Executor, filter *Filter, logger *slog.Logger, opts WatchOptions) *Watcher {
	return newWatcher(project, exec, filter, logger, opts)
}

func newWatcher(project *Project, handler eventHandler, filter *Filter, logger *slog.Logger, opts WatchOptions) *Watcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultWatchQueueSize
	}

	if opts.Debounce < 0 {
		opts.Debounce = 0
	}

	return &Watcher{
		project:  project,
		handler:  handler,
		filter:   filter,
		logger:   logger,
		debounce: opts.Debounce,
		queue:    make(chan WatchEvent, opts.QueueSize),
		dirs:     make(map[string]struct{}),
	}
}

// Start registers the tenant tree with the OS watcher. Changes made
// after Start returns are reported once Watch runs, so a caller can
// Start, run an initial reconciliation, then Watch without losing the
// edits made in between. Watch calls Start itself if the caller did not.
func (w *Watcher) Start() error {
	if w.watcher != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = fsw

	if err := w.addRecursive(w.project.Dir(), nil); err != nil {
		_ = fsw.Close()
		w.watcher = nil

		return fmt.Errorf("watching %s: %w", w.project.Dir(), err)
	}

	return nil
}

// Close releases the OS watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}

	return w.watcher.Close()
}

// Watch blocks until ctx is cancelled or a remote failure stops the
// session. Directories are watched recursively; files created inside a
// new directory are reported as creates. Events for dotfiles, ignored
// folders and ignored extensions are dropped.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Close()

	w.logger.Info("file watcher started", slog.String("dir", w.project.Dir()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readEvents(gctx) })
	g.Go(func() error { return w.dispatch(gctx) })

	return g.Wait()
}

func (w *Watcher) readEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			for _, ev := range w.translate(event) {
				select {
				case w.queue <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// translate maps one fsnotify event to zero or more watch events.
func (w *Watcher) translate(event fsnotify.Event) []WatchEvent {
	rel := w.project.Rel(event.Name)
	if rel == "" || w.ignoredPath(rel) {
		return nil
	}

	var out []WatchEvent

	now := time.Now()
	emit := func(ev WatchEvent) {
		ev.Time = now
		out = append(out, ev)
	}

	switch {
	case event.Has(fsnotify.Create):
		// Lstat so symlinks out of the tenant root are never followed.
		info, err := os.Lstat(event.Name)
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if info.IsDir() {
			if err := w.addRecursive(event.Name, emit); err != nil {
				w.logger.Warn("watching new directory", slog.String("path", rel), slog.String("error", err.Error()))
			}

			return out
		}

		if info.Mode().IsRegular() && !w.filter.IgnoredFile(rel) {
			emit(WatchEvent{Path: rel, Kind: EventCreate})
		}

	case event.Has(fsnotify.Write):
		if _, isDir := w.dirs[rel]; isDir || w.filter.IgnoredFile(rel) {
			return nil
		}

		emit(WatchEvent{Path: rel, Kind: EventUpdate})

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// For rename, fsnotify fires Rename on the old path and Create
		// on the new one.
		if _, isDir := w.dirs[rel]; isDir {
			w.forgetDir(rel)

			if w.watcher != nil {
				_ = w.watcher.Remove(event.Name)
			}

			emit(WatchEvent{Path: rel, Kind: EventDeleteDir})

			return out
		}

		if !w.filter.IgnoredFile(rel) {
			emit(WatchEvent{Path: rel, Kind: EventDelete})
		}
	}

	return out
}

// addRecursive watches dir and every non-ignored directory below it.
// When emit is non-nil, each directory other than the tenant root is
// reported as a create-dir and each file found as a create.
func (w *Watcher) addRecursive(dir string, emit func(WatchEvent)) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		rel := w.project.Rel(path)
		if rel != "" && w.ignoredPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if !d.IsDir() {
			if emit != nil && d.Type().IsRegular() && !w.filter.IgnoredFile(rel) {
				emit(WatchEvent{Path: rel, Kind: EventCreate})
			}

			return nil
		}

		if w.watcher != nil {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}

		if rel != "" {
			w.dirs[rel] = struct{}{}

			if emit != nil {
				emit(WatchEvent{Path: rel, Kind: EventCreateDir})
			}
		}

		return nil
	})
}

// forgetDir drops rel and every directory below it from the watched set.
func (w *Watcher) forgetDir(rel string) {
	prefix := rel + "/"
	for d := range w.dirs {
		if d == rel || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

// ignoredPath reports whether any segment of rel is a dotfile or an
// ignored folder.
func (w *Watcher) ignoredPath(rel string) bool {
	if isDotPath(rel) {
		return true
	}

	for _, seg := range strings.Split(rel, "/") {
		if w.filter.IgnoredFolder(seg) {
			return true
		}
	}

	return false
}

// dispatch drains the queue and sends settled events, one at a time.
func (w *Watcher) dispatch(ctx context.Context) error {
	pending := newDebouncer()

	tick := w.debounce / 2
	if tick < minDispatchTick {
		tick = minDispatchTick
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-w.queue:
			now := time.Now()
			pending.add(ev, now)

			if w.debounce == 0 {
				if err := w.send(ctx, pending.ready(now, 0)); err != nil {
					return err
				}
			}

		case now := <-ticker.C:
			if err := w.send(ctx, pending.ready(now, w.debounce)); err != nil {
				return err
			}
		}
	}
}

// send hands events to the handler in order. Remote failures end the
// session; local failures are logged and the event dropped.
func (w *Watcher) send(ctx context.Context, events []WatchEvent) error {
	for _, ev := range events {
		err := w.handler.HandleEvent(ctx, ev)
		if err == nil {
			continue
		}

		if isFatal(err) {
			return fmt.Errorf("%s %s: %w", ev.Kind, ev.Path, err)
		}

		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("skipping vanished path", slog.String("path", ev.Path), slog.String("event", ev.Kind.String()))
			continue
		}

		w.logger.Warn("watch event failed",
			slog.String("path", ev.Path),
			slog.String("event", ev.Kind.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

type pendingEvent struct {
	kind EventKind
	seq  uint64
	last time.Time
}

// debouncer coalesces events per path until the path has been quiet
// for the debounce window.
type debouncer struct {
	events map[string]*pendingEvent
	seq    uint64
}

func newDebouncer() *debouncer {
	return &debouncer{events: make(map[string]*pendingEvent)}
}

func (d *debouncer) add(ev WatchEvent, now time.Time) {
	prev, ok := d.events[ev.Path]
	if !ok {
		d.seq++
		d.events[ev.Path] = &pendingEvent{kind: ev.Kind, seq: d.seq, last: now}

		return
	}

	kind, keep := coalesce(prev.kind, ev.Kind)
	if !keep {
		delete(d.events, ev.Path)
		return
	}

	prev.kind = kind
	prev.last = now
}

// ready removes and returns events quiet for at least quiet, in the
// order their paths first appeared.
func (d *debouncer) ready(now time.Time, quiet time.Duration) []WatchEvent {
	type item struct {
		ev  WatchEvent
		seq uint64
	}

	var items []item

	for p, pe := range d.events {
		if now.Sub(pe.last) < quiet {
			continue
		}

		items = append(items, item{ev: WatchEvent{Path: p, Kind: pe.kind, Time: pe.last}, seq: pe.seq})
		delete(d.events, p)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	out := make([]WatchEvent, len(items))
	for i, it := range items {
		out[i] = it.ev
	}

	return out
}

// coalesce merges a new event into a pending one for the same path.
// keep is false when the pair cancels out and nothing should be sent.
func coalesce(prev, next EventKind) (kind EventKind, keep bool) {
	switch {
	case prev == EventCreate && next == EventUpdate:
		return EventCreate, true
	case prev == EventCreate && next == EventDelete:
		return 0, false
	case prev == EventDelete && next == EventCreate:
		// The remote still has the old file.
		return EventUpdate, true
	case prev == EventUpdate && next == EventCreate:
		return EventUpdate, true
	case prev == EventCreateDir && next == EventDeleteDir:
		return 0, false
	default:
		return next, true
	}
}
