// Package watch turns filesystem write activity on chat.db into an ordered
// stream of newly inserted messages.
//
// Raw signals are debounced: the first signal arms a timer and any signal
// arriving while that poll is pending is absorbed. Each poll reads rows with
// ROWID above the cursor in ascending order and advances the cursor to the
// highest ROWID seen. The cursor never moves backwards.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Napageneral/imsg/internal/chatdb"
	"github.com/Napageneral/imsg/internal/metrics"
	"github.com/Napageneral/imsg/internal/ratelimit"
)

const (
	DefaultDebounce   = 250 * time.Millisecond
	DefaultBatchLimit = 500
	defaultBuffer     = 64
)

var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrStopped        = errors.New("watcher stopped")
)

// State is the lifecycle position of a Watcher.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RowSource is the part of the store a watcher polls.
type RowSource interface {
	MaxRowID(ctx context.Context) (int64, error)
	MessagesAfter(ctx context.Context, afterRowID int64, limit int) ([]chatdb.Message, error)
}

// Event is one element of the watch stream. A non-nil Err is always the last
// element before the channel closes.
type Event struct {
	Message chatdb.Message
	Err     error
}

// Options configures a Watcher.
type Options struct {
	// StartRowID is the initial cursor. Nil means the current max ROWID, so
	// only messages inserted after Start are delivered.
	StartRowID *int64
	// ChatID restricts delivery to one chat when non-zero.
	ChatID           int64
	IncludeReactions bool

	Debounce        time.Duration
	BatchLimit      int
	MinPollInterval time.Duration
	Buffer          int

	Notifier NotifierFunc
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Watcher is a single watch session with its own cursor.
type Watcher struct {
	src   RowSource
	paths []string
	opts  Options

	session  string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	throttle *ratelimit.Throttle

	mu     sync.Mutex
	state  atomic.Int32
	cursor atomic.Int64
	polls  atomic.Int64
	events chan Event
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New creates an idle watcher polling src whenever one of paths changes.
func New(src RowSource, paths []string, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = DefaultBatchLimit
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Notifier == nil {
		opts.Notifier = NewFSNotifier
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	session := uuid.NewString()
	return &Watcher{
		src:      src,
		paths:    paths,
		opts:     opts,
		session:  session,
		logger:   logger.Named("watch").With(zap.String("session", session)),
		metrics:  opts.Metrics,
		throttle: ratelimit.NewThrottle(opts.MinPollInterval),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Watch starts a watcher on store's files. The stream ends when ctx is
// cancelled or a poll fails.
func Watch(ctx context.Context, store *chatdb.Store, opts Options) (<-chan Event, error) {
	w := New(store, Paths(store.Path()), opts)
	return w.Start(ctx)
}

// Session returns the id used to correlate this watcher's log lines.
func (w *Watcher) Session() string { return w.session }

func (w *Watcher) State() State { return State(w.state.Load()) }

// Cursor returns the highest ROWID delivered or filtered out.
func (w *Watcher) Cursor() int64 { return w.cursor.Load() }

// Polls returns the number of polls executed so far.
func (w *Watcher) Polls() int64 { return w.polls.Load() }

// Start establishes the cursor, begins monitoring and returns the stream.
// Cancelling ctx stops the watcher like Stop does.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.State() {
	case StateWatching:
		return nil, ErrAlreadyStarted
	case StateStopped:
		return nil, ErrStopped
	}

	var cursor int64
	if w.opts.StartRowID != nil {
		cursor = *w.opts.StartRowID
	} else {
		maxID, err := w.src.MaxRowID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to establish watch cursor: %w", err)
		}
		cursor = maxID
	}
	w.cursor.Store(cursor)

	n, err := w.opts.Notifier(w.paths)
	if err != nil {
		return nil, err
	}

	w.events = make(chan Event, w.opts.Buffer)
	w.state.Store(int32(StateWatching))
	w.logger.Info("watch started",
		zap.Int64("cursor", cursor),
		zap.Strings("paths", w.paths),
		zap.Duration("debounce", w.opts.Debounce),
	)

	go w.loop(ctx, n)
	return w.events, nil
}

// Stop ends the session and waits for the loop to release its file
// watches. A poll already running finishes first. Stop is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.State() != StateIdle
	w.once.Do(func() { close(w.stopCh) })
	if !started {
		w.state.Store(int32(StateStopped))
		close(w.done)
	}
	w.mu.Unlock()

	<-w.done
}

// Done is closed once the watcher has fully stopped.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context, n Notifier) {
	defer close(w.done)
	defer close(w.events)
	defer func() {
		if err := n.Close(); err != nil {
			w.logger.Warn("failed to close file watcher", zap.Error(err))
		}
		w.state.Store(int32(StateStopped))
		w.logger.Info("watch stopped", zap.Int64("cursor", w.Cursor()))
	}()

	// Throttle waits end on Stop; queries only on ctx.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	signals := n.Signals()
	fsErrors := n.Errors()
	var timer *time.Timer
	var pending <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			w.metrics.Signal()
			if pending == nil {
				timer = time.NewTimer(w.opts.Debounce)
				pending = timer.C
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if !w.poll(ctx, waitCtx) {
				return
			}
		}
	}
}

// poll drains every row above the cursor, batch by batch. It reports false
// when the stream must end.
func (w *Watcher) poll(ctx, waitCtx context.Context) bool {
	if err := w.throttle.Wait(waitCtx); err != nil {
		return false
	}

	for {
		before := w.Cursor()
		start := time.Now()
		w.polls.Add(1)
		rows, err := w.src.MessagesAfter(ctx, before, w.opts.BatchLimit)
		if err != nil {
			w.metrics.ObservePoll(0, before, time.Since(start), err)
			if ctx.Err() != nil {
				return false
			}
			w.logger.Error("watch poll failed", zap.Int64("cursor", before), zap.Error(err))
			w.emit(ctx, Event{Err: err})
			return false
		}

		delivered := 0
		for _, m := range rows {
			if m.RowID <= w.Cursor() {
				continue
			}
			if w.wanted(m) {
				if !w.emit(ctx, Event{Message: m}) {
					return false
				}
				delivered++
			}
			w.cursor.Store(m.RowID)
		}
		w.metrics.ObservePoll(delivered, w.Cursor(), time.Since(start), nil)
		w.logger.Debug("watch poll",
			zap.Int64("cursor_before", before),
			zap.Int64("cursor_after", w.Cursor()),
			zap.Int("rows", len(rows)),
			zap.Int("delivered", delivered),
		)

		if len(rows) < w.opts.BatchLimit {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-w.stopCh:
			return false
		default:
		}
	}
}

func (w *Watcher) wanted(m chatdb.Message) bool {
	if w.opts.ChatID != 0 && m.ChatID != w.opts.ChatID {
		return false
	}
	if m.IsReaction && !w.opts.IncludeReactions {
		return false
	}
	return true
}

// emit blocks until the consumer takes ev. Once the session is ending it
// only delivers into free buffer space.
func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.stopCh:
	case <-ctx.Done():
	}
	select {
	case w.events <- ev:
		return true
	default:
		return false
	}
}
