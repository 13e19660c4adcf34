// Package chatdb provides read-only access to Apple's Messages chat.db.
//
// Every query runs through a single serialized executor that owns the
// connection. Work issued from inside the executor (for example the audio
// transcription lookup performed while decoding a row) carries a marked
// context and runs inline instead of waiting on itself.
package chatdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Napageneral/imsg/internal/metrics"
)

// DefaultBusyTimeout bounds how long a query waits on a locked database.
const DefaultBusyTimeout = 250 * time.Millisecond

// Querier is the row source queries and the schema prober read from.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options configures Open.
type Options struct {
	BusyTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// HomeDir replaces "~" in attachment paths. Defaults to the user's home.
	HomeDir string
}

// Store is a handle on one chat.db file.
type Store struct {
	db      *sql.DB
	path    string
	caps    Capabilities
	sem     chan struct{}
	closed  bool
	homeDir string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type executorKey struct{}

// fileURI builds the read-only SQLite URI for path. The path is escaped so
// "?" or "#" in a directory name stay part of the file name.
func fileURI(path string, busyTimeout time.Duration) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	// Don't use immutable=1 for the live Messages DB (it uses WAL)
	query := url.Values{}
	query.Set("mode", "ro")
	query.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: query.Encode()}
	return u.String(), nil
}

// Open opens chat.db read-only and probes its schema.
func Open(path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
	}

	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}

	uri, err := fileURI(path, timeout)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat.db: %w", err)
	}
	// One connection, kept open, so pragmas stick and access is serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA query_only=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-65536",   // 64MB cache
		"PRAGMA mmap_size=268435456", // 256MB memory map
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			// Ignore pragma errors (some may not be supported)
			continue
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	homeDir := opts.HomeDir
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}

	s := &Store{
		db:      db,
		path:    path,
		sem:     make(chan struct{}, 1),
		homeDir: homeDir,
		logger:  logger.Named("chatdb"),
		metrics: opts.Metrics,
	}

	if err := s.db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open chat.db: %w", err)
	}

	s.caps = ProbeCapabilities(context.Background(), db)
	s.logger.Debug("opened chat.db",
		zap.String("path", path),
		zap.Duration("busy_timeout", timeout),
		zap.Any("capabilities", s.caps),
	)
	return s, nil
}

// Close closes the chat.db connection. It waits for an in-flight query.
func (s *Store) Close() error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the path to the chat.db file
func (s *Store) Path() string {
	return s.path
}

// Capabilities returns the optional-column flags probed at open.
func (s *Store) Capabilities() Capabilities {
	return s.caps
}

// run executes fn on the store's serialized executor. A context that is
// already inside this store's executor runs fn inline.
func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context, q Querier) error) error {
	if owner, _ := ctx.Value(executorKey{}).(*Store); owner == s {
		return fn(ctx, s.db)
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return &QueryError{Op: op, Err: ctx.Err()}
	}
	defer func() { <-s.sem }()

	if s.closed {
		return &QueryError{Op: op, Err: ErrClosed}
	}

	start := time.Now()
	err := fn(context.WithValue(ctx, executorKey{}, s), s.db)
	s.metrics.ObserveQuery(op, time.Since(start), err)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return err
		}
		return &QueryError{Op: op, Err: err}
	}
	return nil
}
