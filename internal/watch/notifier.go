package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notifier delivers coalesced "something changed" signals for a set of files.
type Notifier interface {
	Signals() <-chan struct{}
	Errors() <-chan error
	Close() error
}

// NotifierFunc opens a Notifier for paths.
type NotifierFunc func(paths []string) (Notifier, error)

// Paths returns the files SQLite writes for dbPath: the database and its
// write-ahead-log and shared-memory companions.
func Paths(dbPath string) []string {
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

type fsNotifier struct {
	fsw     *fsnotify.Watcher
	names   map[string]bool
	signals chan struct{}
	errors  chan error
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFSNotifier watches paths with fsnotify. The parent directories are
// watched too so companions created after start (the -wal file appears on
// first write) are picked up.
func NewFSNotifier(paths []string) (Notifier, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	n := &fsNotifier{
		fsw:     fsw,
		names:   make(map[string]bool, len(paths)),
		signals: make(chan struct{}, 1),
		errors:  make(chan error, 1),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		p = filepath.Clean(p)
		n.names[p] = true
		dirs[filepath.Dir(p)] = true
		if _, err := os.Stat(p); err == nil {
			if err := fsw.Add(p); err != nil {
				_ = fsw.Close()
				return nil, fmt.Errorf("failed to watch %s: %w", p, err)
			}
		}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	n.wg.Add(1)
	go n.run()
	return n, nil
}

func (n *fsNotifier) Signals() <-chan struct{} { return n.signals }

func (n *fsNotifier) Errors() <-chan error { return n.errors }

func (n *fsNotifier) Close() error {
	var err error
	n.once.Do(func() {
		err = n.fsw.Close()
		n.wg.Wait()
	})
	return err
}

func (n *fsNotifier) run() {
	defer n.wg.Done()
	defer close(n.signals)
	defer close(n.errors)

	for {
		select {
		case event, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			if !n.relevant(event) {
				continue
			}
			// One buffered signal is enough to guarantee a poll.
			select {
			case n.signals <- struct{}{}:
			default:
			}
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			select {
			case n.errors <- err:
			default:
			}
		}
	}
}

func (n *fsNotifier) relevant(event fsnotify.Event) bool {
	if !n.names[filepath.Clean(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}
