package watch

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/imsg/internal/chatdb"
)

func waitSignal(t *testing.T, n Notifier) {
	t.Helper()
	select {
	case _, ok := <-n.Signals():
		require.True(t, ok, "signals closed")
	case <-time.After(3 * time.Second):
		t.Fatal("no filesystem signal")
	}
}

// drain discards signals until none arrives for quiet.
func drain(n Notifier, quiet time.Duration) {
	for {
		select {
		case <-n.Signals():
		case <-time.After(quiet):
			return
		}
	}
}

func TestPaths(t *testing.T) {
	assert.Equal(t,
		[]string{"/x/chat.db", "/x/chat.db-wal", "/x/chat.db-shm"},
		Paths("/x/chat.db"),
	)
}

func TestFSNotifier(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("initial"), 0o644))

	n, err := NewFSNotifier(Paths(dbPath))
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, os.WriteFile(dbPath, []byte("changed"), 0o644))
	waitSignal(t, n)
	drain(n, 50*time.Millisecond)

	// Companion files created after start are seen through the directory.
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0o644))
	waitSignal(t, n)

	drain(n, 50*time.Millisecond)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dbPath), "other.txt"), []byte("x"), 0o644))
	select {
	case <-n.Signals():
		t.Fatal("unexpected signal for unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
}

func TestWatchStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	rw, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer rw.Close()
	_, err = rw.Exec(`
		CREATE TABLE handle (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL);
		CREATE TABLE chat (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, guid TEXT NOT NULL, chat_identifier TEXT);
		CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
			guid TEXT NOT NULL,
			text TEXT,
			handle_id INTEGER DEFAULT 0,
			date INTEGER,
			is_from_me INTEGER DEFAULT 0,
			service TEXT
		);
		CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
		INSERT INTO chat (guid, chat_identifier) VALUES ('c1', 'c1');
		INSERT INTO message (guid, text, date) VALUES ('old', 'before watch', 1);
	`)
	require.NoError(t, err)

	store, err := chatdb.Open(dbPath, chatdb.Options{})
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Watch(ctx, store, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = rw.Exec(`INSERT INTO message (guid, text, date) VALUES ('new', 'after watch', 2)`)
	require.NoError(t, err)
	_, err = rw.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 2)`)
	require.NoError(t, err)

	ev := next(t, ch)
	require.NoError(t, ev.Err)
	assert.Equal(t, int64(2), ev.Message.RowID)
	assert.Equal(t, "after watch", ev.Message.Text)

	cancel()
	for range ch {
	}
}
