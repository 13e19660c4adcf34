package chatdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"howett.net/plist"

	"github.com/Napageneral/imsg/internal/appletime"
)

// modernSchema mirrors the columns of a current macOS chat.db that the
// decoder cares about.
const modernSchema = `
	CREATE TABLE handle (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		service TEXT
	);

	CREATE TABLE chat (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT UNIQUE NOT NULL,
		chat_identifier TEXT,
		display_name TEXT,
		service_name TEXT,
		style INTEGER
	);

	CREATE TABLE message (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT UNIQUE NOT NULL,
		text TEXT,
		attributedBody BLOB,
		handle_id INTEGER DEFAULT 0,
		date INTEGER,
		is_from_me INTEGER DEFAULT 0,
		service TEXT,
		associated_message_guid TEXT,
		associated_message_type INTEGER DEFAULT 0,
		thread_originator_guid TEXT,
		destination_caller_id TEXT,
		is_audio_message INTEGER DEFAULT 0
	);

	CREATE TABLE attachment (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT,
		filename TEXT,
		transfer_name TEXT,
		uti TEXT,
		mime_type TEXT,
		total_bytes INTEGER,
		is_sticker INTEGER DEFAULT 0,
		user_info BLOB
	);

	CREATE TABLE chat_message_join (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		message_date INTEGER DEFAULT 0,
		PRIMARY KEY (chat_id, message_id)
	);

	CREATE TABLE chat_handle_join (
		chat_id INTEGER NOT NULL,
		handle_id INTEGER NOT NULL
	);

	CREATE TABLE message_attachment_join (
		message_id INTEGER NOT NULL,
		attachment_id INTEGER NOT NULL
	);
`

// legacySchema is an old chat.db without any of the optional columns.
const legacySchema = `
	CREATE TABLE handle (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL
	);

	CREATE TABLE chat (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT UNIQUE NOT NULL,
		chat_identifier TEXT
	);

	CREATE TABLE message (
		ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT UNIQUE NOT NULL,
		text TEXT,
		handle_id INTEGER,
		date INTEGER,
		is_from_me INTEGER DEFAULT 0,
		service TEXT
	);

	CREATE TABLE chat_message_join (
		chat_id INTEGER,
		message_id INTEGER,
		PRIMARY KEY (chat_id, message_id)
	);
`

var baseTime = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minute int) int64 {
	return appletime.ToRaw(baseTime.Add(time.Duration(minute) * time.Minute))
}

type fixture struct {
	t    *testing.T
	path string
	db   *sql.DB
}

// createTestChatDB creates a chat.db with schema in a temp dir. The returned
// fixture keeps a writable connection for inserting rows.
func createTestChatDB(t *testing.T, schema string) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chat.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("Failed to create test chat.db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return &fixture{t: t, path: dbPath, db: db}
}

func (f *fixture) exec(query string, args ...any) int64 {
	f.t.Helper()
	res, err := f.db.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("Failed to exec %q: %v", query, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (f *fixture) handle(id string) int64 {
	return f.exec("INSERT INTO handle (id, service) VALUES (?, 'iMessage')", id)
}

func (f *fixture) chat(guid, identifier, name string, handles ...int64) int64 {
	id := f.exec(
		"INSERT INTO chat (guid, chat_identifier, display_name, service_name, style) VALUES (?, ?, ?, 'iMessage', 45)",
		guid, identifier, name,
	)
	for _, h := range handles {
		f.exec("INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)", id, h)
	}
	return id
}

// testMessage holds the columns a test may set; zero values become NULL/0.
type testMessage struct {
	guid             string
	text             any
	attributedBody   []byte
	handleID         int64
	date             int64
	isFromMe         bool
	associatedGUID   any
	associatedType   int
	threadOriginator any
	destCallerID     any
	isAudio          bool
}

func (f *fixture) message(chatID int64, m testMessage) int64 {
	id := f.exec(`
		INSERT INTO message (
			guid, text, attributedBody, handle_id, date, is_from_me, service,
			associated_message_guid, associated_message_type,
			thread_originator_guid, destination_caller_id, is_audio_message
		) VALUES (?, ?, ?, ?, ?, ?, 'iMessage', ?, ?, ?, ?, ?)`,
		m.guid, m.text, m.attributedBody, m.handleID, m.date, m.isFromMe,
		m.associatedGUID, m.associatedType, m.threadOriginator, m.destCallerID, m.isAudio,
	)
	if chatID > 0 {
		f.exec("INSERT INTO chat_message_join (chat_id, message_id, message_date) VALUES (?, ?, ?)", chatID, id, m.date)
	}
	return id
}

func (f *fixture) attachment(messageID int64, filename string, userInfo []byte) int64 {
	id := f.exec(`
		INSERT INTO attachment (guid, filename, transfer_name, uti, mime_type, total_bytes, is_sticker, user_info)
		VALUES (?, ?, ?, 'public.jpeg', 'image/jpeg', 2048, 0, ?)`,
		filename, filename, filepath.Base(filename), userInfo,
	)
	f.exec("INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)", messageID, id)
	return id
}

func (f *fixture) open() *Store {
	f.t.Helper()
	s, err := Open(f.path, Options{HomeDir: f.t.TempDir()})
	if err != nil {
		f.t.Fatalf("Failed to open chat.db: %v", err)
	}
	f.t.Cleanup(func() { s.Close() })
	return s
}

func keyedArchive(t *testing.T, strs ...string) []byte {
	t.Helper()
	objects := []interface{}{"$null"}
	for _, s := range strs {
		objects = append(objects, s)
	}
	data, err := plist.Marshal(map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  100000,
		"$top":      map[string]interface{}{"root": plist.UID(1)},
		"$objects":  objects,
	}, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("Failed to build keyed archive: %v", err)
	}
	return data
}
