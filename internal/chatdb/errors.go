package chatdb

import (
	"errors"
	"fmt"
)

var (
	// ErrDatabaseNotFound is returned by Open when the chat.db file is missing.
	ErrDatabaseNotFound = errors.New("chat.db not found")
	// ErrNotFound is returned when a requested chat or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned for queries issued after Close.
	ErrClosed = errors.New("chat.db is closed")
)

// QueryError reports a failed query against chat.db. Schema drift and
// undecodable content never produce one; only an unanswerable query does.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("chatdb %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
