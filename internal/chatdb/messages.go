package chatdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Napageneral/imsg/internal/appletime"
)

const messageFrom = `
		FROM message m
		LEFT JOIN handle h ON h.ROWID = m.handle_id`

// legacyReactionText matches the English text older clients wrote into
// reaction rows. GLOB is case-sensitive, matching reaction.CodeFromText.
const legacyReactionText = `(COALESCE(m.associated_message_guid, '') != ''
		  AND (COALESCE(m.text, '') GLOB 'Loved *'
		    OR COALESCE(m.text, '') GLOB 'Liked *'
		    OR COALESCE(m.text, '') GLOB 'Disliked *'
		    OR COALESCE(m.text, '') GLOB 'Laughed at *'
		    OR COALESCE(m.text, '') GLOB 'Emphasized *'
		    OR COALESCE(m.text, '') GLOB 'Questioned *'))`

// reactionPredicate matches the rows the Decoder marks as reactions. It never
// evaluates to NULL, so NOT of it is safe. Callers check AssociatedGUID first.
func (c Capabilities) reactionPredicate() string {
	if !c.ReactionColumns {
		return legacyReactionText
	}
	return `(COALESCE(m.associated_message_type, 0) BETWEEN 2000 AND 2006
		  OR COALESCE(m.associated_message_type, 0) BETWEEN 3000 AND 3006
		  OR (COALESCE(m.associated_message_type, 0) = 0 AND ` + legacyReactionText + `))`
}

// HistoryFilter narrows Messages.
type HistoryFilter struct {
	Limit int
	// Start and End bound the message date; End is exclusive. Zero means open.
	Start time.Time
	End   time.Time
	// Participants restricts results to these sender handles (case-insensitive).
	Participants     []string
	IncludeReactions bool
}

// messageColumns builds the select list for the capabilities at hand. Every
// optional column is aliased to a fixed lower-case name the Decoder reads.
func (c Capabilities) messageColumns() string {
	cols := []string{
		"m.ROWID AS rowid",
		"m.guid AS guid",
		"m.text AS text",
		"m.date AS date",
		"m.is_from_me AS is_from_me",
		"m.service AS service",
		"h.id AS sender",
		"(SELECT cmj.chat_id FROM chat_message_join cmj WHERE cmj.message_id = m.ROWID ORDER BY cmj.chat_id LIMIT 1) AS chat_id",
	}
	if c.AttachmentJoin {
		cols = append(cols, "(SELECT COUNT(*) FROM message_attachment_join maj WHERE maj.message_id = m.ROWID) AS attachments")
	}
	if c.RichText {
		cols = append(cols, "m.attributedBody AS attributedbody")
	}
	if c.AssociatedGUID {
		cols = append(cols, "m.associated_message_guid AS associated_message_guid")
	}
	if c.ReactionColumns {
		cols = append(cols, "m.associated_message_type AS associated_message_type")
	}
	if c.ThreadOriginator {
		cols = append(cols, "m.thread_originator_guid AS thread_originator_guid")
	}
	if c.DestinationCallerID {
		cols = append(cols, "m.destination_caller_id AS destination_caller_id")
	}
	if c.AudioMessage {
		cols = append(cols, "m.is_audio_message AS is_audio_message")
	}
	return "SELECT\n\t\t\t" + strings.Join(cols, ",\n\t\t\t")
}

func (s *Store) decoder() Decoder {
	return Decoder{Caps: s.caps, Transcription: s, Metrics: s.metrics}
}

// queryMessages runs query inside the executor and decodes every row. Rows
// are fully read before decoding so the transcription lookup can reuse the
// single connection.
func (s *Store) queryMessages(ctx context.Context, q Querier, fallbackChatID int64, query string, args ...any) ([]Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	dec := s.decoder()
	messages := make([]Message, 0, len(result))
	for _, r := range result {
		messages = append(messages, dec.Decode(ctx, r, fallbackChatID))
	}
	return messages, nil
}

// MessagesAfter returns up to limit messages with ROWID > afterRowID in
// ascending ROWID order, reactions included.
func (s *Store) MessagesAfter(ctx context.Context, afterRowID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 500
	}
	query := s.caps.messageColumns() + messageFrom + `
		WHERE m.ROWID > ?
		ORDER BY m.ROWID ASC
		LIMIT ?`

	var out []Message
	err := s.run(ctx, "messages_after", func(ctx context.Context, q Querier) error {
		var err error
		out, err = s.queryMessages(ctx, q, 0, query, afterRowID, limit)
		return err
	})
	return out, err
}

// Messages returns the newest messages of a chat, newest first.
func (s *Store) Messages(ctx context.Context, chatID int64, f HistoryFilter) ([]Message, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"m.ROWID IN (SELECT message_id FROM chat_message_join WHERE chat_id = ?)"}
	args := []any{chatID}
	if !f.Start.IsZero() {
		where = append(where, "m.date >= ?")
		args = append(args, appletime.ToRaw(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "m.date < ?")
		args = append(args, appletime.ToRaw(f.End))
	}
	if len(f.Participants) > 0 {
		holders := make([]string, 0, len(f.Participants))
		for _, p := range f.Participants {
			holders = append(holders, "?")
			args = append(args, strings.ToLower(strings.TrimSpace(p)))
		}
		where = append(where, "LOWER(COALESCE(h.id, '')) IN ("+strings.Join(holders, ", ")+")")
	}
	if !f.IncludeReactions && s.caps.AssociatedGUID {
		where = append(where, "NOT "+s.caps.reactionPredicate())
	}
	args = append(args, limit)

	query := s.caps.messageColumns() + messageFrom + `
		WHERE ` + strings.Join(where, "\n\t\t  AND ") + `
		ORDER BY m.date DESC, m.ROWID DESC
		LIMIT ?`

	var out []Message
	err := s.run(ctx, "messages", func(ctx context.Context, q Querier) error {
		messages, err := s.queryMessages(ctx, q, chatID, query, args...)
		if err != nil {
			return err
		}
		for _, m := range messages {
			if m.IsReaction && !f.IncludeReactions {
				continue
			}
			m.ChatID = chatID
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// MessageByGUID returns the message with guid, or ErrNotFound.
func (s *Store) MessageByGUID(ctx context.Context, guid string) (Message, error) {
	query := s.caps.messageColumns() + messageFrom + `
		WHERE m.guid = ?
		LIMIT 1`

	var out []Message
	err := s.run(ctx, "message_by_guid", func(ctx context.Context, q Querier) error {
		var err error
		out, err = s.queryMessages(ctx, q, 0, query, guid)
		return err
	})
	if err != nil {
		return Message{}, err
	}
	if len(out) == 0 {
		return Message{}, fmt.Errorf("message %s: %w", guid, ErrNotFound)
	}
	return out[0], nil
}

// MaxRowID returns the maximum ROWID from the message table
func (s *Store) MaxRowID(ctx context.Context) (int64, error) {
	var maxRowID int64
	err := s.run(ctx, "max_rowid", func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT COALESCE(MAX(ROWID), 0) AS max_rowid FROM message`)
		if err != nil {
			return fmt.Errorf("failed to query max message ROWID: %w", err)
		}
		result, err := scanRows(rows)
		if err != nil {
			return err
		}
		if len(result) > 0 {
			maxRowID = result[0].Int64("max_rowid")
		}
		return nil
	})
	return maxRowID, err
}

// Stats returns message, chat and handle counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.run(ctx, "stats", func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM message) AS total,
				(SELECT COALESCE(MAX(ROWID), 0) FROM message) AS max_rowid,
				(SELECT MIN(date) FROM message WHERE date > 0) AS oldest_date,
				(SELECT MAX(date) FROM message) AS newest_date,
				(SELECT COUNT(*) FROM chat) AS chats,
				(SELECT COUNT(*) FROM handle) AS handles
		`)
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		result, err := scanRows(rows)
		if err != nil {
			return err
		}
		if len(result) == 0 {
			return errors.New("stats query returned no rows")
		}
		r := result[0]
		st = Stats{
			TotalMessages: r.Int("total"),
			MaxRowID:      r.Int64("max_rowid"),
			OldestDate:    appletime.FromRaw(r.Int64("oldest_date")),
			NewestDate:    appletime.FromRaw(r.Int64("newest_date")),
			Chats:         r.Int("chats"),
			Handles:       r.Int("handles"),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

var _ Querier = (*sql.DB)(nil)
