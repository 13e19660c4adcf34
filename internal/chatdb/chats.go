package chatdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/Napageneral/imsg/internal/appletime"
)

const chatSelect = `
		SELECT
			c.*,
			c.ROWID AS rowid,
			(SELECT MAX(m.date)
			   FROM chat_message_join cmj
			   JOIN message m ON m.ROWID = cmj.message_id
			  WHERE cmj.chat_id = c.ROWID) AS last_message_date
		FROM chat c`

// ListChats returns up to limit chats, most recently active first.
func (s *Store) ListChats(ctx context.Context, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	query := chatSelect + `
		ORDER BY last_message_date IS NULL, last_message_date DESC, c.ROWID DESC
		LIMIT ?`

	var chats []Chat
	err := s.run(ctx, "chats", func(ctx context.Context, q Querier) error {
		var err error
		chats, err = s.queryChats(ctx, q, query, limit)
		return err
	})
	return chats, err
}

// Chat returns one chat by ROWID, or ErrNotFound.
func (s *Store) Chat(ctx context.Context, chatID int64) (Chat, error) {
	query := chatSelect + `
		WHERE c.ROWID = ?`

	var chats []Chat
	err := s.run(ctx, "chat", func(ctx context.Context, q Querier) error {
		var err error
		chats, err = s.queryChats(ctx, q, query, chatID)
		return err
	})
	if err != nil {
		return Chat{}, err
	}
	if len(chats) == 0 {
		return Chat{}, fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	return chats[0], nil
}

func (s *Store) queryChats(ctx context.Context, q Querier, query string, args ...any) ([]Chat, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	chats := make([]Chat, 0, len(result))
	ids := make([]any, 0, len(result))
	for _, r := range result {
		ch := Chat{
			ID:            r.Int64("rowid"),
			Identifier:    r.String("chat_identifier"),
			GUID:          r.String("guid"),
			Name:          r.String("display_name"),
			Service:       r.String("service_name"),
			LastMessageAt: appletime.FromRaw(r.Int64("last_message_date")),
		}
		if ch.Name == "" {
			ch.Name = ch.Identifier
		}
		chats = append(chats, ch)
		ids = append(ids, ch.ID)
	}

	if len(chats) == 0 || !s.caps.ChatHandleJoin {
		return chats, nil
	}
	participants, err := s.participants(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		chats[i].Participants = participants[chats[i].ID]
	}
	return chats, nil
}

func (s *Store) participants(ctx context.Context, q Querier, chatIDs []any) (map[int64][]string, error) {
	holders := strings.TrimSuffix(strings.Repeat("?, ", len(chatIDs)), ", ")
	rows, err := q.QueryContext(ctx, `
		SELECT chj.chat_id AS chat_id, h.id AS handle
		FROM chat_handle_join chj
		JOIN handle h ON h.ROWID = chj.handle_id
		WHERE chj.chat_id IN (`+holders+`)
		ORDER BY chj.chat_id, h.id
	`, chatIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat participants: %w", err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]string)
	for _, r := range result {
		id := r.Int64("chat_id")
		if h := r.String("handle"); h != "" {
			out[id] = append(out[id], h)
		}
	}
	return out, nil
}
