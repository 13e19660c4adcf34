package chatdb

import (
	"context"
	"fmt"

	"github.com/Napageneral/imsg/internal/reaction"
)

// ReactionEvents returns the raw tapback rows that target guid, oldest first.
// associated_message_guid may carry a "p:N/" or "bp:" prefix.
func (s *Store) ReactionEvents(ctx context.Context, guid string) ([]reaction.Event, error) {
	if !s.caps.AssociatedGUID || guid == "" {
		return nil, nil
	}
	query := s.caps.messageColumns() + messageFrom + `
		WHERE ` + s.caps.reactionPredicate() + `
		  AND (m.associated_message_guid = ?
		    OR m.associated_message_guid = 'bp:' || ?
		    OR m.associated_message_guid LIKE '%/' || ?)
		ORDER BY m.date ASC, m.ROWID ASC`

	var events []reaction.Event
	err := s.run(ctx, "reactions", func(ctx context.Context, q Querier) error {
		targetID, err := s.rowIDForGUID(ctx, q, guid)
		if err != nil {
			return err
		}
		messages, err := s.queryMessages(ctx, q, 0, query, guid, guid, guid)
		if err != nil {
			return err
		}
		for _, m := range messages {
			if m.ReactedToGUID != guid {
				continue
			}
			ev, ok := m.ReactionEvent()
			if !ok {
				continue
			}
			ev.AssociatedMessageID = targetID
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// Reactions returns the reactions currently live on the message with guid.
func (s *Store) Reactions(ctx context.Context, guid string) ([]reaction.Reaction, error) {
	events, err := s.ReactionEvents(ctx, guid)
	if err != nil {
		return nil, err
	}
	return reaction.Reconcile(events), nil
}

func (s *Store) rowIDForGUID(ctx context.Context, q Querier, guid string) (int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT ROWID AS rowid FROM message WHERE guid = ? LIMIT 1`, guid)
	if err != nil {
		return 0, fmt.Errorf("failed to look up message %s: %w", guid, err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Int64("rowid"), nil
}
