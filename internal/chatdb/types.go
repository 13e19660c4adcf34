package chatdb

import (
	"strings"
	"time"

	"github.com/Napageneral/imsg/internal/reaction"
)

// Message is one decoded row of the message table. Either a plain message or
// a reaction event: when IsReaction is false every reaction field is empty.
type Message struct {
	RowID    int64     `json:"id"`
	GUID     string    `json:"guid"`
	ChatID   int64     `json:"chat_id"`
	Text     string    `json:"text"`
	Date     time.Time `json:"created_at"`
	Sender   string    `json:"sender"`
	IsFromMe bool      `json:"is_from_me"`
	Service  string    `json:"service"`

	AttachmentsCount int `json:"attachments"`

	ReplyToGUID          string `json:"reply_to_guid,omitempty"`
	ThreadOriginatorGUID string `json:"thread_originator_guid,omitempty"`
	DestinationCallerID  string `json:"destination_caller_id,omitempty"`

	IsReaction    bool           `json:"is_reaction"`
	ReactionType  *reaction.Type `json:"reaction_type,omitempty"`
	IsReactionAdd *bool          `json:"is_reaction_add,omitempty"`
	ReactedToGUID string         `json:"reacted_to_guid,omitempty"`
	ReactionCode  int            `json:"-"`
}

// ReactionEvent converts a reaction row into an unreconciled event.
func (m Message) ReactionEvent() (reaction.Event, bool) {
	if !m.IsReaction || m.IsReactionAdd == nil {
		return reaction.Event{}, false
	}
	return reaction.Event{
		RowID:         m.RowID,
		Code:          m.ReactionCode,
		Type:          m.ReactionType,
		IsAdd:         *m.IsReactionAdd,
		Sender:        m.Sender,
		IsFromMe:      m.IsFromMe,
		Date:          m.Date,
		ChatID:        m.ChatID,
		ReactedToGUID: m.ReactedToGUID,
		Text:          m.Text,
	}, true
}

// Chat is a row of the chat table with its participants.
type Chat struct {
	ID            int64     `json:"id"`
	Identifier    string    `json:"identifier"`
	GUID          string    `json:"guid"`
	Name          string    `json:"name"`
	Service       string    `json:"service"`
	Participants  []string  `json:"participants"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// SameParticipants compares participant handles as a case-insensitive set.
func (c Chat) SameParticipants(handles []string) bool {
	a := handleSet(c.Participants)
	b := handleSet(handles)
	if len(a) != len(b) {
		return false
	}
	for h := range a {
		if !b[h] {
			return false
		}
	}
	return true
}

func handleSet(handles []string) map[string]bool {
	set := make(map[string]bool, len(handles))
	for _, h := range handles {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			set[h] = true
		}
	}
	return set
}

// AttachmentMeta describes one attachment of a message.
type AttachmentMeta struct {
	Filename     string `json:"filename"`
	TransferName string `json:"transfer_name"`
	UTI          string `json:"uti"`
	MimeType     string `json:"mime_type"`
	TotalBytes   int64  `json:"total_bytes"`
	IsSticker    bool   `json:"is_sticker"`
	Path         string `json:"original_path"`
	Missing      bool   `json:"missing"`
}

// Stats summarizes the contents of chat.db.
type Stats struct {
	TotalMessages int       `json:"total_messages"`
	MaxRowID      int64     `json:"max_rowid"`
	OldestDate    time.Time `json:"oldest_date,omitempty"`
	NewestDate    time.Time `json:"newest_date,omitempty"`
	Chats         int       `json:"chats"`
	Handles       int       `json:"handles"`
}
