package chatdb

import (
	"context"
	"regexp"
	"strings"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Capabilities records which optional columns exist in the opened chat.db.
// Columns come and go between macOS releases; every query consults these
// flags instead of assuming a schema version.
type Capabilities struct {
	// AssociatedGUID alone is enough for legacy text reactions; ReactionColumns
	// also needs associated_message_type.
	AssociatedGUID      bool `json:"associated_guid"`
	ReactionColumns     bool `json:"reaction_columns"`
	RichText            bool `json:"rich_text"`
	ThreadOriginator    bool `json:"thread_originator"`
	DestinationCallerID bool `json:"destination_caller_id"`
	AudioMessage        bool `json:"audio_message"`
	AttachmentUserInfo  bool `json:"attachment_user_info"`
	AttachmentJoin      bool `json:"attachment_join"`
	ChatHandleJoin      bool `json:"chat_handle_join"`
}

// ProbeColumns returns the lower-cased column names of table. Any failure,
// including a missing table, yields an empty set.
func ProbeColumns(ctx context.Context, q Querier, table string) map[string]bool {
	cols := make(map[string]bool)
	if !identifier.MatchString(table) {
		return cols
	}
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return cols
	}
	result, err := scanRows(rows)
	if err != nil {
		return make(map[string]bool)
	}
	for _, r := range result {
		if name := r.String("name"); name != "" {
			cols[strings.ToLower(name)] = true
		}
	}
	return cols
}

// ProbeCapabilities inspects the message, attachment and join tables.
func ProbeCapabilities(ctx context.Context, q Querier) Capabilities {
	message := ProbeColumns(ctx, q, "message")
	attachment := ProbeColumns(ctx, q, "attachment")
	attachmentJoin := ProbeColumns(ctx, q, "message_attachment_join")
	chatHandleJoin := ProbeColumns(ctx, q, "chat_handle_join")

	return Capabilities{
		AssociatedGUID:      message["associated_message_guid"],
		ReactionColumns:     message["associated_message_guid"] && message["associated_message_type"],
		RichText:            message["attributedbody"],
		ThreadOriginator:    message["thread_originator_guid"],
		DestinationCallerID: message["destination_caller_id"],
		AudioMessage:        message["is_audio_message"],
		AttachmentUserInfo:  attachment["user_info"] && attachmentJoin["message_id"],
		AttachmentJoin:      attachmentJoin["message_id"] && attachmentJoin["attachment_id"],
		ChatHandleJoin:      chatHandleJoin["chat_id"] && chatHandleJoin["handle_id"],
	}
}
