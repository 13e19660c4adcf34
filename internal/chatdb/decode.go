package chatdb

import (
	"context"

	"github.com/Napageneral/imsg/internal/appletime"
	"github.com/Napageneral/imsg/internal/metrics"
	"github.com/Napageneral/imsg/internal/reaction"
	"github.com/Napageneral/imsg/internal/richtext"
)

// TranscriptionSource looks up the transcription Messages stores for an
// audio message's attachment.
type TranscriptionSource interface {
	AudioTranscription(ctx context.Context, messageRowID int64) (string, error)
}

// Decoder turns message rows into Messages for one set of capabilities.
type Decoder struct {
	Caps          Capabilities
	Transcription TranscriptionSource
	Metrics       *metrics.Metrics
}

// Decode builds a Message from row. Column coercion never fails; an
// unavailable transcription degrades to empty text.
func (d Decoder) Decode(ctx context.Context, row Row, fallbackChatID int64) Message {
	msg := Message{
		RowID:    row.Int64("rowid"),
		GUID:     row.String("guid"),
		ChatID:   row.Int64("chat_id"),
		Date:     appletime.FromRaw(row.Int64("date")),
		IsFromMe: row.Bool("is_from_me"),
		Service:  row.String("service"),

		AttachmentsCount: max(row.Int("attachments"), 0),
	}
	if row.IsNull("chat_id") {
		msg.ChatID = fallbackChatID
	}

	msg.Text = d.resolveText(ctx, row, msg.RowID)

	msg.Sender = row.String("sender")
	if d.Caps.DestinationCallerID {
		msg.DestinationCallerID = row.String("destination_caller_id")
		if msg.Sender == "" && msg.DestinationCallerID != "" {
			msg.Sender = msg.DestinationCallerID
			d.Metrics.DecodeFallback("destination_caller_id")
		}
	}

	associatedGUID := ""
	if d.Caps.AssociatedGUID {
		associatedGUID = row.String("associated_message_guid")
		code := 0
		if d.Caps.ReactionColumns {
			code = row.Int("associated_message_type")
		}
		// Legacy reactions are recognised from the text column only, as the
		// history and reaction queries do.
		if code == 0 && associatedGUID != "" {
			if legacy, ok := reaction.CodeFromText(row.String("text")); ok {
				code = legacy
			}
		}
		if facet := reaction.Decode(code, associatedGUID, msg.Text); facet.IsReaction {
			msg.IsReaction = true
			msg.ReactionType = facet.Type
			msg.IsReactionAdd = facet.IsAdd
			msg.ReactedToGUID = facet.ReactedToGUID
			msg.ReactionCode = code
		}
	}

	if !msg.IsReaction && associatedGUID != "" {
		msg.ReplyToGUID = reaction.NormalizeGUID(associatedGUID)
	}
	if d.Caps.ThreadOriginator {
		msg.ThreadOriginatorGUID = row.String("thread_originator_guid")
		if msg.ReplyToGUID == "" && msg.ThreadOriginatorGUID != "" {
			msg.ReplyToGUID = reaction.NormalizeGUID(msg.ThreadOriginatorGUID)
		}
	}
	return msg
}

func (d Decoder) resolveText(ctx context.Context, row Row, rowID int64) string {
	if text := row.String("text"); text != "" {
		return text
	}
	if d.Caps.RichText {
		if text := richtext.ExtractPlainText(row.Bytes("attributedbody")); text != "" {
			d.Metrics.DecodeFallback("rich_text")
			return text
		}
	}
	if d.Caps.AudioMessage && d.Caps.AttachmentUserInfo && row.Bool("is_audio_message") && d.Transcription != nil {
		if text, err := d.Transcription.AudioTranscription(ctx, rowID); err == nil && text != "" {
			d.Metrics.DecodeFallback("audio_transcription")
			return text
		}
	}
	return ""
}
