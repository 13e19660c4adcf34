package chatdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

const audioTranscriptionKey = "audio-transcription"

// Attachments returns metadata for every attachment of a message.
func (s *Store) Attachments(ctx context.Context, messageRowID int64) ([]AttachmentMeta, error) {
	if !s.caps.AttachmentJoin {
		return nil, nil
	}
	var out []AttachmentMeta
	err := s.run(ctx, "attachments", func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT a.*
			FROM attachment a
			INNER JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
			WHERE maj.message_id = ?
			ORDER BY a.ROWID
		`, messageRowID)
		if err != nil {
			return fmt.Errorf("failed to query attachments: %w", err)
		}
		result, err := scanRows(rows)
		if err != nil {
			return err
		}
		for _, r := range result {
			out = append(out, s.attachmentFromRow(r))
		}
		return nil
	})
	return out, err
}

func (s *Store) attachmentFromRow(r Row) AttachmentMeta {
	meta := AttachmentMeta{
		Filename:     r.String("filename"),
		TransferName: r.String("transfer_name"),
		UTI:          r.String("uti"),
		MimeType:     r.String("mime_type"),
		TotalBytes:   r.Int64("total_bytes"),
		IsSticker:    r.Bool("is_sticker"),
	}
	meta.Path = expandHome(meta.Filename, s.homeDir)
	if meta.Path == "" {
		meta.Missing = true
	} else if _, err := os.Stat(meta.Path); err != nil {
		meta.Missing = true
	}
	return meta
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") && home != "" {
		return filepath.Join(home, path[2:])
	}
	return path
}

// AudioTranscription returns the transcription embedded in the user_info
// property list of an audio message's attachment, or "".
func (s *Store) AudioTranscription(ctx context.Context, messageRowID int64) (string, error) {
	if !s.caps.AttachmentUserInfo {
		return "", nil
	}
	var text string
	err := s.run(ctx, "audio_transcription", func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT a.user_info AS user_info
			FROM attachment a
			INNER JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
			WHERE maj.message_id = ? AND a.user_info IS NOT NULL
			ORDER BY a.ROWID
		`, messageRowID)
		if err != nil {
			return fmt.Errorf("failed to query attachment user_info: %w", err)
		}
		result, err := scanRows(rows)
		if err != nil {
			return err
		}
		for _, r := range result {
			if t := transcriptionFromUserInfo(r.Bytes("user_info")); t != "" {
				text = t
				return nil
			}
		}
		return nil
	})
	return text, err
}

func transcriptionFromUserInfo(blob []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	if len(blob) == 0 {
		return ""
	}
	var info map[string]interface{}
	if _, err := plist.Unmarshal(blob, &info); err != nil {
		return ""
	}
	t, _ := info[audioTranscriptionKey].(string)
	return strings.TrimSpace(t)
}
