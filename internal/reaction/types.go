// Package reaction classifies tapback rows from chat.db and reconciles their
// add/remove history into the reactions currently shown on a message.
package reaction

import (
	"encoding/json"
	"time"
)

// Kind is one of the tapback kinds Messages supports.
type Kind int

const (
	KindLove Kind = iota + 1
	KindLike
	KindDislike
	KindLaugh
	KindEmphasis
	KindQuestion
	// KindCustom is an arbitrary emoji reaction (iOS 18 / macOS 15).
	KindCustom
)

var kindNames = map[Kind]string{
	KindLove:     "love",
	KindLike:     "like",
	KindDislike:  "dislike",
	KindLaugh:    "laugh",
	KindEmphasis: "emphasis",
	KindQuestion: "question",
	KindCustom:   "custom",
}

var kindEmoji = map[Kind]string{
	KindLove:     "❤️",
	KindLike:     "👍",
	KindDislike:  "👎",
	KindLaugh:    "😂",
	KindEmphasis: "‼️",
	KindQuestion: "❓",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Type identifies a reaction for de-duplication. Emoji is only set for
// KindCustom, so two custom reactions with different emoji are distinct.
type Type struct {
	Kind  Kind
	Emoji string
}

// Custom returns the custom reaction type for emoji.
func Custom(emoji string) Type {
	return Type{Kind: KindCustom, Emoji: emoji}
}

// Name returns the short name ("love", "like", ..., "custom").
func (t Type) Name() string {
	return t.Kind.String()
}

// DisplayEmoji returns the emoji shown for the reaction.
func (t Type) DisplayEmoji() string {
	if t.Kind == KindCustom {
		return t.Emoji
	}
	return kindEmoji[t.Kind]
}

// MarshalJSON encodes the type as {"kind": ..., "emoji": ...}.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Emoji string `json:"emoji"`
	}{Kind: t.Name(), Emoji: t.DisplayEmoji()})
}

func (t Type) String() string {
	if t.Kind == KindCustom {
		return "custom(" + t.Emoji + ")"
	}
	return t.Kind.String()
}

// Reaction is the current state of one person's tapback on one message.
type Reaction struct {
	RowID               int64     `json:"id"`
	Type                Type      `json:"type"`
	Sender              string    `json:"sender"`
	IsFromMe            bool      `json:"is_from_me"`
	Date                time.Time `json:"created_at"`
	AssociatedMessageID int64     `json:"message_id"`
}

// Event is a single, unreconciled reaction row.
type Event struct {
	RowID               int64
	Code                int
	Type                *Type // nil when the kind could not be determined
	IsAdd               bool
	Sender              string
	IsFromMe            bool
	Date                time.Time
	AssociatedMessageID int64
	ChatID              int64
	ReactedToGUID       string
	Text                string
}
