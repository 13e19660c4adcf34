package reaction

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// associated_message_type codes. Removals mirror additions at a fixed offset.
const (
	CodeLove     = 2000
	CodeLike     = 2001
	CodeDislike  = 2002
	CodeLaugh    = 2003
	CodeEmphasis = 2004
	CodeQuestion = 2005
	CodeCustom   = 2006

	RemoveOffset     = 1000
	CodeCustomRemove = CodeCustom + RemoveOffset

	addMin    = CodeLove
	addMax    = CodeCustom
	removeMin = addMin + RemoveOffset
	removeMax = addMax + RemoveOffset
)

var codeKinds = map[int]Kind{
	CodeLove:     KindLove,
	CodeLike:     KindLike,
	CodeDislike:  KindDislike,
	CodeLaugh:    KindLaugh,
	CodeEmphasis: KindEmphasis,
	CodeQuestion: KindQuestion,
	CodeCustom:   KindCustom,
}

var (
	reactedPattern = regexp.MustCompile(`Reacted\s+(.+?)\s+to\s`)
	removedPattern = regexp.MustCompile(`Removed\s+(.+?)\s+from\s`)
)

// IsAdd reports whether code adds a reaction.
func IsAdd(code int) bool {
	return code >= addMin && code <= addMax
}

// IsRemove reports whether code removes a reaction.
func IsRemove(code int) bool {
	return code >= removeMin && code <= removeMax
}

// IsReaction reports whether code is any reaction code.
func IsReaction(code int) bool {
	return IsAdd(code) || IsRemove(code)
}

// Classify maps code to a reaction type. Every add and remove code
// classifies; customEmoji is used only for the custom code and may be empty.
func Classify(code int, customEmoji string) (Type, bool) {
	if IsRemove(code) {
		code -= RemoveOffset
	}
	kind, ok := codeKinds[code]
	if !ok {
		return Type{}, false
	}
	if kind == KindCustom {
		return Custom(customEmoji), true
	}
	return Type{Kind: kind}, true
}

// Decoded is the reaction facet of a message row.
type Decoded struct {
	IsReaction    bool
	Type          *Type
	IsAdd         *bool
	ReactedToGUID string
}

// Decode interprets a row's associated_message_type, associated_message_guid
// and text. Out-of-range codes are "not a reaction", not an error.
func Decode(code int, associatedGUID, text string) Decoded {
	if !IsReaction(code) {
		return Decoded{}
	}
	isAdd := IsAdd(code)
	d := Decoded{
		IsReaction:    true,
		IsAdd:         &isAdd,
		ReactedToGUID: NormalizeGUID(associatedGUID),
	}

	emoji := ""
	if code == CodeCustom || code == CodeCustomRemove {
		// A custom reaction whose emoji is unreadable stays untyped.
		if emoji = ExtractEmoji(text); emoji == "" {
			return d
		}
	}
	if t, ok := Classify(code, emoji); ok {
		d.Type = &t
	}
	return d
}

// NormalizeGUID strips routing prefixes such as "p:0/" or "bp:" from an
// associated message GUID.
func NormalizeGUID(guid string) string {
	guid = strings.TrimSpace(guid)
	if idx := strings.LastIndex(guid, "/"); idx >= 0 {
		return guid[idx+1:]
	}
	return strings.TrimPrefix(guid, "bp:")
}

// ExtractEmoji pulls the emoji out of a custom reaction's display text,
// e.g. `Reacted 🎉 to "see you soon"`. Without the phrase it falls back to the
// first emoji grapheme anywhere in text.
func ExtractEmoji(text string) string {
	for _, re := range []*regexp.Regexp{reactedPattern, removedPattern} {
		if m := re.FindStringSubmatch(text); m != nil {
			if e := firstEmoji(m[1]); e != "" {
				return e
			}
		}
	}
	return firstEmoji(text)
}

func firstEmoji(text string) string {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		if isEmojiCluster(g.Runes()) {
			return cluster
		}
	}
	return ""
}

func isEmojiCluster(runes []rune) bool {
	if len(runes) == 0 {
		return false
	}
	r := runes[0]
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	}
	for _, r := range runes[1:] {
		if r == 0xFE0F || r == 0x20E3 {
			return true
		}
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}

// legacyPrefixes are the English display strings older macOS versions wrote
// into reaction rows whose associated_message_type is 0 or absent.
var legacyPrefixes = []struct {
	prefix string
	code   int
}{
	{"Loved ", CodeLove},
	{"Liked ", CodeLike},
	{"Disliked ", CodeDislike},
	{"Laughed at ", CodeLaugh},
	{"Emphasized ", CodeEmphasis},
	{"Questioned ", CodeQuestion},
}

// CodeFromText maps legacy reaction text to an add code. Matching is
// case-sensitive and anchored at the first byte.
func CodeFromText(text string) (int, bool) {
	for _, p := range legacyPrefixes {
		if strings.HasPrefix(text, p.prefix) {
			return p.code, true
		}
	}
	return 0, false
}
