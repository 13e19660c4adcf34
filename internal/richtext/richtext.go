// Package richtext recovers plain text from the attributedBody blobs that
// Messages stores next to (and increasingly instead of) the text column.
//
// This is a pragmatic extraction, not a full decoder. Three formats are
// tried in order: a binary/XML keyed-archive property list, an NSArchiver
// typedstream, and finally a scan of the raw bytes for printable runs.
// Every path is total: malformed input yields "" rather than an error.
package richtext

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"howett.net/plist"
)

// classMarker matches Foundation class names and IMCore attribute keys.
var classMarker = regexp.MustCompile(`^(NS[A-Z][a-z][A-Za-z]*|__kIM[A-Za-z]+|kIM[A-Z][A-Za-z]*)$`)

var reservedStrings = map[string]bool{
	"$null":       true,
	"streamtyped": true,
	"$objects":    true,
	"$archiver":   true,
	"$top":        true,
	"$version":    true,
	"$class":      true,
	"$classname":  true,
	"$classes":    true,
}

// ExtractPlainText returns the most plausible message text embedded in blob.
func ExtractPlainText(blob []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	if len(blob) == 0 {
		return ""
	}
	if isPropertyList(blob) {
		if s, parsed := fromKeyedArchive(blob); parsed {
			return s
		}
	}
	if s, ok := fromTypedStream(blob); ok {
		return s
	}
	return fromPrintableRuns(blob)
}

func isPropertyList(blob []byte) bool {
	return bytes.HasPrefix(blob, []byte("bplist")) ||
		bytes.HasPrefix(blob, []byte("<?xml")) ||
		bytes.HasPrefix(blob, []byte("<plist"))
}

// fromKeyedArchive scans the $objects table of an NSKeyedArchiver plist.
// parsed is false when blob is not a keyed archive at all.
func fromKeyedArchive(blob []byte) (text string, parsed bool) {
	var root map[string]interface{}
	if _, err := plist.Unmarshal(blob, &root); err != nil {
		return "", false
	}
	objects, ok := root["$objects"].([]interface{})
	if !ok {
		return "", false
	}
	var candidates []string
	for _, obj := range objects {
		s, ok := obj.(string)
		if !ok {
			continue
		}
		s = Clean(s)
		if isMarker(s) || utf8.RuneCountInString(s) <= 1 {
			continue
		}
		candidates = append(candidates, s)
	}
	return longest(candidates), true
}

// fromTypedStream reads the length-prefixed string that follows the first
// NSString class reference in a typedstream archive.
func fromTypedStream(blob []byte) (string, bool) {
	idx := bytes.Index(blob, []byte("NSString"))
	if idx < 0 {
		return "", false
	}
	pos := idx + len("NSString")
	plus := bytes.IndexByte(blob[pos:min(len(blob), pos+8)], '+')
	if plus < 0 {
		return "", false
	}
	pos += plus + 1
	if pos >= len(blob) {
		return "", false
	}

	var n int
	switch blob[pos] {
	case 0x81:
		if pos+3 > len(blob) {
			return "", false
		}
		n = int(binary.LittleEndian.Uint16(blob[pos+1 : pos+3]))
		pos += 3
	case 0x82:
		if pos+5 > len(blob) {
			return "", false
		}
		n = int(binary.LittleEndian.Uint32(blob[pos+1 : pos+5]))
		pos += 5
	default:
		n = int(blob[pos])
		pos++
	}
	if n <= 0 || pos+n > len(blob) || n > len(blob) {
		return "", false
	}
	raw := blob[pos : pos+n]
	if !utf8.Valid(raw) {
		return "", false
	}
	s := Clean(string(raw))
	return s, s != ""
}

// fromPrintableRuns splits blob on control characters and invalid UTF-8 and
// returns the longest run that is not a framework marker.
func fromPrintableRuns(blob []byte) string {
	var candidates []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" || isMarker(s) || utf8.RuneCountInString(s) <= 1 {
			return
		}
		candidates = append(candidates, s)
	}

	for i := 0; i < len(blob); {
		r, size := utf8.DecodeRune(blob[i:])
		i += size
		switch {
		case r == utf8.RuneError && size <= 1, dropped(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return longest(candidates)
}

func isMarker(s string) bool {
	return reservedStrings[s] || classMarker.MatchString(s)
}

// longest returns the candidate with the most runes, the first on ties.
func longest(candidates []string) string {
	best := ""
	bestLen := 0
	for _, c := range candidates {
		if n := utf8.RuneCountInString(c); n > bestLen {
			best, bestLen = c, n
		}
	}
	return best
}

// dropped reports runes that never belong in message text: control
// characters other than newline and tab, and the object and replacement
// placeholders archives leave where attachments were. Format characters such
// as the zero-width joiner inside emoji sequences are kept.
func dropped(r rune) bool {
	switch r {
	case '\n', '\t':
		return false
	case '\uFFFC', '\uFFFD':
		return true
	}
	return unicode.IsControl(r)
}

// Clean removes dropped runes and surrounding whitespace. Invalid UTF-8
// decodes to U+FFFD and is removed with them.
func Clean(content string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if dropped(r) {
			return -1
		}
		return r
	}, content))
}
