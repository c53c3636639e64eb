package edfconv

import (
	"bytes"
	"strings"
)

const (
	talEnd       = 0x00
	talOnset     = 0x15
	talSeparator = 0x14
)

// Annotation is one entry of a time-stamped annotation list. Onset and
// Duration keep the text from the file, e.g. "+12.5".
type Annotation struct {
	Onset    string
	Duration string
	Text     string
}

// parseTALs splits an annotation channel into its annotations. Every TAL
// is "onset[\x15duration]\x14text\x14text\x14...\x00"; annotations in one
// TAL share its onset and duration. Empty texts, such as the time-keeping
// entry that starts each record, are skipped.
func parseTALs(b []byte) []Annotation {
	var out []Annotation
	for _, tal := range bytes.Split(b, []byte{talEnd}) {
		if len(tal) == 0 {
			continue
		}
		parts := bytes.Split(tal, []byte{talSeparator})
		onset, duration, _ := bytes.Cut(parts[0], []byte{talOnset})
		// the last part follows the final separator and is never a complete text
		for _, text := range parts[1 : len(parts)-1] {
			if len(text) == 0 {
				continue
			}
			out = append(out, Annotation{
				Onset:    string(onset),
				Duration: string(duration),
				Text:     latin1Text(text),
			})
		}
	}
	return out
}

// recordOnset returns the onset of the first TAL of a record in nanoseconds
func recordOnset(b []byte) int64 {
	if i := bytes.IndexByte(b, talSeparator); i >= 0 {
		b = b[:i]
	}
	return parseFixed(string(b))
}

// latin1Text keeps the Latin-1 subset of UTF-8 annotation text. Control
// characters, commas and two-byte sequences outside Latin-1 become dots.
// Decoding stops at the first sequence longer than two bytes or at a
// broken one.
func latin1Text(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c < 0x20 || c == ',' || (c > 0x7f && c < 0xc0):
			sb.WriteByte('.')
		case c > 0xdf:
			return sb.String()
		case c&0xe0 == 0xc0:
			if i+1 == len(b) || (c&0xfc == 0xc0 && b[i+1]&0xc0 != 0x80) {
				return sb.String()
			}
			if c&0xfc != 0xc0 {
				sb.WriteByte('.')
			} else {
				sb.WriteRune(rune(c&0x03)<<6 | rune(b[i+1]&0x3f))
			}
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
