package sink

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TimeLayout is the timestamp format at the start of every line.
const TimeLayout = time.DateTime

// Record is one log line before formatting.
type Record struct {
	Time    time.Time
	Topic   string
	Payload []byte
}

// escaper keeps a record on a single line. The backslash is escaped too,
// so a payload holding a literal `\n` stays distinct from a line break.
var escaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`)

// DecodePayload renders payload bytes as text. Invalid UTF-8 sequences
// become U+FFFD; backslashes and line breaks are escaped.
func DecodePayload(payload []byte) string {
	return escapeText(string(payload))
}

func escapeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return escaper.Replace(s)
}

// Line formats the record, including the trailing newline.
func (r Record) Line() string {
	var b strings.Builder
	payload := DecodePayload(r.Payload)
	b.Grow(len(TimeLayout) + len(r.Topic) + len(payload) + 24)

	b.WriteString(r.Time.Format(TimeLayout))
	b.WriteString(" | Topic: ")
	b.WriteString(escapeText(r.Topic))
	b.WriteString(" | Message: ")
	b.WriteString(payload)
	b.WriteByte('\n')
	return b.String()
}
