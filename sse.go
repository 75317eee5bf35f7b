package webmod

import (
	"bytes"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	// Name becomes the "event:" line; empty omits it.
	Name string
	// Data is split on newlines into one "data:" line each.
	Data string
}

// FormatEvent renders e in text/event-stream framing, terminated by a
// blank line.
func FormatEvent(e Event) []byte {
	var buf bytes.Buffer
	if e.Name != "" {
		buf.WriteString("event: ")
		buf.WriteString(e.Name)
		buf.WriteByte('\n')
	}
	if e.Data != "" {
		data := strings.ReplaceAll(e.Data, "\r\n", "\n")
		for _, line := range strings.Split(data, "\n") {
			buf.WriteString("data: ")
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
