package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
)

// headerField is one header line to add to a message
type headerField struct {
	name  string
	value string
}

// readHeader parses the header block of a raw message
func readHeader(raw []byte) (textproto.MIMEHeader, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	hdr, err := r.ReadMIMEHeader()
	if err != nil && len(hdr) == 0 {
		return nil, fmt.Errorf("failed to parse message headers: %w", err)
	}
	return hdr, nil
}

// prependHeaders returns raw with fields written in front of the existing headers,
// leaving the original headers and body untouched
func prependHeaders(raw []byte, fields []headerField) []byte {
	var buf bytes.Buffer
	buf.Grow(len(raw) + 128)
	for _, f := range fields {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.name, f.value)
	}
	buf.Write(raw)
	return buf.Bytes()
}

// buildRaw reassembles a message from header fields and body, as a milter receives them
func buildRaw(fields []headerField, body []byte) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.name, f.value)
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// envelopeAddress strips angle brackets and any display name from an address
func envelopeAddress(s string) string {
	s = strings.TrimSpace(s)
	start := strings.LastIndex(s, "<")
	end := strings.LastIndex(s, ">")

	if start >= 0 && end > start {
		return s[start+1 : end]
	}
	return s
}
