package ssdp

import (
	"fmt"
	"strings"
)

// MessageKind identifies which of the three SSDP start lines a Message
// carries.
type MessageKind int

const (
	// KindUnknown is the zero value; it never appears on a parsed
	// Message, since ParseMessage returns nil for an unrecognised start line.
	KindUnknown MessageKind = iota
	KindNotify
	KindSearch
	KindResponse
)

const (
	notifyStartLine   = "NOTIFY * HTTP/1.1"
	searchStartLine   = "M-SEARCH * HTTP/1.1"
	responseStartLine = "HTTP/1.1 200 OK"
)

// Message is a parsed SSDP datagram: a recognised start line plus its
// header block. Header names are lowercased; values are whitespace-trimmed.
type Message struct {
	Kind      MessageKind
	StartLine string
	Headers   map[string]string
}

// Header returns the value of the named header (case-insensitive), or ""
// if absent.
func (m *Message) Header(name string) string {
	return m.Headers[strings.ToLower(name)]
}

// ParseMessage decodes a CRLF-delimited SSDP datagram. It returns nil if
// the start line is not one of the three recognised forms. Header lines
// with no ":" are skipped rather than failing the parse.
func ParseMessage(data []byte) *Message {
	text := string(data)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 {
		return nil
	}

	startLine := strings.TrimRight(lines[0], " \t")
	var kind MessageKind
	switch startLine {
	case notifyStartLine:
		kind = KindNotify
	case searchStartLine:
		kind = KindSearch
	case responseStartLine:
		kind = KindResponse
	default:
		return nil
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value
	}

	return &Message{Kind: kind, StartLine: startLine, Headers: headers}
}

func multicastHostHeader() string {
	return fmt.Sprintf("%s:%d", MulticastAddr, MulticastPort)
}

// FormatNotify renders a NOTIFY ssdp:alive datagram for one USN/NT pair.
func FormatNotify(location, target, usn, server string) string {
	return fmt.Sprintf(
		"NOTIFY * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"CACHE-CONTROL: max-age=3600\r\n"+
			"LOCATION: %s\r\n"+
			"NT: %s\r\n"+
			"NTS: ssdp:alive\r\n"+
			"SERVER: %s\r\n"+
			"USN: %s\r\n"+
			"\r\n",
		multicastHostHeader(), location, target, server, usn,
	)
}

// FormatSearch renders an M-SEARCH datagram.
func FormatSearch(searchTarget string, maxDelay int) string {
	return fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"MAN: \"ssdp:discover\"\r\n"+
			"ST: %s\r\n"+
			"MX: %d\r\n"+
			"\r\n",
		multicastHostHeader(), searchTarget, maxDelay,
	)
}

// FormatResponse renders a unicast 200 OK reply to an M-SEARCH.
func FormatResponse(location, searchTarget, usn, server string) string {
	return fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"CACHE-CONTROL: max-age=3600\r\n"+
			"LOCATION: %s\r\n"+
			"SERVER: %s\r\n"+
			"ST: %s\r\n"+
			"USN: %s\r\n"+
			"\r\n",
		location, server, searchTarget, usn,
	)
}
