package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// FieldSeparator separates a frame tag from its payload.
const FieldSeparator = "|"

// Frame tags understood by ParseFrame.
const (
	TagMessage = "MESSAGE"
	TagPrivate = "PRIVATE"
	TagError   = "ERROR"
	TagUsers   = "USERS"
	TagJoin    = "JOIN"
	TagLeave   = "LEAVE"
	TagSystem  = "SYSTEM"
)

// ErrMalformedFrame is returned when a frame cannot be decoded at all.
var ErrMalformedFrame = errors.New("malformed push frame")

var systemPrefixes = []string{"[System]", "[Sistema]"}

// ParseRecord parses a chat record of the form "[HH:mm:ss] sender: body".
func ParseRecord(s string) (timestamp, sender, body string, err error) {
	if !strings.HasPrefix(s, "[") {
		return "", "", "", fmt.Errorf("%w: record must start with '['", ErrMalformedFrame)
	}
	end := strings.IndexByte(s, ']')
	if end == -1 {
		return "", "", "", fmt.Errorf("%w: unterminated timestamp", ErrMalformedFrame)
	}
	timestamp = s[1:end]
	rest := strings.TrimSpace(s[end+1:])
	colon := strings.Index(rest, ": ")
	if colon == -1 {
		return "", "", "", fmt.Errorf("%w: missing sender separator", ErrMalformedFrame)
	}
	return timestamp, strings.TrimSpace(rest[:colon]), rest[colon+2:], nil
}

// ParseFrame decodes one push record into an Event.
// It never fails: anything it cannot recognise degrades to a generic notice
// carrying the raw text.
func ParseFrame(line string) Event {
	line = strings.TrimRight(line, "\r\n")

	if tag, payload, ok := splitTag(line); ok {
		switch tag {
		case TagMessage:
			return parseChat(payload, false)
		case TagPrivate:
			return parseChat(payload, true)
		case TagError:
			return Error(payload)
		case TagUsers:
			return Directory(splitNames(payload)...)
		case TagJoin:
			return Notice(NoticeJoin, payload)
		case TagLeave:
			return Notice(NoticeLeave, payload)
		case TagSystem:
			return Notice(ClassifyNotice(payload), payload)
		}
	}

	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(line, prefix) {
			text := strings.TrimSpace(line[len(prefix):])
			return Notice(ClassifyNotice(text), text)
		}
	}

	return parseChat(line, false)
}

// EncodeFrame renders an Event as a single push record without the trailing
// newline. Line breaks inside fields are flattened to spaces.
func EncodeFrame(e Event) string {
	switch e.Kind {
	case EventChat:
		return flatten(e.Record())
	case EventPrivate:
		return TagPrivate + FieldSeparator + flatten(e.Record())
	case EventError:
		return TagError + FieldSeparator + flatten(e.Body)
	case EventDirectory:
		return TagUsers + FieldSeparator + flatten(strings.Join(e.Names, ","))
	case EventNotice:
		switch e.Notice {
		case NoticeJoin:
			return TagJoin + FieldSeparator + flatten(e.Body)
		case NoticeLeave:
			return TagLeave + FieldSeparator + flatten(e.Body)
		default:
			return TagSystem + FieldSeparator + flatten(e.Body)
		}
	default:
		return TagSystem + FieldSeparator + flatten(e.Body)
	}
}

func parseChat(payload string, private bool) Event {
	ts, sender, body, err := ParseRecord(payload)
	if err != nil {
		if private {
			return Notice(NoticeGeneric, "[Private] "+payload)
		}
		return Notice(NoticeGeneric, payload)
	}
	if private {
		return Private(sender, ts, body)
	}
	if isSystemSender(sender) {
		return Notice(ClassifyNotice(body), body)
	}
	return Chat(sender, ts, body)
}

func splitTag(line string) (tag, payload string, ok bool) {
	i := strings.Index(line, FieldSeparator)
	if i == -1 {
		return "", "", false
	}
	switch tag = line[:i]; tag {
	case TagMessage, TagPrivate, TagError, TagUsers, TagJoin, TagLeave, TagSystem:
		return tag, line[i+1:], true
	}
	return "", "", false
}

func splitNames(csv string) []string {
	var names []string
	for _, n := range strings.Split(csv, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
