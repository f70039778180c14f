// Package protocol defines the events pushed by the chat server and the
// responses returned by its control endpoints, together with their codecs.
package protocol

import (
	"fmt"
	"strings"
)

// EventKind represents the variant of a pushed event
type EventKind int

const (
	EventChat EventKind = iota
	EventPrivate
	EventError
	EventDirectory
	EventNotice
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventChat:
		return "CHAT"
	case EventPrivate:
		return "PRIVATE"
	case EventError:
		return "ERROR"
	case EventDirectory:
		return "DIRECTORY"
	case EventNotice:
		return "NOTICE"
	default:
		return "UNKNOWN"
	}
}

// NoticeKind sub-classifies system notices
type NoticeKind int

const (
	NoticeGeneric NoticeKind = iota
	NoticeJoin
	NoticeLeave
)

// String returns the string representation of NoticeKind
func (k NoticeKind) String() string {
	switch k {
	case NoticeJoin:
		return "JOIN"
	case NoticeLeave:
		return "LEAVE"
	default:
		return "GENERIC"
	}
}

// Event is one decoded unit pushed by the server.
//
// Kind selects which fields are meaningful:
//   - EventChat, EventPrivate: Sender, Timestamp, Body
//   - EventError: Body (the detail)
//   - EventDirectory: Names
//   - EventNotice: Body and Notice
type Event struct {
	Kind      EventKind
	Sender    string
	Timestamp string
	Body      string
	Names     []string
	Notice    NoticeKind
}

// Chat builds a public chat message event.
func Chat(sender, timestamp, body string) Event {
	return Event{Kind: EventChat, Sender: sender, Timestamp: timestamp, Body: body}
}

// Private builds a private message event.
func Private(sender, timestamp, body string) Event {
	return Event{Kind: EventPrivate, Sender: sender, Timestamp: timestamp, Body: body}
}

// Error builds an error event.
func Error(detail string) Event {
	return Event{Kind: EventError, Body: detail}
}

// Directory builds a directory snapshot event.
func Directory(names ...string) Event {
	return Event{Kind: EventDirectory, Names: names}
}

// Notice builds a system notice of the given kind.
func Notice(kind NoticeKind, text string) Event {
	return Event{Kind: EventNotice, Notice: kind, Body: text}
}

// Record formats a chat or private message as "[HH:mm:ss] sender: body".
func (e Event) Record() string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp, e.Sender, e.Body)
}

// String renders the event as a single human readable line.
func (e Event) String() string {
	switch e.Kind {
	case EventChat:
		return e.Record()
	case EventPrivate:
		return "[Private] " + e.Record()
	case EventError:
		return "Error: " + e.Body
	case EventDirectory:
		return "Users: " + strings.Join(e.Names, ", ")
	case EventNotice:
		return "[System] " + e.Body
	default:
		return e.Body
	}
}
