package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

const updateBuffer = 64

// terminal renders session callbacks on a single UI goroutine. Report
// methods may be called from any goroutine; they only queue an update.
type terminal struct {
	out     io.Writer
	updates chan func(io.Writer)
	stopped chan struct{}

	endOnce sync.Once
	ended   chan struct{}
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{
		out:     out,
		updates: make(chan func(io.Writer), updateBuffer),
		stopped: make(chan struct{}),
		ended:   make(chan struct{}),
	}
}

// run applies queued updates until ctx is done, then flushes what is left.
func (t *terminal) run(ctx context.Context) error {
	defer close(t.stopped)
	for {
		select {
		case fn := <-t.updates:
			fn(t.out)
		case <-ctx.Done():
			for {
				select {
				case fn := <-t.updates:
					fn(t.out)
				default:
					return nil
				}
			}
		}
	}
}

func (t *terminal) post(fn func(io.Writer)) {
	select {
	case t.updates <- fn:
	case <-t.stopped:
	}
}

func (t *terminal) println(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	t.post(func(w io.Writer) { fmt.Fprintln(w, text) })
}

// Ended is closed once the server side has dropped the session.
func (t *terminal) Ended() <-chan struct{} {
	return t.ended
}

func (t *terminal) ReportMessage(text string) {
	t.println("%s", text)
}

func (t *terminal) ReportError(text string) {
	t.println("Error: %s", text)
}

func (t *terminal) ReportAuthenticated(welcome string) {
	if welcome == "" {
		welcome = "Connected."
	}
	t.println("%s", welcome)
	t.println("Type your messages (or '/quit' to exit):")
}

func (t *terminal) ReportRegistered(confirmation string) {
	t.println("%s", confirmation)
}

func (t *terminal) ReportDirectory(names string) {
	if names == "" {
		t.println("Online: (nobody)")
		return
	}
	t.println("Online: %s", strings.ReplaceAll(names, ",", ", "))
}

func (t *terminal) ReportNotice(kind protocol.NoticeKind, text string) {
	t.println("*** %s ***", text)
}

func (t *terminal) ReportSessionEnded() {
	t.println("Connection lost.")
	t.endOnce.Do(func() { close(t.ended) })
}

var (
	_ dispatch.Handler       = (*terminal)(nil)
	_ dispatch.NoticeHandler = (*terminal)(nil)
)
