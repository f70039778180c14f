package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

type call struct {
	method string
	arg    string
}

type recorder struct {
	calls []call
}

func (r *recorder) ReportMessage(text string) { r.calls = append(r.calls, call{"message", text}) }
func (r *recorder) ReportError(text string)   { r.calls = append(r.calls, call{"error", text}) }
func (r *recorder) ReportAuthenticated(text string) {
	r.calls = append(r.calls, call{"authenticated", text})
}
func (r *recorder) ReportRegistered(text string) { r.calls = append(r.calls, call{"registered", text}) }
func (r *recorder) ReportDirectory(names string) { r.calls = append(r.calls, call{"directory", names}) }
func (r *recorder) ReportSessionEnded()          { r.calls = append(r.calls, call{"ended", ""}) }

type noticeRecorder struct {
	recorder
}

func (r *noticeRecorder) ReportNotice(kind protocol.NoticeKind, text string) {
	r.calls = append(r.calls, call{"notice:" + kind.String(), text})
}

func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		ev   protocol.Event
		want call
	}{
		{"chat", protocol.Chat("bob", "12:00:01", "hi"), call{"message", "[12:00:01] bob: hi"}},
		{"private", protocol.Private("eve", "10:00:00", "psst"), call{"message", "[Private] [10:00:00] eve: psst"}},
		{"error", protocol.Error("User not found"), call{"error", "User not found"}},
		{"directory", protocol.Directory("alice", "bob", "alice"), call{"directory", "alice,bob,alice"}},
		{"empty directory", protocol.Directory(), call{"directory", ""}},
		{"notice", protocol.Notice(protocol.NoticeJoin, "bob joined"), call{"message", "[System] bob joined"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			dispatch.New(r, nil).Dispatch(tt.ev)
			assert.Equal(t, []call{tt.want}, r.calls)
		})
	}
}

func TestDispatcher_NoticeHandler(t *testing.T) {
	r := &noticeRecorder{}
	d := dispatch.New(r, nil)

	d.Dispatch(protocol.Notice(protocol.NoticeJoin, "bob joined"))
	d.Dispatch(protocol.Notice(protocol.NoticeLeave, "bob has left"))
	d.Dispatch(protocol.Notice(protocol.NoticeGeneric, "hello"))
	d.Dispatch(protocol.Chat("bob", "12:00:00", "still a message"))

	assert.Equal(t, []call{
		{"notice:JOIN", "bob joined"},
		{"notice:LEAVE", "bob has left"},
		{"notice:GENERIC", "hello"},
		{"message", "[12:00:00] bob: still a message"},
	}, r.calls)
}

func TestDispatcher_UnknownKindDropped(t *testing.T) {
	r := &recorder{}
	dispatch.New(r, nil).Dispatch(protocol.Event{Kind: protocol.EventKind(99)})
	assert.Empty(t, r.calls)
}
