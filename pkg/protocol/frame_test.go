package protocol_test

import (
	"reflect"
	"testing"

	"github.com/omochice/hybrid-chat/pkg/protocol"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		line string
		want protocol.Event
	}{
		{
			name: "plain chat record",
			line: "[12:00:01] bob: hi",
			want: protocol.Chat("bob", "12:00:01", "hi"),
		},
		{
			name: "chat record with trailing CRLF",
			line: "[12:00:01] bob: hi\r\n",
			want: protocol.Chat("bob", "12:00:01", "hi"),
		},
		{
			name: "chat body keeps later separators",
			line: "[08:15:00] carol: note: a|b",
			want: protocol.Chat("carol", "08:15:00", "note: a|b"),
		},
		{
			name: "tagged chat record",
			line: "MESSAGE|[09:00:00] dave: morning",
			want: protocol.Chat("dave", "09:00:00", "morning"),
		},
		{
			name: "private message",
			line: "PRIVATE|[10:10:10] eve: psst",
			want: protocol.Private("eve", "10:10:10", "psst"),
		},
		{
			name: "unparseable private message degrades to notice",
			line: "PRIVATE|garbled",
			want: protocol.Notice(protocol.NoticeGeneric, "[Private] garbled"),
		},
		{
			name: "error",
			line: "ERROR|User not found",
			want: protocol.Error("User not found"),
		},
		{
			name: "directory",
			line: "USERS|alice, bob,alice",
			want: protocol.Directory("alice", "bob", "alice"),
		},
		{
			name: "empty directory",
			line: "USERS|",
			want: protocol.Directory(),
		},
		{
			name: "explicit join",
			line: "JOIN|alice is here",
			want: protocol.Notice(protocol.NoticeJoin, "alice is here"),
		},
		{
			name: "explicit leave",
			line: "LEAVE|alice went away",
			want: protocol.Notice(protocol.NoticeLeave, "alice went away"),
		},
		{
			name: "system notice classified as join",
			line: "SYSTEM|bob joined the chat",
			want: protocol.Notice(protocol.NoticeJoin, "bob joined the chat"),
		},
		{
			name: "bracketed system prefix classified as leave",
			line: "[Sistema] bob ha salido del chat",
			want: protocol.Notice(protocol.NoticeLeave, "bob ha salido del chat"),
		},
		{
			name: "record from system sender becomes notice",
			line: "[12:00:00] Sistema: alice se unió al chat",
			want: protocol.Notice(protocol.NoticeJoin, "alice se unió al chat"),
		},
		{
			name: "unknown tag is not a tag",
			line: "HELLO|world",
			want: protocol.Notice(protocol.NoticeGeneric, "HELLO|world"),
		},
		{
			name: "free text degrades to generic notice",
			line: "server maintenance at noon",
			want: protocol.Notice(protocol.NoticeGeneric, "server maintenance at noon"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.ParseFrame(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseFrame(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	events := []protocol.Event{
		protocol.Chat("alice", "12:00:01", "hello there"),
		protocol.Chat("bob", "23:59:59", "colons: are fine"),
		protocol.Private("carol", "00:00:00", "secret"),
		protocol.Error("Invalid password"),
		protocol.Directory("alice", "bob"),
		protocol.Notice(protocol.NoticeJoin, "dave is here"),
		protocol.Notice(protocol.NoticeLeave, "dave went away"),
		protocol.Notice(protocol.NoticeGeneric, "maintenance soon"),
	}

	for _, ev := range events {
		t.Run(ev.Kind.String(), func(t *testing.T) {
			got := protocol.ParseFrame(protocol.EncodeFrame(ev))
			if !reflect.DeepEqual(got, ev) {
				t.Errorf("round trip = %+v, want %+v", got, ev)
			}
		})
	}
}

func TestEncodeFrame_FlattensNewlines(t *testing.T) {
	got := protocol.EncodeFrame(protocol.Chat("alice", "12:00:00", "line1\nline2"))
	want := "[12:00:00] alice: line1 line2"
	if got != want {
		t.Errorf("EncodeFrame() = %q, want %q", got, want)
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid", "[12:00:01] bob: hi", false},
		{"missing bracket", "12:00:01 bob: hi", true},
		{"unterminated timestamp", "[12:00:01 bob: hi", true},
		{"missing colon", "[12:00:01] bob hi", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := protocol.ParseRecord(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRecord(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestClassifyNotice(t *testing.T) {
	tests := []struct {
		text string
		want protocol.NoticeKind
	}{
		{"alice SE UNIÓ al chat", protocol.NoticeJoin},
		{"alice joined", protocol.NoticeJoin},
		{"alice abandonó la sala", protocol.NoticeLeave},
		{"alice se desconectó", protocol.NoticeLeave},
		{"alice has left", protocol.NoticeLeave},
		{"welcome to the server", protocol.NoticeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := protocol.ClassifyNotice(tt.text); got != tt.want {
				t.Errorf("ClassifyNotice(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
