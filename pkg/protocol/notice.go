package protocol

import "strings"

// Markers are matched case-insensitively against notice text. The Spanish
// markers keep compatibility with servers that only emit untagged notices.
var (
	joinMarkers   = []string{"se uni", " joined"}
	leaveMarkers  = []string{"ha salido", "se desconect", "abandonó", " has left", " disconnected"}
	systemSenders = []string{"system", "sistema", "server"}
)

// ClassifyNotice sub-classifies free notice text into join, leave or generic.
func ClassifyNotice(text string) NoticeKind {
	low := strings.ToLower(text)
	for _, m := range joinMarkers {
		if strings.Contains(low, m) {
			return NoticeJoin
		}
	}
	for _, m := range leaveMarkers {
		if strings.Contains(low, m) {
			return NoticeLeave
		}
	}
	return NoticeGeneric
}

func isSystemSender(sender string) bool {
	low := strings.ToLower(sender)
	for _, s := range systemSenders {
		if low == s {
			return true
		}
	}
	return false
}
