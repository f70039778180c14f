// Package dispatch routes decoded push events to the presentation layer.
package dispatch

import (
	"strings"

	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Handler is the presentation collaborator driven by the session core.
// Methods may be called from background goroutines; implementations are
// responsible for marshalling onto their own update context.
type Handler interface {
	ReportMessage(text string)
	ReportError(text string)
	ReportAuthenticated(welcome string)
	ReportRegistered(confirmation string)
	ReportDirectory(names string)
	ReportSessionEnded()
}

// NoticeHandler is implemented by handlers that render join, leave and
// generic notices differently. Handlers without it receive notices through
// ReportMessage.
type NoticeHandler interface {
	ReportNotice(kind protocol.NoticeKind, text string)
}

// Dispatcher routes events to a Handler.
type Dispatcher struct {
	handler Handler
	notices NoticeHandler
	logger  *zap.Logger
}

// New creates a Dispatcher for h.
func New(h Handler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{handler: h, logger: logger}
	if nh, ok := h.(NoticeHandler); ok {
		d.notices = nh
	}
	return d
}

// Dispatch delivers one event. Events must be dispatched in arrival order
// from a single goroutine.
func (d *Dispatcher) Dispatch(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventChat, protocol.EventPrivate:
		d.handler.ReportMessage(ev.String())
	case protocol.EventError:
		d.handler.ReportError(ev.Body)
	case protocol.EventDirectory:
		d.handler.ReportDirectory(strings.Join(ev.Names, ","))
	case protocol.EventNotice:
		if d.notices != nil {
			d.notices.ReportNotice(ev.Notice, ev.Body)
			return
		}
		d.handler.ReportMessage(ev.String())
	default:
		d.logger.Warn("dropping event of unknown kind", zap.Stringer("kind", ev.Kind))
	}
}
