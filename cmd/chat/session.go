package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/internal/config"
	"github.com/omochice/hybrid-chat/internal/control"
	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/internal/push"
	"github.com/omochice/hybrid-chat/internal/session"
	"github.com/omochice/hybrid-chat/internal/transport/tcp"
	"github.com/omochice/hybrid-chat/internal/transport/ws"
	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// newCoordinator wires the trust store, control client and push transport
// described by cfg. A trust store error is fatal for the process.
func newCoordinator(cfg *config.Config, logger *zap.Logger, h dispatch.Handler) (*session.Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tc, err := trust.Load(cfg.Trust.Path, cfg.Trust.Password)
	if err != nil {
		return nil, err
	}

	ctl := control.New(cfg.Server.Host, cfg.Server.Port, tc,
		control.WithTimeouts(cfg.GetConnectTimeout(), cfg.GetResponseTimeout()),
		control.WithEndpoints(cfg.Server.Endpoints),
		control.WithLogger(logger.Named("control")))

	var pushOpts []push.Option
	switch cfg.Push.Transport {
	case config.TransportWebSocket:
		pushOpts = append(pushOpts, push.WithDialer(ws.Dialer{
			Path:    cfg.Push.Path,
			Binary:  cfg.Push.Binary,
			Timeout: cfg.GetDialTimeout(),
		}))
		if cfg.Push.Binary {
			pushOpts = append(pushOpts, push.WithCodec(protocol.BinaryCodec{}))
		}
	default:
		pushOpts = append(pushOpts, push.WithDialer(tcp.Dialer{Timeout: cfg.GetDialTimeout()}))
	}

	return session.New(cfg.Server.Host, ctl, tc, h,
		session.WithLogger(logger.Named("session")),
		session.WithPushOptions(pushOpts...)), nil
}

// scanLines streams trimmed lines of r until EOF or ctx is done.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// readPassword returns flagValue, or CHAT_PASSWORD, or prompts on in.
func readPassword(flagValue string, in *bufio.Reader, out io.Writer) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if pw := os.Getenv("CHAT_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(out, "Password: ")
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
