package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/hybrid-chat/internal/config"
)

const logoutTimeout = 5 * time.Second

// errConnectionLost is returned when the server drops the push channel.
var errConnectionLost = errors.New("connection lost")

var (
	connectUser     string
	connectPassword string
	connectHost     string
	connectPort     int
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Log in and chat",
	Long: `Logs in, opens the push channel and reads chat lines from stdin.
Every line is sent as a message; "/quit" or end of input logs out.

The password is taken from --password, then CHAT_PASSWORD, then prompted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServerFlags(cmd, cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		in := bufio.NewReader(cmd.InOrStdin())
		password, err := readPassword(connectPassword, in, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return runConnect(ctx, cfg, logger, connectUser, password, in, cmd.OutOrStdout())
	},
}

func init() {
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "User name (required)")
	connectCmd.Flags().StringVarP(&connectPassword, "password", "p", "", "Password")
	connectCmd.Flags().StringVar(&connectHost, "host", "", "Server host (overrides config)")
	connectCmd.Flags().IntVar(&connectPort, "port", 0, "Server port (overrides config)")
	connectCmd.MarkFlagRequired("user")
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = connectHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = connectPort
	}
}

// runConnect logs user in and runs the chat loop until the input ends,
// "/quit" is typed, ctx is cancelled or the connection is lost.
func runConnect(ctx context.Context, cfg *config.Config, logger *zap.Logger, user, password string, in io.Reader, out io.Writer) error {
	term := newTerminal(out)
	coord, err := newCoordinator(cfg, logger, term)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return term.run(gctx) })

	if err := coord.Login(ctx, user, password); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("login failed: %w", err)
	}

	lines := scanLines(gctx, in)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-term.Ended():
				return errConnectionLost
			case line, ok := <-lines:
				if !ok || line == "/quit" {
					return nil
				}
				if line == "" {
					continue
				}
				coord.SendText(line)
			}
		}
	})

	err = g.Wait()

	logoutCtx, cancelLogout := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancelLogout()
	if lerr := coord.Disconnect(logoutCtx); lerr != nil {
		logger.Debug("logout skipped", zap.Error(lerr))
	}
	return err
}
