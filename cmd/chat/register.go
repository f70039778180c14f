package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/hybrid-chat/internal/config"
)

var (
	registerUser     string
	registerPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Registers a new account. Registration never logs in; run "chat connect"
afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServerFlags(cmd, cfg)

		in := bufio.NewReader(cmd.InOrStdin())
		password, err := readPassword(registerPassword, in, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return runRegister(cmd.Context(), cfg, logger, registerUser, password, cmd.OutOrStdout())
	},
}

func init() {
	registerCmd.Flags().StringVarP(&registerUser, "user", "u", "", "User name (required)")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password")
	registerCmd.Flags().StringVar(&connectHost, "host", "", "Server host (overrides config)")
	registerCmd.Flags().IntVar(&connectPort, "port", 0, "Server port (overrides config)")
	registerCmd.MarkFlagRequired("user")
}

func runRegister(ctx context.Context, cfg *config.Config, logger *zap.Logger, user, password string, out io.Writer) error {
	term := newTerminal(out)
	coord, err := newCoordinator(cfg, logger, term)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return term.run(gctx) })

	err = coord.RegisterUser(ctx, user, password)
	cancel()
	g.Wait()
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}
