package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omochice/hybrid-chat/internal/trust"
)

var (
	sealIn       string
	sealOut      string
	sealPassword string
)

var truststoreCmd = &cobra.Command{
	Use:   "truststore",
	Short: "Manage the local trust store",
}

var truststoreSealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal a PEM certificate bundle with a password",
	Long: `Encrypts a PEM bundle of CA certificates into a sealed trust store that
"chat connect" can load in place of a PKCS#12 file.

Example:
  chat truststore seal --in server-ca.pem --out certs/truststore.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := sealPassword
		if !cmd.Flags().Changed("password") {
			password = cfg.Trust.Password
		}

		pemData, err := os.ReadFile(sealIn)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", sealIn, err)
		}
		sealed, err := trust.Seal(password, pemData)
		if err != nil {
			return err
		}
		if err := os.WriteFile(sealOut, sealed, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", sealOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sealed trust store written to %s\n", sealOut)
		return nil
	},
}

var truststoreInspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "List the certificates in a trust store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Trust.Path
		if len(args) == 1 {
			path = args[0]
		}
		tc, err := trust.Load(path, cfg.Trust.Password)
		if err != nil {
			return err
		}
		for _, cert := range tc.Certificates() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (expires %s)\n",
				cert.Subject.String(), cert.NotAfter.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	truststoreSealCmd.Flags().StringVar(&sealIn, "in", "", "PEM bundle to seal (required)")
	truststoreSealCmd.Flags().StringVar(&sealOut, "out", "truststore.json", "Output path")
	truststoreSealCmd.Flags().StringVar(&sealPassword, "password", "", "Password (default: trust store password from config)")
	truststoreSealCmd.MarkFlagRequired("in")

	truststoreCmd.AddCommand(truststoreSealCmd)
	truststoreCmd.AddCommand(truststoreInspectCmd)
}
