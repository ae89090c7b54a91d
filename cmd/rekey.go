package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

var oldPassFile string

var rekeyCmd = &cobra.Command{
	Use:   "rekey [date]",
	Short: "Re-encrypt a remote backup with the configured password",
	Long: `Rotate the encryption password of one remote archive. The archive
is decrypted with the old password and re-encrypted with the password
from the configuration, all streamed on the remote side via ssh; the
original is only replaced once the rotated copy is in place.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if oldPassFile == "" {
			return fmt.Errorf("--old-pass-file is required")
		}
		data, err := os.ReadFile(oldPassFile)
		if err != nil {
			return fmt.Errorf("failed to read old password file: %w", err)
		}
		oldPassword := strings.TrimSpace(string(data))

		client := newClient(cfg)
		defer client.Close()

		rk := backup.NewRekeyer(cfg, client, pipeline.NewRunner(l), l)
		name, err := rk.Run(cmd.Context(), args[0], oldPassword)
		if err != nil {
			l.Error("Rekey failed", "date", args[0], "error", err)
			return err
		}

		l.Info("Key rotation finished", "archive", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rekeyCmd)

	rekeyCmd.Flags().StringVar(&oldPassFile, "old-pass-file", "", "file holding the password the archive was written with")
}
