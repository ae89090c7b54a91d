package cmd

import (
	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [date]",
	Short: "Check that a remote backup decrypts and lists cleanly",
	Long: `Stream a remote archive through the decryption and tar listing
stages without writing anything to disk. A backup that verifies here
will restore, short of the disk filling up.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := newClient(cfg)
		defer client.Close()

		v := backup.NewVerifier(cfg, client, pipeline.NewRunner(l), l)
		name, err := v.Run(cmd.Context(), args[0])
		if err != nil {
			l.Error("Verification failed", "date", args[0], "error", err)
			return err
		}

		l.Info("Archive verified", "date", args[0], "archive", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
