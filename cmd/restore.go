package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [date] [destination]",
	Short: "Restore a dated backup from the remote host",
	Long: `Download the archive for the given date and unpack it into the
destination directory (the current directory when omitted). The archive
format is detected from the remote file name, so restoring works even
after the compression setting changed since the backup was taken.

Run without a date to list the dates available on the remote host.`,
	Args:          cobra.MaximumNArgs(2),
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

		r := backup.NewRestorer(cfg, client, pipeline.NewRunner(l), l)

		if len(args) == 0 {
			dates, err := r.Dates(cmd.Context())
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				return fmt.Errorf("no backups found under %s on %s", cfg.SSH.BackupHome, cfg.SSH.Host)
			}
			fmt.Println("Available backups:")
			for _, d := range dates {
				fmt.Printf("  %s\n", d)
			}
			return fmt.Errorf("a backup date is required")
		}

		date := args[0]
		dest := "."
		if len(args) == 2 {
			dest = args[1]
		}

		if err := r.Run(cmd.Context(), date, dest); err != nil {
			l.Error("Restore failed", "error", err)
			return err
		}

		l.Info("Restore complete", "date", date, "destination", dest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
