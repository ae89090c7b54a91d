package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/logger"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove remote backups older than the retention window",
	Long: `Run the retention sweep on its own, without taking a backup. The
same sweep runs during every backup once the database dumps are done;
this command exists for reclaiming space after shortening the window.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		days := cfg.Backup.RetentionDays
		if cmd.Flags().Changed("days") {
			days = pruneDays
		}
		if days <= 0 {
			return fmt.Errorf("retention is disabled (days <= 0); nothing to prune")
		}

		client := newClient(cfg)
		defer client.Close()

		removed, err := backup.NewRetention(client, l).Cleanup(cmd.Context(), cfg.SSH.BackupHome, days)
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			l.Info("Nothing to prune", "days", days)
			return nil
		}

		for _, name := range removed {
			fmt.Println(name)
		}
		l.Info("Prune complete", "removed", len(removed), "days", days)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "override backup.retention_days for this run")
}
