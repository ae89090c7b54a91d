package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/catalog"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent backup, restore and verify runs",
	Long: `List the runs recorded in the local catalog, newest first. The
catalog lives under ~/.arkhive and is advisory; backups work the same
with or without it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		hist, err := catalog.Open("")
		if err != nil {
			return err
		}
		defer hist.Close()

		records, err := hist.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("%-17s %-10s %-12s %-8s %-10s %-10s %s\n",
			"STARTED", "OPERATION", "DATE", "STATUS", "SIZE", "DURATION", "REMOTE")
		fmt.Println(strings.Repeat("-", 96))
		for _, rec := range records {
			size := "-"
			if rec.SizeBytes > 0 {
				size = humanSize(rec.SizeBytes)
			}
			remote := rec.RemotePath
			if remote == "" {
				remote = "-"
			}
			fmt.Printf("%-17s %-10s %-12s %-8s %-10s %-10s %s\n",
				rec.StartedAt.Local().Format("2006-01-02 15:04"),
				rec.Operation,
				rec.Date,
				rec.Status,
				size,
				rec.Duration.Truncate(10*time.Millisecond).String(),
				remote,
			)
		}
		fmt.Printf("\nTotal: %d run(s)\n", len(records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show")
}
