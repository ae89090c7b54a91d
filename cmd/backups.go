package cmd

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/manifest"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List the backups stored on the remote host",
	Long: `List every dated backup under the remote backup home. Details come
from the manifest written next to each archive; backups taken without a
manifest fall back to a plain directory listing.`,
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

		l.Info("Scanning remote host for backups...", "home", cfg.SSH.BackupHome)

		entries, err := client.ReadDir(cmd.Context(), cfg.SSH.BackupHome)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Printf("No backups found under %s\n", cfg.SSH.BackupHome)
				return nil
			}
			return fmt.Errorf("failed to list remote backups: %w", err)
		}

		var dates []string
		for _, e := range entries {
			if !e.IsDir {
				continue
			}
			if _, err := time.Parse("2006-01-02", e.Name); err != nil {
				continue
			}
			dates = append(dates, e.Name)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(dates)))

		fmt.Printf("\n%-12s %-42s %-10s %-7s %-9s\n", "DATE", "ARCHIVE", "SIZE", "FILES", "ENCRYPTED")
		fmt.Println(strings.Repeat("-", 84))

		count := 0
		for _, date := range dates {
			dir := path.Join(cfg.SSH.BackupHome, date)

			// The manifest has the authoritative details.
			sidecar := path.Join(dir, manifest.FileName(date, cfg.SSH.User))
			if data, err := client.ReadFile(cmd.Context(), sidecar); err == nil {
				if m, err := manifest.Deserialize(data); err == nil {
					enc := "no"
					if m.Encrypted {
						enc = "yes"
					}
					fmt.Printf("%-12s %-42s %-10s %-7d %-9s\n",
						m.Date, m.ArchiveName, humanSize(m.SizeBytes), m.Files, enc)
					count++
					continue
				}
			}

			children, err := client.ReadDir(cmd.Context(), dir)
			if err != nil {
				continue
			}
			for _, c := range children {
				if c.IsDir || strings.HasSuffix(c.Name, ".json") {
					continue
				}
				fmt.Printf("%-12s %-42s %-10s %-7s %-9s\n",
					date, c.Name, humanSize(c.Size), "-", "-")
				count++
			}
		}

		fmt.Printf("\nTotal: %d backup(s)\n", count)
		return nil
	},
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(backupsCmd)
}
