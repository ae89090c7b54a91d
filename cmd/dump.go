package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

var dumpOut string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the enabled databases without uploading anything",
	Long: `Run only the database dump stage. Dumps land in the backup
directory (or --out) and stay there, which is handy for ad-hoc exports
and for checking credentials before the nightly run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(l)
		dumpers, err := buildDumpers(cfg, runner, l)
		if err != nil {
			return err
		}
		if len(dumpers) == 0 {
			return fmt.Errorf("no database engine is enabled in the configuration")
		}

		destDir := cfg.Backup.Directory
		if dumpOut != "" {
			destDir = dumpOut
		}
		date := time.Now().UTC().Format("2006-01-02")

		var container *mpb.Progress
		var bar *mpb.Bar
		var onProgress func(pipeline.Progress)
		if withProgress {
			container = backup.NewProgressContainer()
			bar, onProgress = backup.AddTransferBar(container, "dump")
		}

		start := time.Now()
		var files []string
		var runErr error
		for _, d := range dumpers {
			out, err := d.Dump(cmd.Context(), destDir, date, onProgress)
			if err != nil {
				runErr = err
				l.Error("Dump failed", "engine", d.Engine(), "error", err)
				break
			}
			files = append(files, out...)
		}

		if container != nil {
			if runErr != nil {
				backup.AbortBar(bar)
			} else {
				backup.CompleteBar(bar)
			}
			container.Wait()
		}
		if runErr != nil {
			return runErr
		}

		for _, f := range files {
			fmt.Println(f)
		}
		l.Info("Dump complete", "files", len(files), "duration", time.Since(start).String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVar(&dumpOut, "out", "", "directory for the dump files (defaults to the backup directory)")
	dumpCmd.Flags().BoolVar(&withProgress, "with-progress", false, "show dump progress (requires pv)")
}
