package cmd

import (
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/catalog"
	"github.com/arkhive/arkhive/internal/compress"
	"github.com/arkhive/arkhive/internal/config"
	"github.com/arkhive/arkhive/internal/dump"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/notify"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

var (
	diskSpaceCheck bool
	withProgress   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the configured directory and databases to the remote host",
	Long: `Run one full backup: dump the enabled databases into the backup
directory, archive the directory minus its exclusions, and stream the
result to the remote host over SSH. The archive is compressed and
optionally encrypted on the way out, never staged on local disk.

The run fails as a whole on the first error; there is no partial
success. If the backup fails, arkhive exits with a non-zero status.`,
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

		runner := pipeline.NewRunner(l)
		dumpers, err := buildDumpers(cfg, runner, l)
		if err != nil {
			return err
		}

		o := backup.NewOrchestrator(cfg, client, runner, dumpers, l)
		if n := notify.BuildNotifier(cfg); n != nil {
			o.SetNotifier(n)
		}
		if hist, err := catalog.Open(""); err == nil {
			defer hist.Close()
			o.SetHistory(hist)
		} else {
			l.Warn("Run history disabled", "error", err)
		}

		opts := backup.Options{
			DiskSpaceCheck: diskSpaceCheck,
			Progress:       withProgress,
		}

		var container *mpb.Progress
		var bar *mpb.Bar
		if withProgress {
			container = backup.NewProgressContainer()
			bar, opts.OnProgress = backup.AddTransferBar(container, "backup")
		}

		res, err := o.Run(cmd.Context(), opts)
		if container != nil {
			if err != nil {
				backup.AbortBar(bar)
			} else {
				backup.CompleteBar(bar)
			}
			container.Wait()
		}
		if err != nil {
			l.Error("Backup failed", "error", err)
			return err
		}

		l.Info("Backup complete",
			"remote", res.RemotePath,
			"size", res.SizeBytes,
			"files", res.Files,
			"duration", res.Duration.String(),
		)
		if len(res.Warnings) > 0 {
			l.Warn("Some paths were skipped", "count", len(res.Warnings))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().BoolVar(&diskSpaceCheck, "with-disk-space-check", true, "estimate sizes and verify free space before dumping")
	backupCmd.Flags().BoolVar(&withProgress, "with-progress", false, "show transfer progress (requires pv)")
}

func newClient(cfg *config.Config) *remote.SSHClient {
	return remote.NewSSHClient(remote.Options{
		Host:           cfg.SSH.Host,
		Port:           cfg.SSH.Port,
		User:           cfg.SSH.User,
		Password:       cfg.SSH.Password,
		KeyFile:        cfg.SSH.KeyFile,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
	})
}

func buildDumpers(cfg *config.Config, runner *pipeline.Runner, l *logger.Logger) ([]backup.Dumper, error) {
	algo, err := compress.Parse(cfg.Dumps.Compression)
	if err != nil {
		return nil, err
	}

	var dumpers []backup.Dumper
	if cfg.MySQL.Enabled {
		dumpers = append(dumpers, dump.NewMySQL(dump.Options{
			Host:        cfg.MySQL.Host,
			Port:        cfg.MySQL.Port,
			User:        cfg.MySQL.User,
			Password:    cfg.MySQL.Password,
			Databases:   cfg.MySQL.Databases,
			Compression: algo,
		}, runner, l))
	}
	if cfg.PgSQL.Enabled {
		dumpers = append(dumpers, dump.NewPostgres(dump.Options{
			Host:        cfg.PgSQL.Host,
			Port:        cfg.PgSQL.Port,
			User:        cfg.PgSQL.User,
			Password:    cfg.PgSQL.Password,
			Databases:   cfg.PgSQL.Databases,
			Compression: algo,
		}, runner, l))
	}
	return dumpers, nil
}
