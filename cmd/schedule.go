package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/backup"
	"github.com/arkhive/arkhive/internal/catalog"
	"github.com/arkhive/arkhive/internal/config"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/notify"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/schedule"
)

var (
	cronSpec   string
	interval   string
	retries    int
	retryDelay string
	daemonMode bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring backup schedules",
}

var scheduleBackupCmd = &cobra.Command{
	Use:           "backup",
	Short:         "Schedule a recurring backup",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		sched := cronSpec
		if interval != "" {
			sched = interval
		}
		if sched == "" {
			return fmt.Errorf("either --cron or --interval is required")
		}

		s, err := schedule.NewScheduler(runScheduledBackup(l), l)
		if err != nil {
			return err
		}
		if err := s.Load(); err != nil {
			return err
		}

		task := &schedule.Task{
			ID:             uuid.New().String(),
			Schedule:       sched,
			DiskSpaceCheck: diskSpaceCheck,
			Retries:        retries,
			RetryDelay:     retryDelay,
			Status:         schedule.StatusPending,
		}
		if err := s.AddTask(task); err != nil {
			return err
		}

		l.Info("Scheduled backup task added", "schedule", sched, "id", task.ID)

		// Spawn background daemon if not already in daemon mode
		if !daemonMode {
			return spawnDaemon(l)
		}
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:           "remove [ID]",
	Short:         "Remove a scheduled task",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		s, err := schedule.NewScheduler(runScheduledBackup(l), l)
		if err != nil {
			return err
		}
		if err := s.Load(); err != nil {
			return err
		}

		if err := s.RemoveTask(args[0]); err != nil {
			return err
		}

		l.Info("Task removed successfully", "id", args[0])
		return nil
	},
}

var scheduleStartCmd = &cobra.Command{
	Use:           "start",
	Short:         "Start the scheduler daemon (internal use)",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		// A daemon with a broken config would fail at every firing, so
		// it refuses to start instead. The watch reports edits as they
		// land; each run re-reads the file and picks them up.
		if _, err := config.LoadAndWatch(cfgFile, func(next *config.Config) {
			l.Info("Configuration reloaded; the next run uses it",
				"directory", next.Backup.Directory,
				"remote", next.SSH.Host,
			)
		}); err != nil {
			return err
		}

		s, err := schedule.NewScheduler(runScheduledBackup(l), l)
		if err != nil {
			return err
		}
		if err := s.Load(); err != nil {
			return err
		}

		l.Info("Starting scheduler", "task_count", len(s.ListTasks()))
		s.Start()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		l.Info("Shutting down scheduler")
		// Stop returns once running jobs have drained.
		<-s.Stop().Done()
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:           "list",
	Short:         "List all active schedules",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		s, err := schedule.NewScheduler(runScheduledBackup(l), l)
		if err != nil {
			return err
		}
		if err := s.Load(); err != nil {
			return err
		}

		tasks := s.ListTasks()
		if len(tasks) == 0 {
			l.Info("No active schedules found")
			return nil
		}

		for _, t := range tasks {
			next := "N/A"
			if t.NextRun != nil {
				next = t.NextRun.Format("2006-01-02 15:04:05")
			}
			l.Info("Scheduled Task",
				"id", t.ID,
				"status", t.Status,
				"schedule", t.Schedule,
				"next_run", next,
			)
		}
		return nil
	},
}

// runScheduledBackup builds the RunFunc the scheduler fires. The config
// is read fresh on every run so edits apply without restarting the
// daemon.
func runScheduledBackup(l *logger.Logger) schedule.RunFunc {
	return func(ctx context.Context, diskSpaceCheck bool) error {
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
		}

		_, err = o.Run(ctx, backup.Options{DiskSpaceCheck: diskSpaceCheck})
		return err
	}
}

func spawnDaemon(l *logger.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Run `arkhive schedule start` in background
	daemonArgs := []string{"schedule", "start", "--daemon"}
	if cfgFile != "" {
		daemonArgs = append(daemonArgs, "--config", cfgFile)
	}
	cmd := exec.Command(exe, daemonArgs...)
	cmd.Dir = filepath.Dir(exe)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create a new session (detach from terminal)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	l.Info("Scheduler daemon started", "pid", cmd.Process.Pid)
	return nil
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleBackupCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleListCmd)

	// Hidden flag for daemon mode
	scheduleStartCmd.Flags().BoolVar(&daemonMode, "daemon", false, "Run in daemon mode (internal)")
	scheduleStartCmd.Flags().MarkHidden("daemon")

	scheduleBackupCmd.Flags().StringVar(&cronSpec, "cron", "", "Cron schedule (e.g. \"0 2 * * *\")")
	scheduleBackupCmd.Flags().StringVar(&interval, "interval", "", "Interval schedule (e.g. \"24h\", \"30m\")")
	scheduleBackupCmd.Flags().IntVar(&retries, "retries", 3, "Number of retries on failure")
	scheduleBackupCmd.Flags().StringVar(&retryDelay, "retry-delay", "5m", "Delay between retries")
	scheduleBackupCmd.Flags().BoolVar(&diskSpaceCheck, "with-disk-space-check", true, "estimate sizes and verify free space before dumping")
}
