// Package backup drives full backup runs end to end: preflight, space
// checks, database dumps, remote retention, the streamed archive upload
// and the restore and verify flows that read those archives back.
package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkhive/arkhive/internal/catalog"
	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/fileset"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/manifest"
	"github.com/arkhive/arkhive/internal/notify"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

// A Dumper stages database dump files into the backup directory before
// archiving starts, so they ride along inside the archive.
type Dumper interface {
	Engine() string
	Size(ctx context.Context) (int64, error)
	Dump(ctx context.Context, destDir, date string, onProgress func(pipeline.Progress)) ([]string, error)
}

// Options tune a single run.
type Options struct {
	DiskSpaceCheck bool
	Progress       bool
	OnProgress     func(pipeline.Progress)
}

// Result describes a completed run.
type Result struct {
	Date       string
	RemotePath string
	SizeBytes  int64
	Files      int
	DumpFiles  []string
	Warnings   []string
	Duration   time.Duration
}

// Orchestrator runs the backup states in order and stops at the first
// failure. There is no partial success: an upload that lands but cannot
// be verified or chmodded still fails the run as a whole.
type Orchestrator struct {
	cfg     *config.Config
	client  remote.Client
	runner  *pipeline.Runner
	enum    *fileset.Enumerator
	dumpers []Dumper
	l       *logger.Logger

	preflight *Preflight
	space     *SpaceCheck
	retention *Retention

	notifier notify.Notifier
	history  *catalog.Catalog

	now func() time.Time
}

func NewOrchestrator(cfg *config.Config, client remote.Client, runner *pipeline.Runner, dumpers []Dumper, l *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		runner:    runner,
		enum:      fileset.NewEnumerator(l),
		dumpers:   dumpers,
		l:         l,
		preflight: NewPreflight(cfg, client, l),
		space:     NewSpaceCheck(cfg, client, l),
		retention: NewRetention(client, l),
		now:       time.Now,
	}
}

// SetNotifier attaches an optional notification sink, invoked exactly
// once per run with the final outcome.
func (o *Orchestrator) SetNotifier(n notify.Notifier) { o.notifier = n }

// SetHistory attaches an optional run catalog.
func (o *Orchestrator) SetHistory(c *catalog.Catalog) { o.history = c }

// Run executes one full backup and returns the verified result.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now()
	date := start.UTC().Format("2006-01-02")

	res, err := o.run(ctx, date, opts)
	dur := o.now().Sub(start)
	if res != nil {
		res.Duration = dur
	}
	o.report(ctx, date, res, err, dur)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, date string, opts Options) (*Result, error) {
	desc := Descriptor{
		Date:        date,
		User:        o.cfg.SSH.User,
		Home:        o.cfg.SSH.BackupHome,
		Compression: o.cfg.Backup.Compression,
		Encrypted:   o.cfg.Crypt.Enabled,
	}

	matcher, err := fileset.NewMatcher(o.cfg.Backup.Exclude)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfig,
			"invalid exclude pattern", "Check backup.exclude in the configuration.")
	}

	onProgress := opts.OnProgress
	if !opts.Progress {
		onProgress = nil
	} else if onProgress == nil {
		onProgress = func(pipeline.Progress) {}
	}

	o.l.Info("Backup started",
		"date", date, "host", o.cfg.SSH.Host, "directory", o.cfg.Backup.Directory)

	if err := o.preflight.Run(ctx, opts.Progress); err != nil {
		return nil, err
	}

	if opts.DiskSpaceCheck {
		if err := o.checkSpace(ctx, matcher); err != nil {
			return nil, err
		}
	}

	// Dumps land before retention runs so that a failed dump never
	// costs the previous day's remote copy.
	dumpFiles, err := o.dumpDatabases(ctx, date, onProgress)
	if err != nil {
		return nil, err
	}

	removed, err := o.retention.Cleanup(ctx, desc.Home, o.cfg.Backup.RetentionDays)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		o.l.Info("Removed expired remote backups", "count", len(removed))
	}

	if err := o.client.MkdirAll(ctx, desc.RemoteDir()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConnection,
			fmt.Sprintf("failed to create remote directory %s", desc.RemoteDir()), "")
	}

	man, sum, err := o.enum.Enumerate(ctx, o.cfg.Backup.Directory, matcher)
	if err != nil {
		return nil, err
	}
	defer man.Remove()

	size, err := o.upload(ctx, desc, man, sum, onProgress)
	if err != nil {
		return nil, err
	}

	if err := o.fixPermissions(ctx, desc.Home); err != nil {
		return nil, err
	}

	o.writeRunManifest(ctx, desc, sum, size, dumpFiles)

	if err := o.removeLocal(dumpFiles); err != nil {
		return nil, err
	}

	o.l.Info("Backup finished",
		"remote", desc.RemotePath(), "size", size, "files", sum.Files)

	return &Result{
		Date:       date,
		RemotePath: desc.RemotePath(),
		SizeBytes:  size,
		Files:      sum.Files,
		DumpFiles:  dumpFiles,
		Warnings:   sum.Warnings,
	}, nil
}

func (o *Orchestrator) checkSpace(ctx context.Context, matcher *fileset.Matcher) error {
	sum, err := o.enum.Measure(ctx, o.cfg.Backup.Directory, matcher)
	if err != nil {
		return err
	}
	var dbBytes int64
	for _, d := range o.dumpers {
		n, err := d.Size(ctx)
		if err != nil {
			return err
		}
		o.l.Debug("Estimated database size", "engine", d.Engine(), "bytes", n)
		dbBytes += n
	}
	return o.space.Run(ctx, sum.TotalBytes, dbBytes)
}

func (o *Orchestrator) dumpDatabases(ctx context.Context, date string, onProgress func(pipeline.Progress)) ([]string, error) {
	var files []string
	for _, d := range o.dumpers {
		out, err := d.Dump(ctx, o.cfg.Backup.Directory, date, onProgress)
		if err != nil {
			return nil, err
		}
		files = append(files, out...)
	}
	return files, nil
}

// upload streams the archive to the remote host in one pass and returns
// the size the remote side actually holds. A pipeline that exits cleanly
// proves nothing on its own; only the remote stat does.
func (o *Orchestrator) upload(ctx context.Context, desc Descriptor, man *fileset.Manifest, sum *fileset.Summary, onProgress func(pipeline.Progress)) (int64, error) {
	stages := []pipeline.Stage{
		{Name: "tar", Args: []string{"-cf", "-", "-T", man.Path()}},
	}
	if onProgress != nil {
		total := sum.TotalBytes
		if total < 1 {
			total = 1
		}
		stages = append(stages, pipeline.Stage{
			Name: "pv",
			Args: []string{"-f", "-s", strconv.FormatInt(total, 10)},
		})
	}
	switch desc.Compression {
	case config.CompressionGzip:
		stages = append(stages, pipeline.Stage{Name: "gzip"})
	case config.CompressionXz:
		stages = append(stages, pipeline.Stage{Name: "xz", Args: []string{"-9"}})
	}
	if desc.Encrypted {
		stages = append(stages, pipeline.Stage{
			Name: "openssl",
			Args: encryptArgs(o.cfg.Crypt.Password),
		})
	}
	stages = append(stages, pipeline.Stage{
		Name: "ssh",
		Args: []string{
			"-p", strconv.Itoa(o.cfg.SSH.Port),
			fmt.Sprintf("%s@%s", o.cfg.SSH.User, o.cfg.SSH.Host),
			"cat > " + remote.QuoteArg(desc.RemotePath()),
		},
	})

	o.l.Info("Uploading archive",
		"remote", desc.RemotePath(), "bytes", sum.TotalBytes, "files", sum.Files)

	res, err := o.runner.Run(ctx, pipeline.Pipeline{Stages: stages}, onProgress)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSpawn) {
			return 0, err
		}
		msg := "archive upload failed"
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("archive upload failed: %s", stderrTail(res.Stderr))
		}
		return 0, apperrors.Wrap(err, apperrors.KindTransfer, msg,
			"Check the SSH connection and the remote disk.")
	}

	size, err := o.client.Stat(ctx, desc.RemotePath())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransfer,
			"failed to verify uploaded archive", "")
	}
	if size == 0 {
		return 0, apperrors.New(apperrors.KindTransfer,
			fmt.Sprintf("uploaded archive %s is empty", desc.RemotePath()),
			"Check the remote disk space and retry the backup.")
	}
	return size, nil
}

// fixPermissions normalizes modes under the backup home so archives
// written under different umasks stay readable for later restores.
func (o *Orchestrator) fixPermissions(ctx context.Context, home string) error {
	if _, err := o.client.Exec(ctx, "find", home, "-type", "d", "-exec", "chmod", "755", "{}", "+"); err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection,
			"failed to fix remote directory permissions", "")
	}
	if _, err := o.client.Exec(ctx, "find", home, "-type", "f", "-exec", "chmod", "644", "{}", "+"); err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection,
			"failed to fix remote file permissions", "")
	}
	return nil
}

// writeRunManifest drops a JSON sidecar next to the archive. Listings
// and verification read it later; a failure here only costs metadata,
// so the run carries on with a warning.
func (o *Orchestrator) writeRunManifest(ctx context.Context, desc Descriptor, sum *fileset.Summary, size int64, dumpFiles []string) {
	host, _ := os.Hostname()
	rec := manifest.Record{
		ID:          uuid.NewString(),
		Date:        desc.Date,
		Host:        host,
		User:        desc.User,
		ArchiveName: desc.ArchiveName(),
		Compression: desc.Compression,
		Encrypted:   desc.Encrypted,
		SizeBytes:   size,
		Files:       sum.Files,
		Warnings:    sum.Warnings,
		Version:     manifest.Version,
		CreatedAt:   o.now().UTC(),
	}
	for _, name := range dumpFiles {
		df := manifest.DumpFile{Name: filepath.Base(name)}
		if st, err := os.Stat(name); err == nil {
			df.Size = st.Size()
		}
		if f, err := os.Open(name); err == nil {
			if digest, err := manifest.CalculateChecksum(f); err == nil {
				df.SHA256 = digest
			}
			f.Close()
		}
		rec.DumpFiles = append(rec.DumpFiles, df)
	}

	data, err := rec.Serialize()
	if err == nil {
		dest := path.Join(desc.RemoteDir(), manifest.FileName(desc.Date, desc.User))
		err = o.client.WriteFile(ctx, dest, data)
	}
	if err != nil {
		o.l.Warn("Failed to write run manifest", "error", err)
	}
}

// removeLocal deletes the dump files this run staged. The directory
// tree itself is never touched.
func (o *Orchestrator) removeLocal(files []string) error {
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return apperrors.Wrap(err, apperrors.KindInternal,
				fmt.Sprintf("failed to remove local dump file %s", f), "")
		}
		o.l.Debug("Removed local dump file", "path", f)
	}
	return nil
}

// report records the outcome in the history catalog and pushes the
// notification. Both are best effort and never fail the run; reporting
// uses a detached context so a cancelled run still gets reported.
func (o *Orchestrator) report(ctx context.Context, date string, res *Result, runErr error, dur time.Duration) {
	if o.history == nil && o.notifier == nil {
		return
	}
	rctx := context.WithoutCancel(ctx)

	stats := notify.Stats{
		Status:    notify.StatusSuccess,
		Operation: "Backup",
		Date:      date,
		Duration:  dur,
		Error:     runErr,
	}
	if host, err := os.Hostname(); err == nil {
		stats.Host = host
	}
	rec := catalog.Record{
		ID:        uuid.NewString(),
		Operation: "backup",
		Date:      date,
		Duration:  dur,
		Status:    string(notify.StatusSuccess),
		StartedAt: o.now().Add(-dur),
	}
	if runErr != nil {
		stats.Status = notify.StatusError
		rec.Status = string(notify.StatusError)
		rec.Error = runErr.Error()
	}
	if res != nil {
		stats.RemotePath = res.RemotePath
		stats.Size = res.SizeBytes
		stats.Warnings = res.Warnings
		rec.RemotePath = res.RemotePath
		rec.SizeBytes = res.SizeBytes
	}

	if o.history != nil {
		if err := o.history.Add(rctx, rec); err != nil {
			o.l.Warn("Failed to record run in history", "error", err)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.Notify(rctx, stats); err != nil {
			o.l.Warn("Failed to send notification", "error", err)
		}
	}
}

// stderrTail keeps the last few diagnostic lines for error messages.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " / ")
}
