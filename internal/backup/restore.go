package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

// Restorer downloads a dated archive and unpacks it locally.
type Restorer struct {
	cfg    *config.Config
	client remote.Client
	runner *pipeline.Runner
	l      *logger.Logger
}

func NewRestorer(cfg *config.Config, client remote.Client, runner *pipeline.Runner, l *logger.Logger) *Restorer {
	return &Restorer{cfg: cfg, client: client, runner: runner, l: l}
}

// Dates lists the dated backup directories on the remote host, newest
// first.
func (r *Restorer) Dates(ctx context.Context) ([]string, error) {
	entries, err := r.client.ReadDir(ctx, r.cfg.SSH.BackupHome)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.KindConnection,
			"failed to list remote backups", "")
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir && datedDirRe.MatchString(e.Name) {
			dates = append(dates, e.Name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// locateArchive probes the candidate archive names for date in priority
// order and returns the first that exists with a non-zero size. Probing
// stops at a hit, so an old uncompressed archive never shadows a newer
// gzip one.
func locateArchive(ctx context.Context, client remote.Client, cfg *config.Config, date string) (Descriptor, error) {
	cands := RestoreCandidates(cfg.SSH.BackupHome, date, cfg.SSH.User, cfg.Crypt.Enabled)
	names := make([]string, 0, len(cands))
	for _, c := range cands {
		names = append(names, c.ArchiveName())
		size, err := client.Stat(ctx, c.RemotePath())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Descriptor{}, apperrors.Wrap(err, apperrors.KindConnection,
				fmt.Sprintf("failed to probe %s", c.RemotePath()), "")
		}
		if size == 0 {
			continue
		}
		return c, nil
	}
	return Descriptor{}, apperrors.New(apperrors.KindRestoreFormat,
		fmt.Sprintf("no archive found for %s, tried %s", date, strings.Join(names, ", ")),
		"Run `arkhive backups` to see which dates exist on the remote host.")
}

// Run downloads the archive for date and unpacks it into destDir. The
// downloaded copy lives in a unique temporary file that is deleted on
// success and on every failure path.
func (r *Restorer) Run(ctx context.Context, date, destDir string) error {
	desc, err := locateArchive(ctx, r.client, r.cfg, date)
	if err != nil {
		return err
	}
	r.l.Info("Restore started",
		"date", date, "archive", desc.ArchiveName(), "destination", destDir)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.KindInvalidDirectory,
			fmt.Sprintf("cannot create destination directory %s", destDir), "")
	}

	tmp, err := os.CreateTemp("", "arkhive-restore-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal,
			"failed to create temporary file", "")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := r.download(ctx, desc, tmpPath); err != nil {
		return err
	}
	if err := r.extract(ctx, desc, tmpPath, destDir); err != nil {
		return err
	}
	r.l.Info("Restore finished", "destination", destDir)
	return nil
}

func (r *Restorer) download(ctx context.Context, desc Descriptor, dest string) error {
	p := pipeline.Pipeline{Stages: []pipeline.Stage{{
		Name: "scp",
		Args: []string{
			"-P", strconv.Itoa(r.cfg.SSH.Port),
			fmt.Sprintf("%s@%s:%s", r.cfg.SSH.User, r.cfg.SSH.Host, remote.QuoteArg(desc.RemotePath())),
			dest,
		},
	}}}
	res, err := r.runner.Run(ctx, p, nil)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSpawn) {
			return err
		}
		msg := fmt.Sprintf("failed to download %s", desc.ArchiveName())
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderrTail(res.Stderr))
		}
		return apperrors.Wrap(err, apperrors.KindTransfer, msg,
			"Check the SSH connection and credentials.")
	}

	st, err := os.Stat(dest)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindTransfer,
			"downloaded archive is missing", "")
	}
	if st.Size() == 0 {
		return apperrors.New(apperrors.KindTransfer,
			fmt.Sprintf("downloaded archive %s is empty", desc.ArchiveName()),
			"Verify the remote archive with `arkhive verify` and retry.")
	}
	return nil
}

func (r *Restorer) extract(ctx context.Context, desc Descriptor, archive, destDir string) error {
	extractFlags := "-x" + desc.TarFlag() + "f"
	var stages []pipeline.Stage
	if desc.Encrypted {
		stages = []pipeline.Stage{
			{Name: "openssl", Args: decryptArgs(r.cfg.Crypt.Password, archive)},
			{Name: "tar", Args: []string{extractFlags, "-", "-C", destDir}},
		}
	} else {
		stages = []pipeline.Stage{
			{Name: "tar", Args: []string{extractFlags, archive, "-C", destDir}},
		}
	}

	res, err := r.runner.Run(ctx, pipeline.Pipeline{Stages: stages}, nil)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSpawn) {
			return err
		}
		msg := fmt.Sprintf("failed to unpack %s", desc.ArchiveName())
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderrTail(res.Stderr))
		}
		hint := "Check that the destination directory is writable."
		if desc.Encrypted {
			hint = "Check the encryption password; a wrong password fails exactly like a corrupt archive."
		}
		return apperrors.Wrap(err, apperrors.KindDecryptExtract, msg, hint)
	}
	return nil
}
