package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/remote"
)

// Compression shrinks the stream well below its input size, so the
// check scales the raw estimate down before comparing. Encryption adds
// overhead on top of the compressed stream, hence the higher factor.
const (
	spaceFactorPlain     = 0.6
	spaceFactorEncrypted = 0.8
)

// SpaceCheck guards a run against filling either disk: the local one
// holding the staged database dumps and the remote one receiving the
// archive.
type SpaceCheck struct {
	cfg    *config.Config
	client remote.Client
	l      *logger.Logger

	// localFree is swappable in tests.
	localFree func(path string) (int64, error)
}

func NewSpaceCheck(cfg *config.Config, client remote.Client, l *logger.Logger) *SpaceCheck {
	return &SpaceCheck{cfg: cfg, client: client, l: l, localFree: statfsAvail}
}

// Run estimates the bytes this run will produce from the directory and
// database sizes and verifies both sides can absorb them.
func (s *SpaceCheck) Run(ctx context.Context, directoryBytes, databaseBytes int64) error {
	factor := spaceFactorPlain
	if s.cfg.Crypt.Enabled {
		factor = spaceFactorEncrypted
	}
	required := int64(float64(directoryBytes+databaseBytes) * factor)

	free, err := s.localFree(s.cfg.Backup.Directory)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDiskSpace,
			"failed to determine local free space", "")
	}
	if free < required {
		return apperrors.New(apperrors.KindDiskSpace,
			fmt.Sprintf("not enough local disk space: need %d bytes, have %d", required, free),
			"Free up space in the backup directory or extend the exclude list.")
	}

	out, err := s.client.Exec(ctx, "df", "-k", s.cfg.SSH.BackupHome)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDiskSpace,
			"failed to determine remote free space", "")
	}
	remoteFree, err := parseDfAvail(out)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDiskSpace,
			"failed to parse remote df output", "")
	}
	if remoteFree < required {
		return apperrors.New(apperrors.KindDiskSpace,
			fmt.Sprintf("not enough remote disk space: need %d bytes, have %d", required, remoteFree),
			"Prune old remote backups or lower the retention window.")
	}

	s.l.Info("Disk space check passed",
		"required", required, "local_free", free, "remote_free", remoteFree)
	return nil
}

// parseDfAvail pulls the available column out of `df -k` output. df
// reports 1 KiB blocks; the result comes back in bytes.
func parseDfAvail(out string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	fields := strings.Fields(last)
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected df output %q", last)
	}
	kib, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected df available column %q", fields[3])
	}
	return kib * 1024, nil
}

func statfsAvail(path string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}
