package backup

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

// Rekeyer rotates the encryption password of one remote archive in
// place. The archive streams back over ssh, is decrypted with the old
// password and re-encrypted with the configured one, and lands next to
// the original under a .rekey suffix. Only after the temporary checks
// out non-empty does it move over the original, so the original
// survives any failure mid-stream.
type Rekeyer struct {
	cfg    *config.Config
	client remote.Client
	runner *pipeline.Runner
	l      *logger.Logger
}

func NewRekeyer(cfg *config.Config, client remote.Client, runner *pipeline.Runner, l *logger.Logger) *Rekeyer {
	return &Rekeyer{cfg: cfg, client: client, runner: runner, l: l}
}

// Run re-encrypts the archive for date with the configured password,
// decrypting with oldPassword. It returns the archive name it rotated.
func (r *Rekeyer) Run(ctx context.Context, date, oldPassword string) (string, error) {
	if !r.cfg.Crypt.Enabled || r.cfg.Crypt.Password == "" {
		return "", apperrors.New(apperrors.KindConfig,
			"rekey requires crypt.enabled and a configured new password",
			"Set crypt.password (or crypt.password_file) to the password to rotate to.")
	}
	if oldPassword == "" {
		return "", apperrors.New(apperrors.KindConfig,
			"rekey requires the current archive password",
			"Pass the password the archive was written with via --old-pass-file.")
	}

	desc, err := locateArchive(ctx, r.client, r.cfg, date)
	if err != nil {
		return "", err
	}
	r.l.Info("Rotating archive password", "archive", desc.ArchiveName())

	remotePath := desc.RemotePath()
	tmpPath := remotePath + ".rekey"
	sshTarget := fmt.Sprintf("%s@%s", r.cfg.SSH.User, r.cfg.SSH.Host)
	port := strconv.Itoa(r.cfg.SSH.Port)

	stages := []pipeline.Stage{
		{Name: "ssh", Args: []string{"-p", port, sshTarget, "cat " + remote.QuoteArg(remotePath)}},
		{Name: "openssl", Args: decryptArgs(oldPassword, "")},
		{Name: "openssl", Args: encryptArgs(r.cfg.Crypt.Password)},
		{Name: "ssh", Args: []string{"-p", port, sshTarget, "cat > " + remote.QuoteArg(tmpPath)}},
	}

	res, err := r.runner.Run(ctx, pipeline.Pipeline{Stages: stages}, nil)
	if err != nil {
		r.removeQuiet(ctx, tmpPath)
		if apperrors.IsKind(err, apperrors.KindSpawn) {
			return "", err
		}
		msg := fmt.Sprintf("failed to rotate password for %s", desc.ArchiveName())
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderrTail(res.Stderr))
		}
		return "", apperrors.Wrap(err, apperrors.KindDecryptExtract, msg,
			"Check the old password; a wrong password fails exactly like a corrupt archive.")
	}

	size, err := r.client.Stat(ctx, tmpPath)
	if err != nil || size == 0 {
		r.removeQuiet(ctx, tmpPath)
		return "", apperrors.Wrap(err, apperrors.KindTransfer,
			fmt.Sprintf("re-encrypted archive %s is missing or empty", path.Base(tmpPath)),
			"The original archive is untouched; retry once the connection is stable.")
	}

	if _, err := r.client.Exec(ctx, "mv", "-f", tmpPath, remotePath); err != nil {
		r.removeQuiet(ctx, tmpPath)
		return "", apperrors.Wrap(err, apperrors.KindConnection,
			fmt.Sprintf("failed to move %s into place", path.Base(tmpPath)), "")
	}

	r.l.Info("Archive password rotated", "archive", desc.ArchiveName(), "size", size)
	return desc.ArchiveName(), nil
}

func (r *Rekeyer) removeQuiet(ctx context.Context, remotePath string) {
	if _, err := r.client.Exec(ctx, "rm", "-f", remotePath); err != nil {
		r.l.Warn("Failed to clean up temporary archive", "path", remotePath, "error", err)
	}
}
