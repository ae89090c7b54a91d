package backup

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

// Verifier checks a remote archive end to end without writing anything
// locally: the archive streams back over ssh, through decryption when
// configured, into a tar listing whose output is discarded. An archive
// that survives that pipeline will also survive a restore.
type Verifier struct {
	cfg    *config.Config
	client remote.Client
	runner *pipeline.Runner
	l      *logger.Logger
}

func NewVerifier(cfg *config.Config, client remote.Client, runner *pipeline.Runner, l *logger.Logger) *Verifier {
	return &Verifier{cfg: cfg, client: client, runner: runner, l: l}
}

// Run locates the archive for date and streams it through a full
// decrypt-and-list pass. It returns the archive name that was checked.
func (v *Verifier) Run(ctx context.Context, date string) (string, error) {
	desc, err := locateArchive(ctx, v.client, v.cfg, date)
	if err != nil {
		return "", err
	}
	v.l.Info("Verifying archive", "archive", desc.ArchiveName())

	stages := []pipeline.Stage{{
		Name: "ssh",
		Args: []string{
			"-p", strconv.Itoa(v.cfg.SSH.Port),
			fmt.Sprintf("%s@%s", v.cfg.SSH.User, v.cfg.SSH.Host),
			"cat " + remote.QuoteArg(desc.RemotePath()),
		},
	}}
	if desc.Encrypted {
		stages = append(stages, pipeline.Stage{
			Name: "openssl",
			Args: decryptArgs(v.cfg.Crypt.Password, ""),
		})
	}
	stages = append(stages, pipeline.Stage{
		Name: "tar",
		Args: []string{"-t" + desc.TarFlag() + "f", "-"},
	})

	p := pipeline.Pipeline{Stages: stages, Stdout: io.Discard}
	res, err := v.runner.Run(ctx, p, nil)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSpawn) {
			return "", err
		}
		msg := fmt.Sprintf("archive %s failed verification", desc.ArchiveName())
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderrTail(res.Stderr))
		}
		return "", apperrors.Wrap(err, apperrors.KindDecryptExtract, msg,
			"The archive may be truncated or the encryption password wrong.")
	}

	v.l.Info("Archive verified", "archive", desc.ArchiveName())
	return desc.ArchiveName(), nil
}
