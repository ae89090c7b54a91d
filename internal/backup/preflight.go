package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/remote"
)

// lookPath is swappable in tests.
var lookPath = exec.LookPath

// Preflight fails fast on anything that would otherwise sink a run
// minutes in: missing binaries, an unwritable backup directory, or an
// SSH login that lands on the wrong account.
type Preflight struct {
	cfg    *config.Config
	client remote.Client
	l      *logger.Logger
}

func NewPreflight(cfg *config.Config, client remote.Client, l *logger.Logger) *Preflight {
	return &Preflight{cfg: cfg, client: client, l: l}
}

func (p *Preflight) Run(ctx context.Context, withProgress bool) error {
	for _, bin := range p.requiredBinaries(withProgress) {
		if _, err := lookPath(bin); err != nil {
			return apperrors.New(apperrors.KindPreflight,
				fmt.Sprintf("required binary %q not found", bin),
				fmt.Sprintf("Install %s and make sure it is on the PATH.", bin))
		}
	}
	if p.cfg.MySQL.Enabled {
		if err := checkAnyBinary("mysqldump", "mariadb-dump"); err != nil {
			return err
		}
	}
	if err := p.checkWritable(); err != nil {
		return err
	}
	return p.checkIdentity(ctx)
}

// requiredBinaries lists the external programs this run will spawn.
// Only what the configuration actually enables gets checked; a host
// without openssl is fine as long as encryption stays off.
func (p *Preflight) requiredBinaries(withProgress bool) []string {
	bins := []string{"tar", "ssh", "scp"}
	if withProgress {
		bins = append(bins, "pv")
	}
	if p.cfg.Crypt.Enabled {
		bins = append(bins, "openssl")
	}
	switch p.cfg.Backup.Compression {
	case config.CompressionGzip:
		bins = append(bins, "gzip")
	case config.CompressionXz:
		bins = append(bins, "xz")
	}
	if p.cfg.PgSQL.Enabled {
		if p.cfg.PgSQL.AllDatabases() {
			bins = append(bins, "pg_dumpall")
		} else {
			bins = append(bins, "pg_dump")
		}
	}
	return bins
}

// checkAnyBinary passes when at least one of the named binaries is
// installed. MySQL hosts ship either mysqldump or mariadb-dump.
func checkAnyBinary(names ...string) error {
	for _, n := range names {
		if _, err := lookPath(n); err == nil {
			return nil
		}
	}
	return apperrors.New(apperrors.KindPreflight,
		fmt.Sprintf("none of %s found", strings.Join(names, ", ")),
		fmt.Sprintf("Install %s and make sure it is on the PATH.", names[0]))
}

// checkWritable proves write access the only reliable way, by writing.
func (p *Preflight) checkWritable() error {
	probe := filepath.Join(p.cfg.Backup.Directory,
		fmt.Sprintf(".arkhive-probe-%d", os.Getpid()))
	f, err := os.Create(probe)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindPreflight,
			fmt.Sprintf("backup directory %s is not writable", p.cfg.Backup.Directory),
			"Fix the directory permissions or point backup.directory elsewhere.")
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		return apperrors.Wrap(err, apperrors.KindPreflight,
			"failed to remove probe file", "")
	}
	return nil
}

// checkIdentity confirms the SSH credentials land on the account the
// configuration names. Restores and retention would otherwise operate
// on some other user's backup home.
func (p *Preflight) checkIdentity(ctx context.Context) error {
	out, err := p.client.Exec(ctx, "whoami")
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindPreflight,
			"failed to verify remote identity",
			"Check the SSH host, port and credentials.")
	}
	if out != p.cfg.SSH.User {
		return apperrors.New(apperrors.KindPreflight,
			fmt.Sprintf("remote identity mismatch: logged in as %q, expected %q", out, p.cfg.SSH.User),
			"Check ssh.user against the account the credentials belong to.")
	}
	p.l.Debug("Preflight checks passed")
	return nil
}
