// Package dump produces the local database dump files that ride along
// in the archive. MySQL/MariaDB and PostgreSQL are supported; the dump
// binaries stream through the pipeline runner into optionally
// compressed dated files inside the backup directory.
package dump

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkhive/arkhive/internal/compress"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/pipeline"
)

// Options carry the connection settings for one database engine.
type Options struct {
	Host      string
	Port      int
	User      string
	Password  string
	Databases []string

	// Compression applies to the dump files only; the archive has its
	// own compression stage.
	Compression compress.Algorithm
}

func (o Options) allDatabases() bool {
	if len(o.Databases) == 0 {
		return true
	}
	return len(o.Databases) == 1 && o.Databases[0] == "*"
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// progressStage wraps a dump stream in a pv stage sized by the engine's
// own size estimate, clamped so pv never sees a zero total.
func progressStage(sizeEstimate int64) pipeline.Stage {
	if sizeEstimate < 1 {
		sizeEstimate = 1
	}
	return pipeline.Stage{Name: "pv", Args: []string{"-f", "-s", strconv.FormatInt(sizeEstimate, 10)}}
}

// runToFile executes the stages and writes the final stage's stdout
// into destPath through the configured compressor. The partial file is
// removed when anything fails.
func runToFile(ctx context.Context, runner *pipeline.Runner, stages []pipeline.Stage, destPath string, algo compress.Algorithm, onProgress func(pipeline.Progress)) error {
	f, err := os.Create(destPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDump,
			fmt.Sprintf("failed to create dump file %s", destPath),
			"Check that the backup directory is writable.")
	}

	cw, err := compress.NewWriter(f, algo)
	if err != nil {
		f.Close()
		os.Remove(destPath)
		return apperrors.Wrap(err, apperrors.KindDump, "failed to set up dump compression", "")
	}

	res, runErr := runner.Run(ctx, pipeline.Pipeline{Stages: stages, Stdout: cw}, onProgress)

	closeErr := cw.Close()
	if err := f.Close(); closeErr == nil {
		closeErr = err
	}

	if runErr != nil {
		os.Remove(destPath)
		if apperrors.IsKind(runErr, apperrors.KindSpawn) {
			return runErr
		}
		msg := fmt.Sprintf("%s failed", stages[0].Name)
		if res != nil && res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderrTail(res.Stderr))
		}
		return apperrors.Wrap(runErr, apperrors.KindDump, msg, "Check the database credentials and server logs.")
	}
	if closeErr != nil {
		os.Remove(destPath)
		return apperrors.Wrap(closeErr, apperrors.KindDump,
			fmt.Sprintf("failed to finalize dump file %s", destPath), "")
	}
	return nil
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}

// stderrTail keeps error messages readable when a dump tool prints a
// wall of diagnostics.
func stderrTail(stderr string) string {
	lines := strings.Split(stderr, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " / ")
}

func dumpFileName(destDir, date, engine, suffix string, algo compress.Algorithm) string {
	name := fmt.Sprintf("%s-%s%s.sql%s", date, engine, suffix, algo.Ext())
	return filepath.Join(destDir, name)
}
