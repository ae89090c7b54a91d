package fileset

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
)

// Summary describes one walk over the backup tree.
type Summary struct {
	Files         int
	TotalBytes    int64
	ExcludedBytes int64
	Warnings      []string
}

// Enumerator walks the backup directory. Unreadable entries become
// warnings, not errors, so a single protected subdirectory cannot sink
// a whole backup run.
type Enumerator struct {
	l *logger.Logger
}

func NewEnumerator(l *logger.Logger) *Enumerator {
	return &Enumerator{l: l}
}

// Enumerate walks root and writes every non-excluded file path into a
// fresh manifest. The caller owns the manifest and must Remove it.
func (e *Enumerator) Enumerate(ctx context.Context, root string, m *Matcher) (*Manifest, *Summary, error) {
	manifest, err := NewManifest()
	if err != nil {
		return nil, nil, err
	}

	sum, err := e.walk(ctx, root, m, func(path string, size int64) error {
		return manifest.Add(path)
	})
	if err != nil {
		manifest.Remove()
		return nil, nil, err
	}

	if err := manifest.Close(); err != nil {
		manifest.Remove()
		return nil, nil, fmt.Errorf("failed to finalize file manifest: %w", err)
	}
	return manifest, sum, nil
}

// Measure walks root like Enumerate but only counts. The disk space
// check runs before the database dumps exist, so it cannot reuse the
// manifest built for the upload.
func (e *Enumerator) Measure(ctx context.Context, root string, m *Matcher) (*Summary, error) {
	return e.walk(ctx, root, m, nil)
}

func (e *Enumerator) walk(ctx context.Context, root string, m *Matcher, keep func(path string, size int64) error) (*Summary, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvalidDirectory,
			fmt.Sprintf("backup directory %q is not accessible", root),
			"Check backup.directory in the configuration.")
	}
	if !info.IsDir() {
		return nil, apperrors.New(apperrors.KindInvalidDirectory,
			fmt.Sprintf("backup directory %q is not a directory", root), "")
	}

	sum := &Summary{}
	warn := func(path string, cause error) {
		msg := fmt.Sprintf("skipping %s: %v", path, cause)
		sum.Warnings = append(sum.Warnings, msg)
		e.l.Warn("Skipping unreadable path", "path", path, "error", cause)
	}

	// Exclusion patterns are written against the backup root, so the
	// matcher sees "/sub/file" regardless of where the root lives.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			warn(path, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			warn(path, err)
			return nil
		}
		size := fi.Size()

		if m != nil && m.Excluded(rootedPath(root, path)) {
			sum.ExcludedBytes += size
			return nil
		}

		sum.Files++
		sum.TotalBytes += size
		if keep != nil {
			if err := keep(path, size); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// rootedPath rewrites an absolute walk path into the slash-rooted form
// the exclusion grammar uses: relative to root, with a leading "/".
func rootedPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return "/" + filepath.ToSlash(rel)
}
