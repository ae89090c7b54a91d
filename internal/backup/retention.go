package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"time"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/remote"
)

// Dated backup directories are named YYYY-MM-DD. Anything else living
// under the backup home is left strictly alone.
var datedDirRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Retention removes remote backup directories that have aged out of the
// configured window.
type Retention struct {
	client remote.Client
	l      *logger.Logger
	now    func() time.Time
}

func NewRetention(client remote.Client, l *logger.Logger) *Retention {
	return &Retention{client: client, l: l, now: time.Now}
}

// Cleanup deletes expired dated directories under home and returns the
// names it removed. The comparison is strict, so a directory sitting
// exactly on the cutoff day survives. Zero retention days disables
// pruning entirely.
func (r *Retention) Cleanup(ctx context.Context, home string, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}

	entries, err := r.client.ReadDir(ctx, home)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// First run against a fresh host: nothing to prune yet.
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.KindConnection,
			"failed to list remote backups", "")
	}

	today := r.now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	// The cutoff lands one day past the window so that boundary-day
	// directories stay around.
	cutoff := today.AddDate(0, 0, -(retentionDays + 1))

	var removed []string
	for _, e := range entries {
		if !e.IsDir || !datedDirRe.MatchString(e.Name) {
			continue
		}
		day, err := time.Parse("2006-01-02", e.Name)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		dir := path.Join(home, e.Name)
		r.l.Info("Pruning expired backup", "dir", dir)
		if err := r.client.RemoveAll(ctx, dir); err != nil {
			return removed, apperrors.Wrap(err, apperrors.KindConnection,
				fmt.Sprintf("failed to remove expired backup %s", dir), "")
		}
		removed = append(removed, e.Name)
	}
	return removed, nil
}
