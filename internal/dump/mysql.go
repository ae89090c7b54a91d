package dump

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

// MySQL dumps MySQL or MariaDB databases with mysqldump, falling back
// to mariadb-dump when only that client is installed.
type MySQL struct {
	opts   Options
	runner *pipeline.Runner
	l      *logger.Logger
}

func NewMySQL(opts Options, runner *pipeline.Runner, l *logger.Logger) *MySQL {
	if opts.Port == 0 {
		opts.Port = 3306
	}
	return &MySQL{opts: opts, runner: runner, l: l}
}

func (m *MySQL) Engine() string { return "mysql" }

func (m *MySQL) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/", m.opts.User, m.opts.Password, m.opts.Host, m.opts.Port)
}

// Ping verifies connectivity within a short timeout.
func (m *MySQL) Ping(ctx context.Context) error {
	db, err := sql.Open("mysql", m.dsn())
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to open MySQL connection", "Check the MySQL connection settings.")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to ping MySQL", "Verify the database host, port, and credentials.")
	}
	return nil
}

// Size estimates the on-disk footprint of the configured databases
// from table metadata.
func (m *MySQL) Size(ctx context.Context) (int64, error) {
	db, err := sql.Open("mysql", m.dsn())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindDump, "failed to open MySQL connection", "Check the MySQL connection settings.")
	}
	defer db.Close()

	query := "SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables"
	var args []any
	if !m.opts.allDatabases() {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(m.opts.Databases)), ",")
		query += " WHERE table_schema IN (" + placeholders + ")"
		for _, name := range m.opts.Databases {
			args = append(args, name)
		}
	}

	var size sql.NullFloat64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&size); err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindDump, "failed to estimate MySQL size", "Verify the database host, port, and credentials.")
	}
	return int64(size.Float64), nil
}

// dumpBinary prefers mysqldump and falls back to the MariaDB client.
func (m *MySQL) dumpBinary() string {
	if _, err := lookPath("mysqldump"); err != nil {
		if _, err := lookPath("mariadb-dump"); err == nil {
			return "mariadb-dump"
		}
	}
	return "mysqldump"
}

func (m *MySQL) dumpArgs() []string {
	args := []string{
		fmt.Sprintf("--host=%s", m.opts.Host),
		fmt.Sprintf("--port=%d", m.opts.Port),
		fmt.Sprintf("--user=%s", m.opts.User),
		"--single-transaction",
		"--quick",
	}
	if m.opts.allDatabases() {
		return append(args, "--all-databases")
	}
	args = append(args, "--databases")
	return append(args, m.opts.Databases...)
}

// Dump writes one dated dump file into destDir and returns its path.
// A non-nil onProgress inserts a pv stage sized by the estimate.
func (m *MySQL) Dump(ctx context.Context, destDir, date string, onProgress func(pipeline.Progress)) ([]string, error) {
	binary := m.dumpBinary()
	args := m.dumpArgs()

	stages := []pipeline.Stage{{
		Name: binary,
		Args: args,
		Env:  []string{"MYSQL_PWD=" + m.opts.Password},
	}}
	if onProgress != nil {
		est, err := m.Size(ctx)
		if err != nil {
			m.l.Warn("Could not estimate MySQL size, progress will be unscaled", "error", err)
		}
		stages = append(stages, progressStage(est))
	}

	dest := dumpFileName(destDir, date, m.Engine(), "", m.opts.Compression)
	m.l.Info("Dumping MySQL databases", "binary", binary, "file", dest)

	if err := runToFile(ctx, m.runner, stages, dest, m.opts.Compression, onProgress); err != nil {
		return nil, err
	}
	return []string{dest}, nil
}
