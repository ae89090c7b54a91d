package dump

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
)

// Postgres dumps PostgreSQL databases. The whole cluster goes through
// pg_dumpall; an explicit database list produces one pg_dump file per
// database.
type Postgres struct {
	opts   Options
	runner *pipeline.Runner
	l      *logger.Logger
}

func NewPostgres(opts Options, runner *pipeline.Runner, l *logger.Logger) *Postgres {
	if opts.Port == 0 {
		opts.Port = 5432
	}
	return &Postgres{opts: opts, runner: runner, l: l}
}

func (p *Postgres) Engine() string { return "pgsql" }

func (p *Postgres) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable connect_timeout=5",
		p.opts.Host, p.opts.Port, p.opts.User, p.opts.Password)
}

func (p *Postgres) Ping(ctx context.Context) error {
	db, err := sql.Open("postgres", p.dsn())
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to open PostgreSQL connection", "Check the PostgreSQL connection settings.")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to ping PostgreSQL", "Verify the database host, port, and credentials.")
	}
	return nil
}

// Size sums pg_database_size over the configured set.
func (p *Postgres) Size(ctx context.Context) (int64, error) {
	db, err := sql.Open("postgres", p.dsn())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindDump, "failed to open PostgreSQL connection", "Check the PostgreSQL connection settings.")
	}
	defer db.Close()

	query := "SELECT COALESCE(SUM(pg_database_size(datname)), 0) FROM pg_database WHERE NOT datistemplate"
	var args []any
	if !p.opts.allDatabases() {
		query += " AND datname = ANY($1)"
		args = append(args, pq.Array(p.opts.Databases))
	}

	var size int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&size); err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindDump, "failed to estimate PostgreSQL size", "Verify the database host, port, and credentials.")
	}
	return size, nil
}

func (p *Postgres) connArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", p.opts.Host),
		fmt.Sprintf("--port=%d", p.opts.Port),
		fmt.Sprintf("--username=%s", p.opts.User),
	}
}

// Dump writes the dated dump file(s) into destDir and returns their
// paths.
func (p *Postgres) Dump(ctx context.Context, destDir, date string, onProgress func(pipeline.Progress)) ([]string, error) {
	var est int64
	if onProgress != nil {
		var err error
		est, err = p.Size(ctx)
		if err != nil {
			p.l.Warn("Could not estimate PostgreSQL size, progress will be unscaled", "error", err)
		}
	}

	env := []string{"PGPASSWORD=" + p.opts.Password}

	if p.opts.allDatabases() {
		stages := []pipeline.Stage{{Name: "pg_dumpall", Args: p.connArgs(), Env: env}}
		if onProgress != nil {
			stages = append(stages, progressStage(est))
		}

		dest := dumpFileName(destDir, date, p.Engine(), "", p.opts.Compression)
		p.l.Info("Dumping PostgreSQL cluster", "file", dest)

		if err := runToFile(ctx, p.runner, stages, dest, p.opts.Compression, onProgress); err != nil {
			return nil, err
		}
		return []string{dest}, nil
	}

	var files []string
	for _, name := range p.opts.Databases {
		args := append(p.connArgs(), name)
		stages := []pipeline.Stage{{Name: "pg_dump", Args: args, Env: env}}
		if onProgress != nil {
			stages = append(stages, progressStage(est))
		}

		dest := dumpFileName(destDir, date, p.Engine(), "-"+name, p.opts.Compression)
		p.l.Info("Dumping PostgreSQL database", "db", name, "file", dest)

		if err := runToFile(ctx, p.runner, stages, dest, p.opts.Compression, onProgress); err != nil {
			for _, f := range files {
				removeQuiet(f)
			}
			return nil, err
		}
		files = append(files, dest)
	}
	return files, nil
}
