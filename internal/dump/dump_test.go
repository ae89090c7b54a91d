package dump

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkhive/arkhive/internal/compress"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard})
}

func testPipelineRunner() *pipeline.Runner {
	return pipeline.NewRunner(testLogger())
}

func TestRunToFile_WritesOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "2025-02-01-mysql.sql")

	err := runToFile(context.Background(), testPipelineRunner(),
		[]pipeline.Stage{{Name: "echo", Args: []string{"-- dump data"}}},
		dest, compress.None, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "-- dump data\n", string(data))
}

func TestRunToFile_Compressed(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "2025-02-01-mysql.sql.gz")

	err := runToFile(context.Background(), testPipelineRunner(),
		[]pipeline.Stage{{Name: "echo", Args: []string{"-- dump data"}}},
		dest, compress.Gzip, nil)
	require.NoError(t, err)

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()

	r, err := compress.NewReader(f, compress.Gzip)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "-- dump data\n", string(got))
}

func TestRunToFile_RemovesPartialFileOnFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "2025-02-01-mysql.sql")

	err := runToFile(context.Background(), testPipelineRunner(),
		[]pipeline.Stage{{Name: "sh", Args: []string{"-c", "echo partial; echo boom >&2; exit 2"}}},
		dest, compress.None, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDump))
	assert.Contains(t, err.Error(), "boom")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunToFile_SpawnErrorPassesThrough(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.sql")

	err := runToFile(context.Background(), testPipelineRunner(),
		[]pipeline.Stage{{Name: "arkhive-no-such-dump-tool"}},
		dest, compress.None, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSpawn))
}

func TestMySQL_DumpArgs(t *testing.T) {
	all := NewMySQL(Options{Host: "db.internal", User: "root"}, testPipelineRunner(), testLogger())
	args := all.dumpArgs()
	assert.Contains(t, args, "--host=db.internal")
	assert.Contains(t, args, "--port=3306")
	assert.Contains(t, args, "--single-transaction")
	assert.Contains(t, args, "--all-databases")
	assert.NotContains(t, args, "--databases")

	some := NewMySQL(Options{Host: "db.internal", User: "root", Databases: []string{"shop", "crm"}}, testPipelineRunner(), testLogger())
	args = some.dumpArgs()
	assert.Contains(t, args, "--databases")
	assert.Contains(t, args, "shop")
	assert.Contains(t, args, "crm")
	assert.NotContains(t, args, "--all-databases")

	for _, a := range args {
		assert.NotContains(t, a, "--password", "password must travel via MYSQL_PWD, not argv")
	}
}

func TestMySQL_DumpBinaryFallback(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	lookPath = func(name string) (string, error) {
		if name == "mysqldump" {
			return "/usr/bin/mysqldump", nil
		}
		return "", errors.New("not found")
	}
	m := NewMySQL(Options{Host: "h", User: "u"}, testPipelineRunner(), testLogger())
	assert.Equal(t, "mysqldump", m.dumpBinary())

	lookPath = func(name string) (string, error) {
		if name == "mariadb-dump" {
			return "/usr/bin/mariadb-dump", nil
		}
		return "", errors.New("not found")
	}
	assert.Equal(t, "mariadb-dump", m.dumpBinary())
}

func TestOptions_AllDatabases(t *testing.T) {
	assert.True(t, Options{}.allDatabases())
	assert.True(t, Options{Databases: []string{"*"}}.allDatabases())
	assert.False(t, Options{Databases: []string{"shop"}}.allDatabases())
}

func TestProgressStage_ClampsToOne(t *testing.T) {
	st := progressStage(0)
	assert.Equal(t, "pv", st.Name)
	assert.Equal(t, []string{"-f", "-s", "1"}, st.Args)

	st = progressStage(1024)
	assert.Equal(t, []string{"-f", "-s", "1024"}, st.Args)
}

func TestDumpFileName(t *testing.T) {
	assert.Equal(t, "/srv/data/2025-02-01-mysql.sql",
		dumpFileName("/srv/data", "2025-02-01", "mysql", "", compress.None))
	assert.Equal(t, "/srv/data/2025-02-01-pgsql-shop.sql.gz",
		dumpFileName("/srv/data", "2025-02-01", "pgsql", "-shop", compress.Gzip))
}
