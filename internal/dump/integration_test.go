package dump

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arkhive/arkhive/internal/compress"
)

func TestMySQLIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "mysql:8.0-debian",
			Env: map[string]string{
				"MYSQL_DATABASE":      "arkhive_test",
				"MYSQL_USER":          "arkhive",
				"MYSQL_PASSWORD":      "secret",
				"MYSQL_ROOT_PASSWORD": "secret",
			},
			ExposedPorts: []string{"3306/tcp"},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	my := NewMySQL(Options{
		Host:        host,
		Port:        port.Int(),
		User:        "arkhive",
		Password:    "secret",
		Databases:   []string{"arkhive_test"},
		Compression: compress.None,
	}, testPipelineRunner(), testLogger())

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, my.Ping(ctx))
	})

	root, err := sql.Open("mysql", fmt.Sprintf("root:secret@tcp(%s:%d)/arkhive_test", host, port.Int()))
	require.NoError(t, err)
	for _, stmt := range []string{
		"GRANT PROCESS ON *.* TO 'arkhive'@'%'",
		"FLUSH PRIVILEGES",
		"CREATE TABLE visits (id INT PRIMARY KEY, page VARCHAR(128))",
		"INSERT INTO visits VALUES (1, '/index.html')",
		"ANALYZE TABLE visits",
	} {
		_, err = root.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	require.NoError(t, root.Close())

	t.Run("Size", func(t *testing.T) {
		size, err := my.Size(ctx)
		require.NoError(t, err)
		assert.Greater(t, size, int64(0))
	})

	t.Run("Dump", func(t *testing.T) {
		if _, err := exec.LookPath("mysqldump"); err != nil {
			t.Skip("mysqldump not installed")
		}

		files, err := my.Dump(ctx, t.TempDir(), "2025-02-01", nil)
		require.NoError(t, err)
		require.Len(t, files, 1)

		content, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(content), "CREATE TABLE")
		assert.Contains(t, string(content), "visits")
	})
}

func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:15-alpine",
			Env: map[string]string{
				"POSTGRES_DB":               "arkhive_test",
				"POSTGRES_USER":             "postgres",
				"POSTGRES_PASSWORD":         "secret",
				"POSTGRES_HOST_AUTH_METHOD": "trust",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pg := NewPostgres(Options{
		Host:        host,
		Port:        port.Int(),
		User:        "postgres",
		Password:    "secret",
		Databases:   []string{"arkhive_test"},
		Compression: compress.None,
	}, testPipelineRunner(), testLogger())

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, pg.Ping(ctx))
	})

	seed, err := sql.Open("postgres", fmt.Sprintf(
		"host=%s port=%d user=postgres password=secret dbname=arkhive_test sslmode=disable", host, port.Int()))
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, "CREATE TABLE visits (id INT PRIMARY KEY, page VARCHAR(128))")
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, "INSERT INTO visits VALUES (1, '/index.html')")
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	t.Run("Size", func(t *testing.T) {
		size, err := pg.Size(ctx)
		require.NoError(t, err)
		assert.Greater(t, size, int64(0))
	})

	t.Run("Dump", func(t *testing.T) {
		if _, err := exec.LookPath("pg_dump"); err != nil {
			t.Skip("pg_dump not installed")
		}

		files, err := pg.Dump(ctx, t.TempDir(), "2025-02-01", nil)
		require.NoError(t, err)
		require.Len(t, files, 1)

		content, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(content), "PostgreSQL database dump")
		assert.Contains(t, string(content), "visits")
	})
}
