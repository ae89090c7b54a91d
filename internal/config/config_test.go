package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BACKUP_DIRECTORY", "/var/www")
	t.Setenv("SSH_HOST", "backup.example.com")
	t.Setenv("SSH_USER", "deploy")
	t.Setenv("SSH_BACKUP_HOME", "/backups/web01")
	t.Setenv("ARKHIVE_BACKUP_RETENTION_DAYS", "45")
	t.Setenv("WITH_MYSQL", "true")
	t.Setenv("MYSQL_USER", "root")
	t.Setenv("MYSQL_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/www", cfg.Backup.Directory)
	assert.Equal(t, 45, cfg.Backup.RetentionDays)
	assert.Equal(t, CompressionGzip, cfg.Backup.Compression)
	assert.Equal(t, "backup.example.com", cfg.SSH.Host)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, "backup.example.com:22", cfg.SSH.Addr())
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.True(t, cfg.MySQL.Enabled)
	assert.Equal(t, "root", cfg.MySQL.User)
	assert.True(t, cfg.MySQL.AllDatabases())
	assert.False(t, cfg.PgSQL.Enabled)
}

func TestLoad_YamlFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "arkhive.yaml")

	yamlContent := `
backup:
  directory: /srv/data
  retention_days: 7
  compression: xz
  exclude:
    - "/srv/data/cache/*"
    - "*.tmp"
ssh:
  host: vault.internal
  port: 2222
  user: arkhive
  backup_home: /vault/web01
  connect_timeout: 30s
pgsql:
  enabled: true
  user: postgres
  databases:
    - shop
    - accounts
crypt:
  enabled: true
  password: hunter2
dumps:
  compression: zstd
log:
  level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlContent), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", cfg.Backup.Directory)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, CompressionXz, cfg.Backup.Compression)
	assert.Equal(t, []string{"/srv/data/cache/*", "*.tmp"}, cfg.Backup.Exclude)
	assert.Equal(t, "vault.internal:2222", cfg.SSH.Addr())
	assert.Equal(t, 30*time.Second, cfg.SSH.ConnectTimeout)
	assert.True(t, cfg.PgSQL.Enabled)
	assert.False(t, cfg.PgSQL.AllDatabases())
	assert.Equal(t, []string{"shop", "accounts"}, cfg.PgSQL.Databases)
	assert.True(t, cfg.Crypt.Enabled)
	assert.Equal(t, "hunter2", cfg.Crypt.Password)
	assert.Equal(t, "zstd", cfg.Dumps.Compression)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_CryptPasswordFile(t *testing.T) {
	tmpDir := t.TempDir()
	passFile := filepath.Join(tmpDir, "crypt.pass")
	require.NoError(t, os.WriteFile(passFile, []byte("s3cret-phrase\n"), 0600))

	configFile := filepath.Join(tmpDir, "arkhive.yaml")
	yamlContent := `
backup:
  directory: /srv/data
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault/web01
crypt:
  enabled: true
  password_file: ` + passFile + `
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlContent), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-phrase", cfg.Crypt.Password)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing backup directory",
			yaml: `
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
`,
		},
		{
			name: "missing ssh host",
			yaml: `
backup:
  directory: /srv/data
ssh:
  user: arkhive
  backup_home: /vault
`,
		},
		{
			name: "bad compression",
			yaml: `
backup:
  directory: /srv/data
  compression: brotli
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
`,
		},
		{
			name: "crypt without password",
			yaml: `
backup:
  directory: /srv/data
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
crypt:
  enabled: true
`,
		},
		{
			name: "negative retention",
			yaml: `
backup:
  directory: /srv/data
  retention_days: -1
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), "arkhive.yaml")
			require.NoError(t, os.WriteFile(configFile, []byte(tt.yaml), 0644))

			_, err := Load(configFile)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
		})
	}
}

func TestLoadAndWatch_HotReload(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "arkhive.yaml")

	base := `
backup:
  directory: /srv/data
  retention_days: 10
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
`
	require.NoError(t, os.WriteFile(configFile, []byte(base), 0644))

	changed := make(chan *Config, 1)
	cfg, err := LoadAndWatch(configFile, func(next *Config) {
		select {
		case changed <- next:
		default:
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Backup.RetentionDays)

	updated := `
backup:
  directory: /srv/data
  retention_days: 20
ssh:
  host: vault.internal
  user: arkhive
  backup_home: /vault
`
	require.NoError(t, os.WriteFile(configFile, []byte(updated), 0644))

	// Wait for fsnotify to deliver the change
	select {
	case next := <-changed:
		assert.Equal(t, 20, next.Backup.RetentionDays)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}
