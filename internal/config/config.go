package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	CompressionGzip = "gzip"
	CompressionXz   = "xz"
	CompressionNone = "none"
)

// Config is built once by Load and treated as read-only afterwards. Every
// orchestrator receives it by pointer and never mutates it.
type Config struct {
	Backup BackupConfig `mapstructure:"backup"`
	SSH    SSHConfig    `mapstructure:"ssh"`
	MySQL  DBConfig     `mapstructure:"mysql"`
	PgSQL  DBConfig     `mapstructure:"pgsql"`
	Crypt  CryptConfig  `mapstructure:"crypt"`
	Dumps  DumpsConfig  `mapstructure:"dumps"`
	Notify NotifyConfig `mapstructure:"notify"`
	Log    LogConfig    `mapstructure:"log"`
}

type BackupConfig struct {
	Directory      string   `mapstructure:"directory"`
	RetentionDays  int      `mapstructure:"retention_days"`
	Compression    string   `mapstructure:"compression"`
	Exclude        []string `mapstructure:"exclude"`
	DiskSpaceCheck bool     `mapstructure:"disk_space_check"`
}

type SSHConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	BackupHome     string        `mapstructure:"backup_home"`
	Password       string        `mapstructure:"password"`
	KeyFile        string        `mapstructure:"key_file"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func (s SSHConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DBConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	User      string   `mapstructure:"user"`
	Password  string   `mapstructure:"password"`
	Databases []string `mapstructure:"databases"`
}

// AllDatabases reports whether the configured set means "every database"
// (empty list or a single "*").
func (d DBConfig) AllDatabases() bool {
	if len(d.Databases) == 0 {
		return true
	}
	return len(d.Databases) == 1 && d.Databases[0] == "*"
}

type CryptConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
}

type DumpsConfig struct {
	Compression string `mapstructure:"compression"` // none, gzip, zstd, lz4
}

type NotifyConfig struct {
	SlackWebhook string `mapstructure:"slack_webhook"`
	WebhookURL   string `mapstructure:"webhook_url"`
}

type LogConfig struct {
	JSON    bool   `mapstructure:"json"`
	NoColor bool   `mapstructure:"no_color"`
	Level   string `mapstructure:"level"`
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("arkhive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".arkhive"))
		}
		v.AddConfigPath("/etc/arkhive")
	}

	v.SetEnvPrefix("ARKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The flat environment names some deployments already export keep
	// working as aliases next to the ARKHIVE_* forms.
	v.BindEnv("backup.directory", "ARKHIVE_BACKUP_DIRECTORY", "BACKUP_DIRECTORY")
	v.BindEnv("backup.retention_days", "ARKHIVE_BACKUP_RETENTION_DAYS", "BACKUP_RETENTION_DAYS")
	v.BindEnv("backup.compression", "ARKHIVE_BACKUP_COMPRESSION", "BACKUP_COMPRESSION")
	v.BindEnv("ssh.host", "ARKHIVE_SSH_HOST", "SSH_HOST")
	v.BindEnv("ssh.port", "ARKHIVE_SSH_PORT", "SSH_PORT")
	v.BindEnv("ssh.user", "ARKHIVE_SSH_USER", "SSH_USER")
	v.BindEnv("ssh.backup_home", "ARKHIVE_SSH_BACKUP_HOME", "SSH_BACKUP_HOME")
	v.BindEnv("mysql.enabled", "ARKHIVE_MYSQL_ENABLED", "WITH_MYSQL")
	v.BindEnv("mysql.host", "ARKHIVE_MYSQL_HOST", "MYSQL_HOST")
	v.BindEnv("mysql.port", "ARKHIVE_MYSQL_PORT", "MYSQL_PORT")
	v.BindEnv("mysql.user", "ARKHIVE_MYSQL_USER", "MYSQL_USER")
	v.BindEnv("mysql.password", "ARKHIVE_MYSQL_PASSWORD", "MYSQL_PASSWORD")
	v.BindEnv("pgsql.enabled", "ARKHIVE_PGSQL_ENABLED", "WITH_PGSQL")
	v.BindEnv("pgsql.host", "ARKHIVE_PGSQL_HOST", "PGSQL_HOST")
	v.BindEnv("pgsql.port", "ARKHIVE_PGSQL_PORT", "PGSQL_PORT")
	v.BindEnv("pgsql.user", "ARKHIVE_PGSQL_USER", "PGSQL_USER")
	v.BindEnv("pgsql.password", "ARKHIVE_PGSQL_PASSWORD", "PGSQL_PASSWORD")
	v.BindEnv("crypt.enabled", "ARKHIVE_CRYPT_ENABLED", "WITH_CRYPT")
	v.BindEnv("crypt.password", "ARKHIVE_CRYPT_PASSWORD", "CRYPT_PASSWORD")

	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.compression", CompressionGzip)
	v.SetDefault("backup.disk_space_check", false)
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", "15s")
	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.databases", []string{"*"})
	v.SetDefault("pgsql.host", "127.0.0.1")
	v.SetDefault("pgsql.port", 5432)
	v.SetDefault("pgsql.databases", []string{"*"})
	v.SetDefault("dumps.compression", "none")
	v.SetDefault("log.level", "info")

	return v
}

func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, apperrors.Wrap(err, apperrors.KindConfig, "failed to read config file", "Check the path passed via --config and the YAML syntax.")
		}
	}

	return unmarshal(v)
}

// LoadAndWatch behaves like Load and additionally re-parses the file on
// change, invoking onChange with each new valid configuration. Invalid
// edits are dropped so a running daemon keeps its last good config.
func LoadAndWatch(configPath string, onChange func(*Config)) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, apperrors.Wrap(err, apperrors.KindConfig, "failed to read config file", "Check the path passed via --config and the YAML syntax.")
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := unmarshal(v)
		if err != nil {
			return
		}
		onChange(next)
	})

	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfig, "failed to unmarshal config", "Check field types in the config file.")
	}

	if cfg.Crypt.Password == "" && cfg.Crypt.PasswordFile != "" {
		data, err := os.ReadFile(cfg.Crypt.PasswordFile)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindConfig, "failed to read crypt password file", "Check crypt.password_file path and permissions.")
		}
		cfg.Crypt.Password = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Backup.Directory == "" {
		return apperrors.New(apperrors.KindConfig, "backup.directory is required", "Set backup.directory (or BACKUP_DIRECTORY) to the tree to back up.")
	}
	if c.Backup.RetentionDays < 0 {
		return apperrors.New(apperrors.KindConfig, "backup.retention_days must not be negative", "Use 0 to disable remote pruning.")
	}
	switch c.Backup.Compression {
	case CompressionGzip, CompressionXz, CompressionNone:
	default:
		return apperrors.New(apperrors.KindConfig,
			fmt.Sprintf("unsupported backup.compression %q", c.Backup.Compression),
			"Valid values: gzip, xz, none.")
	}
	if c.SSH.Host == "" || c.SSH.User == "" {
		return apperrors.New(apperrors.KindConfig, "ssh.host and ssh.user are required", "Set the SSH destination for offsite backups.")
	}
	if c.SSH.BackupHome == "" {
		return apperrors.New(apperrors.KindConfig, "ssh.backup_home is required", "Set the remote directory that holds the dated backup folders.")
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return apperrors.New(apperrors.KindConfig, fmt.Sprintf("invalid ssh.port %d", c.SSH.Port), "")
	}
	if c.Crypt.Enabled && c.Crypt.Password == "" {
		return apperrors.New(apperrors.KindConfig, "crypt.enabled is set but no password is configured", "Set crypt.password, crypt.password_file, or CRYPT_PASSWORD.")
	}
	if c.MySQL.Enabled && c.MySQL.User == "" {
		return apperrors.New(apperrors.KindConfig, "mysql.enabled is set but mysql.user is empty", "Provide MySQL credentials for the dump stage.")
	}
	if c.PgSQL.Enabled && c.PgSQL.User == "" {
		return apperrors.New(apperrors.KindConfig, "pgsql.enabled is set but pgsql.user is empty", "Provide PostgreSQL credentials for the dump stage.")
	}
	switch c.Dumps.Compression {
	case "", "none", "gzip", "zstd", "lz4":
	default:
		return apperrors.New(apperrors.KindConfig,
			fmt.Sprintf("unsupported dumps.compression %q", c.Dumps.Compression),
			"Valid values: none, gzip, zstd, lz4.")
	}
	return nil
}
