package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scan-licences/internal/season"
	"scan-licences/internal/storage"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Season   SeasonConfig   `yaml:"season"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Storage  StorageConfig  `yaml:"storage"`
	Backup   BackupConfig   `yaml:"backup"`
	Kiosk    KioskConfig    `yaml:"kiosk"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ServerConfig struct {
	Port           int    `yaml:"port"`
	JWTSecret      string `yaml:"jwt_secret"`
	TokenTTLHours  int    `yaml:"token_ttl_hours"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms"`
}

// DatabaseConfig selects the backend store. Driver is "mysql" or "sqlite";
// Path is only read for sqlite.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
}

type SeasonConfig struct {
	EndMonth int    `yaml:"end_month"`
	EndDay   int    `yaml:"end_day"`
	Timezone string `yaml:"timezone"`
}

type EnrichConfig struct {
	FunctionURL string `yaml:"function_url"`
	ProxyURL    string `yaml:"proxy_url"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	UserAgent   string `yaml:"user_agent"`
}

// StorageConfig describes where member photos and backups go. Backend is
// "gcs" or "dir".
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	PhotosBucket    string `yaml:"photos_bucket"`
	BackupsBucket   string `yaml:"backups_bucket"`
	PublicBaseURL   string `yaml:"public_base_url"`
	CredentialsFile string `yaml:"credentials_file"`
	Dir             string `yaml:"dir"`
}

type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type KioskConfig struct {
	ServerURL        string `yaml:"server_url"`
	Email            string `yaml:"email"`
	Password         string `yaml:"password"`
	OutboxPath       string `yaml:"outbox_path"`
	MaxAttempts      int    `yaml:"max_attempts"`
	DrainIntervalSec int    `yaml:"drain_interval_sec"`
	ProbeIntervalSec int    `yaml:"probe_interval_sec"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

func Load(configFile string) *Config {
	c := &Config{
		Server:   ServerConfig{Port: 9871, JWTSecret: "scan-licences-dev-secret", TokenTTLHours: 24 * 7, QueryTimeoutMS: 8000},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		Database: DatabaseConfig{Driver: "sqlite", Port: 3306, Name: "scan_licences", Path: "scan-licences.db"},
		Season:   SeasonConfig{EndMonth: season.DefaultEndMonth, EndDay: season.DefaultEndDay, Timezone: season.DefaultTimezone},
		Enrich:   EnrichConfig{ProxyURL: "https://r.jina.ai", TimeoutMS: 10000, UserAgent: "Mozilla/5.0"},
		Storage:  StorageConfig{Backend: "dir", PhotosBucket: "photos", BackupsBucket: "backups", Dir: "media"},
		Backup:   BackupConfig{Schedule: "0 3 * * *"},
		Kiosk: KioskConfig{
			ServerURL:        "http://localhost:9871",
			OutboxPath:       "outbox.db",
			MaxAttempts:      25,
			DrainIntervalSec: 15,
			ProbeIntervalSec: 5,
			RequestTimeoutMS: 8000,
		},
	}

	paths := []string{"etc/config-dev.yaml", "/etc/scan-licences/config.yaml"}
	if configFile != "" {
		paths = []string{configFile}
	}
	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, c)
			break
		}
	}

	envOverride(&c.Server.JWTSecret, "JWT_SECRET")
	envOverrideInt(&c.Server.Port, "PORT")
	envOverride(&c.Database.Driver, "DB_DRIVER")
	envOverride(&c.Database.Host, "DB_HOST")
	envOverride(&c.Database.User, "DB_USER")
	envOverride(&c.Database.Password, "DB_PASS")
	envOverride(&c.Database.Name, "DB_NAME")
	envOverride(&c.Database.Path, "DB_PATH")
	envOverrideInt(&c.Database.Port, "DB_PORT")
	envOverrideInt(&c.Server.QueryTimeoutMS, "DB_QUERY_TIMEOUT_MS")
	envOverrideInt(&c.Season.EndMonth, "SEASON_END_MONTH")
	envOverrideInt(&c.Season.EndDay, "SEASON_END_DAY")
	envOverride(&c.Season.Timezone, "CLUB_TIMEZONE")
	envOverride(&c.Enrich.FunctionURL, "ENRICH_FUNCTION_URL")
	envOverride(&c.Enrich.ProxyURL, "ENRICH_PROXY_URL")
	envOverride(&c.Storage.Backend, "STORAGE_BACKEND")
	envOverride(&c.Storage.PhotosBucket, "PHOTOS_BUCKET")
	envOverride(&c.Storage.BackupsBucket, "BACKUPS_BUCKET")
	envOverride(&c.Storage.PublicBaseURL, "STORAGE_PUBLIC_URL")
	envOverride(&c.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverride(&c.Kiosk.ServerURL, "KIOSK_SERVER_URL")
	envOverride(&c.Kiosk.Email, "KIOSK_EMAIL")
	envOverride(&c.Kiosk.Password, "KIOSK_PASSWORD")
	envOverride(&c.Kiosk.OutboxPath, "KIOSK_OUTBOX")

	return c
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Server.QueryTimeoutMS) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Server.TokenTTLHours) * time.Hour
}

func (c *Config) EnrichTimeout() time.Duration {
	return time.Duration(c.Enrich.TimeoutMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Kiosk.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) Calendar() (*season.Calendar, error) {
	return season.NewCalendar(c.Season.EndMonth, c.Season.EndDay, c.Season.Timezone)
}

func (c *Config) OpenGormDB() (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch c.Database.Driver {
	case "sqlite":
		return OpenSQLite(c.Database.Path)
	case "mysql":
	default:
		return nil, fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	cfg := gomysql.NewConfig()
	cfg.User = c.Database.User
	cfg.Passwd = c.Database.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
	cfg.DBName = c.Database.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), gcfg)
}

// OpenSQLite opens (or creates) a SQLite database file with foreign keys
// enforced. A single connection is kept so that ":memory:" databases stay
// alive and writers never contend for the file lock.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenBuckets builds the photo and backup buckets for the configured
// storage backend.
func (c *Config) OpenBuckets(ctx context.Context) (photos, backups storage.Bucket, err error) {
	switch c.Storage.Backend {
	case "gcs":
		photos, err = storage.NewGCSBucket(ctx, c.Storage.PhotosBucket, c.Storage.PublicBaseURL, c.Storage.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		backups, err = storage.NewGCSBucket(ctx, c.Storage.BackupsBucket, c.Storage.PublicBaseURL, c.Storage.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return photos, backups, nil
	case "dir", "":
		base := c.Storage.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d/media", c.Server.Port)
		}
		photos = storage.NewDirBucket(c.Storage.Dir+"/"+c.Storage.PhotosBucket, base+"/"+c.Storage.PhotosBucket)
		backups = storage.NewDirBucket(c.Storage.Dir+"/"+c.Storage.BackupsBucket, base+"/"+c.Storage.BackupsBucket)
		return photos, backups, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
