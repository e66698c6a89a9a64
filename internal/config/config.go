package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendLocal = "local"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Config struct {
	Backend string       `toml:"backend"`
	Server  ServerConfig `toml:"server"`
	S3      S3Config     `toml:"s3"`
	Azure   AzureConfig  `toml:"azure"`
	Local   LocalConfig  `toml:"local"`
	Auth    AuthConfig   `toml:"auth"`
	Log     LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Addr                string   `toml:"addr"`
	AllowRemote         bool     `toml:"allow_remote"`
	MetricsAddr         string   `toml:"metrics_addr"`
	Title               string   `toml:"title"`
	Theme               string   `toml:"theme"`
	MaxUploadMB         int64    `toml:"max_upload_mb"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
	AllowedOrigins      []string `toml:"allowed_origins"`
}

type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	UsePathStyle    bool   `toml:"use_path_style"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

type AzureConfig struct {
	AccountURL       string `toml:"account_url"`
	Container        string `toml:"container"`
	ConnectionString string `toml:"connection_string"`
	Prefix           string `toml:"prefix"`
}

type LocalConfig struct {
	Root string `toml:"root"`
}

type AuthConfig struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: "",
		Server: ServerConfig{
			Addr:                "127.0.0.1:8000",
			Title:               "S3 Drive",
			Theme:               ThemeLight,
			MaxUploadMB:         1024,
			ReadTimeoutSeconds:  300,
			WriteTimeoutSeconds: 300,
			AllowedOrigins:      []string{},
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the TOML file at path. A missing file yields defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.Title == "" {
		c.Server.Title = defaults.Server.Title
	}
	if c.Server.Theme == "" {
		c.Server.Theme = defaults.Server.Theme
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = defaults.Server.ReadTimeoutSeconds
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = defaults.Server.WriteTimeoutSeconds
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = []string{}
	}
	if c.S3.Region == "" {
		c.S3.Region = defaults.S3.Region
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// ApplyEnv overlays the supported environment variables. lookup is
// os.LookupEnv outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("S3DRIVE_BACKEND", &c.Backend)
	set("S3DRIVE_ADDR", &c.Server.Addr)
	set("S3DRIVE_BUCKET", &c.S3.Bucket)
	set("S3DRIVE_PREFIX", &c.S3.Prefix)
	set("S3DRIVE_AUTH_USERNAME", &c.Auth.Username)
	set("S3DRIVE_AUTH_PASSWORD_HASH", &c.Auth.PasswordHash)
	set("S3DRIVE_LOG_LEVEL", &c.Log.Level)
	set("AWS_REGION", &c.S3.Region)
	set("AWS_ENDPOINT_URL_S3", &c.S3.Endpoint)
	set("AZURE_STORAGE_CONNECTION_STRING", &c.Azure.ConnectionString)
}

func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Server.MetricsAddr = strings.TrimSpace(c.Server.MetricsAddr)
	c.Server.Theme = strings.ToLower(strings.TrimSpace(c.Server.Theme))
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Region = strings.TrimSpace(c.S3.Region)
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.Azure.AccountURL = strings.TrimSpace(c.Azure.AccountURL)
	c.Azure.Container = strings.TrimSpace(c.Azure.Container)
	c.Local.Root = strings.TrimSpace(c.Local.Root)
	c.Auth.Username = strings.TrimSpace(c.Auth.Username)
	c.Auth.PasswordHash = strings.TrimSpace(c.Auth.PasswordHash)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins

	if c.Backend == "" {
		if c.S3.Bucket != "" {
			c.Backend = BackendS3
		} else {
			c.Backend = BackendLocal
		}
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket is required for the s3 backend")
		}
	case BackendAzure:
		if c.Azure.Container == "" {
			return errors.New("azure.container is required for the azure backend")
		}
		if c.Azure.ConnectionString == "" && c.Azure.AccountURL == "" {
			return errors.New("azure.account_url or azure.connection_string is required")
		}
	case BackendLocal:
	default:
		return fmt.Errorf("backend must be s3, azure, or local (got %q)", c.Backend)
	}

	if c.S3.Endpoint != "" {
		u, err := url.Parse(c.S3.Endpoint)
		if err != nil || u.Host == "" {
			return fmt.Errorf("s3.endpoint must be a valid http(s) URL")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("s3.endpoint must use http or https")
		}
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
	}

	switch c.Server.Theme {
	case ThemeLight, ThemeDark:
	default:
		return errors.New("server.theme must be light or dark")
	}
	if c.Server.MaxUploadMB < 0 {
		return errors.New("server.max_upload_mb must be >= 0")
	}
	if c.Server.ReadTimeoutSeconds < 0 || c.Server.WriteTimeoutSeconds < 0 {
		return errors.New("server timeouts must be >= 0")
	}

	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		return errors.New("auth.username and auth.password_hash must be set together")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("log.format must be text or json")
	}
	return nil
}

// AuthEnabled reports whether basic auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Username != "" && c.Auth.PasswordHash != ""
}

// BucketLabel is the human-readable name of the configured bucket.
func (c *Config) BucketLabel() string {
	switch c.Backend {
	case BackendS3:
		return c.S3.Bucket
	case BackendAzure:
		return c.Azure.Container
	default:
		if c.Local.Root != "" {
			return c.Local.Root
		}
		return "local"
	}
}
