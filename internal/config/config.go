package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "NOTESAPP"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "notes.db"
	defaultLogLevel        = "info"
	defaultIssuer          = "notesapp"
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 240 * time.Hour
	defaultBcryptCost      = 10
	defaultMediaRegion     = "us-east-1"
	defaultMaxAvatarBytes  = 5 << 20
	defaultRetentionWindow = 30 * 24 * time.Hour
	defaultSweepInterval   = 24 * time.Hour
	defaultAuthPerMinute   = 10
	defaultAuthBurst       = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	Auth         AuthConfig
	CORS         CORSConfig
	Media        MediaConfig
	Retention    RetentionConfig
	RateLimit    RateLimitConfig
}

type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	CookieSecure  bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type MediaConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	PublicBaseURL  string
	MaxAvatarBytes int64
}

// RetentionConfig drives the trash sweeper.
type RetentionConfig struct {
	Window   time.Duration
	Interval time.Duration
}

// RateLimitConfig bounds unauthenticated credential endpoints per client IP.
type RateLimitConfig struct {
	AuthPerMinute int
	AuthBurst     int
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("auth.access_secret", "")
	configViper.SetDefault("auth.refresh_secret", "")
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.access_ttl", defaultAccessTTL)
	configViper.SetDefault("auth.refresh_ttl", defaultRefreshTTL)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("auth.cookie_secure", true)

	configViper.SetDefault("cors.allowed_origins", "")

	configViper.SetDefault("media.bucket", "")
	configViper.SetDefault("media.region", defaultMediaRegion)
	configViper.SetDefault("media.endpoint", "")
	configViper.SetDefault("media.access_key", "")
	configViper.SetDefault("media.secret_key", "")
	configViper.SetDefault("media.public_base_url", "")
	configViper.SetDefault("media.max_avatar_bytes", defaultMaxAvatarBytes)

	configViper.SetDefault("retention.window", defaultRetentionWindow)
	configViper.SetDefault("retention.interval", defaultSweepInterval)

	configViper.SetDefault("ratelimit.auth_per_minute", defaultAuthPerMinute)
	configViper.SetDefault("ratelimit.auth_burst", defaultAuthBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadStorage reads the full configuration but validates only the database and
// retention settings, for commands that never serve HTTP or touch media.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		Auth: AuthConfig{
			AccessSecret:  configViper.GetString("auth.access_secret"),
			RefreshSecret: configViper.GetString("auth.refresh_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			AccessTTL:     configViper.GetDuration("auth.access_ttl"),
			RefreshTTL:    configViper.GetDuration("auth.refresh_ttl"),
			BcryptCost:    configViper.GetInt("auth.bcrypt_cost"),
			CookieSecure:  configViper.GetBool("auth.cookie_secure"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(configViper.Get("cors.allowed_origins")),
		},
		Media: MediaConfig{
			Bucket:         configViper.GetString("media.bucket"),
			Region:         configViper.GetString("media.region"),
			Endpoint:       configViper.GetString("media.endpoint"),
			AccessKey:      configViper.GetString("media.access_key"),
			SecretKey:      configViper.GetString("media.secret_key"),
			PublicBaseURL:  configViper.GetString("media.public_base_url"),
			MaxAvatarBytes: configViper.GetInt64("media.max_avatar_bytes"),
		},
		Retention: RetentionConfig{
			Window:   configViper.GetDuration("retention.window"),
			Interval: configViper.GetDuration("retention.interval"),
		},
		RateLimit: RateLimitConfig{
			AuthPerMinute: configViper.GetInt("ratelimit.auth_per_minute"),
			AuthBurst:     configViper.GetInt("ratelimit.auth_burst"),
		},
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		return fmt.Errorf("auth.access_secret is required")
	}
	if strings.TrimSpace(c.Auth.RefreshSecret) == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret must differ")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Media.Bucket) == "" {
		return fmt.Errorf("media.bucket is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token ttls must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return fmt.Errorf("auth.access_ttl must be shorter than auth.refresh_ttl")
	}
	if c.RateLimit.AuthPerMinute <= 0 || c.RateLimit.AuthBurst <= 0 {
		return fmt.Errorf("ratelimit.auth_per_minute and ratelimit.auth_burst must be positive")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Retention.Window <= 0 || c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.window and retention.interval must be positive")
	}
	return nil
}

// splitList accepts a slice or a comma/space separated string.
func splitList(raw interface{}) []string {
	var parts []string
	switch value := raw.(type) {
	case []string:
		parts = value
	case []interface{}:
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		parts = strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
