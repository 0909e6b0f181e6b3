package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                    = "DOCVAULT"
	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultDatabasePath          = "docvault.db"
	defaultLogLevel              = "info"
	defaultLogEncoding           = "json"
	defaultTokenTTLMinutes       = 30
	defaultCapabilityTTLMinutes  = 5
	defaultAssistTimeoutMillis   = 3000
	defaultAllowedOrigins        = "http://localhost:3000"
	defaultLoginMaxAttempts      = 3
	defaultLoginLockoutSeconds   = 10
	defaultTokenIssuer           = "docvault-auth"
	defaultTokenAudience         = "docvault-api"
	defaultCapabilityTokenIssuer = "docvault-access"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	AllowedOrigins   []string
	DatabasePath     string
	LogLevel         string
	LogEncoding      string
	SigningSecret    string
	TokenIssuer      string
	TokenAudience    string
	TokenTTL         time.Duration
	CapabilityIssuer string
	CapabilityTTL    time.Duration
	DeviceStorePath  string
	AssistTimeout    time.Duration
	LoginMaxAttempts int
	LoginLockout     time.Duration
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
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.login_max_attempts", defaultLoginMaxAttempts)
	configViper.SetDefault("auth.login_lockout_seconds", defaultLoginLockoutSeconds)
	configViper.SetDefault("access.issuer", defaultCapabilityTokenIssuer)
	configViper.SetDefault("access.capability_ttl_minutes", defaultCapabilityTTLMinutes)
	configViper.SetDefault("device.store_path", "")
	configViper.SetDefault("assist.timeout_ms", defaultAssistTimeoutMillis)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		AllowedOrigins:   splitList(configViper.GetString("http.allowed_origins")),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		LogEncoding:      configViper.GetString("log.encoding"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenIssuer:      configViper.GetString("auth.issuer"),
		TokenAudience:    configViper.GetString("auth.audience"),
		TokenTTL:         time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CapabilityIssuer: configViper.GetString("access.issuer"),
		CapabilityTTL:    time.Duration(configViper.GetInt("access.capability_ttl_minutes")) * time.Minute,
		DeviceStorePath:  configViper.GetString("device.store_path"),
		AssistTimeout:    time.Duration(configViper.GetInt("assist.timeout_ms")) * time.Millisecond,
		LoginMaxAttempts: configViper.GetInt("auth.login_max_attempts"),
		LoginLockout:     time.Duration(configViper.GetInt("auth.login_lockout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.CapabilityTTL <= 0 {
		return fmt.Errorf("access.capability_ttl_minutes must be positive")
	}
	if c.AssistTimeout <= 0 {
		return fmt.Errorf("assist.timeout_ms must be positive")
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("auth.login_max_attempts must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
