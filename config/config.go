// Package config loads the server configuration from an optional YAML file,
// a .env file and ALLERGY_ prefixed environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/allergysnatcher/auth"
)

// EnvPrefix is prepended to every environment override, e.g.
// ALLERGY_DATABASE_DSN for database.dsn.
const EnvPrefix = "ALLERGY"

// Provider kinds.
const (
	KindGoogle = "google"
	KindGitHub = "github"
	KindOIDC   = "oidc"
)

// Config holds all configuration for the server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"` // dev, staging, prod
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects and tunes the credential store.
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // sqlite, postgres
	DSN          string        `mapstructure:"dsn"`
	Migrate      bool          `mapstructure:"migrate"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleTime  time.Duration `mapstructure:"max_idle_time"`
}

// RedisConfig holds Redis configuration. An empty Addr keeps handoff codes
// and rate limit counters in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Enabled reports whether a Redis server is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// AuthConfig holds session and credential settings.
type AuthConfig struct {
	SessionLifetime time.Duration `mapstructure:"session_lifetime"`
	RefreshLifetime time.Duration `mapstructure:"refresh_lifetime"`
	SessionCookie   string        `mapstructure:"session_cookie"`
	RefreshCookie   string        `mapstructure:"refresh_cookie"`
	RefreshPath     string        `mapstructure:"refresh_path"`
	CookieDomain    string        `mapstructure:"cookie_domain"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	AdminKey        string        `mapstructure:"admin_key"`
	// AppURL is where federated logins land with their handoff code.
	AppURL string `mapstructure:"app_url"`
	// StateKey encrypts OAuth state (16, 24 or 32 bytes).
	StateKey string `mapstructure:"state_key"`
	// StateHMACKey signs OAuth state (at least 32 bytes).
	StateHMACKey         string        `mapstructure:"state_hmac_key"`
	StateTTL             time.Duration `mapstructure:"state_ttl"`
	HandoffTTL           time.Duration `mapstructure:"handoff_ttl"`
	RequireVerifiedEmail bool          `mapstructure:"require_verified_email"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	LoginRateLimit       int           `mapstructure:"login_rate_limit"` // requests per minute
	LoginBurst           int           `mapstructure:"login_burst"`
}

// Cookies returns the cookie settings for the HTTP layer.
func (c AuthConfig) Cookies() auth.CookieConfig {
	return auth.CookieConfig{
		SessionName: c.SessionCookie,
		RefreshName: c.RefreshCookie,
		RefreshPath: c.RefreshPath,
		Domain:      c.CookieDomain,
		Secure:      c.CookieSecure,
	}
}

// OAuthConfig lists the federated login providers.
type OAuthConfig struct {
	PathPrefix string                    `mapstructure:"path_prefix"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
}

// Enabled returns the names of providers with a client id, sorted.
func (c OAuthConfig) Enabled() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if strings.TrimSpace(p.ClientID) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ProviderConfig configures one OAuth provider.
type ProviderConfig struct {
	Kind         string   `mapstructure:"kind"` // google, github, oidc
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url"`
	// Issuer and JWKSURL verify back-channel logout tokens.
	Issuer  string `mapstructure:"issuer"`
	JWKSURL string `mapstructure:"jwks_url"`
	// BackchannelSecret verifies HMAC signed logout tokens instead of JWKS.
	BackchannelSecret string `mapstructure:"backchannel_secret"`
}

// Validate checks one provider entry.
func (p ProviderConfig) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&p.Kind, validation.Required, validation.In(KindGoogle, KindGitHub, KindOIDC)),
		validation.Field(&p.ClientID, validation.Required),
		validation.Field(&p.ClientSecret, validation.Required),
		validation.Field(&p.RedirectURL, validation.Required, is.URL),
		validation.Field(&p.JWKSURL, is.URL),
	}
	if p.Kind == KindOIDC {
		rules = append(rules,
			validation.Field(&p.AuthURL, validation.Required, is.URL),
			validation.Field(&p.TokenURL, validation.Required, is.URL),
			validation.Field(&p.UserInfoURL, validation.Required, is.URL),
		)
	}
	return validation.ValidateStruct(&p, rules...)
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Format string `mapstructure:"format"` // json, text
	Level  string `mapstructure:"level"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration. file is an explicit config file; when empty
// config.yaml is searched in the working directory, ./config and
// /etc/allergysnatcher. A missing file is not an error.
func Load(file string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/allergysnatcher")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindProviderEnv(v, KindGoogle, KindGitHub)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, p := range cfg.OAuth.Providers {
		if p.Kind == "" {
			p.Kind = strings.ToLower(name)
		}
		cfg.OAuth.Providers[name] = p
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for settings the server cannot
// start with.
func (c *Config) Validate() error {
	errs := validation.Errors{}

	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&c.Database.DSN, validation.Required),
	); err != nil {
		errs["database"] = err
	}

	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		errs["server"] = err
	}

	if err := c.validateAuth(); err != nil {
		errs["auth"] = err
	}

	providers := validation.Errors{}
	for _, name := range c.OAuth.Enabled() {
		if err := c.OAuth.Providers[name].Validate(); err != nil {
			providers[name] = err
		}
	}
	if err := providers.Filter(); err != nil {
		errs["oauth"] = err
	}

	if err := errs.Filter(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid configuration").
			WithTextCode("config_invalid")
	}
	return nil
}

func (c *Config) validateAuth() error {
	a := &c.Auth

	rules := []*validation.FieldRules{
		validation.Field(&a.SessionLifetime, validation.Required),
		validation.Field(&a.RefreshLifetime, validation.Required),
		validation.Field(&a.SessionCookie, validation.Required),
		validation.Field(&a.RefreshCookie, validation.Required),
		validation.Field(&a.BcryptCost, validation.Min(4), validation.Max(31)),
		validation.Field(&a.LoginRateLimit, validation.Min(0)),
		validation.Field(&a.AppURL, is.URL),
	}
	if len(c.OAuth.Enabled()) > 0 {
		rules = append(rules,
			validation.Field(&a.AppURL, validation.Required),
			validation.Field(&a.StateKey, validation.Required, validation.By(aesKeySize)),
			validation.Field(&a.StateHMACKey, validation.Required, validation.Length(32, 0)),
		)
	}
	if err := validation.ValidateStruct(a, rules...); err != nil {
		return err
	}

	if a.RefreshLifetime <= a.SessionLifetime {
		return validation.Errors{"refresh_lifetime": errors.New("must be longer than session_lifetime", errors.CategoryValidation)}
	}
	if a.RefreshCookie == a.SessionCookie {
		return validation.Errors{"refresh_cookie": errors.New("must differ from session_cookie", errors.CategoryValidation)}
	}
	return nil
}

func aesKeySize(value interface{}) error {
	s, _ := value.(string)
	switch len(s) {
	case 16, 24, 32:
		return nil
	}
	return errors.New("must be 16, 24 or 32 bytes", errors.CategoryValidation)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.environment", "dev")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:allergy.db")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_time", "5m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "allergy:")

	v.SetDefault("auth.session_lifetime", auth.DefaultSessionLifetime.String())
	v.SetDefault("auth.refresh_lifetime", auth.DefaultRefreshLifetime.String())
	v.SetDefault("auth.session_cookie", auth.DefaultSessionCookie)
	v.SetDefault("auth.refresh_cookie", auth.DefaultRefreshCookie)
	v.SetDefault("auth.refresh_path", auth.DefaultRefreshPath)
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.app_url", "http://localhost:3000")
	v.SetDefault("auth.state_key", "")
	v.SetDefault("auth.state_hmac_key", "")
	v.SetDefault("auth.state_ttl", "10m")
	v.SetDefault("auth.handoff_ttl", "60s")
	v.SetDefault("auth.require_verified_email", true)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.login_rate_limit", 10)
	v.SetDefault("auth.login_burst", 5)

	v.SetDefault("oauth.path_prefix", "/auth/oauth")

	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindProviderEnv binds the built-in providers so they can be configured from
// the environment alone, e.g. ALLERGY_OAUTH_PROVIDERS_GOOGLE_CLIENT_ID.
func bindProviderEnv(v *viper.Viper, names ...string) {
	fields := []string{
		"kind", "client_id", "client_secret", "redirect_url",
		"issuer", "jwks_url", "backchannel_secret",
	}
	for _, name := range names {
		for _, field := range fields {
			key := "oauth.providers." + name + "." + field
			_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
		}
	}
}
