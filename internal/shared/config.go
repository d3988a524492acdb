package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/playsync/internal/resilience"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Retry       RetryConfig       `toml:"retry"`
	Recovery    RecoveryConfig    `toml:"recovery"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials and the tokens saved by `spotify auth`.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	TokenExpiry  time.Time `toml:"token_expiry,omitempty"`
}

// Map returns the client credentials in the form services.NewSpotifyService expects.
func (c SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
	}
}

// Token returns the saved token, or nil if `spotify auth` has not been run.
func (c SpotifyConfig) Token() *oauth2.Token {
	if c.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.TokenExpiry,
	}
}

// Update stores token. A refresh token missing from token keeps the saved one.
func (c *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidArgument)
	}
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	c.TokenExpiry = token.Expiry
	return nil
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// Map returns the credentials services.YouTubeService.Authenticate expects.
func (c YouTubeConfig) Map() map[string]string {
	return map[string]string{"auth_file": c.HeadersPath}
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RetryConfig is the on-disk form of [resilience.Policy].
type RetryConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelayMs       int      `toml:"base_delay_ms"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	Jitter            bool     `toml:"jitter"`
	MaxDelayMs        int      `toml:"max_delay_ms"`
	RespectRetryAfter bool     `toml:"respect_retry_after"`
	NonRetryableKinds []string `toml:"non_retryable_kinds"`
	RetryAllKinds     bool     `toml:"retry_all_kinds"`
}

// RecoveryConfig tunes the recommendations printed after a failure.
type RecoveryConfig struct {
	HomePath   string `toml:"home_path"`
	PremiumURL string `toml:"premium_url"`
}

// Policy converts the table into a validated [resilience.Policy].
// An empty kinds list keeps the default non-retryable kinds unless retry_all_kinds is set.
func (c RetryConfig) Policy() (resilience.Policy, error) {
	p := resilience.Policy{
		MaxAttempts:       c.MaxAttempts,
		BaseDelay:         time.Duration(c.BaseDelayMs) * time.Millisecond,
		BackoffMultiplier: c.BackoffMultiplier,
		Jitter:            c.Jitter,
		MaxDelay:          time.Duration(c.MaxDelayMs) * time.Millisecond,
		RespectRetryAfter: c.RespectRetryAfter,
		RetryAllKinds:     c.RetryAllKinds,
	}

	for _, name := range c.NonRetryableKinds {
		k, err := resilience.ParseKind(name)
		if err != nil {
			return p, fmt.Errorf("%w: retry.non_retryable_kinds: %w", ErrInvalidConfig, err)
		}
		p.NonRetryableKinds = p.NonRetryableKinds.With(k)
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: retry: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

// ResolverConfig builds the recovery table, mapping each integration to its reconnect command.
func (c RecoveryConfig) ResolverConfig(reconnect map[string]string) resilience.ResolverConfig {
	cfg := resilience.DefaultResolverConfig()
	if c.HomePath != "" {
		cfg.HomePath = c.HomePath
	}
	if c.PremiumURL != "" {
		cfg.PaidTierURL = c.PremiumURL
	}
	for name, path := range reconnect {
		cfg.ReconnectPaths[name] = path
	}
	return cfg
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Tables missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
