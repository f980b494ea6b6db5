package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/desertthunder/listsync/internal/models"
)

//go:embed config.example.toml
var exampleConf []byte

// Auth methods accepted in [mailchimp] auth_method.
const (
	AuthAPIKey = "api_key"
	AuthOAuth  = "oauth"
)

// MaxRecordsPerRequest is the provider's upper bound on members per batch call.
const MaxRecordsPerRequest = 500

// Environment variables that override values read from the config file.
const (
	EnvAPIKey      = "LISTSYNC_APIKEY"
	EnvAccessToken = "LISTSYNC_ACCESS_TOKEN"
	EnvListID      = "LISTSYNC_LIST_ID"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Mailchimp MailchimpConfig `toml:"mailchimp"`
	Columns   ColumnsConfig   `toml:"columns"`
	Sync      SyncConfig      `toml:"sync"`
	Retry     RetryConfig     `toml:"retry"`
	Source    SourceConfig    `toml:"source"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

// MailchimpConfig holds credentials and the target list.
type MailchimpConfig struct {
	AuthMethod   string `toml:"auth_method"`
	APIKey       string `toml:"apikey"`
	AccessToken  string `toml:"access_token"`
	ListID       string `toml:"list_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	APIVersion   string `toml:"api_version"`
}

// ColumnsConfig maps input columns onto member attributes.
type ColumnsConfig struct {
	Email           string   `toml:"email"`
	FirstName       string   `toml:"fname"`
	LastName        string   `toml:"lname"`
	Language        string   `toml:"language"`
	MergeFields     []string `toml:"merge_fields"`
	GroupingColumns []string `toml:"grouping_columns"`
}

// SyncConfig controls batching and upsert semantics.
type SyncConfig struct {
	DoubleOptIn          bool `toml:"double_optin"`
	UpdateExisting       bool `toml:"update_existing"`
	ReplaceInterests     bool `toml:"replace_interests"`
	AtomicUpsert         bool `toml:"atomic_upsert"`
	MaxRecordsPerRequest int  `toml:"max_records_per_request"`
	SleepBetweenRequests int  `toml:"sleep_between_requests_millis"`
}

// RetryConfig is the transport backoff policy.
type RetryConfig struct {
	MaxRetries      int `toml:"max_retries"`
	InitialInterval int `toml:"initial_interval_millis"`
	MaxInterval     int `toml:"max_interval_millis"`
	Timeout         int `toml:"timeout_millis"`
}

// SourceConfig selects where rows are read from.
type SourceConfig struct {
	Type      string `toml:"type"`
	Path      string `toml:"path"`
	Query     string `toml:"query"`
	DSN       string `toml:"dsn"`
	Bucket    string `toml:"bucket"`
	Key       string `toml:"key"`
	Delimiter string `toml:"delimiter"`
}

// ServerConfig contains the OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// SleepDuration is the enforced delay between batch pushes.
func (c SyncConfig) SleepDuration() time.Duration {
	return time.Duration(c.SleepBetweenRequests) * time.Millisecond
}

// InitialWait is the first backoff interval.
func (c RetryConfig) InitialWait() time.Duration {
	return time.Duration(c.InitialInterval) * time.Millisecond
}

// MaxWait caps the backoff interval.
func (c RetryConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxInterval) * time.Millisecond
}

// TimeoutDuration is the per-request HTTP timeout.
func (c RetryConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// CallbackURL is the redirect URI registered for the OAuth app.
func (c ServerConfig) CallbackURL() string {
	return fmt.Sprintf("http://%s:%d/oauth/callback", c.Host, c.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep the defaults of [DefaultConfig]. Environment overrides are applied afterwards.
func LoadConfig(path string) (*Config, error) {
	config, err := ReadConfigFile(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv()
	return config, nil
}

// ReadConfigFile parses path over the defaults without environment overrides, so the
// result can be written back with [SaveConfig].
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
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

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes cfg as TOML and writes it to path.
func SaveConfig(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadEnv loads a .env file into the process environment. A missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials and the list id from LISTSYNC_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Mailchimp.APIKey = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Mailchimp.AccessToken = v
	}
	if v := os.Getenv(EnvListID); v != "" {
		c.Mailchimp.ListID = v
	}
}

// Validate checks the options the sync pipeline depends on.
func (c *Config) Validate() error {
	m := c.Mailchimp
	switch m.AuthMethod {
	case AuthAPIKey:
		if m.APIKey == "" {
			return fmt.Errorf("%w: 'apikey' is required when auth_method is 'api_key'", ErrMissingCredentials)
		}
		if !strings.HasPrefix(m.APIKey, "env:") && !strings.HasPrefix(m.APIKey, "aws-sm:") && !strings.Contains(m.APIKey, "-") {
			return fmt.Errorf("%w: 'apikey' must end with a datacenter suffix (e.g. -us6)", ErrInvalidConfig)
		}
	case AuthOAuth:
		if m.AccessToken == "" {
			return fmt.Errorf("%w: 'access_token' is required when auth_method is 'oauth'", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("%w: unknown auth_method '%s'", ErrInvalidConfig, m.AuthMethod)
	}

	if m.ListID == "" {
		return fmt.Errorf("%w: 'list_id' is required", ErrInvalidConfig)
	}

	if c.Columns.Email == "" {
		return fmt.Errorf("%w: 'email' column is required", ErrInvalidConfig)
	}

	if n := c.Sync.MaxRecordsPerRequest; n < 1 || n > MaxRecordsPerRequest {
		return fmt.Errorf("%w: max_records_per_request must be between 1 and %d, got %d", ErrInvalidConfig, MaxRecordsPerRequest, n)
	}
	if c.Sync.SleepBetweenRequests < 0 {
		return fmt.Errorf("%w: sleep_between_requests_millis must not be negative", ErrInvalidConfig)
	}

	r := c.Retry
	if r.MaxRetries < 0 || r.InitialInterval < 0 || r.MaxInterval < 0 || r.Timeout < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	if r.InitialInterval > r.MaxInterval {
		return fmt.Errorf("%w: initial_interval_millis (%d) exceeds max_interval_millis (%d)", ErrInvalidConfig, r.InitialInterval, r.MaxInterval)
	}

	return nil
}

// ValidateSchema checks that the input schema carries the columns the transformer reads.
//
// The email, first name and last name columns are required. Grouping columns missing from the
// schema are only logged, since rows without them are still pushed.
func (c *Config) ValidateSchema(schema models.Schema, logger *log.Logger) error {
	required := []string{c.Columns.Email, c.Columns.FirstName, c.Columns.LastName}
	var missing []string
	for _, name := range required {
		if name == "" {
			continue
		}
		if !schema.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	names := schema.Names()
	for _, g := range c.Columns.GroupingColumns {
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, g) }) && logger != nil {
			logger.Warnf("Data schema doesn't contain the task's grouping column: %s", g)
		}
	}
	return nil
}
