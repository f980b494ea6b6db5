package shared

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/listsync/internal/models"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.Mailchimp.APIKey = "0123456789abcdef-us6"
	c.Mailchimp.ListID = "abc123"
	return c
}

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Mailchimp.AuthMethod != AuthAPIKey {
			t.Errorf("expected auth method api_key, got %s", config.Mailchimp.AuthMethod)
		}
		if config.Sync.MaxRecordsPerRequest != 500 {
			t.Errorf("expected batch size 500, got %d", config.Sync.MaxRecordsPerRequest)
		}
		if config.Sync.SleepBetweenRequests != 3000 {
			t.Errorf("expected sleep 3000ms, got %d", config.Sync.SleepBetweenRequests)
		}
		if !config.Sync.DoubleOptIn || config.Sync.UpdateExisting || !config.Sync.ReplaceInterests || config.Sync.AtomicUpsert {
			t.Errorf("unexpected sync flags: %+v", config.Sync)
		}
		if config.Retry.MaxRetries != 6 || config.Retry.InitialInterval != 1000 || config.Retry.MaxInterval != 32000 || config.Retry.Timeout != 60000 {
			t.Errorf("unexpected retry defaults: %+v", config.Retry)
		}
		if config.Columns.Email != "email" || config.Columns.FirstName != "fname" || config.Columns.LastName != "lname" {
			t.Errorf("unexpected column defaults: %+v", config.Columns)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Sync.MaxRecordsPerRequest != DefaultConfig().Sync.MaxRecordsPerRequest {
			t.Errorf("created config batch size doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for absent keys", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[mailchimp]
apikey = "key-us1"
list_id = "list1"

[columns]
grouping_columns = ["VIP", "Newsletter"]
merge_fields = ["company"]

[sync]
max_records_per_request = 100
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Sync.MaxRecordsPerRequest != 100 {
			t.Errorf("expected batch size 100, got %d", config.Sync.MaxRecordsPerRequest)
		}
		if !config.Sync.DoubleOptIn {
			t.Error("expected double_optin default to survive")
		}
		if len(config.Columns.GroupingColumns) != 2 || config.Columns.MergeFields[0] != "company" {
			t.Errorf("unexpected columns: %+v", config.Columns)
		}
		if config.Retry.MaxRetries != 6 {
			t.Errorf("expected retry default 6, got %d", config.Retry.MaxRetries)
		}
	})

	t.Run("LoadConfig rejects malformed toml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[mailchimp\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "fromenv-us9")
		t.Setenv(EnvListID, "envlist")

		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config: %v", err)
		}
		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if config.Mailchimp.APIKey != "fromenv-us9" || config.Mailchimp.ListID != "envlist" {
			t.Errorf("expected env overrides, got %+v", config.Mailchimp)
		}
	})

	t.Run("SaveConfig round trip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		cfg := validConfig()
		cfg.Mailchimp.AccessToken = "token"

		if err := SaveConfig(configPath, cfg); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}
		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}
		if loaded.Mailchimp.AccessToken != "token" || loaded.Mailchimp.ListID != "abc123" {
			t.Errorf("saved values lost: %+v", loaded.Mailchimp)
		}
	})

	t.Run("LoadEnv", func(t *testing.T) {
		dir := t.TempDir()
		envPath := filepath.Join(dir, ".env")
		if err := os.WriteFile(envPath, []byte("LISTSYNC_TEST_VALUE=hello\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Cleanup(func() { os.Unsetenv("LISTSYNC_TEST_VALUE") })

		if err := LoadEnv(envPath); err != nil {
			t.Fatalf("LoadEnv failed: %v", err)
		}
		if got := os.Getenv("LISTSYNC_TEST_VALUE"); got != "hello" {
			t.Errorf("expected hello, got %q", got)
		}

		if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
			t.Errorf("missing env file should be ignored, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tc := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown auth method", mutate: func(c *Config) { c.Mailchimp.AuthMethod = "basic" }, wantErr: ErrInvalidConfig},
		{name: "missing api key", mutate: func(c *Config) { c.Mailchimp.APIKey = "" }, wantErr: ErrMissingCredentials},
		{name: "api key without datacenter", mutate: func(c *Config) { c.Mailchimp.APIKey = "abcdef" }, wantErr: ErrInvalidConfig},
		{name: "api key reference", mutate: func(c *Config) { c.Mailchimp.APIKey = "env:MC_KEY" }},
		{name: "oauth without token", mutate: func(c *Config) { c.Mailchimp.AuthMethod = AuthOAuth }, wantErr: ErrMissingCredentials},
		{name: "oauth with token", mutate: func(c *Config) {
			c.Mailchimp.AuthMethod = AuthOAuth
			c.Mailchimp.AccessToken = "tok"
		}},
		{name: "missing list id", mutate: func(c *Config) { c.Mailchimp.ListID = "" }, wantErr: ErrInvalidConfig},
		{name: "batch too large", mutate: func(c *Config) { c.Sync.MaxRecordsPerRequest = 501 }, wantErr: ErrInvalidConfig},
		{name: "batch zero", mutate: func(c *Config) { c.Sync.MaxRecordsPerRequest = 0 }, wantErr: ErrInvalidConfig},
		{name: "initial above max", mutate: func(c *Config) { c.Retry.InitialInterval = 64000 }, wantErr: ErrInvalidConfig},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSchema(t *testing.T) {
	t.Run("required columns present", func(t *testing.T) {
		c := validConfig()
		if err := c.ValidateSchema(models.NewSchema("email", "fname", "lname"), nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing lname", func(t *testing.T) {
		c := validConfig()
		err := c.ValidateSchema(models.NewSchema("email", "fname"), nil)
		if !errors.Is(err, ErrMissingColumn) {
			t.Fatalf("expected ErrMissingColumn, got %v", err)
		}
		if !strings.Contains(err.Error(), "lname") {
			t.Errorf("error should name the column: %v", err)
		}
	})

	t.Run("missing grouping column warns", func(t *testing.T) {
		var buf bytes.Buffer
		c := validConfig()
		c.Columns.GroupingColumns = []string{"VIP"}

		if err := c.ValidateSchema(models.NewSchema("email", "fname", "lname"), NewLogger(&buf)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "grouping column: VIP") {
			t.Errorf("expected warning, got %s", buf.String())
		}
	})
}
