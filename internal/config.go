package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mocsync/internal/layout"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Hub    HubConfig         `yaml:"hub"`
	Sync   SyncConfig        `yaml:"sync"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Hub.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the Markdown vault on disk.
type VaultConfig struct {
	Path              string `yaml:"path"`
	AttachmentsFolder string `yaml:"attachments_folder"`
	// SystemTrash is the directory used for deletions; empty falls back to
	// the vault-local .trash folder.
	SystemTrash string `yaml:"system_trash"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AttachmentsFolder, validation.Required, validation.By(layout.NameRule)),
	)
}

// HubConfig holds the naming and reconciliation conventions for hubs.
type HubConfig struct {
	MarkerKey          string `yaml:"marker_key"`
	DuplicateSuffix    string `yaml:"duplicate_suffix"`
	Heading            string `yaml:"heading"`
	ConfirmPhrase      string `yaml:"confirm_phrase"`
	FlattenNestedItems bool   `yaml:"flatten_nested_items"`
	// TemplatesFolder and ContainerPath seed the persisted settings on first start.
	TemplatesFolder string `yaml:"templates_folder"`
	ContainerPath   string `yaml:"container_path"`
}

// Validate validates the hub configuration.
func (c *HubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MarkerKey, validation.Required),
		validation.Field(&c.DuplicateSuffix, validation.Required, validation.By(layout.NameRule)),
		validation.Field(&c.Heading, validation.Required),
		validation.Field(&c.ConfirmPhrase, validation.Required),
	)
}

// SyncConfig tunes event settling and the retry policy.
type SyncConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	Concurrency int           `yaml:"concurrency"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SettleDelay, validation.Required),
		validation.Field(&c.BaseDelay, validation.Required),
		validation.Field(&c.MaxDelay, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("sync: max_delay must not be less than base_delay")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:              "./vault",
			AttachmentsFolder: "attachments",
		},
		Hub: HubConfig{
			MarkerKey:       "MOC-plugin",
			DuplicateSuffix: "-duplicate",
			Heading:         "New items",
			ConfirmPhrase:   "confirm delete",
			TemplatesFolder: "Templates",
		},
		Sync: SyncConfig{
			SettleDelay: 500 * time.Millisecond,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			MaxAttempts: 5,
			Concurrency: 4,
		},
		SQLite: SQLiteConfig{
			Path: "./mocsync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
