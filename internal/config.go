package internal

import (
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Graph  GraphConfig       `yaml:"graph"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Graph.Validate(); err != nil {
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

// GraphConfig describes the file graph being imported and how to read it.
type GraphConfig struct {
	Path string `yaml:"path"`
	// DateFormat is the journal title format, e.g. "MMM do, yyyy".
	DateFormat string `yaml:"date_format"`
	// BlockPattern is the marker that starts an outline block.
	BlockPattern string   `yaml:"block_pattern"`
	TagClasses   []string `yaml:"tag_classes"`
	// PageTagsPropertyID overrides the property holding non-class page tags.
	PageTagsPropertyID string            `yaml:"page_tags_property_id"`
	Macros             map[string]string `yaml:"macros"`
	// Watch keeps the database in step with the directory while serving.
	Watch bool `yaml:"watch"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.DateFormat, validation.By(func(any) error {
			_, err := parser.NewDateFormat(c.DateFormat)
			return err
		})),
		validation.Field(&c.BlockPattern, validation.In("-", "*", "+")),
		validation.Field(&c.PageTagsPropertyID, validation.By(func(any) error {
			if c.PageTagsPropertyID == "" {
				return nil
			}
			if _, err := uuid.Parse(c.PageTagsPropertyID); err != nil {
				return errors.New("must be a valid UUID")
			}
			return nil
		})),
	)
}

// ExporterOptions converts the graph configuration into import options.
func (c *GraphConfig) ExporterOptions(logger *slog.Logger) exporter.Options {
	opts := exporter.Options{
		Extractor: parser.Extractor{},
		ExtractOptions: exporter.ExtractOptions{
			BlockPattern: c.BlockPattern,
			DateFormat:   c.DateFormat,
			DBGraphMode:  true,
		},
		TagClasses: c.TagClasses,
		Macros:     c.Macros,
		Logger:     logger,
	}
	if id, err := uuid.Parse(c.PageTagsPropertyID); err == nil {
		opts.PageTagsPropertyID = id
	}
	return opts
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

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
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
		Graph: GraphConfig{
			Path:         "./graph",
			DateFormat:   parser.DefaultDateFormat,
			BlockPattern: parser.DefaultBlockPattern,
			Watch:        true,
		},
		SQLite: SQLiteConfig{
			Path: "./graph.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
