// File: config/config.go

// Package config loads the per-user lmsp configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/prompt"
	"github.com/kmlawson/lmsp/sanitize"
)

const (
	// MaxConfigBytes bounds the configuration file size.
	MaxConfigBytes = 64 << 10
	// MaxConfigDepth bounds JSON nesting in the configuration file.
	MaxConfigDepth = 5

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LMSP_"
	// PathEnv overrides the configuration file location.
	PathEnv = "LMSP_CONFIG"
)

// Output formats.
const (
	FormatPlain     = "plain"
	FormatDecorated = "decorated"
	FormatMarkdown  = "markdown"
)

// Token counting strategies.
const (
	TokenCountUsage    = "usage"
	TokenCountChunks   = "chunks"
	TokenCountTiktoken = "tiktoken"
)

// Config is the complete set of recognized options. Keys missing from the
// file keep their defaults.
type Config struct {
	Model       string          `json:"model" env:"MODEL" validate:"omitempty,modelname" jsonschema:"description=Model identifier; empty selects the first loaded model,maxLength=256"`
	Port        int             `json:"port" env:"PORT" validate:"min=1,max=65535" jsonschema:"description=LM Studio server port,minimum=1,maximum=65535,default=1234"`
	PipeMode    prompt.PipeMode `json:"pipe_mode" env:"PIPE_MODE" validate:"oneof=replace append prepend" jsonschema:"description=How piped input combines with the prompt argument,enum=replace,enum=append,enum=prepend,default=append"`
	Wait        bool            `json:"wait" env:"WAIT" jsonschema:"description=Wait for the full response instead of streaming"`
	Stats       bool            `json:"stats" env:"STATS" jsonschema:"description=Print token count and latency after the response"`
	Format      string          `json:"format" env:"FORMAT" validate:"oneof=plain decorated markdown" jsonschema:"description=Output format,enum=plain,enum=decorated,enum=markdown,default=decorated"`
	AutoLoad    bool            `json:"auto_load" env:"AUTO_LOAD" jsonschema:"description=Load a requested model that is not loaded instead of failing"`
	Timeout     int             `json:"timeout" env:"TIMEOUT" validate:"min=1,max=86400" jsonschema:"description=Request timeout in seconds,minimum=1,maximum=86400,default=300"`
	Temperature float64         `json:"temperature" env:"TEMPERATURE" validate:"min=0,max=2" jsonschema:"description=Sampling temperature,minimum=0,maximum=2,default=0.7"`
	TokenCount  string          `json:"token_count" env:"TOKEN_COUNT" validate:"oneof=usage chunks tiktoken" jsonschema:"description=Token count source: server usage with chunk fallback or chunk count or tiktoken estimate,enum=usage,enum=chunks,enum=tiktoken,default=usage"`
}

// validate is the shared validator instance used across the package.
var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("modelname", validateModelName); err != nil {
		panic(fmt.Sprintf("failed to register model name validator: %v", err))
	}
}

func validateModelName(fl validator.FieldLevel) bool {
	return sanitize.ValidateModelName(fl.Field().String()) == nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:       "",
		Port:        1234,
		PipeMode:    prompt.DefaultPipeMode,
		Wait:        false,
		Stats:       false,
		Format:      FormatDecorated,
		AutoLoad:    false,
		Timeout:     300,
		Temperature: 0.7,
		TokenCount:  TokenCountUsage,
	}
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Validate checks every field constraint.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errs.New(errs.ErrorTypeConfig, "invalid configuration", err)
	}
	return nil
}

// DefaultPath returns the per-user configuration file path.
func DefaultPath() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return filepath.Join(".lmsp", "config.json")
		}
		return filepath.Join(home, ".lmsp", "config.json")
	}
	return filepath.Join(dir, "lmsp", "config.json")
}

// Ensure writes the defaults to path unless a file already exists there.
// It reports whether the file was created.
func Ensure(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, errs.New(errs.ErrorTypeConfig, "cannot stat "+path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, errs.New(errs.ErrorTypeConfig, "cannot create config directory", err)
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return false, errs.New(errs.ErrorTypeConfig, "cannot encode defaults", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, errs.New(errs.ErrorTypeConfig, "cannot create "+path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return false, errs.New(errs.ErrorTypeConfig, "cannot write "+path, err)
	}
	return true, nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, "cannot open "+path, err)
	}
	defer f.Close()

	data, err := sanitize.ReadLimited(f, MaxConfigBytes)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, "cannot read "+path, err)
	}
	return Parse(data)
}

// Parse decodes a configuration document over the defaults.
func Parse(data []byte) (*Config, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errs.Newf(errs.ErrorTypeConfig, "configuration must be a JSON object")
	}

	cfg := Default()
	limits := sanitize.Limits{MaxBytes: MaxConfigBytes, MaxDepth: MaxConfigDepth, Strict: true}
	if err := sanitize.DecodeJSON(data, cfg, limits); err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, "malformed configuration", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path and falls back to Default with a warning when the
// file is missing, malformed or invalid.
func LoadOrDefault(path string, logger logging.Logger) *Config {
	cfg, err := Load(path)
	if err != nil {
		logger.Warn("Using default configuration", "path", path, "error", sanitize.Terminal(err.Error()))
		return Default()
	}
	logger.Debug("Configuration loaded", "path", path)
	return cfg
}
