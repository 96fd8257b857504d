// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// Providers understood by Chat.Provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatlink configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Ollama  OllamaConfig  `toml:"ollama" json:"ollama"`
	OpenAI  OpenAIConfig  `toml:"openai" json:"openai"`
	Limits  LimitsConfig  `toml:"limits" json:"limits"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// ChatConfig contains conversation settings.
type ChatConfig struct {
	// Provider selects the transport: "ollama" or "openai"
	Provider string `toml:"provider" json:"provider"`
	// Model overrides the provider's model when set
	Model string `toml:"model" json:"model"`
	// SystemPrompt is sent first on every request; ${date}, ${time}, ${os}
	// and ${cwd} are expanded
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// MaxTokens caps the response length (0 = provider default)
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// Temperature for sampling (0 = provider default)
	Temperature float64 `toml:"temperature" json:"temperature"`
	// ContextWindow bounds the estimated prompt size; older history is
	// dropped to fit (0 = unbounded)
	ContextWindow int `toml:"context_window" json:"context_window"`
}

// OllamaConfig contains local Ollama settings.
type OllamaConfig struct {
	URL   string `toml:"url" json:"url"`
	Model string `toml:"model" json:"model"`
}

// OpenAIConfig contains settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL  string `toml:"base_url" json:"base_url"`
	APIKey   string `toml:"api_key" json:"api_key"`
	Model    string `toml:"model" json:"model"`
	SiteURL  string `toml:"site_url" json:"site_url,omitempty"`
	SiteName string `toml:"site_name" json:"site_name,omitempty"`
}

// LimitsConfig contains local request limits.
type LimitsConfig struct {
	// RequestsPerMinute vetoes exchanges beyond the budget (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
	// MaxFileSizeKB caps files pinned or mentioned as context
	MaxFileSizeKB int `toml:"max_file_size_kb" json:"max_file_size_kb"`
}

// StorageConfig contains exchange journal settings.
type StorageConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// JournalPath is the SQLite database path; empty uses the config dir
	JournalPath string `toml:"journal_path" json:"journal_path"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// JSON selects structured JSON output instead of console output
	JSON bool `toml:"json" json:"json"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// Theme is dark, light or auto
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders final answers with glamour on a terminal
	Markdown bool `toml:"markdown" json:"markdown"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Chat: ChatConfig{
			Provider:      ProviderOllama,
			SystemPrompt:  "You are a helpful programming assistant. Today is ${date}.",
			MaxTokens:     0,
			Temperature:   0,
			ContextWindow: 32768,
		},

		Ollama: OllamaConfig{
			URL:   "http://127.0.0.1:11434",
			Model: "qwen2.5-coder:7b",
		},

		OpenAI: OpenAIConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},

		Limits: LimitsConfig{
			RequestsPerMinute: 20,
			MaxFileSizeKB:     512,
		},

		Storage: StorageConfig{
			Enabled: true,
		},

		Log: LogConfig{
			Level: "warn",
		},

		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
	}
}

// ActiveModel returns the model the configured provider will use.
func (c *Config) ActiveModel() string {
	if c.Chat.Model != "" {
		return c.Chat.Model
	}
	if strings.EqualFold(c.Chat.Provider, ProviderOpenAI) {
		return c.OpenAI.Model
	}
	return c.Ollama.Model
}

// MaxFileSize returns the context file size cap in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Limits.MaxFileSizeKB) * 1024
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory: $CHATLINK_HOME when set,
// otherwise ~/.rigrun-chatlink.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CHATLINK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-chatlink"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// JournalPath returns the journal database path, defaulting to the config dir.
func (c *Config) JournalPath() (string, error) {
	if c.Storage.JournalPath != "" {
		return c.Storage.JournalPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens config files to 0600; they hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last. A file that fails to parse is
// reported alongside the default config.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		var verrs ValidateErrors
		if errors.As(err, &verrs) {
			return nil, err
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# rigrun chatlink configuration file\n")
	b.WriteString("# Generated by chatlink - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors listing
// every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	switch strings.ToLower(c.Chat.Provider) {
	case ProviderOllama, ProviderOpenAI:
	default:
		errs = append(errs, ValidationError{
			Field:   "chat.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: ollama, openai", c.Chat.Provider),
		})
	}

	if c.Chat.MaxTokens < 0 {
		errs = append(errs, ValidationError{Field: "chat.max_tokens", Message: "cannot be negative"})
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.Chat.Temperature),
		})
	}
	if c.Chat.ContextWindow < 0 {
		errs = append(errs, ValidationError{Field: "chat.context_window", Message: "cannot be negative"})
	}

	errs = appendURLError(errs, "ollama.url", c.Ollama.URL)
	errs = appendURLError(errs, "openai.base_url", c.OpenAI.BaseURL)

	if strings.EqualFold(c.Chat.Provider, ProviderOpenAI) && c.OpenAI.Model == "" && c.Chat.Model == "" {
		errs = append(errs, ValidationError{Field: "openai.model", Message: "required when provider is openai"})
	}

	if c.Limits.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "limits.requests_per_minute", Message: "cannot be negative"})
	}
	if c.Limits.MaxFileSizeKB < 0 || c.Limits.MaxFileSizeKB > 16*1024 {
		errs = append(errs, ValidationError{
			Field:   "limits.max_file_size_kb",
			Message: fmt.Sprintf("must be 0-16384, got %d", c.Limits.MaxFileSizeKB),
		})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendURLError(errs ValidateErrors, field, raw string) ValidateErrors {
	if raw == "" {
		return append(errs, ValidationError{Field: field, Message: "cannot be empty"})
	}
	u, err := url.Parse(raw)
	if err != nil {
		return append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)})
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return append(errs, ValidationError{Field: field, Message: fmt.Sprintf("URL scheme must be http or https, got '%s'", u.Scheme)})
	}
	return errs
}

// SetDefaults fills empty fields that have no meaningful zero value.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = defaults.Chat.Provider
	}
	c.Chat.Provider = strings.ToLower(c.Chat.Provider)
	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaults.Ollama.Model
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaults.OpenAI.BaseURL
	}
	if c.Limits.MaxFileSizeKB == 0 {
		c.Limits.MaxFileSizeKB = defaults.Limits.MaxFileSizeKB
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATLINK_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("CHATLINK_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if provider := os.Getenv("CHATLINK_PROVIDER"); provider != "" {
		c.Chat.Provider = strings.ToLower(provider)
	}
	if key := os.Getenv("CHATLINK_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if base := os.Getenv("CHATLINK_BASE_URL"); base != "" {
		c.OpenAI.BaseURL = base
	}
	if u := os.Getenv("CHATLINK_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if level := os.Getenv("CHATLINK_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
	if rpm := os.Getenv("CHATLINK_REQUESTS_PER_MINUTE"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			c.Limits.RequestsPerMinute = n
		}
	}
}

// =============================================================================
// KEY ACCESS
// =============================================================================

// Get returns the value at a dotted key such as "chat.model".
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value at a dotted key. String values are parsed for
// numeric and boolean fields.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case to PascalCase.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"chat.provider",
		"chat.model",
		"chat.system_prompt",
		"chat.max_tokens",
		"chat.temperature",
		"chat.context_window",
		"ollama.url",
		"ollama.model",
		"openai.base_url",
		"openai.api_key",
		"openai.model",
		"openai.site_url",
		"openai.site_name",
		"limits.requests_per_minute",
		"limits.max_file_size_kb",
		"storage.enabled",
		"storage.journal_path",
		"log.level",
		"log.json",
		"ui.theme",
		"ui.markdown",
	}
}

// IsSecretKey reports whether a key holds a credential.
func IsSecretKey(key string) bool {
	return key == "openai.api_key"
}

// Clone returns a copy of the configuration. Config holds no reference
// fields, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.OpenAI.APIKey != "" {
		safe.OpenAI.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
