package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const configFileName = "config.json"

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// PlaybackConfig tunes the playback manager
type PlaybackConfig struct {
	QueueCapacity  int `json:"queue_capacity"`
	MaxPending     int `json:"max_pending"`
	TickIntervalMS int `json:"tick_interval_ms"`
	RetentionMS    int `json:"retention_ms"`
}

// SynthesisConfig points at the Azure Speech service
type SynthesisConfig struct {
	Region         string `json:"region"`
	Key            string `json:"key"`
	Endpoint       string `json:"endpoint"` // overrides the regional URL
	Voice          string `json:"voice"`
	Language       string `json:"language"`
	OutputFormat   string `json:"output_format"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LLMConfig points at the local Ollama server
type LLMConfig struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	System         string `json:"system"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type TelemetryConfig struct {
	MetricsEnabled bool `json:"metrics_enabled"`
}

// Config represents murmur configuration
type Config struct {
	ListenAddr   string             `json:"listen_addr"`            // Loopback address the agent listens on
	AudioBackend string             `json:"audio_backend"`          // auto, malgo, oto or null
	Volume       float64            `json:"volume"`                 // Audio volume (0.0 to 1.0)
	LogLevel     string             `json:"log_level"`              // debug, info, warn, error
	FileLogging  *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	Playback     PlaybackConfig     `json:"playback"`
	Synthesis    SynthesisConfig    `json:"synthesis"`
	LLM          LLMConfig          `json:"llm"`
	Telemetry    TelemetryConfig    `json:"telemetry"`
}

// TickInterval returns the playback poll interval
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMS) * time.Millisecond
}

// Retention returns how long terminal playbacks stay queryable
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Playback.RetentionMS) * time.Millisecond
}

func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.Synthesis.TimeoutSeconds) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetRuntimePath(name string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	fs  afero.Fs
	xdg XDGInterface
}

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager that reads and writes through fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		fs:  fs,
		xdg: NewXDGDirsWithFilesystem(fs),
	}
}

// XDG exposes the directory resolver so callers share one set of paths
func (cm *ConfigManager) XDG() XDGInterface {
	return cm.xdg
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		ListenAddr:   "127.0.0.1:8228",
		AudioBackend: "auto",
		Volume:       1.0,
		LogLevel:     "info",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Playback: PlaybackConfig{
			QueueCapacity:  64,
			MaxPending:     256,
			TickIntervalMS: 20,
			RetentionMS:    2000,
		},
		Synthesis: SynthesisConfig{
			Region:         "eastus",
			Voice:          "en-US-JennyNeural",
			Language:       "en-US",
			OutputFormat:   "audio-24khz-48kbitrate-mono-mp3",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			Endpoint:       "http://localhost:11434",
			Model:          "llama3.2:latest",
			TimeoutSeconds: 30,
		},
		Telemetry: TelemetryConfig{MetricsEnabled: true},
	}

	slog.Debug("generated default config",
		"listen_addr", defaultConfig.ListenAddr,
		"audio_backend", defaultConfig.AudioBackend,
		"volume", defaultConfig.Volume,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file.
// Fields missing from the file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(config)
	if err != nil {
		return nil, err
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"listen_addr", config.ListenAddr,
		"audio_backend", config.AudioBackend)

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	err = cm.fs.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the synthesis key
	err = afero.WriteFile(cm.fs, filePath, data, 0600)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	configPaths := cm.xdg.GetConfigPaths(configFileName)

	for i, configPath := range configPaths {
		if ok, _ := afero.Exists(cm.fs, configPath); ok {
			slog.Debug("found config file", "path_index", i, "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults", "searched", len(configPaths))
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if err := validateListenAddr(config.ListenAddr); err != nil {
		errors = append(errors, err.Error())
	}

	if config.Volume < 0.0 || config.Volume > 1.0 {
		errors = append(errors, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	if config.LogLevel != "" {
		if _, err := ParseLogLevel(config.LogLevel); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if !cm.IsValidAudioBackend(config.AudioBackend) {
		errors = append(errors, fmt.Sprintf("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(cm.GetSupportedAudioBackends(), ", ")))
	}

	p := config.Playback
	if p.QueueCapacity < 0 {
		errors = append(errors, fmt.Sprintf("playback queue_capacity must be >= 0, got %d", p.QueueCapacity))
	}
	if p.MaxPending < 0 {
		errors = append(errors, fmt.Sprintf("playback max_pending must be >= 0, got %d", p.MaxPending))
	}
	if p.TickIntervalMS < 0 || p.TickIntervalMS > 50 {
		errors = append(errors, fmt.Sprintf("playback tick_interval_ms must be between 0 and 50, got %d", p.TickIntervalMS))
	}
	if p.RetentionMS < 0 {
		errors = append(errors, fmt.Sprintf("playback retention_ms must be >= 0, got %d", p.RetentionMS))
	}

	if config.Synthesis.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Sprintf("synthesis timeout_seconds must be >= 0, got %d", config.Synthesis.TimeoutSeconds))
	}
	if config.LLM.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Sprintf("llm timeout_seconds must be >= 0, got %d", config.LLM.TimeoutSeconds))
	}

	if fl := config.FileLogging; fl != nil {
		if fl.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fl.MaxSizeMB))
		}
		if fl.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fl.MaxBackups))
		}
		if fl.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fl.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	return nil
}

// validateListenAddr accepts only loopback hosts
func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen_addr '%s': %v", addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid listen_addr port '%s'", port)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen_addr '%s' must be a loopback address", addr)
	}
	return nil
}

// MergeConfigs merges two configurations, with override taking precedence.
// Only non-zero override values apply.
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	merged := *base

	if override.ListenAddr != "" {
		merged.ListenAddr = override.ListenAddr
	}
	if override.AudioBackend != "" {
		merged.AudioBackend = override.AudioBackend
	}
	if override.Volume != 0.0 {
		merged.Volume = override.Volume
	}
	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
	}
	if override.FileLogging != nil {
		fl := *override.FileLogging
		merged.FileLogging = &fl
	}

	slog.Debug("configurations merged",
		"listen_addr", merged.ListenAddr,
		"audio_backend", merged.AudioBackend,
		"log_level", merged.LogLevel)
	return &merged
}

// ApplyEnvironmentOverrides applies MURMUR_* environment variables to a copy of config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config

	if v := os.Getenv("MURMUR_LISTEN_ADDR"); v != "" {
		result.ListenAddr = v
	}

	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		result.LogLevel = v
	}

	if v := os.Getenv("MURMUR_AUDIO_BACKEND"); v != "" {
		if cm.IsValidAudioBackend(v) {
			result.AudioBackend = v
		} else {
			slog.Warn("invalid MURMUR_AUDIO_BACKEND environment variable", "value", v)
		}
	}

	if v := os.Getenv("MURMUR_VOLUME"); v != "" {
		if vol, err := strconv.ParseFloat(v, 64); err == nil {
			result.Volume = vol
		} else {
			slog.Warn("invalid MURMUR_VOLUME environment variable", "value", v, "error", err)
		}
	}

	if v := os.Getenv("MURMUR_AZURE_KEY"); v != "" {
		result.Synthesis.Key = v
	}
	if v := os.Getenv("MURMUR_AZURE_REGION"); v != "" {
		result.Synthesis.Region = v
	}
	if v := os.Getenv("MURMUR_AZURE_VOICE"); v != "" {
		result.Synthesis.Voice = v
	}

	if v := os.Getenv("MURMUR_OLLAMA_URL"); v != "" {
		result.LLM.Endpoint = v
	}
	if v := os.Getenv("MURMUR_OLLAMA_MODEL"); v != "" {
		result.LLM.Model = v
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ParseLogLevel maps a config log level to its slog level
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
	}
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "murmur.log")
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return []string{"auto", "malgo", "oto", "null"}
}

// IsValidAudioBackend checks if an audio backend type is supported; empty means auto
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	return backend == "" || slices.Contains(cm.GetSupportedAudioBackends(), backend)
}
