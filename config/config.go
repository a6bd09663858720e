package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the interview daemon
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Session   SessionConfig   `mapstructure:"session"`
	Media     MediaConfig     `mapstructure:"media"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// RemoteConfig points at the transcription/evaluation backend consumed by
// the orchestrator. All remote contracts (questions, transcribe, evaluate,
// save-partial-session, generate-report, upload) live under BaseURL.
type RemoteConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ReportTimeout    time.Duration `mapstructure:"report_timeout"`
	FetchMaxAttempts int           `mapstructure:"fetch_max_attempts"`
	FetchBaseDelay   time.Duration `mapstructure:"fetch_base_delay"`
}

func (r RemoteConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("remote.base_url must be configured")
	}
	if r.FetchMaxAttempts <= 0 {
		return fmt.Errorf("remote.fetch_max_attempts must be > 0")
	}
	return nil
}

// SessionConfig controls the per-interview countdown and the defaults
// applied when the caller does not supply them.
type SessionConfig struct {
	Duration     time.Duration `mapstructure:"duration"`
	NumQuestions int           `mapstructure:"num_questions"`
	Difficulty   string        `mapstructure:"difficulty"`
	Type         string        `mapstructure:"type"`
}

func (s SessionConfig) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("session.duration must be > 0")
	}
	return nil
}

// MediaConfig describes the PCM format expected from capture sources.
type MediaConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	Channels   int `mapstructure:"channels"`
}

func (m MediaConfig) Validate() error {
	if m.SampleRate <= 0 {
		return fmt.Errorf("media.sample_rate must be > 0")
	}
	if m.Channels <= 0 {
		return fmt.Errorf("media.channels must be > 0")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// LoadConfig reads configuration from file and environment (MOCKVIEW_*).
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("remote.base_url", "http://localhost:8000/api")
	viper.SetDefault("remote.timeout", "10s")
	viper.SetDefault("remote.report_timeout", "30s")
	viper.SetDefault("remote.fetch_max_attempts", 3)
	viper.SetDefault("remote.fetch_base_delay", "2s")
	viper.SetDefault("session.duration", "30m")
	viper.SetDefault("session.num_questions", 10)
	viper.SetDefault("session.difficulty", "medium")
	viper.SetDefault("session.type", "technical")
	viper.SetDefault("media.sample_rate", 44100)
	viper.SetDefault("media.channels", 1)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("MOCKVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; defaults plus env are enough to run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Remote.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Media.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
