package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/manifest"
	"github.com/karthala/agentline/record"
)

// settings is the CLI-level configuration, merged from flags, the
// AGENTLINE_* environment, and an optional agentline.yaml. Because the
// invoker forwards every AGENTLINE_* variable to children, settings set
// once at the top of a call tree reach every agent below it.
type settings struct {
	AgentsDir  string `mapstructure:"agents_dir"`
	RecordsDir string `mapstructure:"records_dir"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	Debug      bool   `mapstructure:"debug"`
}

// loadSettings resolves the settings for one command run. Precedence:
// changed flags, then environment, then config file, then flag defaults.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	v := viper.New()
	v.SetConfigName("agentline")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "agentline"))
	}

	v.SetEnvPrefix("AGENTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	for cfgKey, flagName := range map[string]string{
		"agents_dir":  "agents-dir",
		"records_dir": "records-dir",
		"log_level":   "log-level",
		"log_format":  "log-format",
		"debug":       "debug",
	} {
		if err := v.BindPFlag(cfgKey, flags.Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var st settings
	if err := v.Unmarshal(&st); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *settings) validate() error {
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	return nil
}

// newLogger builds the process logger. Diagnostics always go to stderr;
// stdout carries results and protocol frames only.
func newLogger(s *settings) *slog.Logger {
	level := slog.LevelInfo
	switch s.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if s.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if s.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// openRecorder wires execution records when a records directory is
// configured. A directory that cannot be prepared degrades to no
// recording with a warning, never to a failed run.
func openRecorder(s *settings, logger *slog.Logger) record.Recorder {
	if s.RecordsDir == "" {
		return record.NopRecorder{}
	}
	rec, err := record.NewFileRecorder(s.RecordsDir)
	if err != nil {
		logger.Warn("recording disabled", "dir", s.RecordsDir, "error", err)
		return record.NopRecorder{}
	}
	return rec
}

// safetyOpts translates a manifest's depth bound into init options.
func safetyOpts(m *manifest.Manifest) []coord.SafetyOption {
	if m.MaxDepth > 0 {
		return []coord.SafetyOption{coord.WithMaxDepth(m.MaxDepth)}
	}
	return nil
}

// manifestTimeout returns the manifest's per-execution bound, zero when
// unset.
func manifestTimeout(m *manifest.Manifest) time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}
