package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

var validate = validator.New()

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LEITNER_"

// Config holds the settings shared by every command.
type Config struct {
	ConfigFile string `koanf:"config"`
	DBPath     string `koanf:"db" validate:"required"`
	BoxCount   int    `koanf:"boxes"`
	DueLimit   int    `koanf:"limit" validate:"gte=1"`
	Language   string `koanf:"language" validate:"required,bcp47_language_tag"`
	ReposDir   string `koanf:"repos" validate:"required"`
	LogLevel   string `koanf:"log-level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ConfigFile: "leitner.yaml",
		DBPath:     "leitner.db",
		BoxCount:   5,
		DueLimit:   10,
		Language:   "en",
		ReposDir:   "repos",
		LogLevel:   "info",
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", d.ConfigFile, "Path to a YAML configuration file")
	fs.String("db", d.DBPath, "Path to the SQLite database file")
	fs.Int("boxes", d.BoxCount, "Number of boxes for a new system (minimum 2)")
	fs.Int("limit", d.DueLimit, "Maximum number of due cards to show")
	fs.String("language", d.Language, "Language code for imported words that do not set one")
	fs.String("repos", d.ReposDir, "Directory where git sources are checked out")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
}

// Load builds the configuration from defaults, the YAML config file, the
// environment and the parsed flags, in increasing order of precedence.
// A missing config file is not an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path := configPath(flags)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		slog.Debug("No config file found, using defaults", "path", path)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = path

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// configPath picks the config file from the --config flag, then
// LEITNER_CONFIG, then the default.
func configPath(flags *pflag.FlagSet) string {
	if f := flags.Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CONFIG"); ok && v != "" {
		return v
	}
	return Default().ConfigFile
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envKey maps LEITNER_LOG_LEVEL to log-level.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}
