package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from a file, an optional .env file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	// .env only seeds the process environment; real env vars win.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", slog.Any("error", err))
	}

	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "")
	v.SetDefault("server.internalToken", "")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("presence.duplicatePolicy", string(DuplicateOverwrite))
	v.SetDefault("rooms.validateTargets", false)
	v.SetDefault("router.reportErrors", true)
	v.SetDefault("directory.driver", "memory")
	v.SetDefault("directory.path", "./data/groups")
	v.SetDefault("log.level", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("GOPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.Address),
		slog.String("duplicatePolicy", string(cfg.Presence.DuplicatePolicy)),
		slog.String("directory", cfg.Directory.Driver),
		slog.Int("events", len(cfg.Events)),
	)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Presence.DuplicatePolicy {
	case DuplicateOverwrite, DuplicateEvict, DuplicateReject:
	default:
		return fmt.Errorf("invalid presence.duplicatePolicy %q", c.Presence.DuplicatePolicy)
	}
	switch c.Directory.Driver {
	case "memory", "sqlite", "badger":
	default:
		return fmt.Errorf("invalid directory.driver %q", c.Directory.Driver)
	}
	return nil
}
