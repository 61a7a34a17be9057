// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrNoToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken      string        `env:"DISCORD_TOKEN"`
	StoragePath       string        `env:"STORAGE_PATH" envDefault:"datastore.json"`
	CommandCachePath  string        `env:"COMMAND_CACHE_PATH" envDefault:"data/commands.json"`
	CommandPrefix     string        `env:"COMMAND_PREFIX" envDefault:"!"`
	DeveloperID       string        `env:"DEVELOPER_ID"`
	GuildBlacklist    []string      `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	InitSlashCommands bool          `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	TrackerInterval   time.Duration `env:"TRACKER_INTERVAL" envDefault:"6h"`
	ResolveTimeout    time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"5s"`

	NugetSearchURL       string        `env:"NUGET_SEARCH_URL" envDefault:"https://azuresearch-usnc.nuget.org/query"`
	NugetRegistrationURL string        `env:"NUGET_REGISTRATION_URL" envDefault:"https://api.nuget.org/v3/registration5-gz-semver2"`
	NugetTimeout         time.Duration `env:"NUGET_TIMEOUT" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.TrackerInterval <= 0 {
		return nil, fmt.Errorf("TRACKER_INTERVAL must be positive, got %s", cfg.TrackerInterval)
	}
	return &cfg, nil
}

// RequireToken fails when the bot token is missing.
func (c *Config) RequireToken() error {
	if c.DiscordToken == "" {
		return ErrNoToken
	}
	return nil
}

// IsBlacklisted reports whether the bot must ignore a guild.
func (c *Config) IsBlacklisted(guildID string) bool {
	for _, id := range c.GuildBlacklist {
		if id == guildID {
			return true
		}
	}
	return false
}
