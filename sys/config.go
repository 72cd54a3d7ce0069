package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

const (
	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigInvalidTimeout = "invalid PROVIDER_TIMEOUT: must be a positive duration"
	MsgConfigInvalidRate    = "invalid PROVIDER_RATE: must be a positive number"
	MsgConfigInvalidHistory = "invalid HISTORY_LIMIT: must be between 1 and 25"
	MsgConfigBadValue       = "Ignoring %s=%q: %v"

	// Environment Variables
	EnvDiscordToken    = "DISCORD_TOKEN"
	EnvGuildID         = "GUILD_ID"
	EnvSilent          = "SILENT"
	EnvDebug           = "DEBUG"
	EnvFFmpegPath      = "FFMPEG_PATH"
	EnvYtdlpPath       = "YTDLP_PATH"
	EnvProviderTimeout = "PROVIDER_TIMEOUT"
	EnvProviderRate    = "PROVIDER_RATE"
	EnvYoutubePrefix   = "YOUTUBE_PREFIX"
	EnvYTMusicPrefix   = "YTMUSIC_PREFIX"
	EnvHistoryLimit    = "HISTORY_LIMIT"

	DefaultFFmpegPath      = "ffmpeg"
	DefaultProviderTimeout = 15 * time.Second
	DefaultProviderRate    = 5.0
	DefaultYoutubePrefix   = "[YT]"
	DefaultYTMusicPrefix   = "[YTM]"
	DefaultHistoryLimit    = 10
)

type Config struct {
	Token           string
	GuildID         string
	DatabasePath    string
	Silent          bool
	FFmpegPath      string
	YtdlpPath       string
	ProviderTimeout time.Duration
	ProviderRate    float64
	YoutubePrefix   string
	YTMusicPrefix   string
	HistoryLimit    int
}

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	silent, _ := strconv.ParseBool(os.Getenv(EnvSilent))

	cfg := &Config{
		Token:           strings.TrimSpace(os.Getenv(EnvDiscordToken)),
		GuildID:         strings.TrimSpace(os.Getenv(EnvGuildID)),
		DatabasePath:    filepath.Join(".", GetProjectName()+".db"),
		Silent:          silent,
		FFmpegPath:      envOr(EnvFFmpegPath, DefaultFFmpegPath),
		YtdlpPath:       os.Getenv(EnvYtdlpPath),
		ProviderTimeout: DefaultProviderTimeout,
		ProviderRate:    DefaultProviderRate,
		YoutubePrefix:   envOr(EnvYoutubePrefix, DefaultYoutubePrefix),
		YTMusicPrefix:   envOr(EnvYTMusicPrefix, DefaultYTMusicPrefix),
		HistoryLimit:    DefaultHistoryLimit,
	}

	if v := os.Getenv(EnvProviderTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			LogWarn(MsgConfigBadValue, EnvProviderTimeout, v, err)
		} else {
			cfg.ProviderTimeout = d
		}
	}
	if v := os.Getenv(EnvProviderRate); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			LogWarn(MsgConfigBadValue, EnvProviderRate, v, err)
		} else {
			cfg.ProviderRate = r
		}
	}
	if v := os.Getenv(EnvHistoryLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			LogWarn(MsgConfigBadValue, EnvHistoryLimit, v, err)
		} else {
			cfg.HistoryLimit = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New(MsgConfigMissingToken)
	}
	if c.GuildID != "" {
		if _, err := snowflake.Parse(c.GuildID); err != nil {
			return fmt.Errorf("%s: %w", MsgConfigInvalidGuildID, err)
		}
	}
	if c.ProviderTimeout <= 0 {
		return errors.New(MsgConfigInvalidTimeout)
	}
	if c.ProviderRate <= 0 {
		return errors.New(MsgConfigInvalidRate)
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 25 {
		return errors.New(MsgConfigInvalidHistory)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetProjectName derives a display name from the executable, falling back to the module path under `go run`.
func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = strings.TrimSuffix(filepath.Base(exePath), ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
