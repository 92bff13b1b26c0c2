package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvCatalogToken = "NYT_TOKEN"
	EnvBotToken     = "API_TOKEN"
	EnvDSN          = "DB_DSN"
)

// Secrets are read from the environment once at startup and handed to the
// components that need them.
type Secrets struct {
	CatalogToken string
	BotToken     string
	DSN          string
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped and variables already set are never overridden.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("env file %s: %w", p, err)
		}
	}
	return nil
}

func SecretsFromEnv() Secrets {
	return Secrets{
		CatalogToken: strings.TrimSpace(os.Getenv(EnvCatalogToken)),
		BotToken:     strings.TrimSpace(os.Getenv(EnvBotToken)),
		DSN:          strings.TrimSpace(os.Getenv(EnvDSN)),
	}
}

// BotTokenFor returns the bot token, preferring the environment over the file.
func (s Secrets) BotTokenFor(cfg *Config) string {
	if s.BotToken != "" {
		return s.BotToken
	}
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Telegram.Token)
}

// DSNFor returns the postgres DSN, preferring the environment over the file.
func (s Secrets) DSNFor(cfg *Config) string {
	if s.DSN != "" {
		return s.DSN
	}
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Storage.DSN)
}

// String never prints secret values.
func (s Secrets) String() string {
	set := func(v string) string {
		if v == "" {
			return "unset"
		}
		return "set"
	}
	return fmt.Sprintf("%s=%s %s=%s %s=%s",
		EnvCatalogToken, set(s.CatalogToken), EnvBotToken, set(s.BotToken), EnvDSN, set(s.DSN))
}
