package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Token            string
	GuildID          string
	DatabasePath     string
	OwnerIDs         []string
	RelayHost        string
	RelayPassword    string
	RelayNodeName    string
	RelaySecure      bool
	SearchRatePerSec float64
	Silent           bool
}

var GlobalConfig *Config

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}

	// Basic Snowflake validation for GuildID if provided
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}

	if c.RelayHost == "" {
		return fmt.Errorf("RELAY_HOST is not set in .env file")
	}

	return nil
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, "quaver.db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))
	secure, _ := strconv.ParseBool(os.Getenv("RELAY_SECURE"))

	nodeName := os.Getenv("RELAY_NODE_NAME")
	if nodeName == "" {
		nodeName = "main"
	}

	searchRate := 2.0
	if raw := os.Getenv("SEARCH_RATE_PER_SEC"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			searchRate = parsed
		}
	}

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:            token,
		GuildID:          os.Getenv("GUILD_ID"),
		DatabasePath:     fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", dbPath),
		OwnerIDs:         ownerIDs,
		RelayHost:        os.Getenv("RELAY_HOST"),
		RelayPassword:    os.Getenv("RELAY_PASSWORD"),
		RelayNodeName:    nodeName,
		RelaySecure:      secure,
		SearchRatePerSec: searchRate,
		Silent:           silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}
