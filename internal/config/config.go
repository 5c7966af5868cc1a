package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is the daemon configuration, read from the environment.
type Config struct {
	Environment         string `env:"MIRROR_ENV" envDefault:"development"`
	DataDir             string `env:"MIRROR_DATA_DIR" envDefault:"./data"`
	EncryptionKeyBase64 string `env:"MIRROR_ENCRYPTION_KEY_BASE64"`
	Port                string `env:"PORT" envDefault:"8080"`
	UserID              string `env:"MIRROR_USER_ID" envDefault:"local"`
	IMAPUseTLS          bool   `env:"MIRROR_IMAP_TLS" envDefault:"true"`
	SyncSchedule        string `env:"MIRROR_SYNC_SCHEDULE" envDefault:"@every 5m"`
	MaxWSPerUser        int    `env:"MIRROR_WS_MAX_PER_USER" envDefault:"10"`
	Timezone            string `env:"TZ" envDefault:"UTC"`
}

// New loads the configuration. In development a .env file is read first,
// if present.
func New() (*Config, error) {
	if os.Getenv("MIRROR_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MIRROR_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("MIRROR_DATA_DIR is required")
	}

	return nil
}
