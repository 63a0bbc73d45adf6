package util

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const Name = "tusk"
const ConfigFileName = "config.yaml"
const EnvPrefix = "TUSK"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host             string `yaml:"host" envconfig:"HOST"`
		HttpPort         int    `yaml:"httpPort" envconfig:"HTTPPORT"`
		SslDomain        string `yaml:"sslDomain" envconfig:"SSLDOMAIN"`
		WithAp           bool   `yaml:"withAp" envconfig:"WITH_AP"`
		DatabasePath     string `yaml:"databasePath" envconfig:"DATABASE_PATH"`
		LogLevel         string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
		Dev              bool   `yaml:"dev" envconfig:"DEV"`
		VerifySignatures bool   `yaml:"verifySignatures" envconfig:"VERIFY_SIGNATURES"`
		StreamCapacity   int    `yaml:"streamCapacity" envconfig:"STREAM_CAPACITY"`
		KeepAlive        int    `yaml:"keepAlive" envconfig:"KEEPALIVE"`                // seconds
		DeliveryInterval int    `yaml:"deliveryInterval" envconfig:"DELIVERY_INTERVAL"` // seconds
		ActorTTL         int    `yaml:"actorTTL" envconfig:"ACTOR_TTL"`                 // hours
		MaxBodyBytes     int64  `yaml:"maxBodyBytes" envconfig:"MAX_BODY_BYTES"`
	} `yaml:"conf"`
}

// ReadConf loads the config file (or the embedded defaults), then an optional
// .env file, then TUSK_* environment overrides.
func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Info().Str("path", configPath).Msg("Config file not found, using embedded defaults")
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warn().Err(writeErr).Str("path", userConfigPath).Msg("Could not write default config")
			} else {
				log.Info().Str("path", userConfigPath).Msg("Created default config file")
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("in .env file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &c.Conf); err != nil {
		return nil, fmt.Errorf("in environment: %w", err)
	}

	c.applyDefaults()
	return c, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Conf.HttpPort == 0 {
		c.Conf.HttpPort = 9999
	}
	if c.Conf.DatabasePath == "" {
		c.Conf.DatabasePath = "database.db"
	}
	if c.Conf.StreamCapacity <= 0 {
		c.Conf.StreamCapacity = 10
	}
	if c.Conf.KeepAlive <= 0 {
		c.Conf.KeepAlive = 30
	}
	if c.Conf.DeliveryInterval <= 0 {
		c.Conf.DeliveryInterval = 10
	}
	if c.Conf.ActorTTL <= 0 {
		c.Conf.ActorTTL = 24
	}
	if c.Conf.MaxBodyBytes <= 0 {
		c.Conf.MaxBodyBytes = 1 << 20
	}
}

// BaseURL is the public origin every local IRI is built on.
func (c *AppConfig) BaseURL() string {
	return "https://" + c.Conf.SslDomain
}

func (c *AppConfig) KeepAliveInterval() time.Duration {
	return time.Duration(c.Conf.KeepAlive) * time.Second
}

func (c *AppConfig) DeliveryTick() time.Duration {
	return time.Duration(c.Conf.DeliveryInterval) * time.Second
}

func (c *AppConfig) ActorCacheTTL() time.Duration {
	return time.Duration(c.Conf.ActorTTL) * time.Hour
}
