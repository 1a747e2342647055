package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientStory/internal/registry"
)

// DefaultStory is played when game.yaml names neither a builtin nor a path.
const DefaultStory = "pyramid"

// GameConfig is the per-installation game.yaml.
type GameConfig struct {
	Version int `yaml:"version"`
	Game    struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"game"`
	Story struct {
		Builtin string `yaml:"builtin"`
		Path    string `yaml:"path"`
	} `yaml:"story"`
	Registry struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"registry"`
	Network struct {
		HTTPPort int `yaml:"http_port"`
	} `yaml:"network"`
	MQTT struct {
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Sessions struct {
		IdleTimeout string `yaml:"idle_timeout"`
		MaxActive   int    `yaml:"max_active"`
	} `yaml:"sessions"`
}

// HTTPPort returns the configured HTTP port, defaulting to 8080 if not set.
func (c *GameConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return 8080
	}
	return c.Network.HTTPPort
}

// RegistryCapacity returns the configured registry capacity, defaulting to
// registry.DefaultCapacity.
func (c *GameConfig) RegistryCapacity() int {
	if c.Registry.Capacity <= 0 {
		return registry.DefaultCapacity
	}
	return c.Registry.Capacity
}

// TopicPrefix returns the MQTT topic prefix, defaulting to "story/<game id>".
func (c *GameConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix != "" {
		return c.MQTT.TopicPrefix
	}
	if c.Game.ID != "" {
		return "story/" + c.Game.ID
	}
	return "story"
}

// IdleTimeout returns how long an untouched session is kept. Zero disables expiry.
func (c *GameConfig) IdleTimeout() time.Duration {
	if c.Sessions.IdleTimeout == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.Sessions.IdleTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// StoryBuiltin returns the builtin story to play when no path is set.
func (c *GameConfig) StoryBuiltin() string {
	if c.Story.Builtin == "" {
		return DefaultStory
	}
	return c.Story.Builtin
}

func LoadGameConfig(path string) (*GameConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg GameConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported game.yaml version: %d", cfg.Version)
	}

	if cfg.Sessions.IdleTimeout != "" {
		if _, err := time.ParseDuration(cfg.Sessions.IdleTimeout); err != nil {
			return nil, fmt.Errorf("invalid sessions.idle_timeout %q: %w", cfg.Sessions.IdleTimeout, err)
		}
	}

	return &cfg, nil
}

// Settings is the process environment. Secrets are not part of it; read
// them with ResolveSecret.
type Settings struct {
	ConfigPath  string `envconfig:"STORY_CONFIG" default:"games/_template/game.yaml"`
	LogLevel    string `envconfig:"STORY_LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"STORY_LOG_ENCODING" default:"json"`

	MQTTURL     string `envconfig:"MQTT_URL" default:"tcp://localhost:1883"`
	MQTTEnabled bool   `envconfig:"STORY_MQTT_ENABLED" default:"false"`

	PostgresEnabled bool   `envconfig:"STORY_POSTGRES_ENABLED" default:"false"`
	PGHost          string `envconfig:"PGHOST" default:"127.0.0.1"`
	PGPort          string `envconfig:"PGPORT" default:"5432"`
	PGUser          string `envconfig:"PGUSER" default:"story"`
	PGDatabase      string `envconfig:"PGDATABASE" default:"story"`

	TLSCert string `envconfig:"STORY_TLS_CERT"`
	TLSKey  string `envconfig:"STORY_TLS_KEY"`

	AlertWebhookURL string        `envconfig:"STORY_ALERT_WEBHOOK_URL"`
	MQTTAlertDelay  time.Duration `envconfig:"STORY_MQTT_ALERT_DELAY" default:"30s"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &s, nil
}
