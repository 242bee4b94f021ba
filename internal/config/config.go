// Package config loads the gateway's TOML configuration and the process
// environment, and enforces the startup refusals that keep development-only
// switches out of production.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// EnvDevelopment is the only environment where the dev secret, config-file
// test apps and empty-signature mode are allowed.
const EnvDevelopment = "development"

// Env returns the deployment environment, defaulting to development.
func Env() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return EnvDevelopment
}

// Config is the parsed TOML configuration.
type Config struct {
	Gateway  Gateway    `mapstructure:"gateway"`
	Registry Registry   `mapstructure:"registry"`
	Identity Identity   `mapstructure:"identity"`
	Kafka    Kafka      `mapstructure:"kafka"`
	RabbitMQ RabbitMQ   `mapstructure:"rabbitmq"`
	Bus      Bus        `mapstructure:"bus"`
	Events   Events     `mapstructure:"events"`
	CORS     CORS       `mapstructure:"cors"`
	Origins  []Origin   `mapstructure:"origins"`
	TestApps []TestApp  `mapstructure:"test_apps"`
}

// Gateway configures the HTTP front-end.
type Gateway struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	IngestPath          string        `mapstructure:"ingest_path"`
	Threads             int           `mapstructure:"threads"`
	ProcessNamePrefix   string        `mapstructure:"process_name_prefix"`
	DefaultToken        string        `mapstructure:"default_token"`
	AllowEmptySignature bool          `mapstructure:"allow_empty_signature"`
	RequireToken        bool          `mapstructure:"require_token"`
	ShutdownGrace       time.Duration `mapstructure:"shutdown_grace"`
}

// Registry configures the application registry source and refresh cadence.
type Registry struct {
	URI             string        `mapstructure:"uri"`
	PoolSize        int32         `mapstructure:"pool_size"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ManageApps      bool          `mapstructure:"manage_apps"`
}

// Identity configures the IFA-to-entity KV store client.
type Identity struct {
	URL      string `mapstructure:"url"`
	Attempts int    `mapstructure:"attempts"`
}

// Kafka configures the log bus.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RabbitMQ configures the AMQP bus.
type RabbitMQ struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	VHost    string `mapstructure:"vhost"`
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
	Exchange string `mapstructure:"exchange"`
}

// URL renders the AMQP dial URL.
func (r RabbitMQ) URL() string {
	vhost := r.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", r.Login, r.Password, r.Host, r.Port, vhost)
}

// Bus configures the dual-publish policy.
type Bus struct {
	RequireBoth    bool          `mapstructure:"require_both"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// Events holds the reserved event names and the downstream feed tag.
type Events struct {
	Feed               string `mapstructure:"feed"`
	RegisterName       string `mapstructure:"register_name"`
	LegacyDeeplinkName string `mapstructure:"legacy_deeplink_name"`
	DeeplinkName       string `mapstructure:"deeplink_name"`
}

// CORS holds the static preflight header values.
type CORS struct {
	AllowedMethods string `mapstructure:"allowed_methods"`
	AllowedHeaders string `mapstructure:"allowed_headers"`
}

// Origin is one app's CORS allow-list entry.
type Origin struct {
	AppID   string   `mapstructure:"app_id"`
	Allowed []string `mapstructure:"allowed"`
}

// TestApp is a config-file application for development; secrets are hex.
type TestApp struct {
	AppID         string `mapstructure:"app_id"`
	Token         string `mapstructure:"token"`
	SecretIOS     string `mapstructure:"secret_ios"`
	SecretAndroid string `mapstructure:"secret_android"`
	SecretWeb     string `mapstructure:"secret_web"`
}

// Load reads the TOML file at path, applies defaults and env overrides, and
// refuses development-only settings outside development.
func Load(path string, env string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("gateway.listen_address", "0.0.0.0:1337")
	v.SetDefault("gateway.ingest_path", "/")
	v.SetDefault("gateway.shutdown_grace", "10s")
	v.SetDefault("registry.pool_size", 8)
	v.SetDefault("registry.refresh_interval", "60s")
	v.SetDefault("registry.manage_apps", true)
	v.SetDefault("identity.attempts", 5)
	v.SetDefault("bus.require_both", true)
	v.SetDefault("bus.publish_timeout", "1s")
	v.SetDefault("events.feed", "360dialog")
	v.SetDefault("events.register_name", "d360_register")
	v.SetDefault("events.legacy_deeplink_name", "d360_DeeplinkOpened")
	v.SetDefault("events.deeplink_name", "d360_deeplink_opened")
	v.SetDefault("cors.allowed_methods", "POST, OPTIONS")
	v.SetDefault("cors.allowed_headers", "Content-Type, X-Api-Token, X-Signature, X-Device-Id")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Gateway.ListenAddress = "0.0.0.0:" + port
	}

	if err := cfg.validate(env); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate(env string) error {
	if env != EnvDevelopment {
		if c.Gateway.AllowEmptySignature {
			return fmt.Errorf("allow_empty_signature is a development-only setting, refusing to start with ENV=%s", env)
		}
		if len(c.TestApps) > 0 {
			return fmt.Errorf("test_apps are a development-only setting, refusing to start with ENV=%s", env)
		}
		if c.Registry.URI == "" {
			return fmt.Errorf("registry.uri is required with ENV=%s", env)
		}
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required")
	}
	if c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("rabbitmq.exchange is required")
	}
	return nil
}
