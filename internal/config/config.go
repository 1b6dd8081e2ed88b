package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Environment string          `yaml:"environment"`
	LogLevel    string          `yaml:"log_level"`
	Server      ServerConfig    `yaml:"server"`
	Postgres    PostgresConfig  `yaml:"postgres"`
	Redis       RedisConfig     `yaml:"redis"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	RateLimit   RateLimitConfig `yaml:"ratelimit"`
	Monime      MonimeConfig    `yaml:"monime"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// MonimeConfig carries the provider credentials. Secrets come from the
// environment, never from the yaml file.
type MonimeConfig struct {
	APIBaseURL    string `yaml:"api_base_url"`
	SpaceID       string `yaml:"space_id"`
	APIKey        string `yaml:"-"`
	WebhookSecret string `yaml:"-"`
}

// IsDevelopment reports whether the missing-webhook-secret bypass is
// allowed.
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// Load reads the yaml file and applies environment overrides. A .env
// file is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Environment = env
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	cfg.Monime.WebhookSecret = os.Getenv("MONIME_WEBHOOK_SECRET")
	cfg.Monime.APIKey = os.Getenv("MONIME_API_KEY")
	if space := os.Getenv("MONIME_SPACE_ID"); space != "" {
		cfg.Monime.SpaceID = space
	}
	return &cfg, nil
}
