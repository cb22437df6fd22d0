package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Identity IdentityConfig `yaml:"identity"`
	Speech   SpeechConfig   `yaml:"speech"`
	Token    TokenConfig    `yaml:"token"`
	Game     GameConfig     `yaml:"game"`
	Sync     SyncConfig     `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	FrontendURL  string        `yaml:"frontend_url"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CatalogTTL   time.Duration `yaml:"catalog_ttl"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	EventsTopic  string        `yaml:"events_topic"`
	SolvesTopic  string        `yaml:"solves_topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// SMTPConfig holds transactional email configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// IdentityConfig holds the managed identity provider configuration
type IdentityConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SpeechConfig holds the text-to-speech provider configuration
type SpeechConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	VoiceID    string        `yaml:"voice_id"`
	Engine     string        `yaml:"engine"`
	Timeout    time.Duration `yaml:"timeout"`
	MinGap     time.Duration `yaml:"min_gap"`
	SampleRate string        `yaml:"sample_rate"`
}

// TokenConfig holds session token configuration
type TokenConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`
}

// GameConfig holds gameplay configuration
type GameConfig struct {
	// CompletionLevels is the level set that must all be completed before
	// the congratulations notification fires.
	CompletionLevels []int `yaml:"completion_levels"`
	MaxStars         int   `yaml:"max_stars"`
	DefaultLimit     int   `yaml:"default_limit"`
	MaxLimit         int   `yaml:"max_limit"`
}

// SyncConfig holds catalog refresher configuration
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:8080"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.CatalogTTL == 0 {
		c.Redis.CatalogTTL = 5 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "gotham-events"
	}
	if c.Kafka.SolvesTopic == "" {
		c.Kafka.SolvesTopic = "gotham-solves"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "gotham-solve-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// SMTP defaults
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	// Identity defaults
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 10 * time.Second
	}

	// Speech defaults
	if c.Speech.VoiceID == "" {
		c.Speech.VoiceID = "Joanna"
	}
	if c.Speech.Engine == "" {
		c.Speech.Engine = "neural"
	}
	if c.Speech.Timeout == 0 {
		c.Speech.Timeout = 15 * time.Second
	}
	if c.Speech.MinGap == 0 {
		c.Speech.MinGap = 1 * time.Second
	}
	if c.Speech.SampleRate == "" {
		c.Speech.SampleRate = "22050"
	}

	// Token defaults
	if c.Token.Secret == "" {
		c.Token.Secret = "gotham-cipher-secret-key"
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "gotham-cipher-backend"
	}
	if c.Token.Audience == "" {
		c.Token.Audience = "gotham-cipher-frontend"
	}
	if c.Token.TTL == 0 {
		c.Token.TTL = 24 * time.Hour
	}

	// Game defaults
	if len(c.Game.CompletionLevels) == 0 {
		c.Game.CompletionLevels = []int{1, 2, 3, 4, 5}
	}
	if c.Game.MaxStars == 0 {
		c.Game.MaxStars = 3
	}
	if c.Game.DefaultLimit == 0 {
		c.Game.DefaultLimit = 10
	}
	if c.Game.MaxLimit == 0 {
		c.Game.MaxLimit = 100
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}
