package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	ShopDB    ShopDBConfig
	History   HistoryConfig
	MemberDB  MemberDBConfig
	Cache     CacheConfig
	Discord   DiscordConfig
	Events    EventsConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"roleshop-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     string `envconfig:"API_KEYS" default:""`
	AdminKey    string `envconfig:"ADMIN_KEY" default:""`
}

// ShopDBConfig holds the entitlement database settings.
type ShopDBConfig struct {
	Type string `envconfig:"SHOP_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"SHOP_DB_PATH" default:"./data/roleshop.db"`
	// PostgreSQL settings
	Host     string `envconfig:"SHOP_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"SHOP_DB_PORT" default:"5432"`
	Name     string `envconfig:"SHOP_DB_NAME" default:"roleshop"`
	User     string `envconfig:"SHOP_DB_USER" default:"postgres"`
	Password string `envconfig:"SHOP_DB_PASS" default:""`
	SSLMode  string `envconfig:"SHOP_DB_SSLMODE" default:"disable"`
}

// HistoryConfig holds the audit-trail storage settings.
type HistoryConfig struct {
	Type string `envconfig:"HISTORY_DB_TYPE" default:"sqlite"` // sqlite or mongodb
	Path string `envconfig:"HISTORY_DB_PATH" default:"./data/history.db"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"roleshop"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"role_history"`
}

// MemberDBConfig holds MySQL connection settings for the member directory.
type MemberDBConfig struct {
	Enabled  bool   `envconfig:"MEMBER_DB_ENABLED" default:"false"`
	Host     string `envconfig:"MEMBER_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"MEMBER_DB_PORT" default:"3306"`
	Name     string `envconfig:"MEMBER_DB_NAME" default:"community"`
	User     string `envconfig:"MEMBER_DB_USER" default:"root"`
	Password string `envconfig:"MEMBER_DB_PASS" default:""`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"10s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DiscordConfig holds the role platform settings.
type DiscordConfig struct {
	BotToken string `envconfig:"DISCORD_BOT_TOKEN" default:""`
	GuildID  string `envconfig:"DISCORD_GUILD_ID" default:""`
	BaseURL  string `envconfig:"DISCORD_API_BASE_URL" default:""`
}

// EventsConfig holds the RabbitMQ notification settings. An empty URI
// disables publishing.
type EventsConfig struct {
	RabbitURI string `envconfig:"RABBITMQ_URI" default:""`
}

// SchedulerConfig holds the maintenance sweep settings.
type SchedulerConfig struct {
	TickInterval       time.Duration `envconfig:"SCHEDULER_TICK_INTERVAL" default:"5m"`
	ReminderThresholds []int         `envconfig:"SCHEDULER_REMINDER_DAYS" default:"3,1"`
	RetentionDays      int           `envconfig:"HISTORY_RETENTION_DAYS" default:"365"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *ShopDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// DSN returns the MySQL data source name.
func (d *MemberDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Keys returns the configured API keys as a slice.
func (a *AppConfig) Keys() []string {
	if a.APIKeys == "" {
		return nil
	}
	parts := strings.Split(a.APIKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
