// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Events        EventsConfig        `mapstructure:"events"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Server        ServerConfig        `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig drives the periodic clock. Durations are milliseconds.
type SchedulerConfig struct {
	IntervalMs       int  `mapstructure:"interval_ms"`
	WindowMs         int  `mapstructure:"window_ms"`
	Workers          int  `mapstructure:"workers"`
	NotifyTimeoutMs  int  `mapstructure:"notify_timeout_ms"`
	TickTimeoutMs    int  `mapstructure:"tick_timeout_ms"`
	LockTTLMs        int  `mapstructure:"lock_ttl_ms"`
	TickLeaseEnabled bool `mapstructure:"tick_lease_enabled"`
	SeedOnStart      bool `mapstructure:"seed_on_start"`
}

type BusinessHoursConfig struct {
	Timezone     string `mapstructure:"timezone"`
	OpenHour     int    `mapstructure:"open_hour"`
	CloseHour    int    `mapstructure:"close_hour"`
	BusinessName string `mapstructure:"business_name"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// RedisConfig is optional; an empty address selects in-process locking.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// NotificationConfig holds settings for the SES/SNS notifier.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// EventsConfig selects where successful-dispatch events are published.
type EventsConfig struct {
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Elasticsearch struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}
