// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
	// PublicBaseURL is the externally reachable address used to build the
	// response links embedded in outgoing messages.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
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

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
}

// ChannelsConfig holds per-channel gateway settings. MaxInFlight bounds the
// number of concurrent submits per channel within one dispatch batch.
type ChannelsConfig struct {
	AWSRegion string             `mapstructure:"aws_region"`
	Email     EmailChannelConfig `mapstructure:"email"`
	SMS       SMSChannelConfig   `mapstructure:"sms"`
	Chat      ChatChannelConfig  `mapstructure:"chat"`
}

type EmailChannelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	FromEmail   string `mapstructure:"from_email"`
	MaxInFlight int    `mapstructure:"max_in_flight"`
}

type SMSChannelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SenderID    string `mapstructure:"sender_id"`
	MaxInFlight int    `mapstructure:"max_in_flight"`
}

type ChatChannelConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxInFlight int  `mapstructure:"max_in_flight"`
}

// MaxInFlightFor returns the dispatch concurrency bound for a channel name.
func (c ChannelsConfig) MaxInFlightFor(channel string) int {
	switch channel {
	case "email":
		return c.Email.MaxInFlight
	case "sms":
		return c.SMS.MaxInFlight
	case "chat":
		return c.Chat.MaxInFlight
	}
	return 1
}

// SchedulerConfig controls the reminder/escalation tick loop.
type SchedulerConfig struct {
	Interval       int  `mapstructure:"interval"`        // milliseconds between ticks
	LockTTL        int  `mapstructure:"lock_ttl"`        // milliseconds, per-campaign tick lock
	CatchUpOnStart bool `mapstructure:"catchup_on_start"`
}

// FanoutConfig controls the pub/sub topic naming.
type FanoutConfig struct {
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
