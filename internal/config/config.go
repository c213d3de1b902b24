package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Enforce  EnforceConfig  `mapstructure:"enforce"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	DebugPath  string `mapstructure:"debug_path"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Level     string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	// Driver selects the backing store: "sqlite" (embedded, default) or "mysql".
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// EnforceConfig holds the moderation policy knobs. Values are validated once
// at startup and never change while the process runs.
type EnforceConfig struct {
	// Enabled toggles restriction mode; when false the bot only warns.
	Enabled bool `mapstructure:"enabled"`

	GroupID        int64  `mapstructure:"group_id"`
	WarningTopicID int    `mapstructure:"warning_topic_id"`
	RulesLink      string `mapstructure:"rules_link"`

	WarningThreshold      int `mapstructure:"warning_threshold"`
	WarningMaxAgeMinutes  int `mapstructure:"warning_max_age_minutes"`
	CaptchaTimeoutSeconds int `mapstructure:"captcha_timeout_seconds"`
	ProbationHours        int `mapstructure:"probation_hours"`
	ProbationThreshold    int `mapstructure:"probation_threshold"`

	SweepIntervalSeconds     int `mapstructure:"sweep_interval_seconds"`
	SweepStartupDelaySeconds int `mapstructure:"sweep_startup_delay_seconds"`

	WhitelistDomains []string `mapstructure:"whitelist_domains"`
}

func (e EnforceConfig) CaptchaTimeout() time.Duration {
	return time.Duration(e.CaptchaTimeoutSeconds) * time.Second
}

func (e EnforceConfig) ProbationWindow() time.Duration {
	return time.Duration(e.ProbationHours) * time.Hour
}

func (e EnforceConfig) WarningMaxAge() time.Duration {
	return time.Duration(e.WarningMaxAgeMinutes) * time.Minute
}

func (e EnforceConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

func (e EnforceConfig) SweepStartupDelay() time.Duration {
	return time.Duration(e.SweepStartupDelaySeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}
	if c.Enforce.GroupID >= 0 {
		return fmt.Errorf("enforce.group_id must be negative (supergroup IDs are negative)")
	}
	if c.Enforce.WarningThreshold <= 0 {
		return fmt.Errorf("enforce.warning_threshold must be greater than 0")
	}
	if c.Enforce.WarningMaxAgeMinutes <= 0 {
		return fmt.Errorf("enforce.warning_max_age_minutes must be greater than 0")
	}
	if c.Enforce.CaptchaTimeoutSeconds < 10 || c.Enforce.CaptchaTimeoutSeconds > 600 {
		return fmt.Errorf("enforce.captcha_timeout_seconds must be between 10 and 600")
	}
	if c.Enforce.ProbationHours < 0 {
		return fmt.Errorf("enforce.probation_hours must be >= 0")
	}
	if c.Enforce.ProbationThreshold <= 0 {
		return fmt.Errorf("enforce.probation_threshold must be greater than 0")
	}
	if c.Enforce.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("enforce.sweep_interval_seconds must be greater than 0")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.debug_path", "/debug")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/groupguard.db")
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("enforce.enabled", false)
	v.SetDefault("enforce.warning_threshold", 3)
	v.SetDefault("enforce.warning_max_age_minutes", 180)
	v.SetDefault("enforce.captcha_timeout_seconds", 120)
	v.SetDefault("enforce.probation_hours", 72)
	v.SetDefault("enforce.probation_threshold", 3)
	v.SetDefault("enforce.sweep_interval_seconds", 300)
	v.SetDefault("enforce.sweep_startup_delay_seconds", 300)
	v.SetDefault("enforce.whitelist_domains", []string{"telegram.org", "github.com", "python.org"})
}
