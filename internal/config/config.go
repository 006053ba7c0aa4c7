package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a flag nor VENUEBOOK_CONFIG is set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Venue struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
		// BlackoutsFile is an optional YAML list of closed dates synced on start.
		BlackoutsFile string `yaml:"blackouts_file"`
	} `yaml:"venue"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	HTTP struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MinAdvanceHours       int  `yaml:"min_advance_hours"`
		MaxAdvanceDays        int  `yaml:"max_advance_days"`
		SerializeReservations bool `yaml:"serialize_reservations"`
		LockTTLSeconds        int  `yaml:"lock_ttl_seconds"`
		PostEventGraceHours   int  `yaml:"post_event_grace_hours"`
	} `yaml:"booking"`

	Jobs struct {
		MaxAttempts                  int  `yaml:"max_attempts"`
		BatchSize                    int  `yaml:"batch_size"`
		TriggerEnabled               bool `yaml:"trigger_enabled"`
		ProcessIntervalMinutes       int  `yaml:"process_interval_minutes"`
		LifecycleIntervalMinutes     int  `yaml:"lifecycle_interval_minutes"`
		BalanceLinkDaysBefore        int  `yaml:"balance_link_days_before"`
		HostReportReminderHoursAfter int  `yaml:"host_report_reminder_hours_after"`
	} `yaml:"jobs"`

	Payments struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		Currency       string `yaml:"currency"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"payments"`

	Email struct {
		RelayURL      string  `yaml:"relay_url"`
		APIKey        string  `yaml:"api_key"`
		From          string  `yaml:"from"`
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"email"`

	Telegram struct {
		BotToken  string `yaml:"bot_token"`
		OpsChatID int64  `yaml:"ops_chat_id"`
		Debug     bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Calendar struct {
		Enabled         bool   `yaml:"enabled"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"calendar"`

	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VENUEBOOK_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Venue.Timezone == "" {
		c.Venue.Timezone = "UTC"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/venuebook.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Jobs.MaxAttempts <= 0 {
		c.Jobs.MaxAttempts = 3
	}
	if c.Jobs.BatchSize <= 0 {
		c.Jobs.BatchSize = 50
	}
	if c.Calendar.SheetName == "" {
		c.Calendar.SheetName = "Bookings"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "venuebook.events"
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "USD"
	}
}

// Location resolves the venue timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Venue.Timezone)
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceHours <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceHours) * time.Hour
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 730 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	if c.Booking.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}

func (c *Config) PostEventGrace() time.Duration {
	if c.Booking.PostEventGraceHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Booking.PostEventGraceHours) * time.Hour
}

func (c *Config) ProcessInterval() time.Duration {
	if c.Jobs.ProcessIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Jobs.ProcessIntervalMinutes) * time.Minute
}

func (c *Config) LifecycleInterval() time.Duration {
	if c.Jobs.LifecycleIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Jobs.LifecycleIntervalMinutes) * time.Minute
}

func (c *Config) BalanceLinkLead() time.Duration {
	if c.Jobs.BalanceLinkDaysBefore <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Jobs.BalanceLinkDaysBefore) * 24 * time.Hour
}

func (c *Config) HostReportReminderDelay() time.Duration {
	if c.Jobs.HostReportReminderHoursAfter <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Jobs.HostReportReminderHoursAfter) * time.Hour
}

func (c *Config) PaymentsTimeout() time.Duration {
	if c.Payments.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Payments.TimeoutSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
