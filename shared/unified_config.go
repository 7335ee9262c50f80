package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Provider  ProviderConfig  `json:"provider"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

// ProviderConfig holds streaming-provider HTTP configuration
type ProviderConfig struct {
	APIBaseURL         string        `json:"api_base_url"`
	TokenURL           string        `json:"token_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	RequestRateLimit   time.Duration `json:"rate_limit"`
	TokenRefreshWindow time.Duration `json:"token_refresh_window"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// SchedulerConfig holds timer worker-pool configuration
type SchedulerConfig struct {
	Workers        int           `json:"workers"`
	AlarmLeadTime  time.Duration `json:"alarm_lead_time"`
	AuditInterval  time.Duration `json:"audit_interval"`
	ChannelPoolMin int           `json:"channel_pool_min"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	Output      string `json:"output"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Provider: ProviderConfig{
			APIBaseURL:         "https://www.googleapis.com/youtube/v3",
			TokenURL:           "https://oauth2.googleapis.com/token",
			HTTPRequestTimeout: 30 * time.Second,
			RequestRateLimit:   1 * time.Second,
			TokenRefreshWindow: 60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Workers:        10,
			AlarmLeadTime:  10 * time.Minute,
			AuditInterval:  15 * time.Minute,
			ChannelPoolMin: 1,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "stdout",
			ServiceName: "auction-backend",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Provider.APIBaseURL == "" {
		c.Provider.APIBaseURL = defaults.Provider.APIBaseURL
		logger.Debug("Applied default Provider.APIBaseURL")
	}
	if c.Provider.TokenURL == "" {
		c.Provider.TokenURL = defaults.Provider.TokenURL
		logger.Debug("Applied default Provider.TokenURL")
	}
	if c.Provider.HTTPRequestTimeout <= 0 {
		c.Provider.HTTPRequestTimeout = defaults.Provider.HTTPRequestTimeout
		logger.Debug("Applied default Provider.HTTPRequestTimeout")
	}
	if c.Provider.RequestRateLimit <= 0 {
		c.Provider.RequestRateLimit = defaults.Provider.RequestRateLimit
		logger.Debug("Applied default Provider.RequestRateLimit")
	}
	if c.Provider.TokenRefreshWindow <= 0 {
		c.Provider.TokenRefreshWindow = defaults.Provider.TokenRefreshWindow
		logger.Debug("Applied default Provider.TokenRefreshWindow")
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = defaults.Database.ConnMaxIdleTime
		logger.Debug("Applied default Database.ConnMaxIdleTime")
	}
	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}

	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = defaults.Scheduler.Workers
		logger.Debug("Applied default Scheduler.Workers")
	}
	if c.Scheduler.AlarmLeadTime <= 0 {
		c.Scheduler.AlarmLeadTime = defaults.Scheduler.AlarmLeadTime
		logger.Debug("Applied default Scheduler.AlarmLeadTime")
	}
	if c.Scheduler.AuditInterval <= 0 {
		c.Scheduler.AuditInterval = defaults.Scheduler.AuditInterval
		logger.Debug("Applied default Scheduler.AuditInterval")
	}
	if c.Scheduler.ChannelPoolMin <= 0 {
		c.Scheduler.ChannelPoolMin = defaults.Scheduler.ChannelPoolMin
		logger.Debug("Applied default Scheduler.ChannelPoolMin")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFromJSON deserializes configuration from JSON
func (c *UnifiedConfiguration) LoadFromJSON(jsonData []byte) error {
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.ValidateAndApplyDefaults()
	return nil
}
