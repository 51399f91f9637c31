package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	CareAPIURL     string   `mapstructure:"CARE_API_URL"`
	CareAPITimeout int      `mapstructure:"CARE_API_TIMEOUT_SECONDS"`
	RequestTimeout int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	DemoPatientID  string   `mapstructure:"DEMO_PATIENT_ID"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("CARE_API_URL", "http://localhost:8000")
	v.SetDefault("CARE_API_TIMEOUT_SECONDS", 30)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 60)
	v.SetDefault("DEMO_PATIENT_ID", "patient-001")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CARE_API_URL")
	v.BindEnv("CARE_API_TIMEOUT_SECONDS")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("DEMO_PATIENT_ID")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CareAPITimeoutDuration returns the per-call care API timeout.
func (c *Config) CareAPITimeoutDuration() time.Duration {
	return time.Duration(c.CareAPITimeout) * time.Second
}

// RequestTimeoutDuration returns the inbound request deadline.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.CareAPIURL == "" {
		return fmt.Errorf("CARE_API_URL is required")
	}
	if c.CareAPITimeout <= 0 {
		return fmt.Errorf("CARE_API_TIMEOUT_SECONDS must be positive, got %d", c.CareAPITimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeout)
	}
	if c.RequestTimeout < c.CareAPITimeout {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS (%d) must not be shorter than CARE_API_TIMEOUT_SECONDS (%d)",
			c.RequestTimeout, c.CareAPITimeout)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	return nil
}
