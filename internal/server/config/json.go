package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/requestmanager/internal/flagx"
	"github.com/dmitrijs2005/requestmanager/internal/timex"
)

// JSONConfig mirrors Config for JSON files. Pointer fields distinguish
// "absent" from the zero value so a partial file only overrides what it
// names. Durations accept "30s" or integer nanoseconds.
type JSONConfig struct {
	HTTPAddr            *string         `json:"http_addr"`
	GRPCAddr            *string         `json:"grpc_addr"`
	DatabaseDSN         *string         `json:"database_dsn"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
	RedisAddr           *string         `json:"redis_addr"`
	RedisDB             *int            `json:"redis_db"`
	LoginAttemptLimit   *int            `json:"login_attempt_limit"`
	LoginAttemptWindow  *timex.Duration `json:"login_attempt_window"`
	HealthCheckInterval *timex.Duration `json:"health_check_interval"`
	TokenPurgeInterval  *timex.Duration `json:"token_purge_interval"`
	MigrateOnStart      *bool           `json:"migrate_on_start"`
	SecureCookies       *bool           `json:"secure_cookies"`
}

// parseJSON overlays the file named by -c / -config, if any.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setIf(&config.HTTPAddr, c.HTTPAddr)
	setIf(&config.GRPCAddr, c.GRPCAddr)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.LogLevel, c.LogLevel)
	setIf(&config.LogFormat, c.LogFormat)
	setIf(&config.RedisAddr, c.RedisAddr)
	setIf(&config.RedisDB, c.RedisDB)
	setIf(&config.LoginAttemptLimit, c.LoginAttemptLimit)
	setIf(&config.MigrateOnStart, c.MigrateOnStart)
	setIf(&config.SecureCookies, c.SecureCookies)
	if c.LoginAttemptWindow != nil {
		config.LoginAttemptWindow = c.LoginAttemptWindow.Duration
	}
	if c.HealthCheckInterval != nil {
		config.HealthCheckInterval = c.HealthCheckInterval.Duration
	}
	if c.TokenPurgeInterval != nil {
		config.TokenPurgeInterval = c.TokenPurgeInterval.Duration
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
