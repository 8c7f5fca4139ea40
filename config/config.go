// Package config loads clinic-rx settings from defaults, an optional
// config file and CLINICRX_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/clinic-rx/dispensing"
)

// Config holds all application configuration.
type Config struct {
	DBPath      string        `mapstructure:"db_path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	BackupDir   string        `mapstructure:"backup_dir"`
	StockPolicy string        `mapstructure:"stock_policy"`
	LogLevel    string        `mapstructure:"log_level"`
	LogPretty   bool          `mapstructure:"log_pretty"`
	HTTPPort    int           `mapstructure:"http_port"`
	CORSOrigins []string      `mapstructure:"cors_origins"`

	// Low-stock monitor run by "clinicrx serve". Interval 0 disables it.
	LowStockThreshold int64         `mapstructure:"low_stock_threshold"`
	LowStockInterval  time.Duration `mapstructure:"low_stock_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:      "clinic.db",
		BusyTimeout: 20 * time.Second,
		BackupDir:   "backups",
		StockPolicy: dispensing.PolicyReject,
		LogLevel:    "info",
		HTTPPort:    8080,
		CORSOrigins: []string{"http://localhost:3000"},

		LowStockThreshold: 10,
		LowStockInterval:  time.Hour,
	}
}

// Load reads configuration. path may be empty, in which case only
// defaults and the environment are used. A named file that does not
// exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("busy_timeout", d.BusyTimeout)
	v.SetDefault("backup_dir", d.BackupDir)
	v.SetDefault("stock_policy", d.StockPolicy)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("http_port", d.HTTPPort)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("low_stock_threshold", d.LowStockThreshold)
	v.SetDefault("low_stock_interval", d.LowStockInterval)

	v.SetEnvPrefix("CLINICRX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.BusyTimeout <= 0 {
		errs = append(errs, errors.New("busy_timeout must be positive"))
	}
	if c.StockPolicy != dispensing.PolicyReject && c.StockPolicy != dispensing.PolicyAllowNegative {
		errs = append(errs, fmt.Errorf("stock_policy must be %q or %q, got %q",
			dispensing.PolicyReject, dispensing.PolicyAllowNegative, c.StockPolicy))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port out of range: %d", c.HTTPPort))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, errors.New("low_stock_threshold must not be negative"))
	}
	if c.LowStockInterval < 0 {
		errs = append(errs, errors.New("low_stock_interval must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
