/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the TOML configuration file that
// drives gpsntpd: which clock source to discipline from, the GPS
// serial port, rate limiting and IP filtering policy, and logging and
// web server settings.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// ServerConfig controls the NTP listener itself.
type ServerConfig struct {
	BindAddress  string `toml:"bind_address"`
	Stratum      uint8  `toml:"stratum"`
	Precision    int8   `toml:"precision"`
	PollInterval uint8  `toml:"poll_interval"`
}

// GpsConfig controls the GPS serial reader and PPS discipline.
type GpsConfig struct {
	Enabled       bool    `toml:"enabled"`
	SerialPort    string  `toml:"serial_port"`
	BaudRate      int     `toml:"baud_rate"`
	SyncTimeout   uint32  `toml:"sync_timeout"`
	MinSatellites uint8   `toml:"min_satellites"`
	PPSEnabled    bool    `toml:"pps_enabled"`
	PPSGpioPin    *uint32 `toml:"pps_gpio_pin,omitempty"`
}

// ClockConfig selects the clock source: "system" or "gps".
type ClockConfig struct {
	Source string     `toml:"source"`
	GPS    *GpsConfig `toml:"gps,omitempty"`
}

// SecurityConfig controls admission control: rate limiting and IP lists.
type SecurityConfig struct {
	EnableRateLimiting bool     `toml:"enable_rate_limiting"`
	MaxRequestsPerSec  int      `toml:"max_requests_per_second"`
	IPWhitelist        []string `toml:"ip_whitelist"`
	IPBlacklist        []string `toml:"ip_blacklist"`
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level       string  `toml:"level"`
	LogRequests bool    `toml:"log_requests"`
	LogFile     *string `toml:"log_file,omitempty"`
}

// WebServerConfig controls the monitoring HTTP endpoints.
type WebServerConfig struct {
	Port        int    `toml:"port"`
	BindAddress string `toml:"bind_address"`
}

// Config is the top-level, TOML-serializable configuration for gpsntpd.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Clock     ClockConfig     `toml:"clock"`
	Security  SecurityConfig  `toml:"security"`
	Logging   LoggingConfig   `toml:"logging"`
	WebServer WebServerConfig `toml:"webserver"`
}

// Default returns the configuration gpsntpd starts with before any
// file is loaded, matching the defaults of the original daemon.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindAddress:  "0.0.0.0:123",
			Stratum:      2,
			Precision:    -20,
			PollInterval: 6,
		},
		Clock: ClockConfig{
			Source: "system",
			GPS: &GpsConfig{
				Enabled:       true,
				SerialPort:    "/dev/ttyUSB0",
				BaudRate:      9600,
				SyncTimeout:   30,
				MinSatellites: 4,
				PPSEnabled:    true,
			},
		},
		Security: SecurityConfig{
			EnableRateLimiting: true,
			MaxRequestsPerSec:  100,
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: false,
		},
		WebServer: WebServerConfig{
			Port:        8080,
			BindAddress: "0.0.0.0",
		},
	}
}

// LoadFromFile reads and parses a TOML config file at path.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SaveToFile writes cfg as TOML to path.
func SaveToFile(cfg Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding config as TOML")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing config file %s", path)
	}
	return nil
}

// Validate checks the invariants the original config.rs enforces:
// stratum must fit NTP's 1-15 range for a server (16 means unsynced,
// never something an admin configures), the clock source must be
// recognized, and a "gps" source requires GPS configuration.
func (c Config) Validate() error {
	if c.Server.Stratum < 1 || c.Server.Stratum > 15 {
		return errors.Errorf("server.stratum must be between 1 and 15, got %d", c.Server.Stratum)
	}
	switch c.Clock.Source {
	case "system", "gps":
	default:
		return errors.Errorf("clock.source must be \"system\" or \"gps\", got %q", c.Clock.Source)
	}
	if c.Clock.Source == "gps" && c.Clock.GPS == nil {
		return errors.New("clock.source is \"gps\" but clock.gps is not configured")
	}
	if c.Clock.GPS != nil && c.Clock.GPS.Enabled && c.Clock.GPS.SerialPort == "" {
		return errors.New("clock.gps.serial_port must be set when clock.gps.enabled is true")
	}
	if c.Security.MaxRequestsPerSec < 0 {
		return errors.New("security.max_requests_per_second must be non-negative")
	}
	return nil
}
