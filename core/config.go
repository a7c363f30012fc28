package core

import (
	"fmt"
	"strings"
	"time"
)

type ActivityConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`
}

type HardwareIDCacheConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type JobsConfig struct {
	TokenStatusRefresh bool `koanf:"token_status_refresh" mapstructure:"token_status_refresh"`
}

type Config struct {
	ServiceName     string                `koanf:"service_name" mapstructure:"service_name"`
	Activity        ActivityConfig        `koanf:"activity" mapstructure:"activity"`
	HardwareIDCache HardwareIDCacheConfig `koanf:"hardware_id_cache" mapstructure:"hardware_id_cache"`
	Jobs            JobsConfig            `koanf:"jobs" mapstructure:"jobs"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "provisioning",
		Activity:    ActivityConfig{Enabled: true},
		HardwareIDCache: HardwareIDCacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Jobs: JobsConfig{TokenStatusRefresh: true},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.HardwareIDCache.TTL < 0 {
		return fmt.Errorf("core: hardware_id_cache.ttl must not be negative")
	}
	return nil
}
