package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig drives the therapyctl command line client.
type ClientConfig struct {
	APIURL  string        `mapstructure:"API_URL"`
	Token   string        `mapstructure:"TOKEN"`
	Timeout time.Duration `mapstructure:"TIMEOUT"`
}

// LoadClient reads THERAPY_-prefixed environment variables and an optional
// .env file.
func LoadClient() (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetEnvPrefix("THERAPY")
	v.AutomaticEnv()

	v.SetDefault("API_URL", "http://localhost:8080/api/v1")
	v.SetDefault("TIMEOUT", "30s")

	for _, key := range []string{"API_URL", "TOKEN", "TIMEOUT"} {
		_ = v.BindEnv(key)
	}
	_ = v.ReadInConfig()

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("THERAPY_API_URL is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("THERAPY_TIMEOUT must be positive")
	}
	return cfg, nil
}
