package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Dotenv string `mapstructure:"dotenv"`
	API    struct {
		// BaseURL is the backend origin. The client appends /api.
		BaseURL string        `mapstructure:"baseURL"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"api"`
	Cache struct {
		StaleTime  time.Duration `mapstructure:"staleTime"`
		GCTime     time.Duration `mapstructure:"gcTime"`
		MaxRetries uint64        `mapstructure:"maxRetries"`
	} `mapstructure:"cache"`
	Guard struct {
		Wait time.Duration `mapstructure:"wait"`
	} `mapstructure:"guard"`
	Handlers struct {
		Shell struct {
			Port           string   `mapstructure:"port"`
			AllowedOrigins []string `mapstructure:"allowedOrigins"`
		} `mapstructure:"shell"`
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Server struct {
		Timeout time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
}

// InitConfig loads config.yml from the usual paths, falling back to the
// embedded copy. API_URL overrides api.baseURL.
func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetDefault("api.baseURL", "http://localhost:5000")
	if err := v.BindEnv("api.baseURL", "API_URL"); err != nil {
		return Config{}, fmt.Errorf("failed to bind API_URL: %w", err)
	}

	err := v.ReadInConfig()
	if err != nil {
		slog.Warn("Failed to find file-based config, falling back to embedded config", slog.Any("error", err))
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	slog.Debug("Loaded app config", slog.String("api_base_url", config.API.BaseURL))
	return config, nil
}
