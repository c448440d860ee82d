package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the search service
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Storage StorageConfig `mapstructure:"storage"`
	Search  SearchConfig  `mapstructure:"search"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig describes the reasoning service used to translate queries
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (c LLMConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be greater than zero")
	}
	return nil
}

// CatalogConfig locates the track dataset
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects and configures the job/result store backend
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, redis, postgres
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string from either the URL or the discrete fields.
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, host, port, c.DBName, ssl)
}

// SearchConfig carries the refinement policy knobs. The band and ceilings
// are policy, not constants: deployments tune them without code changes.
type SearchConfig struct {
	BandLow            int `mapstructure:"band_low"`
	BandHigh           int `mapstructure:"band_high"`
	MaxAutoPasses      int `mapstructure:"max_auto_passes"`
	MaxUserRefinements int `mapstructure:"max_user_refinements"`
	MaxConcurrentJobs  int `mapstructure:"max_concurrent_jobs"`
	TranslateRetries   int `mapstructure:"translate_retries"`
}

func (c SearchConfig) Validate() error {
	if c.BandLow <= 0 || c.BandHigh < c.BandLow {
		return fmt.Errorf("search.band_low/band_high must satisfy 0 < low <= high")
	}
	if c.MaxAutoPasses <= 0 {
		return fmt.Errorf("search.max_auto_passes must be greater than zero")
	}
	if c.MaxUserRefinements < 0 {
		return fmt.Errorf("search.max_user_refinements cannot be negative")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("search.max_concurrent_jobs must be greater than zero")
	}
	if c.TranslateRetries <= 0 {
		return fmt.Errorf("search.translate_retries must be greater than zero")
	}
	return nil
}

// LoadConfig reads configuration from the given path, or from the default
// search locations when path is empty. Environment variables with the
// SOUNDSCENE_ prefix override file values. A broken config file is fatal:
// nothing downstream can run without one.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":10800")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeout", "45s")
	viper.SetDefault("catalog.path", "data/tracks.csv")
	viper.SetDefault("storage.driver", "memory")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("search.band_low", 20)
	viper.SetDefault("search.band_high", 50)
	viper.SetDefault("search.max_auto_passes", 3)
	viper.SetDefault("search.max_user_refinements", 10)
	viper.SetDefault("search.max_concurrent_jobs", 4)
	viper.SetDefault("search.translate_retries", 3)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SOUNDSCENE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Missing file is fine (defaults + env), malformed is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Search.Validate(); err != nil {
		panic(err)
	}

	return &config
}
