// Package config loads the service's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"heartpredict/ml"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Artifacts struct {
		ScalerPath string `yaml:"scaler_path"`
		ModelPath  string `yaml:"model_path"`
		ModelType  string `yaml:"model_type"`
		Watch      bool   `yaml:"watch"`
	} `yaml:"artifacts"`
	Log   LogConfig `yaml:"log"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

// LogConfig 日志配置，File为空时只输出到stdout
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() *Config {
	var config Config
	config.Http.Port = 8000
	config.Http.Timeout = 30 * time.Second
	config.Http.AllowedOrigins = []string{"*"}
	config.Http.MaxBodyBytes = 64 << 10
	config.Artifacts.ScalerPath = "artifacts/scaler.json"
	config.Artifacts.ModelPath = "artifacts/random_forest_model.json"
	config.Artifacts.ModelType = ml.ModelTypeRandomForest
	config.Log.Level = "info"
	config.Log.MaxSizeMB = 100
	config.Log.MaxBackups = 5
	config.Log.MaxAgeDays = 30
	config.Cache.Size = 1024
	return &config
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Http.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Artifacts.ScalerPath == "" {
		return errors.New("artifacts.scaler_path is required")
	}
	if c.Artifacts.ModelPath == "" {
		return errors.New("artifacts.model_path is required")
	}
	switch c.Artifacts.ModelType {
	case ml.ModelTypeRandomForest, ml.ModelTypeDecisionTree:
	default:
		return fmt.Errorf("artifacts.model_type %q: %w", c.Artifacts.ModelType, ml.ErrUnsupportedModel)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	return nil
}
