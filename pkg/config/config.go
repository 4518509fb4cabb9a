// Package config loads homeledger settings from .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"homeledger/pkg/ocr"
)

const devJWTSecret = "homeledger-dev-secret-change-me"

// Config is the typed view of the process configuration.
type Config struct {
	Port           string `mapstructure:"port"`
	DBDSN          string `mapstructure:"db_dsn"`
	DBAutoMigrate  bool   `mapstructure:"db_auto_migrate"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	UploadBase     string `mapstructure:"upload_base"`
	UploadMaxBytes int64  `mapstructure:"upload_max_bytes"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`

	TesseractLangs  string `mapstructure:"tesseract_langs"`
	OCRTimeoutMs    int    `mapstructure:"ocr_timeout_ms"`
	OCRMinWidth     int    `mapstructure:"ocr_min_width"`
	OCRMaxWidth     int    `mapstructure:"ocr_max_width"`
	OCRThreshold    int    `mapstructure:"ocr_threshold"`
	OCRWhitelist    string `mapstructure:"ocr_whitelist"`
	OCRNoisePattern string `mapstructure:"ocr_noise_pattern"`
	OCRMaxItems     int    `mapstructure:"ocr_max_items"`
	OCRRawTextLimit int    `mapstructure:"ocr_raw_text_limit"`
	OCRPreprocess   bool   `mapstructure:"ocr_preprocess"`
}

// Load reads .env and .env.local (never overriding variables already set),
// applies defaults and validates the result.
func Load() (*Config, error) {
	loadEnvFiles(".env", ".env.local")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set; using development secret")
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFiles(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
			continue
		}
		log.Debug().Str("file", f).Msg("env file loaded")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("upload_base", "uploads")
	v.SetDefault("upload_max_bytes", 10<<20)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	def := ocr.DefaultConfig()
	v.SetDefault("tesseract_langs", def.Languages)
	v.SetDefault("ocr_timeout_ms", int(def.Timeout/time.Millisecond))
	v.SetDefault("ocr_min_width", def.MinWidth)
	v.SetDefault("ocr_max_width", def.MaxWidth)
	v.SetDefault("ocr_threshold", int(def.Threshold))
	v.SetDefault("ocr_whitelist", def.Whitelist)
	v.SetDefault("ocr_noise_pattern", def.NoisePattern)
	v.SetDefault("ocr_max_items", def.MaxItems)
	v.SetDefault("ocr_raw_text_limit", def.RawTextLimit)
	v.SetDefault("ocr_preprocess", true)
}

// Validate checks ranges. DB_DSN is checked by the commands that need it.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.UploadBase == "" {
		errs = append(errs, errors.New("UPLOAD_BASE is required"))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if c.OCRTimeoutMs <= 0 {
		errs = append(errs, errors.New("OCR_TIMEOUT_MS must be positive"))
	}
	if c.OCRMinWidth <= 0 || c.OCRMaxWidth < c.OCRMinWidth {
		errs = append(errs, fmt.Errorf("OCR width bounds invalid: min %d, max %d", c.OCRMinWidth, c.OCRMaxWidth))
	}
	// 0 would turn the whole image white; ocr.Config also reads it as "unset"
	if c.OCRThreshold < 1 || c.OCRThreshold > 255 {
		errs = append(errs, fmt.Errorf("OCR_THRESHOLD must be 1..255, got %d", c.OCRThreshold))
	}
	if c.OCRMaxItems <= 0 {
		errs = append(errs, errors.New("OCR_MAX_ITEMS must be positive"))
	}
	return errors.Join(errs...)
}

// RequireDB fails when no database DSN is configured.
func (c *Config) RequireDB() error {
	if c.DBDSN == "" {
		return errors.New("DB_DSN not set")
	}
	return nil
}

// OCR converts the OCR_* keys into the pipeline configuration.
func (c *Config) OCR() ocr.Config {
	cfg := ocr.DefaultConfig()
	cfg.Languages = c.TesseractLangs
	cfg.Timeout = time.Duration(c.OCRTimeoutMs) * time.Millisecond
	cfg.MinWidth = c.OCRMinWidth
	cfg.MaxWidth = c.OCRMaxWidth
	cfg.Threshold = uint8(c.OCRThreshold)
	cfg.Whitelist = c.OCRWhitelist
	cfg.NoisePattern = c.OCRNoisePattern
	cfg.MaxItems = c.OCRMaxItems
	cfg.RawTextLimit = c.OCRRawTextLimit
	return cfg
}
