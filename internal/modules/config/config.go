package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"trigger_bot/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"telegram"`
	DB      string `mapstructure:"db_dsn"`
	Service struct {
		Host      string `mapstructure:"host"`
		AdminAddr string `mapstructure:"admin_addr"`
	} `mapstructure:"service"`

	Binance struct {
		BaseURL string `mapstructure:"base_url"`
		WSURL   string `mapstructure:"ws_url"`
	} `mapstructure:"binance"`

	CryptoCompareURL string `mapstructure:"cryptocompare_url"`

	// Цикл воркера
	RunInterval    time.Duration `mapstructure:"run_interval"`     // базовый интервал тиков
	MaxRunInterval time.Duration `mapstructure:"max_run_interval"` // потолок backoff-а

	// Доля ближайших к медиане сделок, по которым берём recent price.
	// 0 — фильтр выключен.
	OutlierFraction float64 `mapstructure:"outlier_fraction"`

	NotifyQueueSize int `mapstructure:"notify_queue_size"`

	Jaeger struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}

	v := viper.New()
	v.SetConfigFile("configs/" + configFileName)
	v.SetConfigType("yaml")

	v.SetDefault("service.admin_addr", ":8080")
	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("cryptocompare_url", "https://min-api.cryptocompare.com/data/price")
	v.SetDefault("run_interval", "30s")
	v.SetDefault("max_run_interval", "16m")
	v.SetDefault("outlier_fraction", 0.8)
	v.SetDefault("notify_queue_size", 64)
	v.SetDefault("jaeger.host", "localhost")
	v.SetDefault("jaeger.port", 6831)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat("configs/" + configFileName); statErr == nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// файла нет — живём на дефолтах и ENV
		logger.Info("config file %s not found, using defaults", configFileName)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config file")
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if config.RunInterval <= 0 {
		return nil, errors.New("run_interval must be positive")
	}
	if config.MaxRunInterval < config.RunInterval {
		return nil, errors.New("max_run_interval must be >= run_interval")
	}
	if config.OutlierFraction < 0 || config.OutlierFraction > 1 {
		return nil, errors.New("outlier_fraction must be within [0,1]")
	}

	return config, nil
}
