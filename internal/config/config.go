package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DefaultPath is read when present; every key has a default so the file is optional
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Catalog struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"catalog"`

	Bills struct {
		Driver string `mapstructure:"driver"`
		NodeID int64  `mapstructure:"node_id"`
	} `mapstructure:"bills"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Key      string `mapstructure:"key"`
	} `mapstructure:"redis"`

	Billing struct {
		TaxRate string `mapstructure:"tax_rate"`
	} `mapstructure:"billing"`

	Stock struct {
		AdjustOnQuantityChange bool `mapstructure:"adjust_on_quantity_change"`
		RestoreOnClear         bool `mapstructure:"restore_on_clear"`
	} `mapstructure:"stock"`

	Search struct {
		Limit int `mapstructure:"limit"`
	} `mapstructure:"search"`

	Pharmacy struct {
		Name     string `mapstructure:"name"`
		Address  string `mapstructure:"address"`
		Phone    string `mapstructure:"phone"`
		Currency string `mapstructure:"currency"`
	} `mapstructure:"pharmacy"`
}

// Load reads .env, then path (optional), then PHARMPOS_* environment overrides
// such as PHARMPOS_BILLING_TAX_RATE.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetEnvPrefix("pharmpos")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("catalog.driver", "memory")
	v.SetDefault("catalog.dsn", "pharmpos.db")
	v.SetDefault("bills.driver", "memory")
	v.SetDefault("bills.node_id", 1)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "pharmpos:saved_bills")
	v.SetDefault("billing.tax_rate", "0")
	v.SetDefault("stock.adjust_on_quantity_change", true)
	v.SetDefault("stock.restore_on_clear", true)
	v.SetDefault("search.limit", 10)
	v.SetDefault("pharmacy.name", "Pharmacy")
	v.SetDefault("pharmacy.address", "")
	v.SetDefault("pharmacy.phone", "")
	v.SetDefault("pharmacy.currency", "PKR")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		log.Printf("[config] no config file at %s, using defaults", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TaxRate parses billing.tax_rate as a percentage.
func (c *Config) TaxRate() decimal.Decimal {
	d, err := decimal.NewFromString(c.Billing.TaxRate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Config) validate() error {
	switch c.Catalog.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("catalog.driver: unknown driver %q", c.Catalog.Driver)
	}
	switch c.Bills.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("bills.driver: unknown driver %q", c.Bills.Driver)
	}
	d, err := decimal.NewFromString(c.Billing.TaxRate)
	if err != nil || d.IsNegative() {
		return errors.New("billing.tax_rate must be a non-negative number")
	}
	return nil
}
