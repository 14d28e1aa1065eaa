package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	pkgconfig "github.com/utafrali/coffeeshop/pkg/config"
)

// config holds the storefront CLI settings.
type config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	APIURL string `env:"STOREFRONT_API_URL" envDefault:"http://localhost:8004" validate:"required,url"`
	Token  string `env:"STOREFRONT_TOKEN"`
	// CartFile defaults to a file under the user's config directory.
	CartFile string `env:"STOREFRONT_CART_FILE"`

	// Must match the order service so displayed totals equal charged totals.
	DiscountProductName        string   `env:"DISCOUNT_PRODUCT_NAME" envDefault:"Filter Pack"`
	DiscountQualifyingQuantity int      `env:"DISCOUNT_QUALIFYING_QUANTITY" envDefault:"2" validate:"gte=0"`
	DiscountPerGroup           int64    `env:"DISCOUNT_PER_GROUP" envDefault:"10" validate:"gte=0"`
	ShippingFee                int64    `env:"SHIPPING_FEE" envDefault:"0" validate:"gte=0"`
	PaymentMethods             []string `env:"PAYMENT_METHODS" envDefault:"cash-taipei,cash-sanchong" envSeparator:","`
	OrderNumberPrefix          string   `env:"ORDER_NUMBER_PREFIX" envDefault:"CF" validate:"len=2,alpha"`
	OrderNumberTimezone        string   `env:"ORDER_NUMBER_TIMEZONE" envDefault:"UTC"`

	orderNumberLocation *time.Location
}

// dotEnvFile is read from the working directory when present. Variables
// already set in the environment win.
const dotEnvFile = ".env"

func loadConfig() (*config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}
	cfg := &config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if cfg.CartFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("STOREFRONT_CART_FILE is not set and no config dir is available: %w", err)
		}
		cfg.CartFile = filepath.Join(dir, "coffeeshop", "cart.json")
	}
	loc, err := time.LoadLocation(cfg.OrderNumberTimezone)
	if err != nil {
		return nil, fmt.Errorf("ORDER_NUMBER_TIMEZONE: %w", err)
	}
	cfg.orderNumberLocation = loc
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("read %s: %w", path, err)
}

func (c *config) discount() pricing.DiscountRule {
	return pricing.DiscountRule{
		ProductName:        c.DiscountProductName,
		QualifyingQuantity: c.DiscountQualifyingQuantity,
		DiscountPerGroup:   c.DiscountPerGroup,
	}
}

func (c *config) numbering() domain.OrderNumbering {
	return domain.OrderNumbering{Prefix: c.OrderNumberPrefix, Location: c.orderNumberLocation}
}
