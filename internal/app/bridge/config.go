package bridge

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
)

// Billing backend selectors.
const (
	BackendMemory     = "memory"
	BackendGooglePlay = "googleplay"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BillingConfig struct {
	Backend             string           `mapstructure:"backend"` // "memory" | "googleplay"
	PackageName         string           `mapstructure:"package_name"`
	ServiceAccountFile  string           `mapstructure:"service_account_file"`
	ObfuscatedAccountID string           `mapstructure:"obfuscated_account_id"`
	ObfuscatedProfileID string           `mapstructure:"obfuscated_profile_id"`
	LogLevel            int              `mapstructure:"log_level"`
	LogTag              string           `mapstructure:"log_tag"`
	Catalog             []CatalogProduct `mapstructure:"catalog"`
}

// CatalogProduct seeds the simulated backend's product catalog.
type CatalogProduct struct {
	ID             string `mapstructure:"id"`
	Type           string `mapstructure:"type"`
	Title          string `mapstructure:"title"`
	Description    string `mapstructure:"description"`
	CurrencyCode   string `mapstructure:"currency_code"`
	FormattedPrice string `mapstructure:"formatted_price"`
	PriceMicros    int64  `mapstructure:"price_micros"`
	BasePlanID     string `mapstructure:"base_plan_id"`
	OfferToken     string `mapstructure:"offer_token"`
}

type TelemetryConfig struct {
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Load reads the optional config file, overlays environment variables, and
// returns validated configuration. A missing file is fine; defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable override: BILLING_PACKAGE_NAME -> billing.package_name
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("billing.backend", BackendMemory)
	v.SetDefault("billing.package_name", "")
	v.SetDefault("billing.service_account_file", "")
	v.SetDefault("billing.obfuscated_account_id", "")
	v.SetDefault("billing.obfuscated_profile_id", "")
	v.SetDefault("billing.log_level", 0)
	v.SetDefault("billing.log_tag", "playbilling")

	v.SetDefault("telemetry.environment", "local")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Billing.Backend {
	case BackendMemory:
	case BackendGooglePlay:
		if c.Billing.PackageName == "" {
			return fmt.Errorf("billing.package_name is required for the %s backend", BackendGooglePlay)
		}
		if c.Billing.ServiceAccountFile == "" {
			return fmt.Errorf("billing.service_account_file is required for the %s backend", BackendGooglePlay)
		}
	default:
		return fmt.Errorf("unknown billing.backend %q", c.Billing.Backend)
	}
	for i, p := range c.Billing.Catalog {
		if p.ID == "" {
			return fmt.Errorf("billing.catalog[%d]: id is required", i)
		}
		if _, err := domain.ParseProductType(p.Type); err != nil {
			return fmt.Errorf("billing.catalog[%d]: %w", i, err)
		}
	}
	return nil
}

// Addr is the listen address derived from the server section.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CatalogProducts converts the configured catalog into domain product details
// for the simulated backend.
func (c *Config) CatalogProducts() []domain.ProductDetails {
	out := make([]domain.ProductDetails, 0, len(c.Billing.Catalog))
	for _, p := range c.Billing.Catalog {
		productType, err := domain.ParseProductType(p.Type)
		if err != nil {
			continue
		}
		details := domain.ProductDetails{
			ID:          p.ID,
			Type:        productType,
			Title:       p.Title,
			Name:        p.Title,
			Description: p.Description,
		}
		switch productType {
		case domain.ProductTypeInApp:
			details.OneTimeOffer = &domain.OneTimeOffer{
				CurrencyCode:      p.CurrencyCode,
				FormattedPrice:    p.FormattedPrice,
				PriceAmountMicros: p.PriceMicros,
			}
		case domain.ProductTypeSubs:
			offerToken := p.OfferToken
			if offerToken == "" {
				offerToken = p.ID + ":" + p.BasePlanID
			}
			details.SubscriptionOffers = []domain.SubscriptionOffer{{
				BasePlanID: p.BasePlanID,
				OfferToken: offerToken,
			}}
		}
		out = append(out, details)
	}
	return out
}
