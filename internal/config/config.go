// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	adapterotel "github.com/neomorfeo/domainiq/internal/adapter/otel"
	"github.com/neomorfeo/domainiq/internal/app"
	"github.com/neomorfeo/domainiq/internal/domain"
)

var ErrInvalidConfig = errors.New("invalid config")

// productName leaves room for the "_" and "-verify" around it in a 63-byte label.
var productName = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,53}[a-z0-9])?$`)

// Config holds every setting of the domainiq service.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"domainiq.db"`

	// ProductName forms the TXT label "_<product>-verify" and the token prefix.
	ProductName     string `env:"PRODUCT_NAME" envDefault:"domainiq"`
	EdgeIPv4        string `env:"EDGE_IPV4" envDefault:"127.0.0.1"`
	EdgeCNAMETarget string `env:"EDGE_CNAME_TARGET" envDefault:"edge.localhost"`

	DNSNameservers  []string      `env:"DNS_NAMESERVERS" envDefault:"1.1.1.1:53,8.8.8.8:53" envSeparator:","`
	DNSTimeout      time.Duration `env:"DNS_TIMEOUT" envDefault:"5s"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// HostingProvider selects the certificate backend: "local" or "cloudflare".
	HostingProvider    string  `env:"HOSTING_PROVIDER" envDefault:"local"`
	LocalIssueAfter    int     `env:"LOCAL_ISSUE_AFTER" envDefault:"2"`
	CloudflareAPIToken string  `env:"CLOUDFLARE_API_TOKEN"`
	CloudflareZoneID   string  `env:"CLOUDFLARE_ZONE_ID"`
	CloudflareBaseURL  string  `env:"CLOUDFLARE_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	CloudflareDCV      string  `env:"CLOUDFLARE_DCV_METHOD" envDefault:"http"`
	CloudflareRPS      float64 `env:"CLOUDFLARE_REQUESTS_PER_SECOND" envDefault:"4"`

	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`
	AutoProvision        bool          `env:"AUTO_PROVISION" envDefault:"true"`
	VerifyRetryWindow    time.Duration `env:"VERIFY_RETRY_WINDOW" envDefault:"1h"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	OTel OTel
}

// OTel holds the OpenTelemetry settings.
type OTel struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"domainiq"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	Exporter       string `env:"OTEL_EXPORTER" envDefault:"stdout"`

	SampleRatio    float64       `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
	MetricInterval time.Duration `env:"OTEL_METRIC_INTERVAL" envDefault:"60s"`
}

// Load reads .env if present, then parses and validates the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if !productName.MatchString(c.ProductName) {
		errs = append(errs, fmt.Errorf("PRODUCT_NAME %q must be a lowercase DNS label", c.ProductName))
	}
	if addr, err := netip.ParseAddr(c.EdgeIPv4); err != nil || !addr.Is4() {
		errs = append(errs, fmt.Errorf("EDGE_IPV4 %q is not an IPv4 address", c.EdgeIPv4))
	}
	if len(c.DNSNameservers) == 0 {
		errs = append(errs, errors.New("DNS_NAMESERVERS must list at least one nameserver"))
	}
	for _, ns := range c.DNSNameservers {
		if _, err := netip.ParseAddrPort(ns); err != nil {
			errs = append(errs, fmt.Errorf("DNS_NAMESERVERS entry %q must be ip:port", ns))
		}
	}

	switch c.HostingProvider {
	case "local":
	case "cloudflare":
		if c.CloudflareAPIToken == "" || c.CloudflareZoneID == "" {
			errs = append(errs, errors.New("CLOUDFLARE_API_TOKEN and CLOUDFLARE_ZONE_ID are required for the cloudflare provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("HOSTING_PROVIDER %q must be local or cloudflare", c.HostingProvider))
	}

	if c.ReconcileConcurrency < 1 {
		errs = append(errs, errors.New("RECONCILE_CONCURRENCY must be at least 1"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO %v must be within [0, 1]", c.OTel.SampleRatio))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func (c Config) Service() app.Config {
	return app.Config{
		Product:         c.ProductName,
		Edge:            domain.Edge{IPv4: c.EdgeIPv4, CNAMETarget: c.EdgeCNAMETarget},
		DNSTimeout:      c.DNSTimeout,
		ProviderTimeout: c.ProviderTimeout,
	}
}

func (c Config) Reconciler() app.ReconcilerConfig {
	return app.ReconcilerConfig{
		Interval:          c.ReconcileInterval,
		Concurrency:       c.ReconcileConcurrency,
		AutoProvision:     c.AutoProvision,
		VerifyRetryWindow: c.VerifyRetryWindow,
	}
}

func (c Config) Telemetry() adapterotel.Config {
	return adapterotel.Config{
		ServiceName:    c.OTel.ServiceName,
		ServiceVersion: c.OTel.ServiceVersion,
		Environment:    c.OTel.Environment,
		Exporter:       c.OTel.Exporter,
		Insecure:       c.OTel.Environment == "development",
		SampleRatio:    c.OTel.SampleRatio,
		MetricInterval: c.OTel.MetricInterval,
	}
}
