// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	sharedcfg "github.com/Kyver-Studios/Kyver-Invoices/shared/config"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

type DiscordConfig struct {
	Token       string
	GuildID     string // empty registers the commands globally
	AdminRoleID string
	// InvoiceCategoryID is the category private invoice channels are opened
	// under. Empty keeps invoices in the channel they were issued in.
	InvoiceCategoryID string
}

type InvoiceConfig struct {
	PendingTimeout  time.Duration
	DefaultCurrency string
	CommandTimeout  time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

type PayPalConfig struct {
	ClientID  string
	Secret    string
	WebhookID string
	Mode      string // sandbox or live
	BrandName string
	ReturnURL string
	CancelURL string
}

func (c PayPalConfig) Enabled() bool { return c.ClientID != "" }

type StoreConfig struct {
	MaxConns       int32
	AcquireTimeout time.Duration
	MaxRetries     uint64
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

type Config struct {
	Common   *sharedcfg.CommonConfig
	LogLevel string
	// HTTPAddr serves provider webhooks, HealthAddr the gRPC health service.
	HTTPAddr   string
	HealthAddr string

	Discord       DiscordConfig
	Invoice       InvoiceConfig
	Stripe        StripeConfig
	PayPal        PayPalConfig
	Store         StoreConfig
	Sweeper       SweeperConfig
	NotifyWorkers int
	// KafkaMode is "relay" (the topic carries events to chat) or "audit"
	// (events reach chat directly and are copied to the topic).
	KafkaMode string
}

const (
	KafkaModeRelay = "relay"
	KafkaModeAudit = "audit"
)

func setDefaults(v *viper.Viper) {
	sharedcfg.SetCommonDefaults(v)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("health.addr", ":50051")

	v.SetDefault("invoice.pending_timeout", "24h")
	v.SetDefault("invoice.default_currency", "USD")
	v.SetDefault("invoice.command_timeout", "10s")

	v.SetDefault("stripe.success_url", "https://discord.com/channels/@me")
	v.SetDefault("stripe.cancel_url", "https://discord.com/channels/@me")
	v.SetDefault("paypal.mode", "sandbox")
	v.SetDefault("paypal.brand_name", "Kyver Studios")
	v.SetDefault("paypal.return_url", "https://discord.com/channels/@me")
	v.SetDefault("paypal.cancel_url", "https://discord.com/channels/@me")

	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.acquire_timeout", "5s")
	v.SetDefault("db.max_retries", 3)

	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.batch_size", 50)
	v.SetDefault("sweeper.workers", 5)
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.kafka_mode", KafkaModeRelay)
}

// Load reads .env, then the config file (explicit path, or ./config.yml when
// present), then the environment. Environment variables win: stripe.secret_key
// is read from STRIPE_SECRET_KEY.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config.yml: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Common:     sharedcfg.LoadCommonConfig(v),
		LogLevel:   v.GetString("log.level"),
		HTTPAddr:   v.GetString("http.addr"),
		HealthAddr: v.GetString("health.addr"),
		Discord: DiscordConfig{
			Token:             v.GetString("discord.token"),
			GuildID:           v.GetString("discord.guild_id"),
			AdminRoleID:       v.GetString("discord.admin_role_id"),
			InvoiceCategoryID: v.GetString("discord.invoice_category_id"),
		},
		Invoice: InvoiceConfig{
			PendingTimeout:  v.GetDuration("invoice.pending_timeout"),
			DefaultCurrency: strings.ToUpper(v.GetString("invoice.default_currency")),
			CommandTimeout:  v.GetDuration("invoice.command_timeout"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			SuccessURL:    v.GetString("stripe.success_url"),
			CancelURL:     v.GetString("stripe.cancel_url"),
		},
		PayPal: PayPalConfig{
			ClientID:  v.GetString("paypal.client_id"),
			Secret:    v.GetString("paypal.secret"),
			WebhookID: v.GetString("paypal.webhook_id"),
			Mode:      strings.ToLower(v.GetString("paypal.mode")),
			BrandName: v.GetString("paypal.brand_name"),
			ReturnURL: v.GetString("paypal.return_url"),
			CancelURL: v.GetString("paypal.cancel_url"),
		},
		Store: StoreConfig{
			MaxConns:       v.GetInt32("db.max_conns"),
			AcquireTimeout: v.GetDuration("db.acquire_timeout"),
			MaxRetries:     v.GetUint64("db.max_retries"),
		},
		Sweeper: SweeperConfig{
			Interval:  v.GetDuration("sweeper.interval"),
			BatchSize: v.GetInt("sweeper.batch_size"),
			Workers:   v.GetInt("sweeper.workers"),
		},
		NotifyWorkers: v.GetInt("notify.workers"),
		KafkaMode:     strings.ToLower(v.GetString("notify.kafka_mode")),
	}
}

// Validate fails fast on settings that would only break at the first payment.
func (c *Config) Validate() error {
	var errs []error
	if c.Invoice.PendingTimeout <= 0 {
		errs = append(errs, errors.New("invoice.pending_timeout must be positive"))
	}
	if c.Invoice.CommandTimeout <= 0 {
		errs = append(errs, errors.New("invoice.command_timeout must be positive"))
	}
	if _, err := invoice.NormalizeCurrency(c.Invoice.DefaultCurrency); err != nil {
		errs = append(errs, fmt.Errorf("invoice.default_currency: %w", err))
	}
	if c.Stripe.Enabled() && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe is enabled but stripe.webhook_secret is empty"))
	}
	if c.PayPal.Enabled() {
		if c.PayPal.Secret == "" {
			errs = append(errs, errors.New("paypal is enabled but paypal.secret is empty"))
		}
		if c.PayPal.WebhookID == "" {
			errs = append(errs, errors.New("paypal is enabled but paypal.webhook_id is empty"))
		}
		if c.PayPal.Mode != "sandbox" && c.PayPal.Mode != "live" {
			errs = append(errs, fmt.Errorf("paypal.mode must be sandbox or live, got %q", c.PayPal.Mode))
		}
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.BatchSize <= 0 || c.Sweeper.Workers <= 0 {
		errs = append(errs, errors.New("sweeper interval, batch_size and workers must be positive"))
	}
	if c.KafkaMode != KafkaModeRelay && c.KafkaMode != KafkaModeAudit {
		errs = append(errs, fmt.Errorf("notify.kafka_mode must be %s or %s, got %q", KafkaModeRelay, KafkaModeAudit, c.KafkaMode))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireBot checks what the chat bot needs on top of Validate.
func (c *Config) RequireBot() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token (DISCORD_TOKEN) is required")
	}
	if !c.Stripe.Enabled() && !c.PayPal.Enabled() {
		return errors.New("no payment provider configured: set STRIPE_SECRET_KEY or PAYPAL_CLIENT_ID")
	}
	if c.Discord.InvoiceCategoryID != "" && c.Discord.GuildID == "" {
		return errors.New("discord.invoice_category_id needs discord.guild_id to open channels in")
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
