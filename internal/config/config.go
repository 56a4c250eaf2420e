package config

import (
	"flag"
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	Address     string `env:"RUN_ADDRESS" envDefault:":8081"`
	DatabaseURI string `env:"DATABASE_URI"`

	InipayMerchantID string `env:"INIPAY_MERCHANT_ID" envDefault:"INIpayTest"`
	InipaySignKey    string `env:"INIPAY_SIGN_KEY"`
	InipayAPIKey     string `env:"INIPAY_API_KEY"`
	InipayRefundURL  string `env:"INIPAY_REFUND_URL" envDefault:"https://iniapi.inicis.com/v2/pg/refund"`

	NicepayMerchantID  string `env:"NICEPAY_MERCHANT_ID"`
	NicepayMerchantKey string `env:"NICEPAY_MERCHANT_KEY"`
	NicepayRefundURL   string `env:"NICEPAY_REFUND_URL"`

	GatewayTimeoutSeconds int `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"10"`

	// TrustConfirmedPayment keeps an order paid when the approve call
	// fails on transport after the notify channel already confirmed it.
	TrustConfirmedPayment bool `env:"TRUST_CONFIRMED_PAYMENT" envDefault:"true"`
}

func NewConfig() (Config, error) {
	config := Config{}

	config.parseFlags()

	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	if err := config.validateConfig(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c *Config) parseFlags() {
	flag.StringVar(&c.Address, "a", c.Address, "Service address")
	flag.StringVar(&c.DatabaseURI, "d", c.DatabaseURI, "Database URI")
	flag.StringVar(&c.InipayRefundURL, "r", c.InipayRefundURL, "Primary provider refund URL")

	flag.Parse()
}

func (c *Config) validateConfig() error {
	if _, err := url.ParseRequestURI(c.InipayRefundURL); err != nil {
		return err
	}

	if c.GatewayTimeoutSeconds <= 0 {
		return fmt.Errorf("gateway timeout must be positive, got %d", c.GatewayTimeoutSeconds)
	}

	return nil
}
