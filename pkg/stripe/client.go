// Package stripe validates gateway credentials and configures the stripe-go SDK.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired  = errors.New("stripe: api key is required")
	errSecretRequired  = errors.New("stripe: webhook signing secret is required")
	errTimeoutRequired = errors.New("stripe: gateway timeout must be positive")
)

// Client holds validated Stripe settings.
type Client struct {
	mode          Mode
	signingSecret string
	timeout       time.Duration
}

// NewClient checks the key matches the configured mode and installs it as the
// SDK's package key, which the resource packages read on every call.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe: unknown mode %q (want %q or %q)", mode, ModeTest, ModeLive)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	case cfg.Timeout <= 0:
		return nil, errTimeoutRequired
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe: %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	stripe.Key = key

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": string(mode),
			"timeout":    cfg.Timeout.String(),
		}), "stripe client initialized")
	}
	return &Client{mode: mode, signingSecret: secret, timeout: cfg.Timeout}, nil
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

// Environment reports the Stripe mode in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// Timeout is the per-call budget for outbound gateway requests.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
