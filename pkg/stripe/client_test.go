package stripe

import (
	"context"
	"testing"
	"time"

	"github.com/lectern-edu/lectern-payments/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	base := config.GatewayConfig{
		APIKey:  "sk_test_123",
		Secret:  "whsec_abc",
		Env:     "test",
		Timeout: 5 * time.Second,
	}

	client, err := NewClient(context.Background(), base, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" || client.SigningSecret() != "whsec_abc" || client.Timeout() != 5*time.Second {
		t.Fatalf("unexpected client state %+v", client)
	}

	tests := []struct {
		name   string
		mutate func(*config.GatewayConfig)
	}{
		{name: "missing key", mutate: func(c *config.GatewayConfig) { c.APIKey = "" }},
		{name: "missing secret", mutate: func(c *config.GatewayConfig) { c.Secret = " " }},
		{name: "live key in test", mutate: func(c *config.GatewayConfig) { c.APIKey = "sk_live_123" }},
		{name: "test key in live", mutate: func(c *config.GatewayConfig) { c.Env = "live" }},
		{name: "unknown env", mutate: func(c *config.GatewayConfig) { c.Env = "staging" }},
		{name: "zero timeout", mutate: func(c *config.GatewayConfig) { c.Timeout = 0 }},
		{name: "publishable key", mutate: func(c *config.GatewayConfig) { c.APIKey = "pk_test_123" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewClient(context.Background(), cfg, nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestModeDefaultsToTestAndAcceptsRestrictedKeys(t *testing.T) {
	client, err := NewClient(context.Background(), config.GatewayConfig{
		APIKey:  "rk_live_abc",
		Secret:  "whsec_abc",
		Env:     " LIVE ",
		Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != string(ModeLive) {
		t.Fatalf("expected live mode, got %q", client.Environment())
	}

	client, err = NewClient(context.Background(), config.GatewayConfig{
		APIKey:  "sk_test_abc",
		Secret:  "whsec_abc",
		Timeout: time.Second,
	}, nil)
	if err != nil || client.Environment() != string(ModeTest) {
		t.Fatalf("blank env should mean test, got %q err=%v", client.Environment(), err)
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.Environment() != "" || c.SigningSecret() != "" || c.Timeout() != 0 {
		t.Fatalf("nil client should return zero values")
	}
}
