package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lectern-edu/lectern-payments/pkg/config"
)

func TestClientOptions(t *testing.T) {
	assert.Len(t, ClientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Len(t, ClientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, ClientOptions(config.GCPConfig{CredentialsJSON: "  ", ApplicationCredentials: " "}))
}
