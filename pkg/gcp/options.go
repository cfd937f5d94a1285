// Package gcp holds what the Google Cloud clients (Pub/Sub, BigQuery) share.
package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/lectern-edu/lectern-payments/pkg/config"
)

// ClientOptions prefers inline JSON credentials, then a key file. With
// neither set the clients fall back to Application Default Credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
