// Package instance names the running process for logs and lock ownership.
package instance

import (
	"os"
	"strings"
)

const defaultID = "lectern-0"

var idKeys = []string{"LECTERN_INSTANCE_ID", "WORKER_ID"}

// GetID returns LECTERN_INSTANCE_ID, then WORKER_ID, then the hostname.
func GetID() string {
	for _, key := range idKeys {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
