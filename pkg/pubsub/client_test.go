package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/lectern-edu/lectern-payments/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		input     string
		want      string
	}{
		{name: "short id", projectID: "lectern-dev", input: "payments", want: "projects/lectern-dev/topics/payments"},
		{name: "trims", projectID: " lectern-dev ", input: " payments ", want: "projects/lectern-dev/topics/payments"},
		{name: "full name passes through", projectID: "other", input: "projects/lectern-prod/topics/payments", want: "projects/lectern-prod/topics/payments"},
		{name: "empty input", projectID: "lectern-dev", input: "", want: ""},
		{name: "missing project", projectID: "", input: "payments", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resourceName(tt.projectID, "topics", tt.input); got != tt.want {
				t.Fatalf("resourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{PaymentsTopic: "payments", EnrollmentTopic: "  "})
	if len(names) != 1 || names[0] != "payments" {
		t.Fatalf("unexpected topics %v", names)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{PaymentsTopic: "p"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "lectern-dev"}, config.PubSubConfig{}, nil); !errors.Is(err, errNoTopics) {
		t.Fatalf("expected topics error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if _, err := c.Publish(context.Background(), "payments", []byte("{}"), nil); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
