// Package pubsub publishes outbox events to Google Cloud Pub/Sub topics.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/gcp"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errNoTopics          = errors.New("pubsub: no topics configured")
	errNotInitialized    = errors.New("pubsub: client not initialized")
	// ErrUnknownTopic is returned by Publish for a topic that cannot be resolved.
	ErrUnknownTopic = errors.New("pubsub: unknown topic")
)

// Client owns one Publisher per topic. Publishers batch internally, so they
// are created once and stopped on Close.
type Client struct {
	ps      *pubsub.Client
	project string
	topics  []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and checks that every configured topic exists.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{ps: ps, project: project, topics: topics, publishers: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client ready")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.PaymentsTopic, cfg.EnrollmentTopic} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Ping looks up every configured topic concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range c.topics {
		g.Go(func() error {
			_, err := c.ps.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: c.fullName(topic)})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("%w: %s does not exist", ErrUnknownTopic, topic)
			default:
				return fmt.Errorf("pubsub: get topic %s: %w", topic, err)
			}
		})
	}
	return g.Wait()
}

// Publish sends one message and waits for the server-assigned message id.
func (c *Client) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	pub, err := c.publisher(topic)
	if err != nil {
		return "", err
	}
	return pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.ps == nil {
		return nil, errNotInitialized
	}
	name := c.fullName(topic)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[name]
	if !ok {
		pub = c.ps.Publisher(name)
		c.publishers[name] = pub
	}
	return pub, nil
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.ps.Close()
}

func (c *Client) fullName(topic string) string {
	return resourceName(c.project, "topics", topic)
}

// resourceName expands a short id into projects/<p>/<kind>/<id>; full names
// pass through untouched.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}
