package pubsub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

// emulatorHostEnv is read by the Pub/Sub library itself; when it is set the
// donation events topic is created on boot instead of required to exist.
const emulatorHostEnv = "PUBSUB_EMULATOR_HOST"

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub donation events topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and the publisher handles created from
// it. Handles are cached per topic and flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	topic     string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if topicResourceName(projectID, cfg.DonationEventsTopic) == "" {
		return nil, errNoTopic
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		topic:      cfg.DonationEventsTopic,
		publishers: map[string]*pubsub.Publisher{},
	}

	if err := c.ensureTopic(ctx, os.Getenv(emulatorHostEnv) != ""); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.topic), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) error {
	name := topicResourceName(c.projectID, c.topic)
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("checking topic %q: %w", c.topic, err)
	case !create:
		return fmt.Errorf("topic %q does not exist", c.topic)
	}
	if _, err := c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name}); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %q: %w", c.topic, err)
	}
	return nil
}

// Publisher returns the cached publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[fullName]; ok {
		return pub
	}
	pub := c.client.Publisher(fullName)
	c.publishers[fullName] = pub
	return pub
}

// DonationEventsPublisher returns the publisher for donation.paid and
// donation.cancelled events.
func (c *Client) DonationEventsPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.topic)
}

// Ping checks that the donation events topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.ensureTopic(ctx, false)
}

// Close flushes outstanding publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
