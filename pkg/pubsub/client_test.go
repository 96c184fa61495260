package pubsub

import (
	"context"
	"testing"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		project string
		name    string
		want    string
	}{
		{project: "tipjar", name: "donation-events", want: "projects/tipjar/topics/donation-events"},
		{project: "tipjar", name: " projects/other/topics/x ", want: "projects/other/topics/x"},
		{project: "", name: "donation-events", want: ""},
		{project: "tipjar", name: "  ", want: ""},
	}
	for _, tt := range tests {
		if got := topicResourceName(tt.project, tt.name); got != tt.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tt.project, tt.name, got, tt.want)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil || c.DonationEventsPublisher() != nil {
		t.Fatal("nil client should not return a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
}

func TestUnconnectedClientIsSafe(t *testing.T) {
	c := &Client{projectID: "tipjar", topic: "donation-events"}
	if c.DonationEventsPublisher() != nil {
		t.Fatal("client without a connection should not return a publisher")
	}
	if err := c.Ping(context.Background()); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
}
