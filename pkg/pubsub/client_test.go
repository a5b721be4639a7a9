package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name, project, kind, in, want string
	}{
		{"bare topic", "proj", "topics", "sm-order-events", "projects/proj/topics/sm-order-events"},
		{"qualified topic", "proj", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"trimmed", "proj", "subscriptions", "  orders-sub ", "projects/proj/subscriptions/orders-sub"},
		{"empty name", "proj", "topics", "", ""},
		{"no project", "", "topics", "x", ""},
		{"kind mismatch is expanded", "proj", "subscriptions", "projects/other/topics/x", "projects/proj/subscriptions/projects/other/topics/x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resourceName(tc.project, tc.kind, tc.in))
		})
	}
}

func TestClientOptionsPicksCredentialSource(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}), 1)
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("x"))
	assert.ErrorIs(t, c.CheckTopics(context.Background(), "orders"), errNotInitialized)
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestLookupErr(t *testing.T) {
	assert.NoError(t, lookupErr("topic", "orders", nil))
	assert.EqualError(t, lookupErr("topic", "orders", status.Error(codes.NotFound, "gone")), `topic "orders" does not exist`)
	assert.ErrorContains(t, lookupErr("subscription", "orders-sub", status.Error(codes.PermissionDenied, "nope")), `checking subscription "orders-sub"`)
}
