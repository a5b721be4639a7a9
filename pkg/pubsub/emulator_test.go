package pubsub

import (
	"context"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
)

const testProject = "sm-test"

// fakeClient points a Client at an in-process Pub/Sub server with the given
// topics already created.
func fakeClient(t *testing.T, cfg config.PubSubConfig, topics ...string) *Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	ps, err := pubsub.NewClient(ctx, testProject, option.WithGRPCConn(conn))
	require.NoError(t, err)

	for _, topic := range topics {
		_, err := ps.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: resourceName(testProject, "topics", topic)})
		require.NoError(t, err)
	}

	c := &Client{client: ps, projectID: testProject, cfg: cfg}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCheckTopicsAgainstServer(t *testing.T) {
	c := fakeClient(t, config.PubSubConfig{OrdersTopic: "orders"}, "orders")
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.CheckTopics(ctx, "orders", "projects/"+testProject+"/topics/orders"))

	err := c.CheckTopics(ctx, "orders", "refunds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `topic "refunds" does not exist`)
}

func TestPingChecksConfiguredSubscription(t *testing.T) {
	c := fakeClient(t, config.PubSubConfig{OrdersTopic: "orders", OrdersSubscription: "orders-sub"}, "orders")

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `subscription "orders-sub" does not exist`)
}

func TestPublisherIsSharedPerTopic(t *testing.T) {
	c := fakeClient(t, config.PubSubConfig{OrdersTopic: "orders"}, "orders")

	first := c.Publisher("orders")
	require.NotNil(t, first)
	assert.Same(t, first, c.Publisher("projects/"+testProject+"/topics/orders"))
	assert.NotSame(t, first, c.Publisher("other"))

	ctx := context.Background()
	id, err := first.Publish(ctx, &pubsub.Message{Data: []byte(`{}`)}).Get(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
