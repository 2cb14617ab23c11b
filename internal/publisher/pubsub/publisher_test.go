package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublisher_PublishJSON(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	_, err = client.CreateTopic(ctx, "scrape-uploaded")
	require.NoError(t, err)

	pub := New(client)
	id, err := pub.Publish(ctx, "scrape-uploaded", map[string]any{"object": "professors.json", "count": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var msg *pstest.Message
	require.Eventually(t, func() bool {
		msgs := srv.Messages()
		if len(msgs) == 0 {
			return false
		}
		msg = msgs[0]
		return true
	}, time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"object":"professors.json","count":3}`, string(msg.Data))
	assert.Equal(t, "application/json", msg.Attributes["content_type"])

	require.NoError(t, pub.Close())
}

func TestPublisher_Validation(t *testing.T) {
	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.Error(t, err)

	_, err = Dial(context.Background(), "")
	require.Error(t, err)
}
