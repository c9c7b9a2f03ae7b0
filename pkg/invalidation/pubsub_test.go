package invalidation_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-remoteconfig/pkg/invalidation"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	projectID = "test-project"
	topicID   = "config-changes"
	subID     = "config-changes-sub"
)

// setupListenerTest creates an in-memory Pub/Sub server with one topic and
// one subscription.
func setupListenerTest(t *testing.T) (*pubsub.Client, *pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic, AckDeadline: 10 * time.Second})
	require.NoError(t, err)

	return client, topic, srv
}

func startListener(t *testing.T, client *pubsub.Client, refresher invalidation.Refresher) *invalidation.PubsubListener {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener, err := invalidation.NewPubsubListener(ctx, invalidation.LoadDefaultPubsubListenerConfig(subID), client, refresher, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { _ = listener.Stop(context.Background()) })
	return listener
}

func publish(t *testing.T, topic *pubsub.Topic, attrs map[string]string) string {
	t.Helper()
	id, err := topic.Publish(context.Background(), &pubsub.Message{Data: []byte("changed"), Attributes: attrs}).Get(context.Background())
	require.NoError(t, err)
	return id
}

func acksFor(srv *pstest.Server, id string) int {
	if m := srv.Message(id); m != nil {
		return m.Acks
	}
	return 0
}

func TestPubsubListener_RefreshesCoordinator(t *testing.T) {
	// Arrange
	client, topic, srv := setupListenerTest(t)
	var version atomic.Int32
	src := revalidate.SourceFunc[int32](func(_ context.Context) (*revalidate.FetchResult[int32], error) {
		return &revalidate.FetchResult[int32]{Data: version.Add(1), Freshness: revalidate.MaxAge(time.Hour)}, nil
	})
	coord, err := revalidate.New[int32](context.Background(), revalidate.LoadDefaultConfig("flags"), src, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, int32(1), coord.Current().Value())
	startListener(t, client, invalidation.CoordinatorRefresher(coord))

	// Act
	id := publish(t, topic, map[string]string{invalidation.CorrelationIDAttribute: "deploy-42"})

	// Assert
	require.Eventually(t, func() bool {
		return coord.Current().Value() == 2
	}, 5*time.Second, 20*time.Millisecond, "Coordinator should hold the refreshed value")
	assert.Eventually(t, func() bool { return acksFor(srv, id) > 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestPubsubListener_Acknowledgement(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantAck bool
	}{
		{
			name:    "source error is acknowledged",
			err:     &revalidate.SourceError{Name: "flags", Err: errors.New("upstream down")},
			wantAck: true,
		},
		{
			name:    "interrupted refresh is redelivered",
			err:     context.DeadlineExceeded,
			wantAck: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			client, topic, srv := setupListenerTest(t)
			var calls atomic.Int32
			startListener(t, client, invalidation.RefresherFunc(func(_ context.Context) error {
				calls.Add(1)
				return tc.err
			}))

			// Act
			id := publish(t, topic, nil)

			// Assert
			require.Eventually(t, func() bool { return calls.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
			if tc.wantAck {
				assert.Eventually(t, func() bool { return acksFor(srv, id) > 0 }, 5*time.Second, 20*time.Millisecond)
				return
			}
			// A Nack makes the message immediately available again.
			assert.Eventually(t, func() bool { return calls.Load() > 1 }, 5*time.Second, 20*time.Millisecond)
			assert.Equal(t, 0, acksFor(srv, id))
		})
	}
}

func TestPubsubListener_SurvivesPanickingRefresh(t *testing.T) {
	// Arrange
	client, topic, srv := setupListenerTest(t)
	startListener(t, client, invalidation.RefresherFunc(func(_ context.Context) error {
		panic(&revalidate.RefreshPanic{Name: "flags", Value: "boom"})
	}))

	// Act
	id := publish(t, topic, nil)

	// Assert
	assert.Eventually(t, func() bool { return acksFor(srv, id) > 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestPubsubListener_Stop(t *testing.T) {
	// Arrange
	client, _, _ := setupListenerTest(t)
	listener := startListener(t, client, invalidation.RefresherFunc(func(context.Context) error { return nil }))

	// Act
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := listener.Stop(stopCtx)

	// Assert
	require.NoError(t, err)
	select {
	case <-listener.Done():
	case <-time.After(time.Second):
		t.Fatal("listener.Done() channel was not closed after stop")
	}
	assert.NoError(t, listener.Stop(stopCtx), "Stop is idempotent")
}

func TestNewPubsubListener_MissingSubscription(t *testing.T) {
	client, _, _ := setupListenerTest(t)

	_, err := invalidation.NewPubsubListener(context.Background(), invalidation.LoadDefaultPubsubListenerConfig("absent"), client,
		invalidation.RefresherFunc(func(context.Context) error { return nil }), zerolog.Nop())

	assert.Error(t, err)
}

func TestPubsubNotifier_TriggersListener(t *testing.T) {
	// Arrange
	client, _, _ := setupListenerTest(t)
	var calls atomic.Int32
	startListener(t, client, invalidation.RefresherFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	notifier, err := invalidation.NewPubsubNotifier(context.Background(), client, topicID, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = notifier.Stop(context.Background()) })

	// Act
	correlationID, err := notifier.Notify(context.Background(), "")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, correlationID)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestNewPubsubNotifier_MissingTopic(t *testing.T) {
	client, _, _ := setupListenerTest(t)

	_, err := invalidation.NewPubsubNotifier(context.Background(), client, "absent", zerolog.Nop())

	assert.Error(t, err)
}
