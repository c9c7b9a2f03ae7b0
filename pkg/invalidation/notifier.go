package invalidation

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PubsubNotifier publishes change notifications for a PubsubListener to
// consume. Whatever writes the remote data calls Notify after each write.
type PubsubNotifier struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPubsubNotifier verifies the topic exists before returning.
func NewPubsubNotifier(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*PubsubNotifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}

	return &PubsubNotifier{
		topic:  topic,
		logger: logger.With().Str("component", "PubsubNotifier").Str("topic_id", topicID).Logger(),
	}, nil
}

// Notify publishes one notification and waits for the server to accept it.
// An empty correlationID is replaced by a random one, which is returned.
func (n *PubsubNotifier) Notify(ctx context.Context, correlationID string) (string, error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       []byte("changed"),
		Attributes: map[string]string{CorrelationIDAttribute: correlationID},
	})
	msgID, err := result.Get(ctx)
	if err != nil {
		return correlationID, fmt.Errorf("failed to publish change notification: %w", err)
	}
	n.logger.Info().Str("published_msg_id", msgID).Str("correlation_id", correlationID).Msg("Change notification sent.")
	return correlationID, nil
}

// Stop flushes pending messages, respecting the context's timeout.
func (n *PubsubNotifier) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		n.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
