package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// CorrelationIDAttribute is the message attribute copied into the logs of the
// refresh a notification triggers. A random ID is used when it is absent.
const CorrelationIDAttribute = "correlation_id"

// Refresher is anything that can be told its data has changed.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) error

// Refresh calls f(ctx).
func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// CoordinatorRefresher refreshes a Coordinator, discarding the new value.
func CoordinatorRefresher[T any](c *revalidate.Coordinator[T]) Refresher {
	return RefresherFunc(func(ctx context.Context) error {
		_, err := c.Refresh(ctx)
		return err
	})
}

// PubsubListenerConfig holds configuration for a PubsubListener.
type PubsubListenerConfig struct {
	ProjectID              string `yaml:"project_id"`
	SubscriptionID         string `yaml:"subscription_id"`
	CredentialsFile        string `yaml:"credentials_file"` // Optional
	MaxOutstandingMessages int    `yaml:"max_outstanding_messages"`
	NumGoroutines          int    `yaml:"num_goroutines"`
	// RefreshTimeout bounds how long a notification waits for its refresh.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

// LoadDefaultPubsubListenerConfig returns defaults for subID. Refreshes are
// serialized by the coordinator, so few messages are worth holding at once.
func LoadDefaultPubsubListenerConfig(subID string) *PubsubListenerConfig {
	return &PubsubListenerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 10,
		NumGoroutines:          1,
		RefreshTimeout:         30 * time.Second,
		StopTimeout:            30 * time.Second,
	}
}

// NewPubsubClient creates a Pub/Sub client, using the credentials file when
// one is configured.
func NewPubsubClient(ctx context.Context, cfg *PubsubListenerConfig, logger zerolog.Logger) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for Pub/Sub client.")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return client, nil
}

// PubsubListener refreshes a Refresher whenever a message arrives on a
// subscription. Message contents are ignored; every message means "the data
// has changed".
type PubsubListener struct {
	subscription   *pubsub.Subscription
	refresher      Refresher
	refreshTimeout time.Duration
	stopTimeout    time.Duration
	logger         zerolog.Logger

	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewPubsubListener creates a listener. The subscription must exist.
func NewPubsubListener(
	ctx context.Context,
	cfg *PubsubListenerConfig,
	client *pubsub.Client,
	refresher Refresher,
	logger zerolog.Logger,
) (*PubsubListener, error) {
	if cfg == nil {
		return nil, errors.New("pubsub listener config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if refresher == nil {
		return nil, errors.New("refresher cannot be nil")
	}

	sub := client.Subscription(cfg.SubscriptionID)
	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}

	return &PubsubListener{
		subscription:   sub,
		refresher:      refresher,
		refreshTimeout: cfg.RefreshTimeout,
		stopTimeout:    stopTimeout,
		logger:         logger.With().Str("component", "PubsubListener").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:       make(chan struct{}),
	}, nil
}

// Start begins receiving in the background. It returns immediately.
func (l *PubsubListener) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	l.cancelSubscription = cancel

	go func() {
		defer close(l.doneChan)
		defer l.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		l.logger.Info().Msg("Listening for change notifications.")
		err := l.subscription.Receive(receiveCtx, l.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

func (l *PubsubListener) handle(ctx context.Context, msg *pubsub.Message) {
	correlationID := msg.Attributes[CorrelationIDAttribute]
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := l.logger.With().Str("msg_id", msg.ID).Str("correlation_id", correlationID).Logger()

	if l.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.refreshTimeout)
		defer cancel()
	}

	err := l.refresh(ctx)
	var sourceErr *revalidate.SourceError
	switch {
	case err == nil:
		logger.Info().Msg("Refreshed after change notification.")
		msg.Ack()
	case errors.As(err, &sourceErr), errors.As(err, new(*revalidate.RefreshPanic)):
		// The failure is recorded by the coordinator; redelivery would
		// only hit its backoff.
		logger.Warn().Err(err).Msg("Refresh after change notification failed.")
		msg.Ack()
	default:
		logger.Warn().Err(err).Msg("Refresh did not complete, Nacking notification.")
		msg.Nack()
	}
}

// refresh converts a panicking refresh into an error so it cannot take down
// the receive loop.
func (l *PubsubListener) refresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p, ok := r.(*revalidate.RefreshPanic); ok {
				err = p
				return
			}
			panic(r)
		}
	}()
	return l.refresher.Refresh(ctx)
}

// Stop cancels the subscription and waits for the receive loop to finish,
// bounded by ctx and the configured stop timeout.
func (l *PubsubListener) Stop(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		l.logger.Info().Msg("Stopping Pub/Sub listener...")
		if l.cancelSubscription == nil {
			close(l.doneChan)
			return
		}
		l.cancelSubscription()

		timer := time.NewTimer(l.stopTimeout)
		defer timer.Stop()
		select {
		case <-l.doneChan:
			l.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
		case <-timer.C:
			err = errors.New("timeout waiting for pub/sub receive to stop")
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Done is closed once the listener has completely shut down.
func (l *PubsubListener) Done() <-chan struct{} { return l.doneChan }
