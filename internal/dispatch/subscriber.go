package dispatch

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// SubscriberConfig identifies the bus subscription to consume.
type SubscriberConfig struct {
	ProjectID       string
	SubscriptionID  string
	CredentialsPath string // optional; ambient credentials when empty
}

// Subscriber pulls signal messages off the pub/sub subscription and feeds
// them to the dispatcher one at a time.
type Subscriber struct {
	client     *pubsub.Client
	sub        *pubsub.Subscription
	dispatcher *Dispatcher
	log        zerolog.Logger
}

// NewSubscriber connects to the subscription. Delivery is forced sequential
// (one goroutine, one outstanding message) so per-ticker arrival order is
// the bus delivery order.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig, dispatcher *Dispatcher, log zerolog.Logger) (*Subscriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	return &Subscriber{
		client:     client,
		sub:        sub,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "subscriber").Logger(),
	}, nil
}

// Run blocks receiving messages until ctx is canceled. Cancellation lets the
// in-flight handler finish; an unprocessed message is neither acked nor
// nacked and redelivers after its deadline.
func (s *Subscriber) Run(ctx context.Context) error {
	s.log.Info().Str("subscription", s.sub.ID()).Msg("Subscriber started")

	err := s.sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		switch s.dispatcher.Dispatch(msg.Data) {
		case Ack:
			msg.Ack()
		case Nack:
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("subscription receive failed: %w", err)
	}

	s.log.Info().Msg("Subscriber stopped")
	return nil
}

// Close releases the underlying client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
