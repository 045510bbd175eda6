// Package eventsource feeds document-created events into the entity
// dispatcher. Pub/Sub is the pull source; the HTTP ingest handler in
// internal/api/handlers is the push source.
package eventsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/pkg/logger"
)

// Dispatcher routes a parsed event to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.EntityCreated) (routed bool, err error)
}

// Config selects the subscription to pull from.
type Config struct {
	ProjectID    string
	Subscription string
	// MaxOutstandingMessages caps unacked messages held by this process.
	MaxOutstandingMessages int
}

// PubSubSource pulls entity-created envelopes from a subscription.
type PubSubSource struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	dispatcher   Dispatcher
}

var (
	errProjectIDRequired    = errors.New("pubsub project id is required")
	errSubscriptionRequired = errors.New("pubsub subscription is required")
)

// NewPubSubSource connects to Pub/Sub and checks the subscription exists.
func NewPubSubSource(ctx context.Context, cfg Config, dispatcher Dispatcher) (*PubSubSource, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.Subscription) == "" {
		return nil, errSubscriptionRequired
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	fullName := SubscriptionResourceName(cfg.ProjectID, cfg.Subscription)
	s := &PubSubSource{
		client:       client,
		subscriber:   client.Subscriber(fullName),
		subscription: fullName,
		dispatcher:   dispatcher,
	}
	if cfg.MaxOutstandingMessages > 0 {
		s.subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("Pub/Sub event source initialized", zap.String("subscription", fullName))
	return s, nil
}

// Run receives messages until ctx is cancelled.
func (s *PubSubSource) Run(ctx context.Context) error {
	err := s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if Handle(ctx, s.dispatcher, msg.ID, msg.Data) == ActionNack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive from %s: %w", s.subscription, err)
	}
	return nil
}

// Ping checks the subscription exists.
func (s *PubSubSource) Ping(ctx context.Context) error {
	_, err := s.client.SubscriptionAdminClient.GetSubscription(ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: s.subscription},
	)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", s.subscription)
		}
		return fmt.Errorf("checking subscription %q: %w", s.subscription, err)
	}
	return nil
}

// Close releases the client.
func (s *PubSubSource) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Action tells the receiver what to do with a message.
type Action int

const (
	ActionAck Action = iota
	ActionNack
)

// Handle parses and dispatches one message. Only messages received after
// shutdown began are nacked. Once dispatch starts it runs to completion on a
// context that shutdown does not cancel, and the message is acked: a
// malformed envelope will never parse, and redelivering a handled event
// would notify recipients twice.
func Handle(ctx context.Context, d Dispatcher, messageID string, data []byte) Action {
	if ctx.Err() != nil {
		return ActionNack
	}

	event, err := domain.ParseEntityCreated(data)
	if err != nil {
		logger.Error("Discarding malformed entity event",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return ActionAck
	}
	if event.EventID == "" {
		event.EventID = messageID
	}

	routed, err := d.Dispatch(context.WithoutCancel(ctx), event)
	if err != nil {
		logger.Warn("Entity event handled with errors",
			zap.String("message_id", messageID),
			zap.String("path", event.Path),
			zap.Error(err),
		)
	}
	if !routed {
		logger.Info("Entity event ignored",
			zap.String("message_id", messageID),
			zap.String("path", event.Path),
		)
	}
	return ActionAck
}

// SubscriptionResourceName expands a subscription id to its full resource
// name. Full names are returned unchanged.
func SubscriptionResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/subscriptions/") {
		return n
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", strings.TrimSpace(projectID), n)
}
