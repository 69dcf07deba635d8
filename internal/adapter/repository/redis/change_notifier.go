package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChangeNotifier implements usecase.ChangeNotifier over Redis pub/sub. The
// payload of each message is the id of the trip that changed.
type ChangeNotifier struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewChangeNotifier creates a new ChangeNotifier.
func NewChangeNotifier(client *redis.Client, logger zerolog.Logger) *ChangeNotifier {
	return &ChangeNotifier{
		client:  client,
		channel: "tripledger:changes",
		logger:  logger,
	}
}

// Publish announces that the trip changed on the remote ledger.
func (n *ChangeNotifier) Publish(ctx context.Context, tripID string) error {
	return n.client.Publish(ctx, n.channel, tripID).Err()
}

// Subscribe delivers changed trip ids until ctx is cancelled. The
// subscription is confirmed before Subscribe returns.
func (n *ChangeNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				default:
					n.logger.Warn().Str("trip_id", msg.Payload).Msg("change notification dropped, subscriber is behind")
				}
			}
		}
	}()

	return out, nil
}
