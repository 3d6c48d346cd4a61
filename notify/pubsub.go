package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

// PubSubNotifier publishes notification requests to a Pub/Sub topic consumed
// by the delivery workers (email/SMS/push fan-out happens there).
type PubSubNotifier struct {
	topic *pubsub.Topic
}

// NewPubSubNotifier builds a notifier around an existing client. The client
// is constructed by the caller and injected; this package never creates one
// on first use.
func NewPubSubNotifier(client *pubsub.Client, topicID string) *PubSubNotifier {
	return &PubSubNotifier{topic: client.Topic(topicID)}
}

func (n *PubSubNotifier) Send(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}

	res := n.topic.Publish(ctx, &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"notification_id": uuid.NewString(),
			"template":        msg.Template,
			"user_id":         msg.UserID,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}
