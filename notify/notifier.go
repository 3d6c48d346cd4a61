package notify

import (
	"context"
	"encoding/json"
	"log"
)

// Message is a channel-agnostic notification request. Template selection and
// channel routing happen downstream of this service.
type Message struct {
	UserID   string         `json:"user_id"`
	Template string         `json:"template"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Notifier delivers a message best-effort. Callers treat errors as
// log-and-continue: delivery failures never roll back committed state.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the process log. Used in development
// and as the fallback when no broker is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	log.Printf("NOTIFY %s: %s", msg.Template, string(b))
	return nil
}
