package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicChanges carries one message per successful write to any collection.
const TopicChanges = "backoffice.changes"

// Op identifies the kind of write behind a change event.
type Op string

const (
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpBulkCreate Op = "bulk_create"
	OpBulkDelete Op = "bulk_delete"
)

// Change describes one write. RecordID is empty for bulk operations, which
// consumers must treat as "anything in this table may have changed".
type Change struct {
	Table    string    `json:"table"`
	Op       Op        `json:"op"`
	RecordID string    `json:"record_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher is the narrow interface the store needs; Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Bus is the in-process change-event bus. Writers publish after a successful
// write; the cache invalidation hook and the realtime hub subscribe.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// NewBus builds a gochannel-backed bus. Messages are not persistent; the bus
// exists to fan out within one process.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger.With("component", "events")),
	)
	return &Bus{pubsub: pubsub, logger: logger.With("component", "events")}
}

// Publish sends one change event.
func (b *Bus) Publish(ctx context.Context, change Change) error {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(TopicChanges, message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe returns a channel of decoded change events. The channel closes
// when ctx is cancelled or the bus is closed. Undecodable messages are
// acked and dropped with a log line.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Change, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicChanges)
	if err != nil {
		return nil, err
	}

	changes := make(chan Change)
	go func() {
		defer close(changes)
		for msg := range messages {
			var change Change
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				b.logger.Warn("dropping undecodable change event", "error", err)
				msg.Ack()
				continue
			}
			select {
			case changes <- change:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return changes, nil
}

// Close shuts the bus down; pending subscribers see their channels close.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
