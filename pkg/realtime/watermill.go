package realtime

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/blockflow/pkg/events"
)

// WatermillSink publishes events on the realtime topic of a message broker.
type WatermillSink struct {
	publisher message.Publisher
}

func NewWatermillSink(publisher message.Publisher) *WatermillSink {
	return &WatermillSink{publisher: publisher}
}

func (s *WatermillSink) Send(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.Key())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))

	return s.publisher.Publish(events.Topic, msg)
}

// Close releases the underlying publisher.
func (s *WatermillSink) Close() error {
	return s.publisher.Close()
}
