package servicebus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

// MessageSender is the part of *azservicebus.Sender the sink needs.
type MessageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// EventSink forwards finished runs to a Service Bus queue. Job state changes
// are too chatty for the queue and are skipped.
type EventSink struct {
	mu     sync.Mutex
	sender MessageSender
}

func NewEventSink(client *azservicebus.Client, queue string) (*EventSink, error) {
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return nil, err
	}
	return NewEventSinkWithSender(sender), nil
}

func NewEventSinkWithSender(sender MessageSender) *EventSink {
	return &EventSink{sender: sender}
}

func (s *EventSink) Send(ctx context.Context, evt model.PublishEvent) error {
	if evt.Type != model.EventRunFinished {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	contentType := "application/json"
	subject := evt.Type
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		ApplicationProperties: map[string]any{
			"user_id": evt.UserID,
			"run_id":  evt.RunID,
		},
	}
	messageID := evt.RunID
	msg.MessageID = &messageID

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

func (s *EventSink) Close(ctx context.Context) {
	if err := s.sender.Close(ctx); err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while closing sender.")
	}
}
