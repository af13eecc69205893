package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

// EventSink publishes publish events to a Pub/Sub topic. Events of one run
// share an ordering key.
type EventSink struct {
	client    *pubsub.Client
	topicName string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewEventSink(client *pubsub.Client, topicName string) *EventSink {
	return &EventSink{client: client, topicName: topicName}
}

// ensureTopic creates the topic when it doesn't exist yet.
func (s *EventSink) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topic != nil {
		return s.topic, nil
	}
	topic := s.client.Topic(s.topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", s.topicName).Info("Topic doesn't exist - creating it")
		if topic, err = s.client.CreateTopic(ctx, s.topicName); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = true
	s.topic = topic
	return topic, nil
}

func (s *EventSink) Send(ctx context.Context, evt model.PublishEvent) error {
	topic, err := s.ensureTopic(ctx)
	if err != nil {
		return fmt.Errorf("pubsub topic %s: %w", s.topicName, err)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data:        payload,
		OrderingKey: evt.RunID,
		Attributes: map[string]string{
			"type":     evt.Type,
			"user_id":  evt.UserID,
			"platform": string(evt.Platform),
		},
	}
	res := topic.Publish(ctx, msg)
	serverID, err := res.Get(ctx)
	if err != nil {
		topic.ResumePublish(evt.RunID)
		return err
	}
	logger.GetLogger().WithFields(map[string]interface{}{"serverId": serverID, "runId": evt.RunID, "type": evt.Type}).Debug("Event published")
	return nil
}

// Close flushes pending messages.
func (s *EventSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topic != nil {
		s.topic.Stop()
	}
}
