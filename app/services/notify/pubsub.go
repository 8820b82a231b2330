package notify

import (
	"context"
	"encoding/json"
	"fmt"

	cloudpubsub "cloud.google.com/go/pubsub"

	"campus-portal/app/models"
)

// PubSub publishes alerts to a Pub/Sub topic read by the notification service.
type PubSub struct {
	client *cloudpubsub.Client
	topic  *cloudpubsub.Topic
}

// NewPubSub connects to projectID and targets topicID.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := cloudpubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &PubSub{client: client, topic: client.Topic(topicID)}, nil
}

func (p *PubSub) Send(ctx context.Context, alert *models.ProctoringAlert) error {
	b, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("pubsub: marshal alert: %w", err)
	}
	res := p.topic.Publish(ctx, &cloudpubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"alert_id":   alert.ID,
			"session_id": alert.SessionID,
			"severity":   string(alert.Severity),
			"source":     "proctoring",
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: publish alert %s: %w", alert.ID, err)
	}
	return nil
}

func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
