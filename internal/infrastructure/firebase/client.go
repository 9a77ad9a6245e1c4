package firebase

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"ledgersync/internal/domain/notification"
)

// sender is the subset of the FCM client used here.
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client implements notification.Messenger using Firebase Cloud Messaging
type Client struct {
	msgClient sender
	logger    *zap.Logger
}

// Ensure Client implements notification.Messenger
var _ notification.Messenger = (*Client)(nil)

// NewClient initializes a Firebase app and returns an FCM client.
func NewClient(ctx context.Context, credentialsFile string, logger *zap.Logger) (*Client, error) {
	if credentialsFile == "" {
		return nil, errors.New("firebase credentials file is required")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return newClient(msgClient, logger), nil
}

func newClient(s sender, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{msgClient: s, logger: logger.Named("fcm")}
}

// SendToTopic sends a push notification to every device subscribed to topic
func (c *Client) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	if topic == "" {
		return errors.New("topic is required")
	}

	id, err := c.msgClient.Send(ctx, topicMessage(topic, title, body, data))
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			return fmt.Errorf("invalid FCM message for topic %s: %w", topic, err)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	c.logger.Debug("FCM topic message sent", zap.String("topic", topic), zap.String("message_id", id))
	return nil
}

func topicMessage(topic, title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
