package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledgersync/internal/shared/messages"
)

// Service sends user-facing notices about connection health.
type Service struct {
	messenger Messenger
	texts     *messages.Messages
	logger    *zap.Logger
}

// NewService creates a new notification service. A nil messenger turns
// every notice into a log line.
func NewService(messenger Messenger, texts *messages.Messages, logger *zap.Logger) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{messenger: messenger, texts: texts, logger: logger.Named("notification")}
}

// NotifyConnectionNeedsAttention tells the family that a connection must be re-linked.
func (s *Service) NotifyConnectionNeedsAttention(ctx context.Context, familyID, connectionName string) error {
	if familyID == "" {
		return ErrInvalidFamily
	}
	if connectionName == "" {
		connectionName = "your bank connection"
	}

	text := s.texts.ConnectionNeedsAttention.Render(map[string]string{"connection": connectionName})
	topic := FamilyTopic(familyID)

	if s.messenger == nil {
		s.logger.Info("Push disabled, notice not sent", zap.String("topic", topic), zap.String("title", text.Title))
		return nil
	}

	data := map[string]string{"category": CategoryConnections}
	if err := s.messenger.SendToTopic(ctx, topic, text.Title, text.Body, data); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}

	s.logger.Info("Connection notice sent", zap.String("topic", topic))
	return nil
}
