package firebase

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

type mockSender struct {
	SendFunc func(ctx context.Context, message *messaging.Message) (string, error)
}

func (m *mockSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, message)
	}
	return "projects/p/messages/1", nil
}

func TestSendToTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		sendErr error
		wantErr bool
	}{
		{name: "success", topic: "family-1"},
		{name: "missing topic", topic: "", wantErr: true},
		{name: "send failure", topic: "family-1", sendErr: errors.New("unavailable"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent *messaging.Message
			c := newClient(&mockSender{
				SendFunc: func(ctx context.Context, message *messaging.Message) (string, error) {
					sent = message
					return "id", tt.sendErr
				},
			}, nil)

			err := c.SendToTopic(context.Background(), tt.topic, "Title", "Body", map[string]string{"k": "v"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendToTopic() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.topic == "" {
				if sent != nil {
					t.Error("message sent without a topic")
				}
				return
			}
			if sent == nil {
				t.Fatal("no message sent")
			}
			if sent.Topic != tt.topic || sent.Token != "" {
				t.Errorf("message target = topic %q token %q", sent.Topic, sent.Token)
			}
			if sent.Notification.Title != "Title" || sent.Notification.Body != "Body" {
				t.Errorf("notification = %+v", sent.Notification)
			}
			if sent.Data["k"] != "v" {
				t.Errorf("data = %v", sent.Data)
			}
		})
	}
}
