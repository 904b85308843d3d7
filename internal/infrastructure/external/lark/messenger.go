package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"go.uber.org/zap"
)

const (
	receiveIDTypeChat = "chat_id"
	msgTypePost       = "post"
)

// Messenger implements port.Notifier by posting rich-text messages to a Lark group chat
type Messenger struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

var _ port.Notifier = (*Messenger)(nil)

// NewMessenger creates a notifier that posts to chatID
func NewMessenger(sender MessageSender, chatID string, logger *zap.Logger) *Messenger {
	return &Messenger{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// postContent is the Lark "post" message body for one locale
type postContent struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// Notify posts the notification to the configured chat
func (m *Messenger) Notify(ctx context.Context, n port.Notification) error {
	if m.chatID == "" {
		return errors.New("lark chat id not configured")
	}
	if n.Title == "" {
		return errors.New("notification title cannot be empty")
	}

	content, err := buildPost(n)
	if err != nil {
		return err
	}

	messageID, err := m.sender.SendMessage(ctx, receiveIDTypeChat, m.chatID, msgTypePost, content)
	if err != nil {
		return fmt.Errorf("failed to notify lark: %w", err)
	}

	m.logger.Info("Notification sent to Lark",
		zap.String("instance_id", n.InstanceID),
		zap.String("message_id", messageID))
	return nil
}

func buildPost(n port.Notification) (string, error) {
	lines := [][]postElement{
		{{Tag: "text", Text: n.Body}},
		{{Tag: "text", Text: fmt.Sprintf("%s %s", n.Kind, n.InstanceID)}},
	}
	data, err := json.Marshal(map[string]postContent{
		"en_us": {Title: n.Title, Content: lines},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(data), nil
}
