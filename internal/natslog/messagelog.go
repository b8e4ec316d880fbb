package natslog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/konsul-ai/reply-engine/internal/model"
)

const (
	// StreamName is the name of the conversation history stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// MessageLog implements store.MessageLog on JetStream.
type MessageLog struct {
	client *Client
}

// NewMessageLog creates a message log over an established NATS client.
func NewMessageLog(client *Client) *MessageLog {
	return &MessageLog{client: client}
}

// EnsureStream ensures the conversation stream exists with proper
// configuration.
func (l *MessageLog) EnsureStream(ctx context.Context) error {
	js := l.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    100 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation turns for the reply engine",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// messageSubject returns the subject for one conversation turn.
func messageSubject(conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationID, role)
}

// conversationFilter returns the filter subject matching every turn of a
// conversation.
func conversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, conversationID)
}

// Append publishes one turn to the conversation's subject.
func (l *MessageLog) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := l.client.JetStream().Publish(ctx, messageSubject(msg.ConversationID, msg.Role), data)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	msg.Sequence = ack.Sequence

	return nil
}

// LastN reads the conversation's turns and returns the most recent n in
// ascending order. The stream is read front to back with an ephemeral
// consumer; only the tail window is kept.
func (l *MessageLog) LastN(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	js := l.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: conversationFilter(conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var tail []model.Message
	for {
		batch, err := consumer.Fetch(256, jetstream.FetchMaxWait(500*time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		count := 0
		for raw := range batch.Messages() {
			count++

			var msg model.Message
			if err := json.Unmarshal(raw.Data(), &msg); err != nil {
				continue
			}
			if meta, err := raw.Metadata(); err == nil {
				msg.Sequence = meta.Sequence.Stream
			}

			tail = append(tail, msg)
			if len(tail) > n {
				tail = tail[1:]
			}
		}
		if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}
		if count == 0 {
			break
		}
	}

	return tail, nil
}
