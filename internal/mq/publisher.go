package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

// MessageTypeExecutionStep — выполнить вершину в рамках выполнения.
const MessageTypeExecutionStep MessageType = "execution.step"

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// StepPayload — полезная нагрузка execution.step.
type StepPayload struct {
	ExecutionID    string `json:"execution_id"`
	WorkflowNodeID string `json:"workflow_node_id"`
}

// NewMessage собирает конверт с новым ID.
func NewMessage(typ MessageType, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish отправляет сообщение как persistent.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(key), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
		}
		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", key,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishExecutionStep ставит в очередь шаг выполнения вершины.
func (p *Publisher) PublishExecutionStep(ctx context.Context, executionID, workflowNodeID string) error {
	msg, err := NewMessage(MessageTypeExecutionStep, StepPayload{
		ExecutionID:    executionID,
		WorkflowNodeID: workflowNodeID,
	})
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeSteps, RoutingKeyStep, msg)
}
