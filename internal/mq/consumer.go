package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение. Ошибка возвращает сообщение в очередь;
// повторная ошибка по уже переотправленному сообщению уводит его в DLQ.
type Handler func(ctx context.Context, msg *Message) error

// Consumer потребляет сообщения из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
}

// ConsumerConfig — параметры Consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Prefetch — сколько сообщений брать без подтверждения (по умолчанию 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет сообщения до отмены ctx, переподписываясь после
// переподключения соединения.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consumer started")
			err = c.process(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) process(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle разбирает сообщение, вызывает обработчик и подтверждает доставку.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering", "error", err)
		c.settle(d.Nack(false, false))
		return
	}
	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message")

	if err := c.handler(ctx, &msg); err != nil {
		requeue := !d.Redelivered
		logger.Error("handler failed", "error", err, "requeue", requeue)
		c.settle(d.Nack(false, requeue))
		return
	}
	c.settle(d.Ack(false))
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Warn("failed to settle delivery", "error", err)
	}
}

// DecodeStep извлекает StepPayload из сообщения execution.step.
func DecodeStep(msg *Message) (StepPayload, error) {
	var p StepPayload
	if msg.Type != MessageTypeExecutionStep {
		return p, fmt.Errorf("%w: %q", ErrUnexpectedMessage, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal step payload: %w", err)
	}
	if p.ExecutionID == "" || p.WorkflowNodeID == "" {
		return p, fmt.Errorf("%w: step payload is incomplete", ErrUnexpectedMessage)
	}
	return p, nil
}
