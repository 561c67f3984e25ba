package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeSteps Exchange = "craftflow.steps"
	ExchangeDLQ   Exchange = "craftflow.dlq"
)

const (
	QueueStepsReady Queue = "steps.ready"
	QueueDLQSteps   Queue = "dlq.steps"
)

const (
	RoutingKeyStep     RoutingKey = "step"
	RoutingKeyDLQSteps RoutingKey = "steps"
)

// ExchangeDecl — объявление обменника.
type ExchangeDecl struct {
	Name Exchange
	Kind string
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name Queue
	Args amqp.Table
}

// Binding — привязка очереди к обменнику.
type Binding struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — полный набор объявлений.
type Topology struct {
	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []Binding
}

// DefaultTopology возвращает топологию craftflow.
//
//	craftflow.steps (direct)
//	└── steps.ready [routing: step]   → runner, DLQ: dlq.steps
//	craftflow.dlq (direct)
//	└── dlq.steps [routing: steps]    → ручной разбор
func DefaultTopology() Topology {
	return Topology{
		Exchanges: []ExchangeDecl{
			{ExchangeSteps, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		Queues: []QueueDecl{
			{QueueStepsReady, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQSteps),
			}},
			{QueueDLQSteps, nil},
		},
		Bindings: []Binding{
			{QueueStepsReady, RoutingKeyStep, ExchangeSteps},
			{QueueDLQSteps, RoutingKeyDLQSteps, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет топологию (идемпотентно).
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := DefaultTopology()
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.Exchanges {
			if err := ch.ExchangeDeclare(string(ex.Name), ex.Kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
			}
		}
		for _, q := range t.Queues {
			if _, err := ch.QueueDeclare(string(q.Name), true, false, false, false, q.Args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.Name, err)
			}
		}
		for _, b := range t.Bindings {
			if err := ch.QueueBind(string(b.Queue), string(b.RoutingKey), string(b.Exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
			}
		}
		return nil
	})
}
