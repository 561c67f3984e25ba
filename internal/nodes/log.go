package nodes

import (
	"context"
	"log/slog"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// Log пишет входное значение в лог и передаёт его дальше.
type Log struct {
	machine *actor.Machine
}

// NewLog создаёт тип Log.
func NewLog() *Log {
	return &Log{machine: standardMachine(TypeLog, false)}
}

func (k *Log) Type() string            { return TypeLog }
func (k *Log) Machine() *actor.Machine { return k.machine }

func (k *Log) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			domain.TriggerPort: triggerInput(),
			"value":            {Socket: domain.SocketAny, Label: "Value"},
			"message":          controlled(domain.SocketString, "Message", "text", "log"),
		},
		Outputs: map[string]*node.Output{
			domain.TriggerPort: triggerOutput(),
			"value":            {Socket: domain.SocketAny, Label: "Value"},
		},
	}
}

func (k *Log) Services(env Env) map[string]actor.Service {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return map[string]actor.Service{
		serviceRun: func(ctx context.Context, m actor.Memory) (map[string]any, error) {
			msg := getString(m.Inputs, "message")
			if msg == "" {
				msg = "log"
			}
			logger.InfoContext(ctx, msg, "value", m.Inputs["value"])
			return map[string]any{"value": m.Inputs["value"]}, nil
		},
	}
}
