package nodes

import (
	"context"
	"time"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// Delay приостанавливает управляющий поток.
//
// Вход duration — строка длительности ("1.5s", "200ms") или число секунд.
type Delay struct {
	machine *actor.Machine
}

// NewDelay создаёт тип Delay.
func NewDelay() *Delay {
	return &Delay{machine: standardMachine(TypeDelay, false)}
}

func (k *Delay) Type() string            { return TypeDelay }
func (k *Delay) Machine() *actor.Machine { return k.machine }

func (k *Delay) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			domain.TriggerPort: triggerInput(),
			"duration":         controlled(domain.SocketString, "Duration", "text", "1s"),
		},
		Outputs: map[string]*node.Output{
			domain.TriggerPort: triggerOutput(),
			"delayed_ms":       {Socket: domain.SocketNumber, Label: "Delayed, ms"},
		},
	}
}

func (k *Delay) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(ctx context.Context, m actor.Memory) (map[string]any, error) {
			duration, err := getDuration(m.Inputs, "duration")
			if err != nil {
				return nil, err
			}

			timer := time.NewTimer(duration)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
				return map[string]any{"delayed_ms": duration.Milliseconds()}, nil
			}
		},
	}
}
