package nodes

import (
	"context"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// ComposeObject собирает объект из своих входов.
//
// Входы объявляются в Values["inputSockets"] списком {"name", "type"};
// Values["name"] и Values["description"] попадают в схему объекта.
type ComposeObject struct {
	machine *actor.Machine
}

// NewComposeObject создаёт тип ComposeObject.
func NewComposeObject() *ComposeObject {
	return &ComposeObject{machine: standardMachine(TypeComposeObject, true)}
}

func (k *ComposeObject) Type() string            { return TypeComposeObject }
func (k *ComposeObject) Machine() *actor.Machine { return k.machine }

type composeField struct {
	name   string
	socket domain.Socket
}

func composeFields(values map[string]any) []composeField {
	raw, _ := values["inputSockets"].([]any)
	fields := make([]composeField, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := getString(m, "name")
		if name == "" || name == domain.TriggerPort {
			continue
		}
		fields = append(fields, composeField{name: name, socket: domain.ParseSocket(getString(m, "type"))})
	}
	return fields
}

func (k *ComposeObject) Sockets(mem actor.Memory) Sockets {
	inputs := make(map[string]*node.Input)
	for _, f := range composeFields(mem.Values) {
		inputs[f.name] = &node.Input{Socket: f.socket, Label: f.name}
	}
	return Sockets{
		Inputs: inputs,
		Outputs: map[string]*node.Output{
			"object": {Socket: domain.SocketObject, Label: "Object"},
			"schema": {Socket: domain.SocketObject, Label: "Schema"},
		},
	}
}

func (k *ComposeObject) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(_ context.Context, m actor.Memory) (map[string]any, error) {
			fields := composeFields(m.Values)

			object := make(map[string]any, len(fields))
			properties := make(map[string]any, len(fields))
			for _, f := range fields {
				object[f.name] = m.Inputs[f.name]
				properties[f.name] = map[string]any{"type": jsonSchemaType(f.socket)}
			}

			schema := map[string]any{
				"type":       "object",
				"properties": properties,
			}
			if name := getString(m.Values, "name"); name != "" {
				schema["title"] = name
			}
			if desc := getString(m.Values, "description"); desc != "" {
				schema["description"] = desc
			}

			return map[string]any{"object": object, "schema": schema}, nil
		},
	}
}

func jsonSchemaType(s domain.Socket) string {
	switch s {
	case domain.SocketString:
		return "string"
	case domain.SocketNumber:
		return "number"
	case domain.SocketBoolean:
		return "boolean"
	case domain.SocketObject:
		return "object"
	case domain.SocketArray:
		return "array"
	default:
		return "string"
	}
}
