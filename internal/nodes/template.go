package nodes

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/render"
)

// PromptTemplate рендерит шаблон над своими входами.
//
// Шаблон задаётся входом "template":
//
//	Write a post about {{ .Inputs.topic }} in {{ default "English" .Inputs.lang }}.
//
// Каждая переменная .Inputs.<name> становится входным портом.
type PromptTemplate struct {
	machine *actor.Machine
}

// NewPromptTemplate создаёт тип PromptTemplate.
func NewPromptTemplate() *PromptTemplate {
	return &PromptTemplate{machine: standardMachine(TypePromptTemplate, true)}
}

func (k *PromptTemplate) Type() string            { return TypePromptTemplate }
func (k *PromptTemplate) Machine() *actor.Machine { return k.machine }

func (k *PromptTemplate) Sockets(mem actor.Memory) Sockets {
	inputs := map[string]*node.Input{
		"template": controlled(domain.SocketString, "Template", "textarea", ""),
	}
	vars, _ := render.Variables(getString(mem.Inputs, "template"))
	for _, v := range vars {
		if v == "template" {
			continue
		}
		inputs[v] = &node.Input{Socket: domain.SocketAny, Label: v}
	}
	return Sockets{
		Inputs: inputs,
		Outputs: map[string]*node.Output{
			"value": {Socket: domain.SocketString, Label: "Prompt"},
		},
	}
}

func (k *PromptTemplate) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(_ context.Context, m actor.Memory) (map[string]any, error) {
			scope := render.NewScope(m.Inputs)
			if m.Values != nil {
				scope.Values = m.Values
			}
			out, err := render.Render(getString(m.Inputs, "template"), scope)
			if err != nil {
				return nil, err
			}
			return map[string]any{"value": out}, nil
		},
	}
}

// Transform применяет шаблоны к входам.
//
// Values["mappings"] задаёт выходы:
//
//	{
//	    "mappings": {
//	        "total": "{{ len .Inputs.items }}",
//	        "first": "{{ index .Inputs.items 0 }}"
//	    }
//	}
//
// Результат рендеринга разбирается как JSON, если это возможно.
type Transform struct {
	machine *actor.Machine
}

// NewTransform создаёт тип Transform.
func NewTransform() *Transform {
	return &Transform{machine: standardMachine(TypeTransform, true)}
}

func (k *Transform) Type() string            { return TypeTransform }
func (k *Transform) Machine() *actor.Machine { return k.machine }

func (k *Transform) Sockets(mem actor.Memory) Sockets {
	mappings := getStringMap(mem.Values, "mappings")

	names := make([]string, 0, len(mappings))
	for key := range mappings {
		names = append(names, key)
	}
	sort.Strings(names)

	inputs := make(map[string]*node.Input)
	outputs := make(map[string]*node.Output, len(mappings))
	var vars []string
	for _, key := range names {
		outputs[key] = &node.Output{Socket: domain.SocketAny, Label: key}
		found, _ := render.Variables(mappings[key])
		for _, v := range found {
			if !slices.Contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	for _, v := range vars {
		inputs[v] = &node.Input{Socket: domain.SocketAny, Label: v}
	}
	return Sockets{Inputs: inputs, Outputs: outputs}
}

func (k *Transform) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(ctx context.Context, m actor.Memory) (map[string]any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			mappings := getStringMap(m.Values, "mappings")
			scope := render.NewScope(m.Inputs)
			if m.Values != nil {
				scope.Values = m.Values
			}

			outputs := make(map[string]any, len(mappings))
			for key, tmpl := range mappings {
				rendered, err := render.Render(tmpl, scope)
				if err != nil {
					return nil, fmt.Errorf("transform %s: %w", key, err)
				}
				outputs[key] = parseValue(rendered)
			}
			return outputs, nil
		},
	}
}
