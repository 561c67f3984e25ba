package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/nodes"
)

// Definition — описание workflow в файле.
//
//	name: hello
//	nodes:
//	  - id: start
//	    type: Start
//	  - id: greeting
//	    type: Text
//	    inputs: {value: "Hello"}
//	  - id: log
//	    type: Log
//	edges:
//	  - {from: start, to: log}               # trigger → trigger
//	  - {from: greeting.value, to: log.value}
type Definition struct {
	Name       string    `yaml:"name" json:"name"`
	WorkflowID string    `yaml:"workflow_id,omitempty" json:"workflow_id,omitempty"`
	VersionID  string    `yaml:"version_id,omitempty" json:"version_id,omitempty"`
	Nodes      []NodeDef `yaml:"nodes" json:"nodes"`
	Edges      []EdgeDef `yaml:"edges,omitempty" json:"edges,omitempty"`
}

// NodeDef — вершина в описании.
type NodeDef struct {
	ID    string `yaml:"id" json:"id"`
	Type  string `yaml:"type" json:"type"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Inputs — сохранённые значения входов (контролы).
	Inputs map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Values — данные типа вершины (шаблоны, поля).
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty"`
}

// EdgeDef — ребро в описании. Конец задаётся как "node" (порт trigger)
// или "node.port".
type EdgeDef struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// ParseYAML разбирает описание в YAML.
func ParseYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &def, nil
}

// LoadFile читает описание; формат определяется по расширению
// (.yaml, .yml, .dot, .gv).
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var def *Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err = ParseYAML(data)
	case ".dot", ".gv":
		def, err = ParseDOT(string(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// Validate проверяет структуру описания: уникальные ID, известные типы,
// существующие концы рёбер. Порты и типы сокетов проверяет граф в Build.
func (d *Definition) Validate(reg *nodes.Registry) error {
	if len(d.Nodes) == 0 {
		return graph.NewValidationError("", "nodes", "workflow has no nodes", ErrInvalidDefinition)
	}

	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return graph.NewValidationError("", "id", "node has empty ID", ErrInvalidDefinition)
		}
		if ids[n.ID] {
			return graph.NewValidationError(n.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", n.ID), graph.ErrDuplicateNode)
		}
		ids[n.ID] = true

		if !reg.Has(n.Type) {
			return graph.NewValidationError(n.ID, "type",
				fmt.Sprintf("unknown node type: %q", n.Type), nodes.ErrKindNotFound)
		}
	}

	for _, e := range d.Edges {
		for _, end := range []string{e.From, e.To} {
			id, _ := splitEndpoint(end)
			if !ids[id] {
				return graph.NewValidationError(id, "edges",
					fmt.Sprintf("edge %s → %s references unknown node", e.From, e.To), graph.ErrNodeNotFound)
			}
		}
	}
	return nil
}

// Spec превращает описание в записи графа.
func (d *Definition) Spec() (Spec, error) {
	spec := Spec{
		Contexts: make(map[string]json.RawMessage, len(d.Nodes)),
	}

	for _, n := range d.Nodes {
		v := domain.Vertex{
			ID:                n.ID,
			Type:              n.Type,
			ContextID:         "ctx-" + n.ID,
			WorkflowID:        d.WorkflowID,
			WorkflowVersionID: d.VersionID,
			Label:             n.Label,
		}
		if v.Label == "" {
			v.Label = n.ID
		}

		state, err := json.Marshal(map[string]any{"inputs": n.Inputs, "values": n.Values})
		if err != nil {
			return Spec{}, fmt.Errorf("%w: node %s: %v", ErrInvalidDefinition, n.ID, err)
		}
		spec.Vertices = append(spec.Vertices, v)
		spec.Contexts[v.ContextID] = state
	}

	for _, e := range d.Edges {
		src, out := splitEndpoint(e.From)
		dst, in := splitEndpoint(e.To)
		spec.Edges = append(spec.Edges, domain.Edge{
			WorkflowID:        d.WorkflowID,
			WorkflowVersionID: d.VersionID,
			Source:            src,
			SourceOutput:      out,
			Target:            dst,
			TargetInput:       in,
		})
	}
	return spec, nil
}

// splitEndpoint разбирает "node.port"; без порта — порт trigger.
func splitEndpoint(s string) (id, port string) {
	id, port, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || port == "" {
		return id, domain.TriggerPort
	}
	return id, port
}
