package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/graph"
)

// ParseDOT разбирает описание в формате Graphviz.
//
//	digraph hello {
//	    start    [type=Start]
//	    greeting [type=Text, inputs="{\"value\":\"Hello\"}"]
//	    log      [type=Log]
//	    start -> log
//	    greeting:value -> log:value
//	}
//
// Атрибуты вершины: type (или comment), label, inputs и values (JSON).
// Порт ребра задаётся синтаксисом node:port или атрибутами output/input;
// без порта используется trigger.
func ParseDOT(src string) (*Definition, error) {
	ast, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("%w: dot parse: %v", ErrInvalidDefinition, err)
	}

	c := newDOTCollector()
	if err := gographviz.Analyse(ast, c); err != nil {
		return nil, fmt.Errorf("%w: dot analyse: %v", ErrInvalidDefinition, err)
	}

	def := &Definition{
		Name:       c.name,
		WorkflowID: c.graphAttrs["workflow_id"],
		VersionID:  c.graphAttrs["version_id"],
	}

	for _, id := range c.order {
		attrs := c.nodes[id]
		n := NodeDef{
			ID:    id,
			Type:  attrs["type"],
			Label: attrs["label"],
		}
		if n.Type == "" {
			n.Type = attrs["comment"]
		}
		if n.Inputs, err = jsonAttr(attrs, "inputs"); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidDefinition, id, err)
		}
		if n.Values, err = jsonAttr(attrs, "values"); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidDefinition, id, err)
		}
		def.Nodes = append(def.Nodes, n)
	}

	for _, e := range c.edges {
		def.Edges = append(def.Edges, EdgeDef{
			From: e.from + "." + e.output,
			To:   e.to + "." + e.input,
		})
	}
	return def, nil
}

func jsonAttr(attrs map[string]string, key string) (map[string]any, error) {
	raw, ok := attrs[key]
	if !ok || raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("attribute %s: %w", key, err)
	}
	return out, nil
}

type dotEdge struct {
	from, output string
	to, input    string
}

// dotCollector реализует gographviz.Interface без проверки имён атрибутов.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string
	order      []string
	edges      []dotEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(bool) error                               { return nil }
func (c *dotCollector) SetDir(bool) error                                  { return nil }
func (c *dotCollector) SetName(name string) error                          { c.name = unquote(name); return nil }
func (c *dotCollector) String() string                                     { return c.name }
func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(attrs))
		c.order = append(c.order, id)
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, dstPort string, _ bool, attrs map[string]string) error {
	e := dotEdge{
		from:   unquote(src),
		output: port(srcPort, attrs["output"]),
		to:     unquote(dst),
		input:  port(dstPort, attrs["input"]),
	}
	c.edges = append(c.edges, e)
	return nil
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func port(p, attr string) string {
	p = unquote(strings.TrimPrefix(p, ":"))
	if i := strings.IndexByte(p, ':'); i >= 0 {
		// compass point после порта не используется
		p = p[:i]
	}
	if p == "" {
		p = unquote(attr)
	}
	if p == "" {
		p = domain.TriggerPort
	}
	return p
}

// unquote снимает кавычки DOT и экранирование внутри них.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// ExportDOT выводит граф в формате Graphviz так, что результат снова
// читается ParseDOT: тип вершины пишется в атрибут type, порты рёбер
// в атрибуты output/input, входы и данные вершины в inputs/values (JSON).
// Текущее состояние вершины выводится во внешнюю подпись (xlabel).
func ExportDOT(name string, g *graph.Graph) (string, error) {
	if name == "" {
		name = "workflow"
	}
	vertices := g.Nodes()

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotID(name))
	b.WriteString("\trankdir=LR\n")
	if len(vertices) > 0 {
		v := vertices[0].Vertex()
		if v.WorkflowID != "" {
			fmt.Fprintf(&b, "\tworkflow_id=%s\n", strconv.Quote(v.WorkflowID))
		}
		if v.WorkflowVersionID != "" {
			fmt.Fprintf(&b, "\tversion_id=%s\n", strconv.Quote(v.WorkflowVersionID))
		}
	}

	for _, n := range vertices {
		v := n.Vertex()
		label := v.Label
		if label == "" {
			label = v.ID
		}
		attrs := map[string]string{
			"type":   v.Type,
			"label":  label,
			"shape":  "box",
			"xlabel": n.State(),
		}
		mem := n.Snapshot().Memory
		for key, values := range map[string]map[string]any{"inputs": mem.Inputs, "values": mem.Values} {
			if len(values) == 0 {
				continue
			}
			data, err := json.Marshal(values)
			if err != nil {
				return "", fmt.Errorf("dot node %s: %s: %w", v.ID, key, err)
			}
			attrs[key] = string(data)
		}
		fmt.Fprintf(&b, "\t%s %s\n", dotID(v.ID), dotAttrs(attrs))
	}

	for _, e := range g.Connections() {
		attrs := map[string]string{"style": "bold"}
		if !e.IsTrigger() {
			attrs = map[string]string{
				"style":  "dashed",
				"output": e.SourceOutput,
				"input":  e.TargetInput,
			}
		}
		fmt.Fprintf(&b, "\t%s -> %s %s\n", dotID(e.Source), dotID(e.Target), dotAttrs(attrs))
	}
	b.WriteString("}\n")

	out := b.String()
	if _, err := gographviz.ParseString(out); err != nil {
		return "", fmt.Errorf("dot export: %w", err)
	}
	return out, nil
}

// dotID возвращает идентификатор DOT, при необходимости в кавычках.
func dotID(s string) string {
	switch strings.ToLower(s) {
	case "node", "edge", "graph", "digraph", "subgraph", "strict":
		return strconv.Quote(s)
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return strconv.Quote(s)
	}
	if s == "" {
		return `""`
	}
	return s
}

// dotAttrs выводит список атрибутов в порядке имён; значения всегда в кавычках.
func dotAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(attrs[k]))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
