package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/control"
)

// maxCell — предел ширины ячейки со значениями вершины.
const maxCell = 60

// Output форматирует вывод команд: таблицы или JSON (--json).
// Данные пишутся в w, сообщения в errW.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: os.Stdout, errW: os.Stderr}
}

// IsJSON сообщает, включён ли режим JSON.
func (o *Output) IsJSON() bool { return o.jsonMode }

// Print выводит rows таблицей или jsonData в режиме JSON.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	for _, line := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	if err := tw.Flush(); err != nil {
		o.Error(err.Error())
	}
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(err.Error())
	}
}

// Raw выводит текст как есть (DOT).
func (o *Output) Raw(s string) {
	fmt.Fprint(o.w, s)
}

// Success выводит сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Graph выводит вершины и рёбра версии двумя таблицами.
func (o *Output) Graph(g *GraphResponse) {
	if o.jsonMode {
		o.JSON(g)
		return
	}

	rows := make([][]string, len(g.Nodes))
	for i, n := range g.Nodes {
		rows[i] = []string{n.ID, n.Type, n.Label, n.ContextID, cell(contextInputs(g.Contexts[n.ContextID]))}
	}
	o.Table([]string{"ID", "TYPE", "LABEL", "CONTEXT", "INPUTS"}, rows)

	rows = make([][]string, len(g.Edges))
	for i, e := range g.Edges {
		rows[i] = []string{endpoint(e.Source, e.SourceOutput), endpoint(e.Target, e.TargetInput)}
	}
	fmt.Fprintln(o.w)
	o.Table([]string{"FROM", "TO"}, rows)
}

// Executions выводит список выполнений.
func (o *Output) Executions(execs []ExecutionResponse) {
	rows := make([][]string, len(execs))
	for i, e := range execs {
		rows[i] = executionRow(e)
	}
	o.Print(executionHeaders, rows, execs)
}

// Execution выводит одно выполнение.
func (o *Output) Execution(e *ExecutionResponse) {
	o.Print(executionHeaders, [][]string{executionRow(*e)}, e)
}

var executionHeaders = []string{"ID", "VERSION", "STATUS", "DURATION", "ERROR"}

func executionRow(e ExecutionResponse) []string {
	return []string{e.ID, e.WorkflowVersionID, e.Status, duration(e.DurationMs), e.Error}
}

// ExecutionNodes выводит вершины выполнения с состоянием из снимка автомата.
// Вершина без снимка ещё не запускалась и показывается как pending.
func (o *Output) ExecutionNodes(nodes []ExecutionNodeResponse) {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		state, outputs, errMsg := "pending", "", ""
		if len(n.State) > 0 && string(n.State) != "null" {
			snap, err := actor.ParseSnapshot(n.State)
			if err != nil {
				state = "invalid"
				errMsg = err.Error()
			} else {
				state = snap.Top()
				outputs = cell(snap.Memory.Outputs)
				if snap.Memory.Error != nil {
					errMsg = snap.Memory.Error.Error()
				}
			}
		}
		rows[i] = []string{n.WorkflowNodeID, state, strconv.FormatBool(n.Complete), n.TriggeredAt, outputs, errMsg}
	}
	o.Print([]string{"NODE", "STATE", "COMPLETE", "TRIGGERED", "OUTPUTS", "ERROR"}, rows, nodes)
}

// NodeTypes выводит типы вершин с их портами.
func (o *Output) NodeTypes(types []NodeTypeResponse) {
	rows := make([][]string, len(types))
	for i, t := range types {
		rows[i] = []string{t.Type, portList(t.Inputs), portList(t.Outputs)}
	}
	o.Print([]string{"TYPE", "INPUTS", "OUTPUTS"}, rows, types)
}

// Report выводит итог локального запуска в порядке выполнения вершин.
func (o *Output) Report(r *control.Report) {
	rows := make([][]string, len(r.Nodes))
	for i, n := range r.Nodes {
		rows[i] = []string{n.ID, n.Type, n.State, cell(n.Outputs), n.Error}
	}
	o.Print([]string{"NODE", "TYPE", "STATE", "OUTPUTS", "ERROR"}, rows, r)
}

func portList(ports map[string]map[string]any) string {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// endpoint выводит конец ребра; порт trigger опускается.
func endpoint(id, port string) string {
	if port == "" || port == "trigger" {
		return id
	}
	return id + "." + port
}

func contextInputs(state json.RawMessage) map[string]any {
	mem, err := actor.ParseMemory(state)
	if err != nil {
		return nil
	}
	return mem.Inputs
}

// cell сериализует значения в одну строку таблицы.
func cell(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "?"
	}
	s := string(data)
	if r := []rune(s); len(r) > maxCell {
		s = string(r[:maxCell-3]) + "..."
	}
	return s
}

func duration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return (time.Duration(ms) * time.Millisecond).String()
}
