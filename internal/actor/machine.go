package actor

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

// EventType — тип события автомата.
type EventType string

// События общего контракта вершин.
const (
	// EventRun — запуск вычисления с разрешёнными входами.
	EventRun EventType = "RUN"

	// EventSetValue — изменение одного входа (например, из контрола).
	EventSetValue EventType = "SET_VALUE"

	// EventCompute — пересчёт при изменении входов вне выполнения.
	EventCompute EventType = "COMPUTE"
)

// Внутренние события актора.
const (
	eventDone  EventType = "done.invoke"
	eventError EventType = "error.invoke"
	eventAfter EventType = "after"
)

// Event — событие, отправляемое актору.
type Event struct {
	Type EventType `json:"type"`

	// Inputs — входы для RUN и COMPUTE.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Key и Value — для SET_VALUE.
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`

	// Output — результат сервиса (done.invoke).
	Output map[string]any `json:"output,omitempty"`

	// Err — ошибка сервиса (error.invoke).
	Err *MachineError `json:"error,omitempty"`

	// origin и gen привязывают внутреннее событие к входу в состояние.
	origin string
	gen    uint64
}

// Action изменяет память автомата при переходе.
type Action func(m *Memory, ev Event)

// Guard разрешает или запрещает переход.
type Guard func(m Memory, ev Event) bool

// Service — асинхронная работа, запускаемая при входе в состояние.
// Возвращённые данные приходят в OnDone как Event.Output.
type Service func(ctx context.Context, m Memory) (map[string]any, error)

// Transition — переход по событию.
type Transition struct {
	// Target — абсолютный путь целевого состояния ("running", "running.fetch").
	// Пустой Target — переход без смены состояния (только Actions).
	Target string

	Guard   Guard
	Actions []Action

	// Reenter — выйти и снова войти в целевое состояние, даже если оно активно.
	Reenter bool
}

// Delayed — переход по таймеру после входа в состояние.
type Delayed struct {
	Delay time.Duration
	Transition
}

// StateNode — узел иерархического автомата.
type StateNode struct {
	// Initial — дочернее состояние по умолчанию для составных узлов.
	Initial string
	States  map[string]*StateNode

	Entry []Action
	On    map[EventType]Transition

	// Invoke — имя сервиса из Implementations.
	Invoke  string
	OnDone  *Transition
	OnError *Transition

	After *Delayed

	// Final — достижение состояния завершает актор.
	Final bool
}

// Implementations — внешние возможности, которые требует автомат.
type Implementations struct {
	Services map[string]Service
}

// Machine — определение иерархического конечного автомата.
type Machine struct {
	ID      string
	Initial string
	States  map[string]*StateNode

	// Memory строит начальную память из входных данных актора.
	// Если nil, входные данные используются как есть.
	Memory func(input Memory) Memory

	services map[string]Service
}

// Provide возвращает копию автомата с подключёнными реализациями.
func (m *Machine) Provide(impl Implementations) *Machine {
	cp := *m
	cp.services = make(map[string]Service, len(m.services)+len(impl.Services))
	maps.Copy(cp.services, m.services)
	maps.Copy(cp.services, impl.Services)
	return &cp
}

// WithFinal возвращает копию автомата, где верхнеуровневое состояние
// state помечено как финальное. Исходное определение не меняется.
func (m *Machine) WithFinal(state string) *Machine {
	node, ok := m.States[state]
	if !ok {
		return m
	}
	cp := *m
	cp.States = maps.Clone(m.States)
	finalNode := *node
	finalNode.Final = true
	cp.States[state] = &finalNode
	return &cp
}

// Validate проверяет целостность определения.
func (m *Machine) Validate() error {
	if m == nil {
		return ErrNilMachine
	}
	if len(m.States) == 0 {
		return fmt.Errorf("%w: machine %q has no states", ErrInvalidMachine, m.ID)
	}
	if _, ok := m.States[m.Initial]; !ok {
		return fmt.Errorf("%w: machine %q: unknown initial state %q", ErrInvalidMachine, m.ID, m.Initial)
	}
	return m.validateStates("", m.States)
}

func (m *Machine) validateStates(prefix string, states map[string]*StateNode) error {
	for name, node := range states {
		path := joinPath(prefix, name)
		if node == nil {
			return fmt.Errorf("%w: state %q is nil", ErrInvalidMachine, path)
		}
		if len(node.States) > 0 {
			if _, ok := node.States[node.Initial]; !ok {
				return fmt.Errorf("%w: state %q: unknown initial child %q", ErrInvalidMachine, path, node.Initial)
			}
		}
		for ev, t := range node.On {
			if err := m.checkTarget(t.Target); err != nil {
				return fmt.Errorf("state %q on %s: %w", path, ev, err)
			}
		}
		for _, t := range []*Transition{node.OnDone, node.OnError} {
			if t != nil {
				if err := m.checkTarget(t.Target); err != nil {
					return fmt.Errorf("state %q: %w", path, err)
				}
			}
		}
		if node.After != nil {
			if err := m.checkTarget(node.After.Target); err != nil {
				return fmt.Errorf("state %q after: %w", path, err)
			}
		}
		if node.Invoke != "" {
			if _, ok := m.services[node.Invoke]; !ok {
				return fmt.Errorf("%w: state %q invokes %q", ErrMissingService, path, node.Invoke)
			}
		}
		if err := m.validateStates(path, node.States); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) checkTarget(target string) error {
	if target == "" {
		return nil
	}
	if _, err := m.nodes(target); err != nil {
		return err
	}
	return nil
}

// nodes возвращает цепочку узлов от корня до path.
func (m *Machine) nodes(path string) ([]*StateNode, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty state path", ErrUnknownState)
	}
	states := m.States
	parts := strings.Split(path, ".")
	chain := make([]*StateNode, 0, len(parts))
	for _, part := range parts {
		node, ok := states[part]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownState, path)
		}
		chain = append(chain, node)
		states = node.States
	}
	return chain, nil
}

// leaf спускается по Initial до листового состояния.
func (m *Machine) leaf(path string) (string, error) {
	chain, err := m.nodes(path)
	if err != nil {
		return "", err
	}
	node := chain[len(chain)-1]
	for len(node.States) > 0 {
		path = joinPath(path, node.Initial)
		node = node.States[node.Initial]
	}
	return path, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ancestors возвращает пути всех состояний цепочки: "a", "a.b", "a.b.c".
func ancestors(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := make([]string, len(parts))
	for i := range parts {
		out[i] = strings.Join(parts[:i+1], ".")
	}
	return out
}
