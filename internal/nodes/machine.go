package nodes

import (
	"maps"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/node"
)

// standardMachine строит автомат idle → running → complete | error.
//
// Сервис "run" получает память со входами RUN и возвращает выходы.
// pure — COMPUTE и SET_VALUE вне idle перезапускают вычисление;
// иначе (побочные эффекты) они только запоминают входы.
func standardMachine(id string, pure bool) *actor.Machine {
	run := actor.Transition{Target: node.StateRunning, Actions: []actor.Action{assignInputs}}

	compute := actor.Transition{Actions: []actor.Action{assignInputs}}
	setValue := actor.Transition{Actions: []actor.Action{assignValue}}
	if pure {
		compute.Target = node.StateRunning
		setValue.Target = node.StateRunning
	}

	settled := func() map[actor.EventType]actor.Transition {
		return map[actor.EventType]actor.Transition{
			actor.EventRun:      run,
			actor.EventCompute:  compute,
			actor.EventSetValue: setValue,
		}
	}

	running := map[actor.EventType]actor.Transition{
		actor.EventSetValue: {Actions: []actor.Action{assignValue}},
		actor.EventCompute:  {Actions: []actor.Action{assignInputs}},
	}
	if pure {
		running[actor.EventCompute] = actor.Transition{
			Target:  node.StateRunning,
			Actions: []actor.Action{assignInputs},
			Reenter: true,
		}
	}

	return &actor.Machine{
		ID:      id,
		Initial: node.StateIdle,
		States: map[string]*actor.StateNode{
			node.StateIdle: {
				On: map[actor.EventType]actor.Transition{
					actor.EventRun:      run,
					actor.EventCompute:  compute,
					actor.EventSetValue: {Actions: []actor.Action{assignValue}},
				},
			},
			node.StateRunning: {
				Invoke:  serviceRun,
				OnDone:  &actor.Transition{Target: node.StateComplete, Actions: []actor.Action{assignOutputs}},
				OnError: &actor.Transition{Target: node.StateError, Actions: []actor.Action{assignError}},
				On:      running,
			},
			node.StateComplete: {On: settled()},
			node.StateError:    {On: settled()},
		},
	}
}

// assignInputs заменяет входы входами события.
func assignInputs(m *actor.Memory, ev actor.Event) {
	if ev.Inputs == nil {
		return
	}
	m.Inputs = maps.Clone(ev.Inputs)
}

// assignValue меняет один вход.
func assignValue(m *actor.Memory, ev actor.Event) {
	if ev.Key == "" {
		return
	}
	if m.Inputs == nil {
		m.Inputs = make(map[string]any)
	}
	m.Inputs[ev.Key] = ev.Value
}

func assignOutputs(m *actor.Memory, ev actor.Event) {
	m.Outputs = maps.Clone(ev.Output)
	if m.Outputs == nil {
		m.Outputs = make(map[string]any)
	}
	m.Error = nil
}

func assignError(m *actor.Memory, ev actor.Event) {
	m.Error = ev.Err
}

// valueMachine — автомат вершины-значения (Text, Number, InputNode).
//
// Начальное состояние complete, выходы вычисляются при входе в него.
// SET_VALUE переводит в typing; через 10ms автомат возвращается в complete.
func valueMachine(id string, derive actor.Action) *actor.Machine {
	settle := actor.Transition{
		Target:  node.StateComplete,
		Actions: []actor.Action{assignInputs},
		Reenter: true,
	}
	typing := actor.Transition{
		Target:  stateTyping,
		Actions: []actor.Action{assignValue},
		Reenter: true,
	}

	return &actor.Machine{
		ID:      id,
		Initial: node.StateComplete,
		States: map[string]*actor.StateNode{
			node.StateComplete: {
				Entry: []actor.Action{derive},
				On: map[actor.EventType]actor.Transition{
					actor.EventSetValue: typing,
					actor.EventRun:      settle,
					actor.EventCompute:  settle,
				},
			},
			stateTyping: {
				On: map[actor.EventType]actor.Transition{
					actor.EventSetValue: typing,
				},
				After: &actor.Delayed{
					Delay:      typingDelay,
					Transition: actor.Transition{Target: node.StateComplete},
				},
			},
		},
	}
}
