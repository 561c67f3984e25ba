package node

import (
	"errors"
	"fmt"

	"github.com/shaiso/craftflow/internal/domain"
)

// SetInputs приводит входные порты к набору sockets.
//
// Новые порты добавляются с одиночным подключением, у существующих
// обновляется тип. Порты, которых нет в sockets, удаляются вместе
// со своими рёбрами; порты Trigger не удаляются.
func (n *Node) SetInputs(sockets map[string]domain.Socket) error {
	n.mu.Lock()
	var removed []string
	for key, socket := range sockets {
		if in, ok := n.inputs[key]; ok {
			in.Socket = socket
			continue
		}
		n.inputs[key] = &Input{Socket: socket, Label: key}
	}
	for key, in := range n.inputs {
		if in.Socket == domain.SocketTrigger {
			continue
		}
		if _, ok := sockets[key]; !ok {
			delete(n.inputs, key)
			removed = append(removed, key)
		}
	}
	n.mu.Unlock()

	return n.removeConnections(removed, func(e domain.Edge, key string) bool {
		return e.Target == n.id && e.TargetInput == key
	})
}

// SetOutputs приводит выходные порты к набору sockets.
// Правила те же, что у SetInputs.
func (n *Node) SetOutputs(sockets map[string]domain.Socket) error {
	n.mu.Lock()
	var removed []string
	for key, socket := range sockets {
		if out, ok := n.outputs[key]; ok {
			out.Socket = socket
			continue
		}
		n.outputs[key] = &Output{Socket: socket, Label: key}
	}
	for key, out := range n.outputs {
		if out.Socket == domain.SocketTrigger {
			continue
		}
		if _, ok := sockets[key]; !ok {
			delete(n.outputs, key)
			removed = append(removed, key)
		}
	}
	n.mu.Unlock()

	return n.removeConnections(removed, func(e domain.Edge, key string) bool {
		return e.Source == n.id && e.SourceOutput == key
	})
}

func (n *Node) removeConnections(ports []string, match func(domain.Edge, string) bool) error {
	if len(ports) == 0 {
		return nil
	}
	var errs []error
	for _, edge := range n.deps.Graph.Connections() {
		for _, key := range ports {
			if !match(edge, key) {
				continue
			}
			if err := n.deps.Graph.RemoveConnection(edge.ID); err != nil {
				errs = append(errs, fmt.Errorf("remove connection %s: %w", edge.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// SetLabel меняет подпись вершины.
func (n *Node) SetLabel(label string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vertex.Label = label
}

// SetSize меняет размер вершины.
func (n *Node) SetSize(width, height float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vertex.Width = width
	n.vertex.Height = height
}

// Size возвращает размер вершины.
func (n *Node) Size() (width, height float64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.vertex.Width, n.vertex.Height
}
