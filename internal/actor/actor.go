package actor

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Observer получает снимки актора.
type Observer struct {
	// Next вызывается после каждого перехода.
	Next func(Snapshot)

	// Complete вызывается, когда актор достиг финального состояния или остановлен.
	Complete func()
}

// Subscription — подписка на актор.
type Subscription struct {
	actor *Actor
	id    int
}

// Unsubscribe отменяет подписку. Повторный вызов безопасен.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.actor == nil {
		return
	}
	s.actor.removeObserver(s.id)
}

// Options — параметры создания актора.
type Options struct {
	// ID — идентификатор актора (для логов).
	ID string

	// Snapshot — сохранённый снимок; если задан, актор восстанавливается из него.
	Snapshot *Snapshot

	// Input — начальная память, если снимка нет.
	Input Memory

	Logger *slog.Logger
}

// envelope — событие в очереди; done получает снимок после его обработки.
type envelope struct {
	ev   Event
	done chan Snapshot
}

type observerEntry struct {
	id  int
	obs Observer
}

// activity — сервис или таймер, привязанный к входу в состояние.
type activity struct {
	cancel func()
}

// Actor — запущенный экземпляр автомата.
//
// Переходы одного актора строго последовательны: события ставятся в очередь,
// очередь разбирает одна горутина (та, что первой вызвала Send).
// Наблюдатели вызываются вне блокировки, поэтому могут вызывать Send.
type Actor struct {
	id      string
	machine *Machine
	logger  *slog.Logger

	mu         sync.Mutex
	snap       Snapshot
	observers  []observerEntry
	nextID     int
	queue      []envelope
	started    bool
	processing bool

	// gen растёт при каждом входе в состояние; entered хранит gen активных путей.
	gen        uint64
	entered    map[string]uint64
	activities map[string][]activity

	ctx    context.Context
	cancel context.CancelFunc
}

// New создаёт актор. Актор не обрабатывает события до вызова Start.
func New(m *Machine, opts Options) (*Actor, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		id:         opts.ID,
		machine:    m,
		logger:     logger,
		entered:    make(map[string]uint64),
		activities: make(map[string][]activity),
		ctx:        ctx,
		cancel:     cancel,
	}

	if opts.Snapshot != nil {
		if _, err := m.nodes(opts.Snapshot.Value); err != nil {
			cancel()
			return nil, err
		}
		a.snap = Snapshot{
			Value:  opts.Snapshot.Value,
			Memory: opts.Snapshot.Memory.Clone().Normalize(),
			Status: opts.Snapshot.Status,
		}
		if a.snap.Status == "" || a.snap.Status == StatusStopped {
			a.snap.Status = StatusActive
		}
		for _, p := range ancestors(a.snap.Value) {
			a.gen++
			a.entered[p] = a.gen
		}
		a.markFinal()
		return a, nil
	}

	mem := opts.Input.Clone().Normalize()
	if m.Memory != nil {
		mem = m.Memory(mem).Normalize()
	}

	leaf, err := m.leaf(m.Initial)
	if err != nil {
		cancel()
		return nil, err
	}
	chain, _ := m.nodes(leaf)
	init := Event{Type: "init"}
	for i, p := range ancestors(leaf) {
		a.gen++
		a.entered[p] = a.gen
		for _, act := range chain[i].Entry {
			act(&mem, init)
		}
	}
	a.snap = Snapshot{Value: leaf, Memory: mem, Status: StatusActive}
	a.markFinal()

	return a, nil
}

// ID возвращает идентификатор актора.
func (a *Actor) ID() string {
	return a.id
}

// Start запускает актор: уведомляет наблюдателей о текущем снимке,
// запускает сервисы и таймеры активных состояний и разбирает
// события, отправленные до старта.
func (a *Actor) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	if a.snap.Status == StatusActive {
		for _, p := range ancestors(a.snap.Value) {
			a.activate(p)
		}
	}
	snap := a.snap
	observers := a.observerList()
	a.processing = true
	a.mu.Unlock()

	notify(observers, snap)
	a.drain()
}

// Stop останавливает актор и отменяет его сервисы.
func (a *Actor) Stop() {
	a.mu.Lock()
	if a.snap.Status == StatusActive {
		a.snap.Status = StatusStopped
	}
	a.stopAll()
	pending := a.queue
	a.queue = nil
	snap := a.snap
	observers := a.observerList()
	a.mu.Unlock()

	release(pending, snap)
	a.cancel()
	for _, o := range observers {
		if o.Complete != nil {
			o.Complete()
		}
	}
}

// Send отправляет событие актору. События вне контракта автомата игнорируются.
func (a *Actor) Send(ev Event) {
	a.enqueue(envelope{ev: ev})
}

// SendWait отправляет событие и ждёт, пока актор его обработает, даже если
// очередь сейчас разбирает другая горутина. Возвращает снимок сразу после
// обработки события. Неактивный актор возвращает текущий снимок.
func (a *Actor) SendWait(ctx context.Context, ev Event) (Snapshot, error) {
	done := make(chan Snapshot, 1)
	if !a.enqueue(envelope{ev: ev, done: done}) {
		return a.Snapshot(), nil
	}
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

// enqueue ставит событие в очередь и разбирает её, если никто другой
// этого не делает. false — актор уже не активен.
func (a *Actor) enqueue(env envelope) bool {
	a.mu.Lock()
	if a.snap.Status != StatusActive {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, env)
	if a.processing || !a.started {
		a.mu.Unlock()
		return true
	}
	a.processing = true
	a.mu.Unlock()

	a.drain()
	return true
}

// Snapshot возвращает копию текущего снимка.
func (a *Actor) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.snap
	s.Memory = s.Memory.Clone()
	return s
}

// Subscribe добавляет наблюдателя.
func (a *Actor) Subscribe(obs Observer) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.observers = append(a.observers, observerEntry{id: a.nextID, obs: obs})
	return &Subscription{actor: a, id: a.nextID}
}

func (a *Actor) removeObserver(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = slices.DeleteFunc(a.observers, func(e observerEntry) bool {
		return e.id == id
	})
}

func (a *Actor) observerList() []Observer {
	out := make([]Observer, len(a.observers))
	for i, e := range a.observers {
		out[i] = e.obs
	}
	return out
}

// drain разбирает очередь событий, пока она не опустеет.
func (a *Actor) drain() {
	for {
		a.mu.Lock()
		if len(a.queue) == 0 || a.snap.Status != StatusActive {
			pending := a.queue
			a.queue = nil
			a.processing = false
			snap := a.snap
			a.mu.Unlock()
			release(pending, snap)
			return
		}
		env := a.queue[0]
		a.queue = a.queue[1:]

		changed := a.transition(env.ev)
		snap := a.snap
		snap.Memory = snap.Memory.Clone()
		observers := a.observerList()
		a.mu.Unlock()

		if changed {
			notify(observers, snap)
		}
		if env.done != nil {
			env.done <- snap.clone()
		}
	}
}

// release отдаёт ожидающим отправителям снимок, на котором очередь остановилась.
func release(pending []envelope, snap Snapshot) {
	for _, env := range pending {
		if env.done != nil {
			env.done <- snap.clone()
		}
	}
}

func notify(observers []Observer, snap Snapshot) {
	for _, o := range observers {
		if o.Next != nil {
			o.Next(snap)
		}
	}
	if snap.Status != StatusActive {
		for _, o := range observers {
			if o.Complete != nil {
				o.Complete()
			}
		}
	}
}

// transition применяет событие. Вызывается под a.mu.
func (a *Actor) transition(ev Event) bool {
	cur := a.snap.Value
	paths := ancestors(cur)
	chain, err := a.machine.nodes(cur)
	if err != nil {
		a.logger.Error("actor in unknown state", "actor", a.id, "state", cur, "error", err)
		return false
	}

	var t *Transition
	switch ev.Type {
	case eventDone, eventError, eventAfter:
		idx := slices.Index(paths, ev.origin)
		if idx < 0 || a.entered[ev.origin] != ev.gen {
			return false
		}
		node := chain[idx]
		switch ev.Type {
		case eventDone:
			t = node.OnDone
		case eventError:
			t = node.OnError
		case eventAfter:
			if node.After != nil {
				t = &node.After.Transition
			}
		}
		if t == nil || (t.Guard != nil && !t.Guard(a.snap.Memory, ev)) {
			return false
		}
	default:
		for i := len(chain) - 1; i >= 0; i-- {
			tr, ok := chain[i].On[ev.Type]
			if !ok {
				continue
			}
			if tr.Guard != nil && !tr.Guard(a.snap.Memory, ev) {
				continue
			}
			t = &tr
			break
		}
		if t == nil {
			return false
		}
	}

	mem := a.snap.Memory.Clone()
	for _, act := range t.Actions {
		act(&mem, ev)
	}

	value := cur
	if t.Target != "" {
		leaf, err := a.machine.leaf(t.Target)
		if err != nil {
			a.logger.Error("transition to unknown state", "actor", a.id, "target", t.Target, "error", err)
			return false
		}
		exited, entered := diffPaths(cur, leaf, t.Target, t.Reenter)
		for _, p := range exited {
			a.stop(p)
			delete(a.entered, p)
		}
		newChain, _ := a.machine.nodes(leaf)
		depth := len(ancestors(leaf)) - len(entered)
		for i, p := range entered {
			a.gen++
			a.entered[p] = a.gen
			for _, act := range newChain[depth+i].Entry {
				act(&mem, ev)
			}
		}
		value = leaf

		a.snap = Snapshot{Value: value, Memory: mem, Status: StatusActive}
		a.markFinal()
		if a.snap.Status == StatusActive {
			for _, p := range entered {
				a.activate(p)
			}
		} else {
			a.stopAll()
		}
		return true
	}

	a.snap = Snapshot{Value: value, Memory: mem, Status: a.snap.Status}
	return true
}

// diffPaths вычисляет выходимые (изнутри наружу) и входимые (снаружи внутрь) состояния.
func diffPaths(cur, next, target string, reenter bool) (exited, entered []string) {
	curAnc := ancestors(cur)
	nextAnc := ancestors(next)

	k := 0
	for k < len(curAnc) && k < len(nextAnc) && curAnc[k] == nextAnc[k] {
		k++
	}
	if reenter {
		k = min(k, len(ancestors(target))-1)
	}

	for i := len(curAnc) - 1; i >= k; i-- {
		exited = append(exited, curAnc[i])
	}
	entered = append(entered, nextAnc[k:]...)
	return exited, entered
}

// markFinal завершает актор, если активно финальное состояние верхнего уровня.
func (a *Actor) markFinal() {
	top, ok := a.machine.States[a.snap.Top()]
	if ok && top.Final {
		a.snap.Status = StatusDone
	}
}

// activate запускает сервис и таймер состояния path. Вызывается под a.mu.
func (a *Actor) activate(path string) {
	chain, err := a.machine.nodes(path)
	if err != nil {
		return
	}
	node := chain[len(chain)-1]
	gen := a.entered[path]

	if node.Invoke != "" {
		svc := a.machine.services[node.Invoke]
		ctx, cancel := context.WithCancel(a.ctx)
		a.activities[path] = append(a.activities[path], activity{cancel: cancel})
		mem := a.snap.Memory.Clone()
		go func() {
			out, err := svc(ctx, mem)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				a.Send(Event{Type: eventError, Err: NewMachineError(err), origin: path, gen: gen})
				return
			}
			a.Send(Event{Type: eventDone, Output: out, origin: path, gen: gen})
		}()
	}

	if node.After != nil {
		timer := time.AfterFunc(node.After.Delay, func() {
			a.Send(Event{Type: eventAfter, origin: path, gen: gen})
		})
		a.activities[path] = append(a.activities[path], activity{cancel: func() { timer.Stop() }})
	}
}

func (a *Actor) stop(path string) {
	for _, act := range a.activities[path] {
		act.cancel()
	}
	delete(a.activities, path)
}

func (a *Actor) stopAll() {
	for p := range a.activities {
		a.stop(p)
	}
}
