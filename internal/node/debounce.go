package node

import (
	"sync"
	"time"
)

// debouncer откладывает вызов fn на delay после последнего Schedule,
// передавая только последнее значение.
type debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending T
	has     bool
	stopped bool
}

func newDebouncer[T any](delay time.Duration, fn func(T)) *debouncer[T] {
	return &debouncer[T]{delay: delay, fn: fn}
}

// Schedule откладывает запись value, отменяя предыдущую.
func (d *debouncer[T]) Schedule(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = value
	d.has = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.has {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.has = false
	d.mu.Unlock()

	d.fn(value)
}

// Flush немедленно выполняет отложенную запись, если она есть.
func (d *debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	if !d.has {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.has = false
	d.mu.Unlock()

	d.fn(value)
}

// Stop выполняет отложенную запись и отключает debouncer.
func (d *debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}
