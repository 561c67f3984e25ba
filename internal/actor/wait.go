package actor

import (
	"context"
	"fmt"
	"time"
)

// WaitFor блокируется, пока снимок актора не удовлетворит pred.
//
// timeout <= 0 — ждать без ограничения (до отмены ctx).
// Если актор завершился, не достигнув состояния, возвращает ErrActorDone.
func WaitFor(ctx context.Context, a *Actor, pred func(Snapshot) bool, timeout time.Duration) (Snapshot, error) {
	matched := make(chan Snapshot, 1)
	finished := make(chan struct{}, 1)

	sub := a.Subscribe(Observer{
		Next: func(s Snapshot) {
			if pred(s) {
				select {
				case matched <- s:
				default:
				}
			}
		},
		Complete: func() {
			select {
			case finished <- struct{}{}:
			default:
			}
		},
	})
	defer sub.Unsubscribe()

	if s := a.Snapshot(); pred(s) {
		return s, nil
	} else if s.Status != StatusActive {
		return s, fmt.Errorf("%w: actor %s is %s in %q", ErrActorDone, a.id, s.Status, s.Value)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case s := <-matched:
		return s, nil
	case <-finished:
		// финальный снимок мог удовлетворить предикат
		select {
		case s := <-matched:
			return s, nil
		default:
		}
		s := a.Snapshot()
		if pred(s) {
			return s, nil
		}
		return s, fmt.Errorf("%w: actor %s is %s in %q", ErrActorDone, a.id, s.Status, s.Value)
	case <-timeoutCh:
		return a.Snapshot(), fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

// InState возвращает предикат для WaitFor, проверяющий любое из состояний.
func InState(states ...string) func(Snapshot) bool {
	return func(s Snapshot) bool {
		for _, st := range states {
			if s.Matches(st) {
				return true
			}
		}
		return false
	}
}
