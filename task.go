package videoroom

import (
	"context"
	"errors"
	"time"
)

type signal struct{}

type task struct {
	done   chan signal
	cancel context.CancelFunc
}

func createPeriodicTask(fn func(ctx context.Context), interval time.Duration) *task {
	ctx, cancel := context.WithCancel(context.Background())

	t := &task{
		done:   make(chan signal),
		cancel: cancel,
	}
	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
			fn(ctx)
		}
	}()
	return t
}

func (t *task) stop(timeout time.Duration) error {
	t.cancel()

	select {
	case <-t.done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout")
	}
}
