// Package shutdown provides the process-wide, idempotent stop signal.
package shutdown

import (
	"sync"

	"go.uber.org/zap"
)

// Coordinator owns the one-shot stop signal. The first Shutdown call closes
// Done and runs every registered hook (close the socket, inject the queue
// sentinel); later calls are no-ops.
type Coordinator struct {
	once  sync.Once
	done  chan struct{}
	log   *zap.Logger
	mu    sync.Mutex
	hooks []func()
}

func New(log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		done: make(chan struct{}),
		log:  log,
	}
}

// Done is closed once shutdown begins.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Stopped reports whether shutdown has begun.
func (c *Coordinator) Stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// OnStop registers a hook run at shutdown. If shutdown already happened the
// hook runs immediately.
func (c *Coordinator) OnStop(fn func()) {
	c.mu.Lock()
	stopped := c.Stopped()
	if !stopped {
		c.hooks = append(c.hooks, fn)
	}
	c.mu.Unlock()
	if stopped {
		fn()
	}
}

// Shutdown triggers the stop signal. Idempotent.
func (c *Coordinator) Shutdown(reason string) {
	c.once.Do(func() {
		c.log.Info("shutdown_start", zap.String("reason", reason))
		close(c.done)

		c.mu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		c.log.Info("shutdown_signal_sent")
	})
}
