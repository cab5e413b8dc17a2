package simulator

import (
	"context"
	"sync"
)

// abortController lets a caller request early termination of a run in
// progress — ctx cancellation (e.g. an OS signal wired up by an embedding
// program) or a direct Stop call, whichever comes first. The driver's main
// loop polls StopChannel between events rather than the event loop itself
// racing a select against ctx.Done, so the core stays free of a context
// import in its hot path.
type abortController struct {
	stopCh    chan struct{}
	stopped   bool
	reason    string
	mu        sync.RWMutex
	callbacks []func()
}

func newAbortController() *abortController {
	return &abortController{stopCh: make(chan struct{})}
}

// watch closes the controller once ctx is done, with reason "context canceled".
func (c *abortController) watch(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.trigger("context canceled")
	}()
}

func (c *abortController) trigger(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.reason = reason
	close(c.stopCh)
	for _, cb := range c.callbacks {
		cb()
	}
}

// Stop requests early termination with the given reason.
func (c *abortController) Stop(reason string) { c.trigger(reason) }

// IsStopped reports whether termination has been requested.
func (c *abortController) IsStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// Reason returns the reason passed to the triggering Stop/watch call, or
// "" if not yet stopped.
func (c *abortController) Reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// StopChannel returns a channel that closes once termination is requested.
func (c *abortController) StopChannel() <-chan struct{} { return c.stopCh }

// OnStop registers a callback run when termination is requested.
func (c *abortController) OnStop(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}
