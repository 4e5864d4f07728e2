package connection

import (
	"sync"
	"time"

	"github.com/backkem/ipmi/pkg/statemachine"
)

// rendezvous hands the response of a blocking step from the receive
// goroutine to the waiting caller. Every wait gets its own unbuffered
// channel, so a response offered after its waiter gave up can never reach
// a later waiter.
type rendezvous struct {
	timeout time.Duration

	mu   sync.Mutex
	slot chan statemachine.ResponseAction
}

func newRendezvous(timeout time.Duration) *rendezvous {
	return &rendezvous{timeout: timeout}
}

// arm opens a new wait. It must be called before the request is sent.
func (r *rendezvous) arm() chan statemachine.ResponseAction {
	ch := make(chan statemachine.ResponseAction)
	r.mu.Lock()
	r.slot = ch
	r.mu.Unlock()
	return ch
}

// disarm closes the wait ch if it is still the current one.
func (r *rendezvous) disarm(ch chan statemachine.ResponseAction) {
	r.mu.Lock()
	if r.slot == ch {
		r.slot = nil
	}
	r.mu.Unlock()
}

// offer delivers a to the current waiter, waiting at most r.timeout for it
// to receive. It reports whether a was taken.
func (r *rendezvous) offer(a statemachine.ResponseAction) bool {
	r.mu.Lock()
	ch := r.slot
	r.slot = nil
	r.mu.Unlock()
	if ch == nil {
		return false
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case ch <- a:
		return true
	case <-timer.C:
		return false
	}
}
