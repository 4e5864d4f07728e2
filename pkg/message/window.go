package message

import "sync"

// Inbound sequence number window (IPMI v2.0 Section 6.12.13). A session
// sequence number is accepted when it lies within
// [last-WindowBelow, last+WindowAbove] of the highest number seen so far.
const (
	WindowBelow = 16
	WindowAbove = 15
)

// ReceptionWindow tracks the highest inbound session sequence number and
// rejects numbers outside the sliding window around it.
// It is safe for concurrent use.
type ReceptionWindow struct {
	mu   sync.Mutex
	last uint32
}

// NewReceptionWindow creates a window whose highest seen number is 0. The
// window is not anchored on the first inbound number: a BMC that opens a
// session above WindowAbove has every packet rejected.
func NewReceptionWindow() *ReceptionWindow {
	return &ReceptionWindow{}
}

// Accept checks seq against the window and, when accepted, advances the
// highest seen number. Sequence number 0 is used outside a session and is
// always accepted without moving the window.
func (w *ReceptionWindow) Accept(seq uint32) bool {
	if seq == 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	last := int64(w.last)
	if int64(seq) < last-WindowBelow || int64(seq) > last+WindowAbove {
		return false
	}
	if seq > w.last {
		w.last = seq
	}
	return true
}

// Last returns the highest accepted sequence number.
func (w *ReceptionWindow) Last() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Reset sets the highest seen number, for example when a new session starts.
func (w *ReceptionWindow) Reset(last uint32) {
	w.mu.Lock()
	w.last = last
	w.mu.Unlock()
}
