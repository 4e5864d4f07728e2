// Package queue tracks the IPMI commands in flight within one session. Every
// command gets a session sequence number whose low six bits (the tag) are
// echoed by the BMC, so responses can be routed back to their command.
package queue

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
)

const (
	// MaxPending is the number of unanswered commands a session may have.
	MaxPending = 8

	// SequenceModulus bounds session sequence numbers to 1..SequenceModulus-1.
	SequenceModulus = 1 << 30

	// TagModulus is the number of distinct tags.
	TagModulus = 64

	// DefaultTimeout is the default age after which a command times out.
	DefaultTimeout = 5 * time.Second

	// DefaultSweepInterval is the default period of the background sweep.
	DefaultSweepInterval = 500 * time.Millisecond
)

// TagOf returns the tag of a session sequence number.
func TagOf(seq uint32) uint8 {
	return uint8(seq % TagModulus)
}

// TimeoutHandler is called, outside the queue lock, for every command that
// timed out.
type TimeoutHandler func(tag uint8, cmd commands.Coder)

// Config configures a Queue.
type Config struct {
	// Timeout is the age after which a pending command times out.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// SweepInterval is the period of the background sweep started by Start.
	// Defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	// OnTimeout is called for each timed-out command. Optional.
	OnTimeout TimeoutHandler

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// entry is one pending command. A nil command marks an entry that was
// answered out of order and waits to be popped from the head.
type entry struct {
	seq     uint32
	command commands.Coder
	added   time.Time
}

func (e *entry) tag() uint8 { return TagOf(e.seq) }

// Queue is an ordered list of pending commands.
//
// Thread-safe for concurrent access.
type Queue struct {
	config Config
	log    logging.LeveledLogger

	mu      sync.Mutex
	entries []*entry
	last    uint32

	closeCh chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New creates a queue. Call Start to run the periodic sweep.
func New(config Config) *Queue {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	q := &Queue{
		config:  config,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		q.log = config.LoggerFactory.NewLogger("ipmi-queue")
	}
	return q
}

// Add enqueues cmd and returns its session sequence number. It returns
// ErrQueueFull when MaxPending entries are present and ErrSequenceExhausted
// once the sequence number wraps.
func (q *Queue) Add(cmd commands.Coder) (uint32, error) {
	q.Sweep()

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= MaxPending {
		return 0, ErrQueueFull
	}
	seq, err := q.nextLocked()
	if err != nil {
		return 0, err
	}
	q.entries = append(q.entries, &entry{seq: seq, command: cmd, added: q.config.Now()})

	if q.log != nil {
		q.log.Tracef("queued %s as seq %d (tag %d)", commands.CommandName(cmd.CommandCode()), seq, TagOf(seq))
	}
	return seq, nil
}

// NextSequence allocates a sequence number without queuing a command.
func (q *Queue) NextSequence() (uint32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextLocked()
}

// nextLocked advances the sequence counter past any tag held by a pending
// entry. At most MaxPending tags are held, so the loop is bounded.
func (q *Queue) nextLocked() (uint32, error) {
	seq := q.last
	for {
		seq = (seq + 1) % SequenceModulus
		if seq == 0 {
			return 0, ErrSequenceExhausted
		}
		if !q.reservedLocked(TagOf(seq)) {
			break
		}
	}
	q.last = seq
	return seq, nil
}

func (q *Queue) reservedLocked(tag uint8) bool {
	for _, e := range q.entries {
		if e.tag() == tag {
			return true
		}
	}
	return false
}

// Remove marks the command with tag as answered. The head entry is popped
// together with any answered entries behind it; other entries are kept in
// place until they reach the head.
func (q *Queue) Remove(tag uint8) {
	q.mu.Lock()
	index := -1
	for i, e := range q.entries {
		if e.tag() == tag {
			index = i
			break
		}
	}
	switch {
	case index == 0:
		q.entries[0] = nil
		q.entries = q.entries[1:]
		q.popAnsweredLocked()
	case index > 0:
		q.entries[index].command = nil
	}
	q.mu.Unlock()

	q.Sweep()
}

func (q *Queue) popAnsweredLocked() {
	for len(q.entries) > 0 && q.entries[0].command == nil {
		q.entries[0] = nil
		q.entries = q.entries[1:]
	}
}

// Get returns the pending command with tag.
func (q *Queue) Get(tag uint8) (commands.Coder, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.findLocked(tag); e != nil {
		return e.command, true
	}
	return nil, false
}

// SequenceOf returns the sequence number of the pending command with tag.
func (q *Queue) SequenceOf(tag uint8) (uint32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.findLocked(tag); e != nil {
		return e.seq, true
	}
	return 0, false
}

func (q *Queue) findLocked(tag uint8) *entry {
	for _, e := range q.entries {
		if e.tag() == tag && e.command != nil {
			return e
		}
	}
	return nil
}

// Len returns the number of entries, answered ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops all entries without reporting timeouts.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}

// Sweep pops head entries that are answered or older than the timeout and
// reports the timed-out ones.
func (q *Queue) Sweep() {
	now := q.config.Now()

	var timedOut []*entry
	q.mu.Lock()
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head.command != nil && now.Sub(head.added) <= q.config.Timeout {
			break
		}
		if head.command != nil {
			timedOut = append(timedOut, head)
		}
		q.entries[0] = nil
		q.entries = q.entries[1:]
	}
	q.mu.Unlock()

	for _, e := range timedOut {
		if q.log != nil {
			q.log.Infof("%s with tag %d timed out", commands.CommandName(e.command.CommandCode()), e.tag())
		}
		if q.config.OnTimeout != nil {
			q.config.OnTimeout(e.tag(), e.command)
		}
	}
}

// Start runs Sweep every SweepInterval until Close.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.started {
		return ErrAlreadyStarted
	}
	q.started = true

	q.wg.Add(1)
	go q.sweepLoop()
	return nil
}

// Close stops the periodic sweep and waits for it to exit. It is safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.closeCh)
	q.wg.Wait()
}

func (q *Queue) sweepLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.closeCh:
			return
		case <-ticker.C:
			q.Sweep()
		}
	}
}
