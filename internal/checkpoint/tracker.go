package checkpoint

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultFlushEvery is the number of updates between periodic saves.
const DefaultFlushEvery = 10

type updateKind int

const (
	updateCompleted updateKind = iota
	updateFailed
	updateSkipped
	updateSnapshot
	updateFlush
)

type update struct {
	kind    updateKind
	code    string
	outcome Outcome
	n       int
	reply   chan *State
	errc    chan error
}

// Tracker is the single writer of a checkpoint. Workers send it updates; one
// goroutine applies them to the state and saves every flushEvery updates.
type Tracker struct {
	store      Store
	state      *State
	flushEvery int
	logger     zerolog.Logger

	updates chan update
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	pending int
	lastErr error
}

// NewTracker starts a tracker owning state. Call Close to stop it and write the
// final checkpoint.
func NewTracker(store Store, state *State, flushEvery int, logger zerolog.Logger) *Tracker {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	if state == nil {
		state = NewState()
	}
	t := &Tracker{
		store:      store,
		state:      state,
		flushEvery: flushEvery,
		logger:     logger.With().Str("component", "checkpoint_tracker").Logger(),
		updates:    make(chan update, 64),
		done:       make(chan struct{}),
	}
	go t.loop()
	return t
}

// MarkCompleted queues a completion.
func (t *Tracker) MarkCompleted(code string, outcome Outcome) {
	t.send(update{kind: updateCompleted, code: code, outcome: outcome})
}

// MarkFailed queues a failure.
func (t *Tracker) MarkFailed(code string) {
	t.send(update{kind: updateFailed, code: code})
}

// AddSkipped queues a skipped count. Skips do not trigger a periodic save.
func (t *Tracker) AddSkipped(n int) {
	t.send(update{kind: updateSkipped, n: n})
}

// Snapshot returns a copy of the current state, or nil after Close.
func (t *Tracker) Snapshot() *State {
	reply := make(chan *State, 1)
	if !t.send(update{kind: updateSnapshot, reply: reply}) {
		return nil
	}
	return <-reply
}

// Flush saves the state now.
func (t *Tracker) Flush() error {
	errc := make(chan error, 1)
	if !t.send(update{kind: updateFlush, errc: errc}) {
		return nil
	}
	return <-errc
}

// Close stops the tracker after applying every queued update and saves once more.
// Close is idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return t.lastErr
	}
	t.closed = true
	close(t.updates)
	t.mu.Unlock()

	<-t.done
	return t.lastErr
}

func (t *Tracker) send(u update) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn().Str("code", u.code).Msg("update after close dropped")
		return false
	}
	t.updates <- u
	return true
}

func (t *Tracker) loop() {
	defer close(t.done)
	for u := range t.updates {
		switch u.kind {
		case updateCompleted:
			t.state.MarkCompleted(u.code, u.outcome)
			t.tick()
		case updateFailed:
			t.state.MarkFailed(u.code)
			t.tick()
		case updateSkipped:
			t.state.AddSkipped(u.n)
		case updateSnapshot:
			u.reply <- t.state.Clone()
		case updateFlush:
			u.errc <- t.save()
		}
	}
	t.lastErr = t.save()
}

func (t *Tracker) tick() {
	t.pending++
	if t.pending >= t.flushEvery {
		_ = t.save()
	}
}

func (t *Tracker) save() error {
	t.pending = 0
	if err := t.store.Save(t.state); err != nil {
		t.logger.Error().Err(err).Msg("checkpoint save failed")
		return err
	}
	t.logger.Debug().
		Int("completed", len(t.state.completed)).
		Int("failed", len(t.state.failed)).
		Msg("checkpoint saved")
	return nil
}
