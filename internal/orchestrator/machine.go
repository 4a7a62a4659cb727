package orchestrator

import "time"

// MaxBackoff caps the wait between attempts.
const MaxBackoff = 30 * time.Second

// State is the position of one identifier in its fetch lifecycle.
type State int

const (
	StatePending State = iota
	StateFetching
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// job walks one identifier through
// Pending -> Fetching -> (Succeeded | Retrying -> Fetching | Failed).
type job struct {
	code        string
	state       State
	attempt     int
	maxAttempts int
	lastErr     error
}

func newJob(code string, maxAttempts int) *job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &job{code: code, state: StatePending, maxAttempts: maxAttempts}
}

// begin moves a pending or retrying job into Fetching and counts the attempt.
func (j *job) begin() {
	if j.state != StatePending && j.state != StateRetrying {
		return
	}
	j.attempt++
	j.state = StateFetching
}

// settle applies the result of a fetch attempt.
func (j *job) settle(err error, retryable bool) State {
	if j.state != StateFetching {
		return j.state
	}
	j.lastErr = err
	switch {
	case err == nil:
		j.state = StateSucceeded
	case retryable && j.attempt < j.maxAttempts:
		j.state = StateRetrying
	default:
		j.state = StateFailed
	}
	return j.state
}

func (j *job) done() bool {
	return j.state == StateSucceeded || j.state == StateFailed
}

// backoff is linear in the attempt number and capped at MaxBackoff.
func backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := time.Duration(attempt) * base
	if d > MaxBackoff || d < 0 {
		return MaxBackoff
	}
	return d
}
