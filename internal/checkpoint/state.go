// Package checkpoint persists scrape progress so an interrupted run resumes where it stopped.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is the version written to checkpoint files.
const FormatVersion = 1

// Outcome is how a completed identifier ended.
type Outcome int

const (
	// OutcomeBenefitFound means at least one record was stored.
	OutcomeBenefitFound Outcome = iota
	// OutcomeNoBenefit means the page had no recognizable benefit rows.
	OutcomeNoBenefit
	// OutcomeNotFound means the source has no page for the identifier.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBenefitFound:
		return "benefit_found"
	case OutcomeNoBenefit:
		return "no_benefit"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Counters are cumulative over every run that shared the checkpoint.
type Counters struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	NotFound  int `json:"not_found"`
	NoBenefit int `json:"no_benefit"`
}

// State is the checkpoint content. It is not safe for concurrent use; during a run
// it is owned by a Tracker.
type State struct {
	RunID     string
	UpdatedAt time.Time
	Counters  Counters

	completed    map[string]struct{}
	failed       map[string]struct{}
	benefitFound map[string]struct{}
}

// NewState returns an empty state with a fresh run id.
func NewState() *State {
	return &State{
		RunID:        uuid.NewString(),
		completed:    make(map[string]struct{}),
		failed:       make(map[string]struct{}),
		benefitFound: make(map[string]struct{}),
	}
}

// MarkCompleted records a finished identifier. Completing clears any earlier failure.
func (s *State) MarkCompleted(code string, outcome Outcome) {
	s.completed[code] = struct{}{}
	delete(s.failed, code)
	if outcome == OutcomeBenefitFound {
		s.benefitFound[code] = struct{}{}
	} else {
		delete(s.benefitFound, code)
	}

	s.Counters.Processed++
	s.Counters.Succeeded++
	switch outcome {
	case OutcomeNoBenefit:
		s.Counters.NoBenefit++
	case OutcomeNotFound:
		s.Counters.NotFound++
	}
}

// MarkFailed records an identifier whose retries were exhausted. A completed
// identifier is never marked failed.
func (s *State) MarkFailed(code string) {
	if _, ok := s.completed[code]; ok {
		return
	}
	s.failed[code] = struct{}{}
	s.Counters.Processed++
	s.Counters.Failed++
}

// AddSkipped counts identifiers skipped because an earlier run completed them.
func (s *State) AddSkipped(n int) {
	if n > 0 {
		s.Counters.Skipped += n
	}
}

func (s *State) IsCompleted(code string) bool {
	_, ok := s.completed[code]
	return ok
}

func (s *State) IsFailed(code string) bool {
	_, ok := s.failed[code]
	return ok
}

func (s *State) HasBenefit(code string) bool {
	_, ok := s.benefitFound[code]
	return ok
}

// Completed returns completed identifiers in ascending order.
func (s *State) Completed() []string { return sortedKeys(s.completed) }

// Failed returns failed identifiers in ascending order.
func (s *State) Failed() []string { return sortedKeys(s.failed) }

// BenefitFound returns identifiers with stored benefits in ascending order.
func (s *State) BenefitFound() []string { return sortedKeys(s.benefitFound) }

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		RunID:        s.RunID,
		UpdatedAt:    s.UpdatedAt,
		Counters:     s.Counters,
		completed:    make(map[string]struct{}, len(s.completed)),
		failed:       make(map[string]struct{}, len(s.failed)),
		benefitFound: make(map[string]struct{}, len(s.benefitFound)),
	}
	for k := range s.completed {
		c.completed[k] = struct{}{}
	}
	for k := range s.failed {
		c.failed[k] = struct{}{}
	}
	for k := range s.benefitFound {
		c.benefitFound[k] = struct{}{}
	}
	return c
}

type fileFormat struct {
	Version      int       `json:"version"`
	RunID        string    `json:"run_id"`
	UpdatedAt    time.Time `json:"updated_at"`
	Completed    []string  `json:"completed"`
	Failed       []string  `json:"failed"`
	BenefitFound []string  `json:"benefit_found"`
	Counters     Counters  `json:"counters"`
}

// MarshalJSON writes the file format with sorted identifier lists.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileFormat{
		Version:      FormatVersion,
		RunID:        s.RunID,
		UpdatedAt:    s.UpdatedAt,
		Completed:    s.Completed(),
		Failed:       s.Failed(),
		BenefitFound: s.BenefitFound(),
		Counters:     s.Counters,
	})
}

// UnmarshalJSON reads the file format. Identifiers listed as both completed and
// failed are kept as completed.
func (s *State) UnmarshalJSON(data []byte) error {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Version != FormatVersion {
		return fmt.Errorf("unsupported checkpoint version %d", f.Version)
	}
	fresh := NewState()
	if f.RunID != "" {
		fresh.RunID = f.RunID
	}
	fresh.UpdatedAt = f.UpdatedAt
	fresh.Counters = f.Counters
	for _, code := range f.Completed {
		fresh.completed[code] = struct{}{}
	}
	for _, code := range f.Failed {
		if _, ok := fresh.completed[code]; !ok {
			fresh.failed[code] = struct{}{}
		}
	}
	for _, code := range f.BenefitFound {
		fresh.benefitFound[code] = struct{}{}
	}
	*s = *fresh
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
