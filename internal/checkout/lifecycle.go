package checkout

import (
	"errors"
	"fmt"
	"time"
)

// SubmissionState is where a session is in its single submission round trip.
type SubmissionState int

const (
	Idle SubmissionState = iota
	InFlight
	Succeeded
	Failed
)

var ErrNotInFlight = errors.New("no submission in flight")

var submissionStateNames = map[SubmissionState]string{
	Idle:      "idle",
	InFlight:  "in_flight",
	Succeeded: "succeeded",
	Failed:    "failed",
}

func (s SubmissionState) String() string {
	if name, ok := submissionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("submission_state(%d)", int(s))
}

func (s SubmissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SubmissionState) UnmarshalText(text []byte) error {
	for state, name := range submissionStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown submission state %q", string(text))
}

// Lifecycle tracks the submission of a session.
type Lifecycle struct {
	State     SubmissionState `json:"state"`
	StartedAt time.Time       `json:"started_at"`
	LastError string          `json:"last_error,omitempty"`
	Receipt   *Receipt        `json:"receipt,omitempty"`
}

// BeginSubmission marks the session in flight. While in flight every mutation of
// the session is rejected.
func (s *Session) BeginSubmission(now time.Time) error {
	if s.Lifecycle.State == InFlight {
		return ErrSubmissionInFlight
	}
	s.Lifecycle = Lifecycle{State: InFlight, StartedAt: now}
	return nil
}

// CompleteSubmission records the receipt and clears the session for the next sale.
func (s *Session) CompleteSubmission(receipt Receipt, now time.Time) error {
	if s.Lifecycle.State != InFlight {
		return ErrNotInFlight
	}
	s.clear(now)
	s.Lifecycle = Lifecycle{State: Succeeded, Receipt: &receipt}
	return nil
}

// FailSubmission records the failure and leaves the session as it was so the
// sale can be resubmitted or edited.
func (s *Session) FailSubmission(message string, now time.Time) error {
	if s.Lifecycle.State != InFlight {
		return ErrNotInFlight
	}
	s.Lifecycle = Lifecycle{State: Failed, LastError: message}
	s.UpdatedAt = now
	return nil
}
