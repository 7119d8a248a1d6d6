package schedule

import (
	"errors"
	"fmt"
)

// Kind selects how installment due dates advance.
type Kind int

const (
	Daily Kind = iota + 1
	Weekly
	Monthly
	EveryNDays
)

var (
	ErrUnknownKind     = errors.New("unknown recurrence kind")
	ErrInvalidInterval = errors.New("interval days must be at least 1")
)

var kindNames = map[Kind]string{
	Daily:      "daily",
	Weekly:     "weekly",
	Monthly:    "monthly",
	EveryNDays: "every_n_days",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Recurrence is the rule mapping an installment index to a due date.
// IntervalDays is only read for EveryNDays.
type Recurrence struct {
	Kind         Kind `json:"kind"`
	IntervalDays int  `json:"interval_days,omitempty"`
}

// Validate reports whether the rule can produce due dates.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case Daily, Weekly, Monthly:
		return nil
	case EveryNDays:
		if r.IntervalDays < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidInterval, r.IntervalDays)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}
}

// DueDate returns the due date of the 0-indexed installment i.
func (r Recurrence) DueDate(start Date, i int) Date {
	switch r.Kind {
	case Daily:
		return start.AddDays(i)
	case Weekly:
		return start.AddDays(7 * i)
	case Monthly:
		return start.AddMonthsClamped(i)
	case EveryNDays:
		return start.AddDays(i * r.IntervalDays)
	}
	return start
}
