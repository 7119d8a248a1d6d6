package checkout

import (
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"
)

// Step is a checkout workflow state.
type Step int

const (
	SelectCustomer Step = iota + 1
	SelectCart
	ConfigurePlan
	SubmitPayment
)

var ErrNoForwardStep = errors.New("submit payment has no forward step")

var stepNames = map[Step]string{
	SelectCustomer: "select_customer",
	SelectCart:     "select_cart",
	ConfigurePlan:  "configure_plan",
	SubmitPayment:  "submit_payment",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) MarshalText() ([]byte, error) {
	if _, ok := stepNames[s]; !ok {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for step, name := range stepNames {
		if name == string(text) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", string(text))
}

// CanAdvance checks the guard of the current step without moving.
func (s *Session) CanAdvance() error {
	switch s.Step {
	case SelectCustomer:
		if s.CustomerRef == "" {
			return newValidationError(SelectCustomer, ErrMissingCustomer, "select a customer to continue")
		}
	case SelectCart:
		if len(s.Cart) == 0 {
			return newValidationError(SelectCart, ErrEmptyCart, "add at least one product to the cart")
		}
	case ConfigurePlan:
		return checkSchedule(s)
	case SubmitPayment:
		return ErrNoForwardStep
	default:
		return fmt.Errorf("unknown step %d", int(s.Step))
	}
	return nil
}

// Advance moves to the next step when the current step's guard holds.
func (s *Session) Advance() error {
	if err := s.mutable(); err != nil {
		return err
	}
	if err := s.CanAdvance(); err != nil {
		return err
	}
	s.Step++
	return nil
}

// Back returns to the previous step, keeping everything entered so far.
func (s *Session) Back() error {
	if err := s.mutable(); err != nil {
		return err
	}
	if s.Step > SelectCustomer {
		s.Step--
	}
	return nil
}

// Reset discards the whole session and returns to the first step.
func (s *Session) Reset(now time.Time) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.clear(now)
	s.Lifecycle = Lifecycle{State: Idle}
	return nil
}

// checkSchedule is the reconciliation rule shared by the plan step guard and the
// submission gate.
func checkSchedule(s *Session) error {
	if !s.Plan.Structure.IsInstallment() {
		return nil
	}
	totals, err := s.Totals()
	if err != nil {
		return newValidationError(ConfigurePlan, err, err.Error())
	}
	if len(s.Plan.Schedule) == 0 {
		return newValidationError(ConfigurePlan, ErrMissingSchedule, "generate an installment schedule first")
	}
	sum := schedule.Sum(s.Plan.Schedule)
	due := plan.RoundCents(totals.ScheduleDue)
	if !sum.Equal(due) {
		return newValidationError(ConfigurePlan, ErrScheduleMismatch,
			fmt.Sprintf("installments add up to %s but %s is due", sum.StringFixed(schedule.CentScale), due.StringFixed(schedule.CentScale)))
	}
	return nil
}
