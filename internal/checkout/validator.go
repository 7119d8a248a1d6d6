package checkout

import (
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingCustomer    = errors.New("missing customer")
	ErrMissingAccount     = errors.New("missing account context")
	ErrEmptyCart          = errors.New("empty cart")
	ErrInsufficientTender = errors.New("insufficient tender")
	ErrMissingSchedule    = errors.New("missing schedule")
	ErrScheduleMismatch   = errors.New("schedule does not match amount due")
	ErrNotAtSubmitStep    = errors.New("checkout is not at the submit step")
)

// ValidationError is a local, step-scoped failure. It never reaches the network.
type ValidationError struct {
	Step    Step
	Err     error
	Message string
}

func newValidationError(step Step, err error, message string) *ValidationError {
	return &ValidationError{Step: step, Err: err, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure comes from missing context rather than from
// something the cashier can fix by editing the sale.
func (e *ValidationError) Fatal() bool {
	return errors.Is(e.Err, ErrMissingAccount)
}

// Validate runs the checks that must hold before a session is submitted.
func Validate(s *Session, accountID string) error {
	if accountID == "" {
		return newValidationError(SubmitPayment, ErrMissingAccount, "no seller account is attached to this checkout")
	}
	if s.CustomerRef == "" {
		return newValidationError(SelectCustomer, ErrMissingCustomer, "select a customer before submitting")
	}
	if len(s.Cart) == 0 {
		return newValidationError(SelectCart, ErrEmptyCart, "the cart is empty")
	}

	totals, err := s.Totals()
	if err != nil {
		return newValidationError(ConfigurePlan, err, err.Error())
	}
	if totals.AmountDueNow.IsPositive() && s.Tender.Tendered.LessThan(totals.AmountDueNow) {
		return newValidationError(SubmitPayment, ErrInsufficientTender,
			fmt.Sprintf("tendered %s is less than %s due now",
				s.Tender.Tendered.StringFixed(schedule.CentScale), totals.AmountDueNow.StringFixed(schedule.CentScale)))
	}

	return checkSchedule(s)
}

// PayloadLine is a cart line as handed to settlement.
type PayloadLine struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// Payload is the frozen sale produced once validation passes. It shares no slices
// with the session it was built from.
type Payload struct {
	SessionID           string
	AccountID           string
	CustomerRef         string
	Structure           plan.SaleStructure
	Lines               []PayloadLine
	Totals              plan.Totals
	Tendered            decimal.Decimal
	Change              decimal.Decimal
	Method              string
	InstallmentPlanID   *int64
	Schedule            []schedule.InstallmentLine
	InterestRatePercent decimal.Decimal
	Timestamp           time.Time
}

// Freeze validates the session and captures it as a Payload.
func Freeze(s *Session, accountID string, now time.Time) (Payload, error) {
	if s.Step != SubmitPayment {
		return Payload{}, newValidationError(s.Step, ErrNotAtSubmitStep, "finish the earlier steps first")
	}
	if err := Validate(s, accountID); err != nil {
		return Payload{}, err
	}
	totals, err := s.Totals()
	if err != nil {
		return Payload{}, err
	}

	lines := make([]PayloadLine, len(s.Cart))
	for i, l := range s.Cart {
		lines[i] = PayloadLine{
			ProductRef: l.ProductRef,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			LineTotal:  l.LineTotal(),
		}
	}

	p := Payload{
		SessionID:           s.ID,
		AccountID:           accountID,
		CustomerRef:         s.CustomerRef,
		Structure:           s.Plan.Structure,
		Lines:               lines,
		Totals:              totals,
		Tendered:            s.Tender.Tendered,
		Change:              plan.Change(totals.AmountDueNow, s.Tender.Tendered),
		Method:              s.Tender.Method,
		InterestRatePercent: s.Plan.InterestRatePercent,
		Timestamp:           now,
	}
	if s.Plan.Structure.IsInstallment() {
		p.Schedule = schedule.Clone(s.Plan.Schedule)
		if s.Plan.InstallmentPlanID != nil {
			id := *s.Plan.InstallmentPlanID
			p.InstallmentPlanID = &id
		}
	}
	return p, nil
}
