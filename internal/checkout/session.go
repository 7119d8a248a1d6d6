// Package checkout holds the checkout session aggregate, the step workflow that
// drives it and the reconciliation gate that runs before a sale is submitted.
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
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrNegativePrice      = errors.New("unit price must not be negative")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrInstallmentIndex   = errors.New("installment index out of range")
	ErrNoSchedule         = errors.New("structure has no schedule")
	ErrDueDateOrder       = errors.New("due dates must stay in ascending order")
)

// CartLine is one product on the cart.
type CartLine struct {
	ProductRef string          `json:"product_ref"`
	Name       string          `json:"name,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

// LineTotal is unit price times quantity at cent precision.
func (l CartLine) LineTotal() decimal.Decimal {
	return plan.RoundCents(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// PlanConfig is the caller-chosen part of a payment plan. The schedule is derived
// from it and regenerated whenever an input changes.
type PlanConfig struct {
	Structure           plan.SaleStructure         `json:"structure"`
	DownPayment         decimal.Decimal            `json:"down_payment"`
	InterestRatePercent decimal.Decimal            `json:"interest_rate_percent"`
	Deduction           decimal.Decimal            `json:"deduction"`
	Recurrence          schedule.Recurrence        `json:"recurrence"`
	StartDate           schedule.Date              `json:"start_date"`
	Count               int                        `json:"count"`
	InstallmentPlanID   *int64                     `json:"installment_plan_id,omitempty"`
	Schedule            []schedule.InstallmentLine `json:"schedule,omitempty"`
}

// Tender is the payment handed over at the counter.
type Tender struct {
	Tendered decimal.Decimal `json:"tendered"`
	Method   string          `json:"method"`
}

// Receipt is what the settlement service returned for a committed sale.
type Receipt struct {
	OrderID      int64           `json:"order_id"`
	Status       string          `json:"status"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	AmountDueNow decimal.Decimal `json:"amount_due_now"`
	Tendered     decimal.Decimal `json:"tendered"`
	Change       decimal.Decimal `json:"change"`
}

// Session is the in-progress checkout. A session is owned by one workflow at a
// time and is not safe for concurrent use.
type Session struct {
	ID          string     `json:"id"`
	Step        Step       `json:"step"`
	CustomerRef string     `json:"customer_ref,omitempty"`
	Cart        []CartLine `json:"cart"`
	Plan        PlanConfig `json:"plan"`
	Tender      Tender     `json:"tender"`
	Lifecycle   Lifecycle  `json:"lifecycle"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewSession returns an empty session at the first step.
func NewSession(id string, now time.Time) *Session {
	s := &Session{ID: id, CreatedAt: now}
	s.clear(now)
	return s
}

func (s *Session) clear(now time.Time) {
	s.Step = SelectCustomer
	s.CustomerRef = ""
	s.Cart = nil
	s.Plan = PlanConfig{
		Structure:           plan.FullPayment,
		DownPayment:         decimal.Zero,
		InterestRatePercent: decimal.Zero,
		Deduction:           decimal.Zero,
		Recurrence:          schedule.Recurrence{Kind: schedule.Monthly},
		Count:               1,
	}
	s.Tender = Tender{Tendered: decimal.Zero}
	s.UpdatedAt = now
}

func (s *Session) mutable() error {
	if s.Lifecycle.State == InFlight {
		return ErrSubmissionInFlight
	}
	return nil
}

// CartTotal sums the line totals.
func (s *Session) CartTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Cart {
		total = total.Add(l.LineTotal())
	}
	return total
}

// Totals runs the plan calculator over the current cart and plan.
func (s *Session) Totals() (plan.Totals, error) {
	return plan.Calculate(plan.Input{
		CartTotal:           s.CartTotal(),
		Structure:           s.Plan.Structure,
		DownPayment:         s.Plan.DownPayment,
		InterestRatePercent: s.Plan.InterestRatePercent,
		Deduction:           s.Plan.Deduction,
	})
}

// SelectCustomer sets the customer the sale is for.
func (s *Session) SelectCustomer(ref string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.CustomerRef = ref
	return nil
}

// AddLine appends a product or, when it is already on the cart, adds to its quantity.
func (s *Session) AddLine(line CartLine) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if line.UnitPrice.IsNegative() {
		return ErrNegativePrice
	}
	line.UnitPrice = plan.RoundCents(line.UnitPrice)

	if i := s.lineIndex(line.ProductRef); i >= 0 {
		s.Cart[i].Quantity += line.Quantity
	} else {
		s.Cart = append(s.Cart, line)
	}
	return s.refreshSchedule()
}

// SetLineQuantity replaces the quantity of a cart line.
func (s *Session) SetLineQuantity(productRef string, quantity int) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	i := s.lineIndex(productRef)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productRef)
	}
	s.Cart[i].Quantity = quantity
	return s.refreshSchedule()
}

// RemoveLine drops a product from the cart.
func (s *Session) RemoveLine(productRef string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	i := s.lineIndex(productRef)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productRef)
	}
	s.Cart = append(s.Cart[:i], s.Cart[i+1:]...)
	return s.refreshSchedule()
}

func (s *Session) lineIndex(productRef string) int {
	for i, l := range s.Cart {
		if l.ProductRef == productRef {
			return i
		}
	}
	return -1
}

// SetStructure switches the sale structure. Leaving the installment kinds drops the
// schedule; any structure other than InstallmentWithDown zeroes the down payment.
func (s *Session) SetStructure(structure plan.SaleStructure) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if !structure.Valid() {
		return fmt.Errorf("%w: %d", plan.ErrUnknownStructure, int(structure))
	}
	s.Plan.Structure = structure
	if !structure.AcceptsDownPayment() {
		s.Plan.DownPayment = decimal.Zero
	}
	if !structure.IsInstallment() {
		s.Plan.Schedule = nil
		s.Plan.InstallmentPlanID = nil
	} else {
		s.Plan.Deduction = decimal.Zero
	}
	return s.refreshSchedule()
}

// SetDownPayment records the down payment. It is forced to zero for structures
// that do not take one.
func (s *Session) SetDownPayment(amount decimal.Decimal) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return plan.ErrNegativeDownPayment
	}
	if !s.Plan.Structure.AcceptsDownPayment() {
		amount = decimal.Zero
	}
	s.Plan.DownPayment = plan.RoundCents(amount)
	return s.refreshSchedule()
}

// SetInterestRate records the interest rate in percent.
func (s *Session) SetInterestRate(percent decimal.Decimal) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if percent.IsNegative() {
		return plan.ErrNegativeRate
	}
	s.Plan.InterestRatePercent = percent
	return s.refreshSchedule()
}

// SetDeduction records a deduction off the cart total for a full payment.
func (s *Session) SetDeduction(amount decimal.Decimal) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return plan.ErrNegativeDeduction
	}
	if s.Plan.Structure != plan.FullPayment {
		amount = decimal.Zero
	}
	s.Plan.Deduction = plan.RoundCents(amount)
	return nil
}

// SetInstallmentPlan links the sale to a predefined installment plan.
func (s *Session) SetInstallmentPlan(id *int64) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if id != nil && !s.Plan.Structure.IsInstallment() {
		return ErrNoSchedule
	}
	s.Plan.InstallmentPlanID = id
	return nil
}

// ConfigureSchedule sets the recurrence, first due date and number of installments,
// then regenerates the schedule.
func (s *Session) ConfigureSchedule(rule schedule.Recurrence, start schedule.Date, count int) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if !s.Plan.Structure.IsInstallment() {
		return ErrNoSchedule
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if count < 1 {
		count = 1
	}
	s.Plan.Recurrence = rule
	s.Plan.StartDate = start
	s.Plan.Count = count
	return s.refreshSchedule()
}

// EditInstallment overrides one generated installment by hand. Nil arguments keep
// the current value. The edited schedule is not rebalanced, so it may no longer add
// up to the amount due until the plan is regenerated.
func (s *Session) EditInstallment(index int, amount *decimal.Decimal, due *schedule.Date) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.Plan.Schedule) {
		return fmt.Errorf("%w: %d", ErrInstallmentIndex, index)
	}
	if due != nil {
		if index > 0 && due.Before(s.Plan.Schedule[index-1].DueDate) {
			return fmt.Errorf("%w: %s is before installment %d", ErrDueDateOrder, due, index-1)
		}
		if index < len(s.Plan.Schedule)-1 && due.After(s.Plan.Schedule[index+1].DueDate) {
			return fmt.Errorf("%w: %s is after installment %d", ErrDueDateOrder, due, index+1)
		}
	}
	if amount != nil {
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
		s.Plan.Schedule[index].Amount = plan.RoundCents(*amount)
	}
	if due != nil {
		s.Plan.Schedule[index].DueDate = *due
	}
	return nil
}

// SetTender records the cash handed over and the payment method.
func (s *Session) SetTender(tendered decimal.Decimal, method string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if tendered.IsNegative() {
		return ErrNegativeAmount
	}
	s.Tender = Tender{Tendered: plan.RoundCents(tendered), Method: method}
	return nil
}

// refreshSchedule regenerates the schedule from scratch when the structure has one
// and a first due date has been chosen.
func (s *Session) refreshSchedule() error {
	if !s.Plan.Structure.IsInstallment() || s.Plan.StartDate.IsZero() {
		return nil
	}
	totals, err := s.Totals()
	if err != nil {
		return err
	}
	lines, err := schedule.Generate(totals.ScheduleDue, s.Plan.StartDate, s.Plan.Recurrence, s.Plan.Count)
	if err != nil {
		return err
	}
	s.Plan.Schedule = lines
	return nil
}
