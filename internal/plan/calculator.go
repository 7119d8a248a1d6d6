// Package plan derives the financed principal, interest and amounts due for a sale.
package plan

import (
	"errors"
	"fmt"

	"checkout-service/internal/schedule"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeCartTotal   = errors.New("cart total must not be negative")
	ErrNegativeDownPayment = errors.New("down payment must not be negative")
	ErrNegativeRate        = errors.New("interest rate must not be negative")
	ErrNegativeDeduction   = errors.New("deduction must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Input holds the parameters the calculator reads. Deduction only applies to
// FullPayment; DownPayment only to InstallmentWithDown.
type Input struct {
	CartTotal           decimal.Decimal
	Structure           SaleStructure
	DownPayment         decimal.Decimal
	InterestRatePercent decimal.Decimal
	Deduction           decimal.Decimal
}

// Totals are the derived amounts of a plan, all at cent precision.
type Totals struct {
	Structure            SaleStructure   `json:"structure"`
	CartTotal            decimal.Decimal `json:"cart_total"`
	EffectiveDownPayment decimal.Decimal `json:"down_payment"`
	FinancedPrincipal    decimal.Decimal `json:"financed_principal"`
	InterestAmount       decimal.Decimal `json:"interest_amount"`
	ScheduleDue          decimal.Decimal `json:"schedule_due"`
	Deduction            decimal.Decimal `json:"deduction"`
	NetAmount            decimal.Decimal `json:"net_amount"`
	AmountDueNow         decimal.Decimal `json:"amount_due_now"`
}

// RoundCents rounds d half away from zero to cents.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(schedule.CentScale)
}

// Calculate derives the plan totals for in. It keeps no state between calls.
func Calculate(in Input) (Totals, error) {
	if in.CartTotal.IsNegative() {
		return Totals{}, ErrNegativeCartTotal
	}
	if in.DownPayment.IsNegative() {
		return Totals{}, ErrNegativeDownPayment
	}
	if in.InterestRatePercent.IsNegative() {
		return Totals{}, ErrNegativeRate
	}
	if in.Deduction.IsNegative() {
		return Totals{}, ErrNegativeDeduction
	}

	cart := RoundCents(in.CartTotal)
	out := Totals{
		Structure:            in.Structure,
		CartTotal:            cart,
		EffectiveDownPayment: decimal.Zero,
		FinancedPrincipal:    decimal.Zero,
		InterestAmount:       decimal.Zero,
		Deduction:            decimal.Zero,
		NetAmount:            cart,
	}

	switch in.Structure {
	case FullPayment:
		out.Deduction = RoundCents(in.Deduction)
		out.NetAmount = decimal.Max(cart.Sub(out.Deduction), decimal.Zero)
		out.AmountDueNow = out.NetAmount
	case InstallmentWithDown:
		out.EffectiveDownPayment = RoundCents(in.DownPayment)
		out.FinancedPrincipal = RoundCents(decimal.Max(cart.Sub(out.EffectiveDownPayment), decimal.Zero))
		out.AmountDueNow = out.EffectiveDownPayment
	case PureInstallment:
		out.FinancedPrincipal = cart
		out.AmountDueNow = decimal.Zero
	default:
		return Totals{}, fmt.Errorf("%w: %d", ErrUnknownStructure, int(in.Structure))
	}

	if in.Structure.IsInstallment() {
		out.InterestAmount = RoundCents(out.FinancedPrincipal.Mul(in.InterestRatePercent).Div(hundred))
	}
	out.ScheduleDue = out.FinancedPrincipal.Add(out.InterestAmount)

	return out, nil
}

// Change is the cash handed back when tendered exceeds the amount due now.
func Change(amountDueNow, tendered decimal.Decimal) decimal.Decimal {
	return RoundCents(decimal.Max(tendered.Sub(amountDueNow), decimal.Zero))
}
