// Package schedule splits a financed amount into dated installments.
package schedule

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CentScale is the number of decimal places every money amount is held at.
const CentScale int32 = 2

var ErrNegativeTotal = errors.New("schedule total must not be negative")

// InstallmentLine is one dated amount of a schedule.
type InstallmentLine struct {
	DueDate Date            `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// Generate splits total into count installments due according to rule.
//
// Every installment but the last gets total/count rounded to cents; the last one gets
// whatever is left, so the amounts always add up to total rounded to cents. If the
// rounded share would leave the last installment negative (fewer cents than
// installments), the share is truncated instead. A count below 1 is treated as 1.
func Generate(total decimal.Decimal, start Date, rule Recurrence, count int) ([]InstallmentLine, error) {
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeTotal, total.StringFixed(CentScale))
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if count < 1 {
		count = 1
	}

	total = total.Round(CentScale)
	n := decimal.NewFromInt(int64(count))
	share := total.Div(n).Round(CentScale)
	if share.Mul(n.Sub(decimal.NewFromInt(1))).GreaterThan(total) {
		share = total.Div(n).Truncate(CentScale)
	}

	lines := make([]InstallmentLine, count)
	allocated := decimal.Zero
	for i := 0; i < count-1; i++ {
		lines[i] = InstallmentLine{DueDate: rule.DueDate(start, i), Amount: share}
		allocated = allocated.Add(share)
	}
	lines[count-1] = InstallmentLine{
		DueDate: rule.DueDate(start, count-1),
		Amount:  total.Sub(allocated),
	}

	return lines, nil
}

// Sum adds the amounts of lines at cent precision.
func Sum(lines []InstallmentLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Amount)
	}
	return sum.Round(CentScale)
}

// Clone returns a copy of lines that shares no backing array with the input.
func Clone(lines []InstallmentLine) []InstallmentLine {
	if lines == nil {
		return nil
	}
	out := make([]InstallmentLine, len(lines))
	copy(out, lines)
	return out
}
