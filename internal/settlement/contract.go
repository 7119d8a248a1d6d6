package settlement

import (
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"

	"github.com/shopspring/decimal"
)

// Amount is a money value sent as a fixed two-decimal string.
type Amount decimal.Decimal

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(decimal.Decimal(a).StringFixed(schedule.CentScale))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

func amountPtr(d decimal.Decimal) *Amount {
	a := Amount(d)
	return &a
}

// SaleRequest is the body of a settlement submission.
type SaleRequest struct {
	AccountID           string          `json:"accountId"`
	CustomerID          string          `json:"customerId"`
	SaleStructure       string          `json:"saleStructure"`
	Items               []Item          `json:"items"`
	Payment             Payment         `json:"payment"`
	InstallmentPlanID   *int64          `json:"installmentPlanId"`
	CustomSchedule      []ScheduleEntry `json:"customSchedule"`
	Timestamp           time.Time       `json:"timestamp"`
	InterestRatePercent decimal.Decimal `json:"interestRatePercent"`
	InterestAmount      Amount          `json:"interestAmount"`
	TotalWithInterest   *Amount         `json:"totalWithInterest,omitempty"`
	TotalFinanced       *Amount         `json:"totalFinanced,omitempty"`
}

type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice Amount `json:"unitPrice"`
	LineTotal Amount `json:"lineTotal"`
}

// Payment is the money taken at the counter. Deduction and NetAmount are only
// sent for full payments.
type Payment struct {
	Amount    Amount  `json:"amount"`
	Tendered  Amount  `json:"tendered"`
	Method    string  `json:"method"`
	Change    Amount  `json:"change"`
	Deduction *Amount `json:"deduction,omitempty"`
	NetAmount *Amount `json:"netAmount,omitempty"`
}

type ScheduleEntry struct {
	DueDate string `json:"dueDate"`
	Amount  Amount `json:"amount"`
}

// SaleResponse is what the service answers on success.
type SaleResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewSaleRequest maps a frozen checkout payload onto the settlement contract.
func NewSaleRequest(p checkout.Payload) (SaleRequest, error) {
	if !p.Structure.Valid() {
		return SaleRequest{}, fmt.Errorf("%w: %d", plan.ErrUnknownStructure, int(p.Structure))
	}

	items := make([]Item, len(p.Lines))
	for i, l := range p.Lines {
		items[i] = Item{
			ProductID: l.ProductRef,
			Quantity:  l.Quantity,
			UnitPrice: Amount(l.UnitPrice),
			LineTotal: Amount(l.LineTotal),
		}
	}

	req := SaleRequest{
		AccountID:     p.AccountID,
		CustomerID:    p.CustomerRef,
		SaleStructure: p.Structure.String(),
		Items:         items,
		Payment: Payment{
			Amount:   Amount(p.Totals.AmountDueNow),
			Tendered: Amount(p.Tendered),
			Method:   p.Method,
			Change:   Amount(p.Change),
		},
		InstallmentPlanID:   p.InstallmentPlanID,
		Timestamp:           p.Timestamp.UTC(),
		InterestRatePercent: p.InterestRatePercent,
		InterestAmount:      Amount(p.Totals.InterestAmount),
	}

	switch p.Structure {
	case plan.FullPayment:
		req.Payment.Deduction = amountPtr(p.Totals.Deduction)
		req.Payment.NetAmount = amountPtr(p.Totals.NetAmount)
	case plan.InstallmentWithDown, plan.PureInstallment:
		entries := make([]ScheduleEntry, len(p.Schedule))
		for i, l := range p.Schedule {
			entries[i] = ScheduleEntry{DueDate: l.DueDate.String(), Amount: Amount(l.Amount)}
		}
		req.CustomSchedule = entries
		req.TotalFinanced = amountPtr(p.Totals.FinancedPrincipal)
		req.TotalWithInterest = amountPtr(p.Totals.EffectiveDownPayment.Add(p.Totals.ScheduleDue))
	}

	return req, nil
}
