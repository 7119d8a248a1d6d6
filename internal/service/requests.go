package service

import (
	"checkout-service/internal/checkout"
	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"

	"github.com/shopspring/decimal"
)

// SelectCustomerRequest picks the customer of the sale
type SelectCustomerRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
}

// AddItemRequest puts a catalog product on the cart
type AddItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest replaces the quantity of a cart line
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// ConfigurePlanRequest sets the payment plan. Omitted fields keep their current value.
type ConfigurePlanRequest struct {
	Structure           plan.SaleStructure   `json:"structure" binding:"required"`
	DownPayment         *decimal.Decimal     `json:"down_payment,omitempty"`
	InterestRatePercent *decimal.Decimal     `json:"interest_rate_percent,omitempty"`
	Deduction           *decimal.Decimal     `json:"deduction,omitempty"`
	Recurrence          *schedule.Recurrence `json:"recurrence,omitempty"`
	StartDate           *schedule.Date       `json:"start_date,omitempty"`
	Count               int                  `json:"count,omitempty"`
	InstallmentPlanID   *int64               `json:"installment_plan_id,omitempty"`
}

// EditInstallmentRequest overrides one installment by hand
type EditInstallmentRequest struct {
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	DueDate *schedule.Date   `json:"due_date,omitempty"`
}

// TenderRequest records the payment handed over
type TenderRequest struct {
	Tendered decimal.Decimal `json:"tendered"`
	Method   string          `json:"method" binding:"required"`
}

// PreviewRequest computes a plan without touching any session
type PreviewRequest struct {
	CartTotal           decimal.Decimal     `json:"cart_total"`
	Structure           plan.SaleStructure  `json:"structure" binding:"required"`
	DownPayment         decimal.Decimal     `json:"down_payment"`
	InterestRatePercent decimal.Decimal     `json:"interest_rate_percent"`
	Deduction           decimal.Decimal     `json:"deduction"`
	Recurrence          schedule.Recurrence `json:"recurrence"`
	StartDate           schedule.Date       `json:"start_date"`
	Count               int                 `json:"count"`
}

// Preview is a computed plan
type Preview struct {
	Totals   plan.Totals                `json:"totals"`
	Schedule []schedule.InstallmentLine `json:"schedule"`
}

// SessionView is a session together with the values derived from it
type SessionView struct {
	*checkout.Session
	Totals      plan.Totals     `json:"totals"`
	ScheduleSum decimal.Decimal `json:"schedule_sum"`
	Change      decimal.Decimal `json:"change"`
	Blocker     string          `json:"blocker,omitempty"`
}

// SubmitResult is the outcome of an accepted submission
type SubmitResult struct {
	SessionID string           `json:"session_id"`
	Receipt   checkout.Receipt `json:"receipt"`
	Replayed  bool             `json:"replayed"`
}
