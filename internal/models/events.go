package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCheckoutSubmitted = "CHECKOUT_SUBMITTED"
	EventTypeCheckoutFailed    = "CHECKOUT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutSubmittedEvent is published once the settlement service accepts a sale.
type CheckoutSubmittedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	Status        string          `json:"status"`
	SessionID     string          `json:"session_id"`
	AccountID     string          `json:"account_id"`
	CustomerRef   string          `json:"customer_ref"`
	SaleStructure string          `json:"sale_structure"`
	CartTotal     decimal.Decimal `json:"cart_total"`
	AmountDueNow  decimal.Decimal `json:"amount_due_now"`
	Tendered      decimal.Decimal `json:"tendered"`
	Change        decimal.Decimal `json:"change"`
	ScheduleDue   decimal.Decimal `json:"schedule_due"`
	Installments  int             `json:"installments"`
}

// CheckoutFailedEvent is published when the settlement service rejects a sale.
type CheckoutFailedEvent struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	AccountID     string `json:"account_id"`
	SaleStructure string `json:"sale_structure"`
	Reason        string `json:"reason"`
}
