package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as the directory returns it.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Customer is a directory entry a sale can be made to.
type Customer struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Phone       string          `db:"phone" json:"phone,omitempty"`
	Email       string          `db:"email" json:"email,omitempty"`
	CreditLimit decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Receipt is the local projection of a sale the settlement service accepted.
type Receipt struct {
	OrderID       int64           `db:"order_id" json:"order_id"`
	Status        string          `db:"status" json:"status"`
	SessionID     string          `db:"session_id" json:"session_id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	CustomerRef   string          `db:"customer_ref" json:"customer_ref"`
	SaleStructure string          `db:"sale_structure" json:"sale_structure"`
	CartTotal     decimal.Decimal `db:"cart_total" json:"cart_total"`
	AmountDueNow  decimal.Decimal `db:"amount_due_now" json:"amount_due_now"`
	Tendered      decimal.Decimal `db:"tendered" json:"tendered"`
	ChangeDue     decimal.Decimal `db:"change_due" json:"change"`
	ScheduleDue   decimal.Decimal `db:"schedule_due" json:"schedule_due"`
	Installments  int             `db:"installments" json:"installments"`
	SubmittedAt   time.Time       `db:"submitted_at" json:"submitted_at"`
	ProjectedAt   time.Time       `db:"projected_at" json:"projected_at"`
}
