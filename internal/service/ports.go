package service

import (
	"context"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/settlement"
)

// SessionStore keeps in-progress checkout sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *checkout.Session, ttl time.Duration) error
	LoadSession(ctx context.Context, id string) (*checkout.Session, error)
}

// Locker serialises writers of one session and remembers submit outcomes.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) ([]byte, bool, error)
}

// Catalog resolves the customers and products a sale refers to.
type Catalog interface {
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// Directory serves the read-only lookups behind the selection steps.
type Directory interface {
	SearchCustomers(ctx context.Context, term string, limit int) ([]models.Customer, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error)
}

// ReceiptReader returns projected receipts.
type ReceiptReader interface {
	GetReceipt(ctx context.Context, orderID int64) (*models.Receipt, error)
}

// Settlement is the external system of record for finished sales.
type Settlement interface {
	Submit(ctx context.Context, p checkout.Payload) (*settlement.Result, error)
}

// EventPublisher announces submission outcomes.
type EventPublisher interface {
	PublishCheckoutSubmitted(ctx context.Context, event *models.CheckoutSubmittedEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
}
