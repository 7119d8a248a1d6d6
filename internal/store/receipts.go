package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// ProjectReceipt stores the receipt of a settled sale once per event. It reports
// false when the event had already been projected.
func (s *Store) ProjectReceipt(ctx context.Context, eventID, eventType string, r *models.Receipt) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO receipts (order_id, status, session_id, account_id, customer_ref, sale_structure,
			cart_total, amount_due_now, tendered, change_due, schedule_due, installments, submitted_at)
		VALUES (:order_id, :status, :session_id, :account_id, :customer_ref, :sale_structure,
			:cart_total, :amount_due_now, :tendered, :change_due, :schedule_due, :installments, :submitted_at)
		ON CONFLICT (order_id) DO UPDATE SET status = EXCLUDED.status`, r)
	if err != nil {
		return false, fmt.Errorf("failed to insert receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetReceipt retrieves a projected receipt by settlement order ID
func (s *Store) GetReceipt(ctx context.Context, orderID int64) (*models.Receipt, error) {
	var r models.Receipt
	err := s.db.GetContext(ctx, &r, "SELECT * FROM receipts WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
