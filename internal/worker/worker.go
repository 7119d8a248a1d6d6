package worker

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReceiptStore persists projected receipts.
type ReceiptStore interface {
	ProjectReceipt(ctx context.Context, eventID, eventType string, r *models.Receipt) (bool, error)
}

// ReceiptWorker projects accepted sales into the local receipts table so they can
// be looked up and reprinted after the session has been cleared.
type ReceiptWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        ReceiptStore
	logger       *zap.Logger
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(consumer *broker.Consumer, store ReceiptStore) *ReceiptWorker {
	w := &ReceiptWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnCheckoutSubmitted(w.HandleCheckoutSubmitted)
	w.eventHandler.OnCheckoutFailed(w.HandleCheckoutFailed)

	return w
}

// Start starts the worker
func (w *ReceiptWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting receipt worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.consumer.Close()
}

// HandleCheckoutSubmitted stores the receipt of an accepted sale. Redelivered
// events are skipped.
func (w *ReceiptWorker) HandleCheckoutSubmitted(ctx context.Context, event *models.CheckoutSubmittedEvent) error {
	ctx, span := util.StartSpan(ctx, "ReceiptWorker.HandleCheckoutSubmitted")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", event.EventID),
		attribute.Int64("order_id", event.OrderID),
	)

	submittedAt := event.Timestamp
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	receipt := &models.Receipt{
		OrderID:       event.OrderID,
		Status:        event.Status,
		SessionID:     event.SessionID,
		AccountID:     event.AccountID,
		CustomerRef:   event.CustomerRef,
		SaleStructure: event.SaleStructure,
		CartTotal:     event.CartTotal,
		AmountDueNow:  event.AmountDueNow,
		Tendered:      event.Tendered,
		ChangeDue:     event.Change,
		ScheduleDue:   event.ScheduleDue,
		Installments:  event.Installments,
		SubmittedAt:   submittedAt,
	}

	stored, err := w.store.ProjectReceipt(ctx, event.EventID, event.EventType, receipt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to project receipt for order %d: %w", event.OrderID, err)
	}
	if !stored {
		w.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	util.ReceiptsProjectedTotal.Inc()
	w.logger.Info("Receipt projected",
		zap.Int64("order_id", event.OrderID),
		zap.String("session_id", event.SessionID))
	return nil
}

// HandleCheckoutFailed logs rejected sales. Nothing is projected for them.
func (w *ReceiptWorker) HandleCheckoutFailed(_ context.Context, event *models.CheckoutFailedEvent) error {
	w.logger.Info("Checkout rejected by settlement",
		zap.String("session_id", event.SessionID),
		zap.String("sale_structure", event.SaleStructure),
		zap.String("reason", event.Reason))
	return nil
}
