package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"
	"checkout-service/internal/settlement"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrSessionBusy is returned when another request currently holds the session.
var ErrSessionBusy = errors.New("checkout session is busy")

const (
	abandonedSubmissionMessage = "the previous submission did not report back; check the settlement service before resubmitting"
	receiptCacheTTL            = 24 * time.Hour
	submitLockMargin           = 5 * time.Second
)

// Options tunes session and lock lifetimes. LockTTL is raised to outlive
// SettlementTimeout so the lock cannot expire while a call is still running.
type Options struct {
	SessionTTL        time.Duration
	LockTTL           time.Duration
	SettlementTimeout time.Duration
}

// CheckoutService drives checkout sessions through the workflow and submits
// finished sales to settlement
type CheckoutService struct {
	sessions   SessionStore
	locker     Locker
	catalog    Catalog
	receipts   ReceiptReader
	settlement Settlement
	events     EventPublisher
	opts       Options
	now        func() time.Time
	logger     *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	sessions SessionStore,
	locker Locker,
	catalog Catalog,
	receipts ReceiptReader,
	settler Settlement,
	events EventPublisher,
	opts Options,
) *CheckoutService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = 15 * time.Second
	}
	if floor := opts.SettlementTimeout + submitLockMargin; opts.LockTTL < floor {
		opts.LockTTL = floor
	}
	return &CheckoutService{
		sessions:   sessions,
		locker:     locker,
		catalog:    catalog,
		receipts:   receipts,
		settlement: settler,
		events:     events,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     util.GetLogger(),
	}
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("checkout:%s", sessionID)
}

// Start opens a new empty session
func (s *CheckoutService) Start(ctx context.Context) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Start")
	defer span.End()

	sess := checkout.NewSession(uuid.New().String(), s.now())
	if err := s.sessions.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	util.CheckoutsStartedTotal.Inc()
	s.logger.Info("Checkout started", zap.String("session_id", sess.ID))

	return s.view(sess)
}

// Get returns the current state of a session
func (s *CheckoutService) Get(ctx context.Context, id string) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Get")
	defer span.End()

	sess, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess)
}

// SelectCustomer attaches a directory customer to the sale
func (s *CheckoutService) SelectCustomer(ctx context.Context, id string, req *SelectCustomerRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "SelectCustomer", func(ctx context.Context, sess *checkout.Session) error {
		customer, err := s.catalog.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		return sess.SelectCustomer(strconv.FormatInt(customer.ID, 10))
	})
}

// AddItem puts a product on the cart at its catalog price
func (s *CheckoutService) AddItem(ctx context.Context, id string, req *AddItemRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "AddItem", func(ctx context.Context, sess *checkout.Session) error {
		product, err := s.catalog.GetProductByID(ctx, req.ProductID)
		if err != nil {
			return err
		}
		return sess.AddLine(checkout.CartLine{
			ProductRef: strconv.FormatInt(product.ID, 10),
			Name:       product.Name,
			UnitPrice:  product.Price,
			Quantity:   req.Quantity,
		})
	})
}

// UpdateItem changes the quantity of a cart line
func (s *CheckoutService) UpdateItem(ctx context.Context, id, productRef string, req *UpdateItemRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "UpdateItem", func(_ context.Context, sess *checkout.Session) error {
		return sess.SetLineQuantity(productRef, req.Quantity)
	})
}

// RemoveItem drops a cart line
func (s *CheckoutService) RemoveItem(ctx context.Context, id, productRef string) (*SessionView, error) {
	return s.mutate(ctx, id, "RemoveItem", func(_ context.Context, sess *checkout.Session) error {
		return sess.RemoveLine(productRef)
	})
}

// ConfigurePlan applies the plan parameters and regenerates the schedule
func (s *CheckoutService) ConfigurePlan(ctx context.Context, id string, req *ConfigurePlanRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "ConfigurePlan", func(_ context.Context, sess *checkout.Session) error {
		if err := sess.SetStructure(req.Structure); err != nil {
			return err
		}
		if req.DownPayment != nil {
			if err := sess.SetDownPayment(*req.DownPayment); err != nil {
				return err
			}
		}
		if req.InterestRatePercent != nil {
			if err := sess.SetInterestRate(*req.InterestRatePercent); err != nil {
				return err
			}
		}
		if req.Deduction != nil {
			if err := sess.SetDeduction(*req.Deduction); err != nil {
				return err
			}
		}
		if !req.Structure.IsInstallment() {
			return nil
		}

		if req.InstallmentPlanID != nil {
			if err := sess.SetInstallmentPlan(req.InstallmentPlanID); err != nil {
				return err
			}
		}

		rule := sess.Plan.Recurrence
		if req.Recurrence != nil {
			rule = *req.Recurrence
		}
		start := sess.Plan.StartDate
		if req.StartDate != nil {
			start = *req.StartDate
		}
		count := sess.Plan.Count
		if req.Count != 0 {
			count = req.Count
		}
		if start.IsZero() {
			return nil
		}
		if err := sess.ConfigureSchedule(rule, start, count); err != nil {
			return err
		}
		util.SchedulesGeneratedTotal.WithLabelValues(rule.Kind.String()).Inc()
		return nil
	})
}

// EditInstallment overrides one installment of the generated schedule
func (s *CheckoutService) EditInstallment(ctx context.Context, id string, index int, req *EditInstallmentRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "EditInstallment", func(_ context.Context, sess *checkout.Session) error {
		return sess.EditInstallment(index, req.Amount, req.DueDate)
	})
}

// SetTender records the tendered amount and method
func (s *CheckoutService) SetTender(ctx context.Context, id string, req *TenderRequest) (*SessionView, error) {
	return s.mutate(ctx, id, "SetTender", func(_ context.Context, sess *checkout.Session) error {
		return sess.SetTender(req.Tendered, req.Method)
	})
}

// Advance moves the session to the next step
func (s *CheckoutService) Advance(ctx context.Context, id string) (*SessionView, error) {
	return s.mutate(ctx, id, "Advance", func(_ context.Context, sess *checkout.Session) error {
		from := sess.Step
		if err := sess.Advance(); err != nil {
			var verr *checkout.ValidationError
			if errors.As(err, &verr) {
				util.ValidationFailuresTotal.WithLabelValues(verr.Step.String()).Inc()
			}
			return err
		}
		util.StepTransitionsTotal.WithLabelValues(from.String(), "forward").Inc()
		return nil
	})
}

// Back moves the session to the previous step
func (s *CheckoutService) Back(ctx context.Context, id string) (*SessionView, error) {
	return s.mutate(ctx, id, "Back", func(_ context.Context, sess *checkout.Session) error {
		from := sess.Step
		if err := sess.Back(); err != nil {
			return err
		}
		util.StepTransitionsTotal.WithLabelValues(from.String(), "back").Inc()
		return nil
	})
}

// Reset discards everything entered in the session
func (s *CheckoutService) Reset(ctx context.Context, id string) (*SessionView, error) {
	return s.mutate(ctx, id, "Reset", func(_ context.Context, sess *checkout.Session) error {
		if err := sess.Reset(s.now()); err != nil {
			return err
		}
		util.CheckoutsResetTotal.Inc()
		return nil
	})
}

// Submit validates the session and sends it to settlement exactly once. A replayed
// idempotency key returns the receipt of the first attempt without a new call.
func (s *CheckoutService) Submit(ctx context.Context, id, accountID, idempotencyKey string) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	if idempotencyKey != "" {
		if cached, ok := s.cachedResult(ctx, id, idempotencyKey); ok {
			s.logger.Info("Duplicate submit request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", cached.Receipt.OrderID))
			return cached, nil
		}
	}

	token, err := s.locker.AcquireLock(ctx, lockKey(id), s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if token == "" {
		return nil, ErrSessionBusy
	}
	defer s.releaseLock(id, token)

	sess, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.recoverAbandoned(sess); err != nil {
		return nil, err
	}

	now := s.now()
	payload, err := checkout.Freeze(sess, accountID, now)
	if err != nil {
		var verr *checkout.ValidationError
		if errors.As(err, &verr) {
			util.ValidationFailuresTotal.WithLabelValues(verr.Step.String()).Inc()
		}
		util.SubmissionsTotal.WithLabelValues(sess.Plan.Structure.String(), "blocked").Inc()
		return nil, err
	}

	if err := sess.BeginSubmission(now); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	// The request is never abandoned once sent, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	res, err := s.settlement.Submit(ctx, payload)
	if err != nil {
		s.failSubmission(ctx, sess, payload, err)
		return nil, err
	}

	receipt := checkout.Receipt{
		OrderID:      res.OrderID,
		Status:       res.Status,
		SubmittedAt:  now,
		AmountDueNow: payload.Totals.AmountDueNow,
		Tendered:     payload.Tendered,
		Change:       payload.Change,
	}
	if err := sess.CompleteSubmission(receipt, s.now()); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		s.logger.Error("Failed to save completed session",
			zap.String("session_id", id),
			zap.Int64("order_id", res.OrderID),
			zap.Error(err))
	}

	util.SubmissionsTotal.WithLabelValues(payload.Structure.String(), "succeeded").Inc()

	event := &models.CheckoutSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCheckoutSubmitted,
			Timestamp: now,
		},
		OrderID:       res.OrderID,
		Status:        res.Status,
		SessionID:     payload.SessionID,
		AccountID:     payload.AccountID,
		CustomerRef:   payload.CustomerRef,
		SaleStructure: payload.Structure.String(),
		CartTotal:     payload.Totals.CartTotal,
		AmountDueNow:  payload.Totals.AmountDueNow,
		Tendered:      payload.Tendered,
		Change:        payload.Change,
		ScheduleDue:   payload.Totals.ScheduleDue,
		Installments:  len(payload.Schedule),
	}
	if err := s.events.PublishCheckoutSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutSubmitted event", zap.Error(err))
	}

	result := &SubmitResult{SessionID: id, Receipt: receipt}
	if idempotencyKey != "" {
		s.cacheResult(ctx, id, idempotencyKey, result)
	}

	s.logger.Info("Checkout submitted",
		zap.String("session_id", id),
		zap.Int64("order_id", res.OrderID),
		zap.String("sale_structure", payload.Structure.String()))

	return result, nil
}

// Receipt returns the projected receipt of a settled order
func (s *CheckoutService) Receipt(ctx context.Context, orderID int64) (*models.Receipt, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Receipt")
	defer span.End()

	return s.receipts.GetReceipt(ctx, orderID)
}

// PreviewPlan computes totals and a schedule for arbitrary inputs
func (s *CheckoutService) PreviewPlan(ctx context.Context, req *PreviewRequest) (*Preview, error) {
	_, span := util.StartSpan(ctx, "CheckoutService.PreviewPlan")
	defer span.End()

	totals, err := plan.Calculate(plan.Input{
		CartTotal:           req.CartTotal,
		Structure:           req.Structure,
		DownPayment:         req.DownPayment,
		InterestRatePercent: req.InterestRatePercent,
		Deduction:           req.Deduction,
	})
	if err != nil {
		return nil, err
	}

	preview := &Preview{Totals: totals, Schedule: []schedule.InstallmentLine{}}
	if !req.Structure.IsInstallment() {
		return preview, nil
	}

	rule := req.Recurrence
	if rule.Kind == 0 {
		rule.Kind = schedule.Monthly
	}
	start := req.StartDate
	if start.IsZero() {
		start = schedule.DateOf(s.now())
	}
	lines, err := schedule.Generate(totals.ScheduleDue, start, rule, req.Count)
	if err != nil {
		return nil, err
	}
	util.SchedulesGeneratedTotal.WithLabelValues(rule.Kind.String()).Inc()

	preview.Schedule = lines
	return preview, nil
}

// mutate loads a session under its lock, applies fn and saves the result.
func (s *CheckoutService) mutate(ctx context.Context, id, op string, fn func(context.Context, *checkout.Session) error) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService."+op)
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	token, err := s.locker.AcquireLock(ctx, lockKey(id), s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if token == "" {
		return nil, ErrSessionBusy
	}
	defer s.releaseLock(id, token)

	sess, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.recoverAbandoned(sess); err != nil {
		return nil, err
	}

	if err := fn(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sess.UpdatedAt = s.now()
	if err := s.sessions.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return s.view(sess)
}

// recoverAbandoned fails a submission that is in flight although nobody holds the
// session lock. A submission younger than the settlement timeout may still get
// its answer, so it is reported as in flight instead.
func (s *CheckoutService) recoverAbandoned(sess *checkout.Session) error {
	if sess.Lifecycle.State != checkout.InFlight {
		return nil
	}
	if s.now().Sub(sess.Lifecycle.StartedAt) < s.opts.SettlementTimeout+submitLockMargin {
		return checkout.ErrSubmissionInFlight
	}
	s.logger.Warn("Recovering abandoned submission",
		zap.String("session_id", sess.ID),
		zap.Time("started_at", sess.Lifecycle.StartedAt))
	return sess.FailSubmission(abandonedSubmissionMessage, s.now())
}

func (s *CheckoutService) failSubmission(ctx context.Context, sess *checkout.Session, payload checkout.Payload, cause error) {
	message := cause.Error()
	var svcErr *settlement.ServiceError
	if errors.As(cause, &svcErr) {
		message = svcErr.Message
	}

	if err := sess.FailSubmission(message, s.now()); err != nil {
		s.logger.Error("Failed to record submission failure", zap.Error(err))
	}
	if err := s.sessions.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		s.logger.Error("Failed to save failed session", zap.String("session_id", sess.ID), zap.Error(err))
	}

	util.SubmissionsTotal.WithLabelValues(payload.Structure.String(), "failed").Inc()

	event := &models.CheckoutFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCheckoutFailed,
			Timestamp: s.now(),
		},
		SessionID:     payload.SessionID,
		AccountID:     payload.AccountID,
		SaleStructure: payload.Structure.String(),
		Reason:        message,
	}
	if err := s.events.PublishCheckoutFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutFailed event", zap.Error(err))
	}
}

func (s *CheckoutService) releaseLock(id, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.locker.ReleaseLock(ctx, lockKey(id), token); err != nil {
		s.logger.Error("Failed to release session lock", zap.String("session_id", id), zap.Error(err))
	}
}

func submitKey(sessionID, key string) string {
	return "submit:" + sessionID + ":" + key
}

func (s *CheckoutService) cachedResult(ctx context.Context, id, key string) (*SubmitResult, bool) {
	data, ok, err := s.locker.GetIdempotencyKey(ctx, submitKey(id, key))
	if err != nil {
		s.logger.Warn("Failed to read idempotency key", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var result SubmitResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("Discarding unreadable idempotency entry", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	result.Replayed = true
	return &result, true
}

func (s *CheckoutService) cacheResult(ctx context.Context, id, key string, result *SubmitResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to marshal submit result", zap.Error(err))
		return
	}
	if err := s.locker.SetIdempotencyKey(ctx, submitKey(id, key), data, receiptCacheTTL); err != nil {
		s.logger.Error("Failed to store idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *CheckoutService) view(sess *checkout.Session) (*SessionView, error) {
	totals, err := sess.Totals()
	if err != nil {
		return nil, err
	}

	v := &SessionView{
		Session:     sess,
		Totals:      totals,
		ScheduleSum: schedule.Sum(sess.Plan.Schedule),
		Change:      plan.Change(totals.AmountDueNow, sess.Tender.Tendered),
	}
	if sess.Step != checkout.SubmitPayment {
		if err := sess.CanAdvance(); err != nil {
			v.Blocker = err.Error()
		}
	}
	return v, nil
}
