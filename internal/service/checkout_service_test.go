package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/plan"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/schedule"
	"checkout-service/internal/settlement"
	"checkout-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func datePtr(d schedule.Date) *schedule.Date {
	return &d
}

// readyInstallmentSale walks a session to the submit step: two TVs, 50 down, 10%
// interest, three monthly installments from 2024-01-31, 60 tendered.
func readyInstallmentSale(t *testing.T, h *harness) string {
	t.Helper()
	ctx := context.Background()

	v, err := h.svc.Start(ctx)
	require.NoError(t, err)
	id := v.ID

	_, err = h.svc.SelectCustomer(ctx, id, &SelectCustomerRequest{CustomerID: 7})
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.AddItem(ctx, id, &AddItemRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, id)
	require.NoError(t, err)

	v, err = h.svc.ConfigurePlan(ctx, id, &ConfigurePlanRequest{
		Structure:           plan.InstallmentWithDown,
		DownPayment:         dec("50.00"),
		InterestRatePercent: dec("10"),
		Recurrence:          &schedule.Recurrence{Kind: schedule.Monthly},
		StartDate:           datePtr(schedule.NewDate(2024, time.January, 31)),
		Count:               3,
	})
	require.NoError(t, err)
	require.Len(t, v.Plan.Schedule, 3)

	_, err = h.svc.Advance(ctx, id)
	require.NoError(t, err)

	v, err = h.svc.SetTender(ctx, id, &TenderRequest{Tendered: *dec("60.00"), Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, checkout.SubmitPayment, v.Step)
	return id
}

func TestConfigurePlanBuildsView(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	v, err := h.svc.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "7", v.CustomerRef)
	assert.Equal(t, "250.00", v.Totals.CartTotal.StringFixed(2))
	assert.Equal(t, "200.00", v.Totals.FinancedPrincipal.StringFixed(2))
	assert.Equal(t, "20.00", v.Totals.InterestAmount.StringFixed(2))
	assert.Equal(t, "220.00", v.ScheduleSum.StringFixed(2))
	assert.Equal(t, "10.00", v.Change.StringFixed(2))
	assert.Equal(t, "2024-02-29", v.Plan.Schedule[1].DueDate.String())
	assert.Empty(t, v.Blocker)
}

func TestSubmitSuccess(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	h.settlement.onSubmit = func(p checkout.Payload) {
		// the lock is held and the session is marked in flight during the call
		assert.Contains(t, h.locker.locks, lockKey(id))
		stored, err := h.sessions.LoadSession(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, checkout.InFlight, stored.Lifecycle.State)
	}

	res, err := h.svc.Submit(ctx, id, "acct-1", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1042), res.Receipt.OrderID)
	assert.Equal(t, "confirmed", res.Receipt.Status)
	assert.Equal(t, "50.00", res.Receipt.AmountDueNow.StringFixed(2))
	assert.Equal(t, "10.00", res.Receipt.Change.StringFixed(2))
	assert.False(t, res.Replayed)

	require.Equal(t, 1, h.settlement.calls)
	p := h.settlement.payloads[0]
	assert.Equal(t, "acct-1", p.AccountID)
	assert.True(t, schedule.Sum(p.Schedule).Equal(decimal.RequireFromString("220")))

	v, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.SelectCustomer, v.Step)
	assert.Empty(t, v.Cart)
	assert.Equal(t, checkout.Succeeded, v.Lifecycle.State)
	require.NotNil(t, v.Lifecycle.Receipt)
	assert.Equal(t, int64(1042), v.Lifecycle.Receipt.OrderID)

	require.Len(t, h.events.submitted, 1)
	e := h.events.submitted[0]
	assert.Equal(t, 3, e.Installments)
	assert.Equal(t, "installment_with_down", e.SaleStructure)
	assert.Empty(t, h.locker.locks)
}

func TestSubmitBlockedLocally(t *testing.T) {
	tests := []struct {
		name    string
		account string
		tender  string
		want    error
	}{
		{"insufficient tender", "acct-1", "49.99", checkout.ErrInsufficientTender},
		{"missing account", "", "60.00", checkout.ErrMissingAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			id := readyInstallmentSale(t, h)

			_, err := h.svc.SetTender(ctx, id, &TenderRequest{Tendered: *dec(tt.tender), Method: "cash"})
			require.NoError(t, err)

			_, err = h.svc.Submit(ctx, id, tt.account, "")
			assert.ErrorIs(t, err, tt.want)

			var verr *checkout.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Zero(t, h.settlement.calls)
			assert.Empty(t, h.events.failed)
		})
	}
}

func TestSubmitFailureKeepsSessionForRetry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	h.settlement.err = &settlement.ServiceError{StatusCode: 422, Message: "Customer credit limit exceeded"}
	_, err := h.svc.Submit(ctx, id, "acct-1", "")

	var svcErr *settlement.ServiceError
	require.True(t, errors.As(err, &svcErr))

	v, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.Failed, v.Lifecycle.State)
	assert.Equal(t, "Customer credit limit exceeded", v.Lifecycle.LastError)
	assert.Equal(t, checkout.SubmitPayment, v.Step)
	assert.Len(t, v.Cart, 1)
	assert.Len(t, v.Plan.Schedule, 3)

	require.Len(t, h.events.failed, 1)
	assert.Equal(t, "Customer credit limit exceeded", h.events.failed[0].Reason)

	h.settlement.err = nil
	res, err := h.svc.Submit(ctx, id, "acct-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), res.Receipt.OrderID)
	assert.Equal(t, 2, h.settlement.calls)
}

func TestSubmitReplaysIdempotencyKey(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	first, err := h.svc.Submit(ctx, id, "acct-1", "key-1")
	require.NoError(t, err)

	second, err := h.svc.Submit(ctx, id, "acct-1", "key-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.settlement.calls)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Receipt.OrderID, second.Receipt.OrderID)
	assert.True(t, first.Receipt.Tendered.Equal(second.Receipt.Tendered))
}

func TestIdempotencyKeyIsScopedToSession(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	a := readyInstallmentSale(t, h)
	b := readyInstallmentSale(t, h)

	_, err := h.svc.Submit(ctx, a, "acct-1", "key-1")
	require.NoError(t, err)

	res, err := h.svc.Submit(ctx, b, "acct-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, b, res.SessionID)
	assert.False(t, res.Replayed)
	assert.Equal(t, 2, h.settlement.calls)

	v, err := h.svc.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, checkout.Succeeded, v.Lifecycle.State)
}

func TestSessionBusy(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	h.locker.locks[lockKey(id)] = "someone-else"

	_, err := h.svc.Submit(ctx, id, "acct-1", "")
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = h.svc.Back(ctx, id)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Zero(t, h.settlement.calls)
}

func TestAbandonedSubmissionIsRecovered(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	sess, err := h.sessions.LoadSession(ctx, id)
	require.NoError(t, err)
	require.NoError(t, sess.BeginSubmission(fixedNow.Add(-time.Minute)))
	require.NoError(t, h.sessions.SaveSession(ctx, sess, time.Minute))

	v, err := h.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.Failed, v.Lifecycle.State)
	assert.Equal(t, abandonedSubmissionMessage, v.Lifecycle.LastError)
	assert.Equal(t, checkout.ConfigurePlan, v.Step)
}

func TestRecentSubmissionIsNotRecovered(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	sess, err := h.sessions.LoadSession(ctx, id)
	require.NoError(t, err)
	require.NoError(t, sess.BeginSubmission(fixedNow.Add(-5*time.Second)))
	require.NoError(t, h.sessions.SaveSession(ctx, sess, time.Minute))

	_, err = h.svc.Back(ctx, id)
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
	_, err = h.svc.Submit(ctx, id, "acct-1", "")
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
	assert.Zero(t, h.settlement.calls)

	v, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.InFlight, v.Lifecycle.State)
}

func TestExpiredLockDuringSettlementDoesNotResubmit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	var concurrentErr error
	h.settlement.onSubmit = func(checkout.Payload) {
		if h.settlement.calls > 1 {
			return
		}
		delete(h.locker.locks, lockKey(id))
		_, concurrentErr = h.svc.Submit(ctx, id, "acct-1", "")
	}

	res, err := h.svc.Submit(ctx, id, "acct-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), res.Receipt.OrderID)
	assert.ErrorIs(t, concurrentErr, checkout.ErrSubmissionInFlight)
	assert.Equal(t, 1, h.settlement.calls)
	assert.Empty(t, h.events.failed)

	v, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.Succeeded, v.Lifecycle.State)
}

func TestLockOutlivesSettlementTimeout(t *testing.T) {
	svc := NewCheckoutService(nil, nil, nil, nil, nil, nil, Options{
		LockTTL:           10 * time.Second,
		SettlementTimeout: 30 * time.Second,
	})
	assert.Equal(t, 35*time.Second, svc.opts.LockTTL)

	svc = NewCheckoutService(nil, nil, nil, nil, nil, nil, Options{})
	assert.Equal(t, 30*time.Second, svc.opts.LockTTL)
	assert.Equal(t, 15*time.Second, svc.opts.SettlementTimeout)
}

func TestAdvanceBlockedByEditedInstallment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	_, err := h.svc.Back(ctx, id)
	require.NoError(t, err)

	v, err := h.svc.EditInstallment(ctx, id, 0, &EditInstallmentRequest{Amount: dec("73.32")})
	require.NoError(t, err)
	assert.Equal(t, "219.99", v.ScheduleSum.StringFixed(2))
	assert.Contains(t, v.Blocker, "219.99")

	_, err = h.svc.Advance(ctx, id)
	assert.ErrorIs(t, err, checkout.ErrScheduleMismatch)

	v, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.ConfigurePlan, v.Step)
}

func TestConfigurePlanSwitchToFullPaymentDropsSchedule(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	v, err := h.svc.ConfigurePlan(ctx, id, &ConfigurePlanRequest{
		Structure: plan.FullPayment,
		Deduction: dec("5.00"),
	})
	require.NoError(t, err)
	assert.Nil(t, v.Plan.Schedule)
	assert.True(t, v.Plan.DownPayment.IsZero())
	assert.Equal(t, "245.00", v.Totals.AmountDueNow.StringFixed(2))
}

func TestConfigurePlanKeepsOmittedPlanID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := readyInstallmentSale(t, h)

	planID := int64(3)
	_, err := h.svc.ConfigurePlan(ctx, id, &ConfigurePlanRequest{
		Structure:         plan.InstallmentWithDown,
		InstallmentPlanID: &planID,
	})
	require.NoError(t, err)

	v, err := h.svc.ConfigurePlan(ctx, id, &ConfigurePlanRequest{
		Structure:           plan.InstallmentWithDown,
		InterestRatePercent: dec("12"),
	})
	require.NoError(t, err)
	require.NotNil(t, v.Plan.InstallmentPlanID)
	assert.Equal(t, int64(3), *v.Plan.InstallmentPlanID)
}

func TestUnknownReferences(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, redisclient.ErrSessionNotFound)

	v, err := h.svc.Start(ctx)
	require.NoError(t, err)

	_, err = h.svc.SelectCustomer(ctx, v.ID, &SelectCustomerRequest{CustomerID: 99})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.svc.AddItem(ctx, v.ID, &AddItemRequest{ProductID: 99, Quantity: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.svc.RemoveItem(ctx, v.ID, "1")
	assert.ErrorIs(t, err, checkout.ErrLineNotFound)
}

func TestCartEdits(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	v, err := h.svc.Start(ctx)
	require.NoError(t, err)
	id := v.ID

	_, err = h.svc.AddItem(ctx, id, &AddItemRequest{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	v, err = h.svc.AddItem(ctx, id, &AddItemRequest{ProductID: 2, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, v.Cart, 1)
	assert.Equal(t, 3, v.Cart[0].Quantity)
	assert.Equal(t, "Desk fan", v.Cart[0].Name)

	v, err = h.svc.UpdateItem(ctx, id, "2", &UpdateItemRequest{Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "80.00", v.Totals.CartTotal.StringFixed(2))

	v, err = h.svc.RemoveItem(ctx, id, "2")
	require.NoError(t, err)
	assert.Empty(t, v.Cart)

	v, err = h.svc.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.SelectCustomer, v.Step)
}

func TestPreviewPlan(t *testing.T) {
	h := newHarness()

	p, err := h.svc.PreviewPlan(context.Background(), &PreviewRequest{
		CartTotal:   decimal.RequireFromString("100.00"),
		Structure:   plan.PureInstallment,
		DownPayment: decimal.RequireFromString("30.00"),
		Recurrence:  schedule.Recurrence{Kind: schedule.Monthly},
		StartDate:   schedule.NewDate(2024, time.January, 31),
		Count:       3,
	})
	require.NoError(t, err)

	assert.True(t, p.Totals.EffectiveDownPayment.IsZero())
	require.Len(t, p.Schedule, 3)
	assert.Equal(t, "33.33", p.Schedule[0].Amount.StringFixed(2))
	assert.Equal(t, "2024-02-29", p.Schedule[1].DueDate.String())
	assert.Equal(t, "33.34", p.Schedule[2].Amount.StringFixed(2))

	full, err := h.svc.PreviewPlan(context.Background(), &PreviewRequest{
		CartTotal: decimal.RequireFromString("80.00"),
		Structure: plan.FullPayment,
		Deduction: decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, full.Schedule)
	assert.Equal(t, "75.00", full.Totals.NetAmount.StringFixed(2))

	_, err = h.svc.PreviewPlan(context.Background(), &PreviewRequest{
		CartTotal: decimal.RequireFromString("-1"),
		Structure: plan.FullPayment,
	})
	assert.ErrorIs(t, err, plan.ErrNegativeCartTotal)
}

func TestDirectoryServiceSkipsEmptyTerm(t *testing.T) {
	h := newHarness()
	d := NewDirectoryService(h.catalog)

	customers, err := d.SearchCustomers(context.Background(), "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, customers)

	customers, err = d.SearchCustomers(context.Background(), "Ana Lima", 10)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, int64(7), customers[0].ID)
}
