package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/plan"
	"checkout-service/internal/schedule"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func installmentPayload(t *testing.T) checkout.Payload {
	t.Helper()

	now := time.Date(2024, time.January, 20, 9, 30, 0, 0, time.UTC)
	s := checkout.NewSession("sess-1", now)
	require.NoError(t, s.SelectCustomer("cust-7"))
	require.NoError(t, s.AddLine(checkout.CartLine{ProductRef: "p-1", UnitPrice: dec("125.00"), Quantity: 2}))
	require.NoError(t, s.SetStructure(plan.InstallmentWithDown))
	require.NoError(t, s.SetDownPayment(dec("50.00")))
	require.NoError(t, s.SetInterestRate(dec("10")))
	require.NoError(t, s.ConfigureSchedule(schedule.Recurrence{Kind: schedule.Monthly}, schedule.NewDate(2024, time.January, 31), 3))
	require.NoError(t, s.SetTender(dec("60.00"), "cash"))
	s.Step = checkout.SubmitPayment

	p, err := checkout.Freeze(s, "acct-1", now)
	require.NoError(t, err)
	return p
}

func TestNewSaleRequestInstallment(t *testing.T) {
	req, err := NewSaleRequest(installmentPayload(t))
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, "acct-1", body["accountId"])
	assert.Equal(t, "cust-7", body["customerId"])
	assert.Equal(t, "installment_with_down", body["saleStructure"])
	assert.Equal(t, "20.00", body["interestAmount"])
	assert.Equal(t, "200.00", body["totalFinanced"])
	assert.Equal(t, "270.00", body["totalWithInterest"])
	assert.Nil(t, body["installmentPlanId"])

	payment := body["payment"].(map[string]any)
	assert.Equal(t, "50.00", payment["amount"])
	assert.Equal(t, "60.00", payment["tendered"])
	assert.Equal(t, "10.00", payment["change"])
	assert.NotContains(t, payment, "deduction")

	entries := body["customSchedule"].([]any)
	require.Len(t, entries, 3)
	second := entries[1].(map[string]any)
	assert.Equal(t, "2024-02-29", second["dueDate"])
	assert.Equal(t, "73.33", second["amount"])

	items := body["items"].([]any)
	first := items[0].(map[string]any)
	assert.Equal(t, "p-1", first["productId"])
	assert.Equal(t, "250.00", first["lineTotal"])
}

func TestNewSaleRequestFullPayment(t *testing.T) {
	now := time.Date(2024, time.January, 20, 9, 30, 0, 0, time.UTC)
	s := checkout.NewSession("sess-2", now)
	require.NoError(t, s.SelectCustomer("cust-1"))
	require.NoError(t, s.AddLine(checkout.CartLine{ProductRef: "p-2", UnitPrice: dec("80.00"), Quantity: 1}))
	require.NoError(t, s.SetDeduction(dec("5.00")))
	require.NoError(t, s.SetTender(dec("75.00"), "card"))
	s.Step = checkout.SubmitPayment

	p, err := checkout.Freeze(s, "acct-1", now)
	require.NoError(t, err)

	data, err := json.Marshal(mustRequest(t, p))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Nil(t, body["customSchedule"])
	assert.NotContains(t, body, "totalFinanced")
	payment := body["payment"].(map[string]any)
	assert.Equal(t, "75.00", payment["amount"])
	assert.Equal(t, "5.00", payment["deduction"])
	assert.Equal(t, "75.00", payment["netAmount"])
	assert.Equal(t, "0.00", payment["change"])
}

func mustRequest(t *testing.T, p checkout.Payload) SaleRequest {
	t.Helper()
	req, err := NewSaleRequest(p)
	require.NoError(t, err)
	return req
}

func TestSubmitSuccess(t *testing.T) {
	var got SaleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, salesPath, r.URL.Path)
		assert.Equal(t, "acct-1", r.Header.Get("X-Account-ID"))

		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId": 1042, "status": "confirmed"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 2*time.Second)
	res, err := client.Submit(context.Background(), installmentPayload(t))
	require.NoError(t, err)

	assert.Equal(t, int64(1042), res.OrderID)
	assert.Equal(t, "confirmed", res.Status)
	assert.Len(t, got.CustomSchedule, 3)
	assert.True(t, decimal.Decimal(got.InterestAmount).Equal(dec("20")))
}

func TestSubmitSurfacesServiceMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", http.StatusUnprocessableEntity, `{"message":"Customer credit limit exceeded"}`, "Customer credit limit exceeded"},
		{"error field", http.StatusBadRequest, `{"error":"unknown product p-1"}`, "unknown product p-1"},
		{"plain text", http.StatusBadGateway, "ledger unavailable\n", "ledger unavailable"},
		{"empty body", http.StatusServiceUnavailable, "", "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), installmentPayload(t))

			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.status, svcErr.StatusCode)
			assert.Equal(t, tt.want, svcErr.Message)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestSubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Submit(context.Background(), installmentPayload(t))
	require.Error(t, err)

	var svcErr *ServiceError
	assert.False(t, errors.As(err, &svcErr))
	assert.ErrorIs(t, err, ErrUnavailable)
}
