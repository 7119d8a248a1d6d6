// Package settlement submits finished sales to the external settlement service.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const salesPath = "/api/v1/sales"

// ErrUnavailable marks a submission that never got an answer from the service.
var ErrUnavailable = errors.New("settlement service unavailable")

// ServiceError is a rejection reported by the settlement service. Message is the
// service's own text, passed through unchanged.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Result is the accepted sale.
type Result struct {
	OrderID int64
	Status  string
}

// Client talks to the settlement service over HTTP. It sends each sale exactly
// once and never retries on its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a settlement client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// Submit sends the payload and returns the order the service created.
func (c *Client) Submit(ctx context.Context, p checkout.Payload) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "SettlementClient.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", p.SessionID),
		attribute.String("sale_structure", p.Structure.String()),
	)

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	saleReq, err := NewSaleRequest(p)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(saleReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sale request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+salesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", p.AccountID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read settlement response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		svcErr := &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
		span.SetStatus(codes.Error, svcErr.Message)
		c.logger.Warn("Settlement rejected sale",
			zap.String("session_id", p.SessionID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", svcErr.Message))
		return nil, svcErr
	}

	var out SaleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode settlement response: %w", err)
	}

	c.logger.Info("Sale settled",
		zap.String("session_id", p.SessionID),
		zap.Int64("order_id", out.OrderID),
		zap.String("status", out.Status))

	return &Result{OrderID: out.OrderID, Status: out.Status}, nil
}

func errorMessage(status int, raw []byte) string {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(status)
}
