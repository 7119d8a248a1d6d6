package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/checkout"
	"checkout-service/internal/plan"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/schedule"
	"checkout-service/internal/service"
	"checkout-service/internal/settlement"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{redisclient.ErrSessionNotFound, http.StatusNotFound},
	{store.ErrNotFound, http.StatusNotFound},
	{checkout.ErrLineNotFound, http.StatusNotFound},
	{service.ErrSessionBusy, http.StatusConflict},
	{checkout.ErrSubmissionInFlight, http.StatusConflict},
	{checkout.ErrNoForwardStep, http.StatusUnprocessableEntity},
	{checkout.ErrInvalidQuantity, http.StatusBadRequest},
	{checkout.ErrNegativePrice, http.StatusBadRequest},
	{checkout.ErrNegativeAmount, http.StatusBadRequest},
	{checkout.ErrInstallmentIndex, http.StatusBadRequest},
	{checkout.ErrNoSchedule, http.StatusBadRequest},
	{checkout.ErrDueDateOrder, http.StatusBadRequest},
	{plan.ErrUnknownStructure, http.StatusBadRequest},
	{plan.ErrNegativeCartTotal, http.StatusBadRequest},
	{plan.ErrNegativeDownPayment, http.StatusBadRequest},
	{plan.ErrNegativeRate, http.StatusBadRequest},
	{plan.ErrNegativeDeduction, http.StatusBadRequest},
	{schedule.ErrNegativeTotal, http.StatusBadRequest},
	{schedule.ErrInvalidInterval, http.StatusBadRequest},
	{schedule.ErrUnknownKind, http.StatusBadRequest},
}

// classify maps an error onto a status code and response body.
func classify(err error) (int, gin.H) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusUnprocessableEntity
		if verr.Fatal() {
			status = http.StatusBadRequest
		}
		return status, gin.H{
			"error":   verr.Message,
			"code":    verr.Err.Error(),
			"step":    verr.Step,
			"details": err.Error(),
		}
	}

	// Settlement messages are passed through unchanged.
	var svcErr *settlement.ServiceError
	if errors.As(err, &svcErr) {
		return http.StatusBadGateway, gin.H{
			"error":  svcErr.Message,
			"status": svcErr.StatusCode,
		}
	}
	if errors.Is(err, settlement.ErrUnavailable) {
		return http.StatusBadGateway, gin.H{
			"error":   "Settlement service unavailable",
			"details": err.Error(),
		}
	}

	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status, gin.H{"error": err.Error()}
		}
	}

	return http.StatusInternalServerError, gin.H{
		"error":   "Internal error",
		"details": err.Error(),
	}
}
