package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerAccountID      = "X-Account-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

// ReadinessCheck is a dependency that must answer before the service is ready
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkouts *service.CheckoutService
	directory *service.DirectoryService
	checks    []ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checkouts *service.CheckoutService, directory *service.DirectoryService, checks ...ReadinessCheck) *Handler {
	return &Handler{
		checkouts: checkouts,
		directory: directory,
		checks:    checks,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		checkouts := v1.Group("/checkouts")
		checkouts.POST("", h.startCheckout)
		checkouts.GET("/:id", h.getCheckout)
		checkouts.DELETE("/:id", h.resetCheckout)
		checkouts.PUT("/:id/customer", h.selectCustomer)
		checkouts.POST("/:id/items", h.addItem)
		checkouts.PUT("/:id/items/:productId", h.updateItem)
		checkouts.DELETE("/:id/items/:productId", h.removeItem)
		checkouts.PUT("/:id/plan", h.configurePlan)
		checkouts.PUT("/:id/schedule/:index", h.editInstallment)
		checkouts.PUT("/:id/tender", h.setTender)
		checkouts.POST("/:id/advance", h.advance)
		checkouts.POST("/:id/back", h.back)
		checkouts.POST("/:id/submit", h.submit)

		v1.POST("/schedules/preview", h.previewPlan)
		v1.GET("/customers", h.searchCustomers)
		v1.GET("/products", h.searchProducts)
		v1.GET("/receipts/:orderId", h.getReceipt)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failing[check.Name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failing,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) startCheckout(c *gin.Context) {
	view, err := h.checkouts.Start(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) getCheckout(c *gin.Context) {
	view, err := h.checkouts.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *Handler) resetCheckout(c *gin.Context) {
	view, err := h.checkouts.Reset(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *Handler) selectCustomer(c *gin.Context) {
	var req service.SelectCustomerRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.SelectCustomer(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *Handler) addItem(c *gin.Context) {
	var req service.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.AddItem(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *Handler) updateItem(c *gin.Context) {
	var req service.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.UpdateItem(c.Request.Context(), c.Param("id"), c.Param("productId"), &req)
	h.respond(c, view, err)
}

func (h *Handler) removeItem(c *gin.Context) {
	view, err := h.checkouts.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("productId"))
	h.respond(c, view, err)
}

func (h *Handler) configurePlan(c *gin.Context) {
	var req service.ConfigurePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.ConfigurePlan(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *Handler) editInstallment(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid installment index",
		})
		return
	}

	var req service.EditInstallmentRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.EditInstallment(c.Request.Context(), c.Param("id"), index, &req)
	h.respond(c, view, err)
}

func (h *Handler) setTender(c *gin.Context) {
	var req service.TenderRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.checkouts.SetTender(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *Handler) advance(c *gin.Context) {
	view, err := h.checkouts.Advance(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *Handler) back(c *gin.Context) {
	view, err := h.checkouts.Back(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

// submit sends the finished sale to settlement. The account comes from the
// X-Account-ID header; Idempotency-Key makes retries of the same request safe.
func (h *Handler) submit(c *gin.Context) {
	res, err := h.checkouts.Submit(
		c.Request.Context(),
		c.Param("id"),
		c.GetHeader(headerAccountID),
		c.GetHeader(headerIdempotencyKey),
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) previewPlan(c *gin.Context) {
	var req service.PreviewRequest
	if !bindJSON(c, &req) {
		return
	}
	preview, err := h.checkouts.PreviewPlan(c.Request.Context(), &req)
	h.respond(c, preview, err)
}

func (h *Handler) searchCustomers(c *gin.Context) {
	customers, err := h.directory.SearchCustomers(c.Request.Context(), c.Query("q"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *Handler) searchProducts(c *gin.Context) {
	products, err := h.directory.SearchProducts(c.Request.Context(), c.Query("q"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getReceipt(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	receipt, err := h.checkouts.Receipt(c.Request.Context(), orderID)
	h.respond(c, receipt, err)
}

func (h *Handler) respond(c *gin.Context, body interface{}, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
