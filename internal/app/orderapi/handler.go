package orderapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// HTTPHandler adapts HTTP requests to the intake service.
type HTTPHandler struct {
	intake   ports.OrderIntake
	store    ports.OrderStore    // optional
	gatherer prometheus.Gatherer // optional
	logger   *logger.Logger
}

// NewHTTPHandler wires the HTTP surface. store and gatherer may be nil, in which
// case GET /orders/{orderId} and GET /metrics are not mounted.
func NewHTTPHandler(intake ports.OrderIntake, store ports.OrderStore, gatherer prometheus.Gatherer, logger *logger.Logger) *HTTPHandler {
	return &HTTPHandler{intake: intake, store: store, gatherer: gatherer, logger: logger}
}

// Routes builds the router.
func (handler *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Correlation)

	r.Get("/health", handler.handleHealth)
	r.Post("/orders", handler.handleSubmitOrder)
	if handler.store != nil {
		r.Get("/orders/{orderId}", handler.handleGetOrder)
	}
	if handler.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(handler.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// --- Request/Response DTOs (HTTP boundary) ---

type submitOrderRequest struct {
	OrderID string      `json:"orderId"`
	Amount  json.Number `json:"amount"`
}

type submitOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

type orderResponse struct {
	MessageID     string     `json:"messageId"`
	OrderID       string     `json:"orderId"`
	Amount        string     `json:"amount"`
	CorrelationID string     `json:"correlationId,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	ProcessedAt   time.Time  `json:"processedAt"`
}

type messageBody struct {
	Message string `json:"message"`
}

// --- Handlers ---

func (handler *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (handler *HTTPHandler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// check the size of the request body
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid payload", err)
		return
	}

	handler.logger.Debug(ctx, "order_received", "new order request received", map[string]any{
		"order_id": req.OrderID,
	})

	// bound request time
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	queued, err := handler.intake.Submit(ctxWithTimeout, ports.SubmitOrderCommand{
		OrderID: req.OrderID,
		Amount:  req.Amount.String(),
	})
	switch {
	case errors.Is(err, ErrInvalidPayload):
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid payload", err)
		return
	case errors.Is(err, ErrQueueUnavailable):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "Queue unavailable", err)
		return
	case err != nil:
		handler.httpError(ctx, w, http.StatusInternalServerError, "Internal error", err)
		return
	}

	w.Header().Set("Location", "/orders/"+queued.OrderID)
	handler.jsonResponse(ctx, w, http.StatusAccepted, submitOrderResponse{Status: "queued", OrderID: queued.OrderID})
}

func (handler *HTTPHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

	order, err := handler.store.GetByOrderID(ctx, orderID)
	if errors.Is(err, ports.ErrNotFound) {
		handler.jsonResponse(ctx, w, http.StatusNotFound, messageBody{Message: "Order not found"})
		return
	}
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, toOrderResponse(order))
}

func toOrderResponse(o *orders.ProcessedOrder) orderResponse {
	return orderResponse{
		MessageID:     o.MessageID,
		OrderID:       o.OrderID.String(),
		Amount:        o.Amount.String(),
		CorrelationID: o.CorrelationID,
		CreatedAt:     o.CreatedAt,
		ProcessedAt:   o.ProcessedAt,
	}
}

// --- Helpers ---

// httpError logs err and sends a JSON message body.
func (handler *HTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err)

	handler.jsonResponse(ctx, w, status, messageBody{Message: msg})
}

// jsonResponse encodes data and writes it with the given status.
func (handler *HTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "failed to encode response", err)
		http.Error(w, `{"message":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
