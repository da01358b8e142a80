package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
	"restaurant-checkout/internal/services/checkout"
)

// Handler is the HTTP surface of the checkout engine and the order
// lifecycle.
type Handler struct {
	orchestrator *checkout.Orchestrator
	service      *Service
	health       func(ctx context.Context) error
	logger       *logger.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(orc *checkout.Orchestrator, svc *Service, health func(ctx context.Context) error, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orc,
		service:      svc,
		health:       health,
		logger:       log,
	}
}

// Router builds the chi router for all order endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.handleHealth)
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Post("/preview", h.handlePreview)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.handleGetOrder)
			r.Patch("/status", h.handleUpdateStatus)
			r.Post("/close", h.handleCloseAccount)
			r.Post("/items", h.handleEditItem(models.EditAdd))
			r.Patch("/items", h.handleEditItem(models.EditUpdate))
			r.Delete("/items", h.handleEditItem(models.EditRemove))
			r.Put("/courier", h.handleAssignCourier)
		})
	})
	return r
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
		return
	}

	view, err := h.orchestrator.Commit(r.Context(), &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
		return
	}

	view, err := h.orchestrator.Preview(r.Context(), &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	view, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	var req models.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
		return
	}

	view, err := h.service.UpdateStatus(r.Context(), orderID, &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCloseAccount(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	var req models.CloseAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
		return
	}

	view, err := h.service.CloseAccount(r.Context(), orderID, &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleEditItem builds the edit endpoint for one verb; the HTTP method
// determines the action, the body carries the line reference and item.
func (h *Handler) handleEditItem(action models.EditItemAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)

		orderID, err := orderIDParam(r)
		if err != nil {
			h.writeError(w, requestID, err)
			return
		}

		var req models.EditItemRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
			return
		}
		req.Action = action

		view, err := h.service.EditItem(r.Context(), orderID, &req, requestID)
		if err != nil {
			h.writeError(w, requestID, err)
			return
		}
		h.writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) handleAssignCourier(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	var req models.AssignCourierRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, requestID, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err))
		return
	}

	view, err := h.service.AssignCourier(r.Context(), orderID, &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	h.writeJSON(w, code, map[string]string{"status": status})
}

// requestIDFrom returns the id minted by the RequestID middleware,
// echoing an incoming X-Request-Id header when the caller sent one.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return logger.GenerateRequestID()
}

func orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, apperr.CodeInvalidPayload,
			"invalid order id: %q", raw)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// errorEnvelope is the uniform error body: a stable machine code, a
// human message, and the request id for log correlation.
type errorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request_failed", "Request failed", requestID, err, nil)
	} else {
		h.logger.Warn("request_rejected", err.Error(), requestID, nil)
	}

	h.writeJSON(w, status, errorEnvelope{
		Error:     apperr.CodeOf(err),
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response_encode_failed", "Failed to encode response", "", err, nil)
	}
}

// requestLogger logs each request with its latency.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestIDFrom(r),
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}
