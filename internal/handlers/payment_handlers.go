package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payment_processing/internal/cache"
	"payment_processing/internal/metrics"
	"payment_processing/internal/models"
	"payment_processing/internal/repository"
	"payment_processing/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentService описывает методы сервисного слоя, которые нужны хендлерам.
type PaymentService interface {
	CreatePayment(ctx context.Context, req *models.PaymentRequest, idempotencyKey *uuid.UUID) (*models.PaymentResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentResponse, error)
	ListPayments(ctx context.Context, status string, page, size int) (*models.PageResponse, error)
	CancelPayment(ctx context.Context, paymentID string) (*models.PaymentResponse, error)
}

type PaymentHandler struct {
	service PaymentService
	cache   cache.Cache
	ttl     time.Duration
}

func NewPaymentHandler(service PaymentService, cache cache.Cache, ttl time.Duration) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		cache:   cache,
		ttl:     ttl,
	}
}

// POST /api/v1/payments
// 201: PaymentResponse
// 400: validation_errors по полям
// 409: existing_payment_id при повторе idempotency key
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var idempotencyKey *uuid.UUID
	if raw := strings.TrimSpace(r.Header.Get("Idempotency-Key")); raw != "" {
		key, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid idempotency key", "Idempotency-Key header must be a UUID")
			return
		}
		idempotencyKey = &key
	}

	var req models.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	resp, err := h.service.CreatePayment(r.Context(), &req, idempotencyKey)
	if err != nil {
		var verr *service.ValidationError
		var dup *service.DuplicateRequestError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Error:            "Validation failed",
				Message:          "one or more fields are invalid",
				ValidationErrors: verr.Fields,
				Path:             r.URL.Path,
				Timestamp:        time.Now().UTC(),
			})
		case errors.As(err, &dup):
			writeJSON(w, http.StatusConflict, models.ErrorResponse{
				Error:             "Duplicate request",
				Message:           "a payment with this idempotency key already exists",
				ExistingPaymentID: dup.ExistingPaymentID,
				Path:              r.URL.Path,
				Timestamp:         time.Now().UTC(),
			})
		default:
			writeError(w, r, http.StatusInternalServerError, "Internal error", "internal error")
		}
		return
	}

	h.invalidateListCache(r.Context())
	writeJSON(w, http.StatusCreated, resp)
}

// GET /api/v1/payments/{paymentId}
// Кешируются только терминальные статусы: остальные ещё меняются.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if paymentID == "" {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "paymentId is required")
		return
	}

	var cacheKey string
	if h.cache != nil {
		cacheKey = cache.PaymentKey(paymentID)
		if b, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	resp, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Not found", "payment not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Internal error", "internal error")
		return
	}

	b, _ := json.Marshal(resp)

	if h.cache != nil && models.PaymentStatus(resp.Status).Terminal() {
		_ = h.cache.Set(r.Context(), cacheKey, b, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, b)
}

// GET /api/v1/payments?status=&page=&size=
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	page := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "Invalid request", "page must be a non-negative integer")
			return
		}
		page = n
	}

	size := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "Invalid request", "size must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		size = n
	}

	// 1) cache lookup
	var cacheKey string
	if h.cache != nil {
		cacheKey = cache.PaymentListKey(status, page, size)
		if b, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	// 2) DB via service
	resp, err := h.service.ListPayments(r.Context(), status, page, size)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Error:            "Validation failed",
				Message:          "one or more parameters are invalid",
				ValidationErrors: verr.Fields,
				Path:             r.URL.Path,
				Timestamp:        time.Now().UTC(),
			})
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Internal error", "internal error")
		return
	}

	b, _ := json.Marshal(resp)

	// 3) cache store + remember key in set for invalidation
	if h.cache != nil {
		_ = h.cache.Set(r.Context(), cacheKey, b, h.ttl)

		setKey := cache.PaymentListKeysSetKey()
		_ = h.cache.SAdd(r.Context(), setKey, cacheKey)
		_ = h.cache.Expire(r.Context(), setKey, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, b)
}

// POST /api/v1/payments/{paymentId}/cancel
// 409: платёж уже ушёл из PENDING
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if paymentID == "" {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "paymentId is required")
		return
	}

	resp, err := h.service.CancelPayment(r.Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "Not found", "payment not found")
		case errors.Is(err, repository.ErrStatusConflict):
			writeError(w, r, http.StatusConflict, "Invalid state", "payment can only be cancelled while pending")
		default:
			writeError(w, r, http.StatusInternalServerError, "Internal error", "internal error")
		}
		return
	}

	if h.cache != nil {
		_ = h.cache.Del(r.Context(), cache.PaymentKey(paymentID))
	}
	h.invalidateListCache(r.Context())

	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandler) invalidateListCache(ctx context.Context) {
	if h.cache == nil {
		return
	}
	setKey := cache.PaymentListKeysSetKey()
	keys, err := h.cache.SMembers(ctx, setKey)
	if err == nil && len(keys) > 0 {
		_ = h.cache.Del(ctx, keys...)
	}
	_ = h.cache.Del(ctx, setKey)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Запрещаем второй JSON-объект в body
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("only one JSON object is allowed")
	}

	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errName, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     errName,
		Message:   msg,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
