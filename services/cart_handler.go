// Package services exposes the cart store over HTTP and reports backend health over gRPC.
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ReploidGI0/storefront-cart/cartstore"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

var errBadRequest = errors.New("bad request")

// CartHandler serves the cart API for a single storefront session.
type CartHandler struct {
	// mu pairs each mutation with the snapshot returned for it.
	mu    sync.Mutex
	store *cartstore.CartStore
	log   logrus.FieldLogger
}

// NewCartHandler constructor
func NewCartHandler(store *cartstore.CartStore, log logrus.FieldLogger) *CartHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CartHandler{store: store, log: log}
}

// Router returns the instrumented HTTP router.
func (h *CartHandler) Router(serviceName string) http.Handler {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))
	r.Use(h.logRequests)

	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	r.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items", h.addItem).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{id}", h.removeItem).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items/{id}/increase", h.increase).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{id}/decrease", h.decrease).Methods(http.MethodPost)
	return r
}

type addItemRequest struct {
	ID int64 `json:"id"`
}

func (h *CartHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.store.Catalog())
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.store.Snapshot())
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.store.ClearCart)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errBadRequest, "malformed body"))
		return
	}
	if req.ID == 0 {
		h.writeError(w, r, errors.Wrap(errBadRequest, "id is required"))
		return
	}
	h.respond(w, r, func(ctx context.Context) error { return h.store.AddByID(ctx, req.ID) })
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) error { return h.store.RemoveFromCart(ctx, id) })
}

func (h *CartHandler) increase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) error { return h.store.IncreaseQuantity(ctx, id) })
}

func (h *CartHandler) decrease(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) error { return h.store.DecreaseQuantity(ctx, id) })
}

// respond runs mutate and writes the cart as it left it, or the mutation's error.
func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, mutate func(context.Context) error) {
	h.mu.Lock()
	err := mutate(r.Context())
	snapshot := h.store.Snapshot()
	h.mu.Unlock()

	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, snapshot)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errBadRequest, "invalid id %q", raw)
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, cartstore.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, cartstore.ErrInvalidItem):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := requestLogger(r, h.log).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	h.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func (h *CartHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		requestLogger(r, h.log).WithError(err).Warn("failed to write response")
	}
}

type ctxKeyLog struct{}

type responseRecorder struct {
	http.ResponseWriter
	status int
	b      int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.b += n
	return n, err
}

// logRequests tags each request with an id and logs its outcome.
func (h *CartHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		log := h.log.WithFields(logrus.Fields{
			"http.req.path":   r.URL.Path,
			"http.req.method": r.Method,
			"http.req.id":     requestID,
		})
		w.Header().Set("X-Request-Id", requestID)

		rr := &responseRecorder{ResponseWriter: w}
		ctx := contextWithLogger(r.Context(), log)
		next.ServeHTTP(rr, r.WithContext(ctx))

		log.WithFields(logrus.Fields{
			"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
			"http.resp.status":  rr.status,
			"http.resp.bytes":   rr.b,
		}).Debug("request complete")
	})
}

func contextWithLogger(ctx context.Context, log logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLog{}, log)
}

func requestLogger(r *http.Request, fallback logrus.FieldLogger) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return fallback
}
