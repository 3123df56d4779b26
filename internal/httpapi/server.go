// Package httpapi wires HTTP handlers to the application services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"recordstore/internal/app"
	"recordstore/internal/app/orders"
	"recordstore/internal/app/records"
	"recordstore/internal/musicbrainz"
	"recordstore/internal/store"
)

// RecordService captures the catalog operations needed by the HTTP handlers.
type RecordService interface {
	Create(ctx context.Context, in records.CreateInput) (store.Record, error)
	Update(ctx context.Context, id int64, in records.UpdateInput) (store.Record, error)
	List(ctx context.Context, filter records.ListFilter) (records.ListResult, error)
	Get(ctx context.Context, id int64) (store.Record, error)
}

// OrderService captures the order operations needed by the HTTP handlers.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput) (store.Order, error)
	List(ctx context.Context) ([]store.Order, error)
	Get(ctx context.Context, id int64) (store.Order, error)
	Complete(ctx context.Context, id int64) (store.Order, error)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	records RecordService
	orders  OrderService
}

// New configures a Server with the given services.
func New(records RecordService, orders OrderService) *Server {
	return &Server{records: records, orders: orders}
}

// Routes exposes the HTTP handlers for catalog and order management.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /records", s.handleCreateRecord)
	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("GET /records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /records/{id}", s.handleUpdateRecord)

	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /orders/{id}/complete", s.handleCompleteOrder)

	return mux
}

type errorResponse struct {
	Error     string `json:"error"`
	RecordID  int64  `json:"recordId,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error kinds to HTTP statuses. Domain-significant
// kinds arrive unchanged from the services, so errors.Is/As is enough here.
func writeError(w http.ResponseWriter, err error) {
	var insufficient *store.InsufficientStockError

	switch {
	case errors.Is(err, store.ErrRecordNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, musicbrainz.ErrReleaseNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrDuplicateRecord),
		errors.Is(err, store.ErrOrderNotPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     insufficient.Error(),
			RecordID:  insufficient.RecordID,
			Available: &available,
		})
	case errors.Is(err, app.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, musicbrainz.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, app.ErrProcessing):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, app.InvalidInputErr("id: must be a positive integer")
	}
	return id, nil
}
