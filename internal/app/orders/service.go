// Package orders owns order creation with stock reservation, order
// retrieval, and the fulfillment transition.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"recordstore/internal/app"
	"recordstore/internal/store"
)

// Records captures the catalog operations order creation depends on.
type Records interface {
	Get(ctx context.Context, id int64) (store.Record, error)
	ReserveStock(ctx context.Context, id int64, qty int) error
	ReleaseStock(ctx context.Context, id int64, qty int) error
}

// Store captures the persistence needs for order workflows.
type Store interface {
	CreateOrder(ctx context.Context, order store.Order) (store.Order, error)
	Orders(ctx context.Context) ([]store.Order, error)
	OrderByID(ctx context.Context, id int64) (store.Order, error)
	SetOrderStatus(ctx context.Context, id int64, from, to store.OrderStatus) error
}

// Service coordinates order operations.
type Service struct {
	store   Store
	records Records
	log     zerolog.Logger
}

// New constructs a Service backed by the provided Store and record service.
func New(store Store, records Records, log zerolog.Logger) *Service {
	return &Service{store: store, records: records, log: log}
}

// ItemInput is one requested order line.
type ItemInput struct {
	RecordID int64 `json:"recordId"`
	Quantity int   `json:"quantity"`
}

// CreateInput is an ordered list of requested items.
type CreateInput struct {
	Items []ItemInput `json:"items"`
}

// Create builds an order from the requested items. Each item is resolved and
// priced in the order given, then stock is reserved per line with a
// conditional decrement; if any reservation fails, prior reservations are
// released and the insufficient-stock failure identifies the record and its
// available quantity. Only after every line is reserved is the order
// persisted with status PENDING; a persist failure also releases every
// reservation, so no order ever exists with unreserved stock.
func (s *Service) Create(ctx context.Context, in CreateInput) (store.Order, error) {
	if err := validateCreate(in); err != nil {
		return store.Order{}, err
	}

	var (
		items []store.OrderItem
		total float64
	)
	for _, item := range in.Items {
		rec, err := s.records.Get(ctx, item.RecordID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return store.Order{}, err
			}
			return store.Order{}, app.ProcessingErr("fetch record for order", err)
		}

		items = append(items, store.OrderItem{
			RecordID: rec.ID,
			Quantity: item.Quantity,
			Price:    rec.Price,
		})
		total += rec.Price * float64(item.Quantity)
	}

	reserved := make([]store.OrderItem, 0, len(items))
	for _, item := range items {
		if err := s.records.ReserveStock(ctx, item.RecordID, item.Quantity); err != nil {
			s.release(ctx, reserved)

			var insufficient *store.InsufficientStockError
			if errors.As(err, &insufficient) || errors.Is(err, store.ErrRecordNotFound) {
				return store.Order{}, err
			}
			return store.Order{}, app.ProcessingErr("reserve stock", err)
		}
		reserved = append(reserved, item)
	}

	order, err := s.store.CreateOrder(ctx, store.Order{
		Items:       items,
		TotalAmount: total,
		Status:      store.OrderStatusPending,
	})
	if err != nil {
		s.release(ctx, reserved)
		return store.Order{}, app.ProcessingErr("create order", err)
	}

	return order, nil
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]store.Order, error) {
	orders, err := s.store.Orders(ctx)
	if err != nil {
		return nil, app.ProcessingErr("list orders", err)
	}
	return orders, nil
}

// Get fetches a single order.
func (s *Service) Get(ctx context.Context, id int64) (store.Order, error) {
	order, err := s.store.OrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return store.Order{}, err
		}
		return store.Order{}, app.ProcessingErr("fetch order", err)
	}
	return order, nil
}

// Complete moves a pending order to COMPLETED. Only the PENDING -> COMPLETED
// transition is allowed.
func (s *Service) Complete(ctx context.Context, id int64) (store.Order, error) {
	err := s.store.SetOrderStatus(ctx, id, store.OrderStatusPending, store.OrderStatusCompleted)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) || errors.Is(err, store.ErrOrderNotPending) {
			return store.Order{}, err
		}
		return store.Order{}, app.ProcessingErr("complete order", err)
	}
	return s.Get(ctx, id)
}

// release returns already reserved stock after a failed order. Each release
// is best-effort: a compensation failure is logged, not propagated, since
// the order failure itself is what the caller needs to see.
func (s *Service) release(ctx context.Context, reserved []store.OrderItem) {
	for _, item := range reserved {
		app.BestEffort(s.log, fmt.Sprintf("release stock for record %d", item.RecordID), func() error {
			return s.records.ReleaseStock(ctx, item.RecordID, item.Quantity)
		})
	}
}

func validateCreate(in CreateInput) error {
	if len(in.Items) == 0 {
		return app.InvalidInputErr("items: at least one item is required")
	}
	for i, item := range in.Items {
		if item.RecordID <= 0 {
			return app.InvalidInputErr(fmt.Sprintf("items[%d].recordId: is required", i))
		}
		if item.Quantity < 1 {
			return app.InvalidInputErr(fmt.Sprintf("items[%d].quantity: must be at least 1", i))
		}
	}
	return nil
}
