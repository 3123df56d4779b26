package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// OrderItem is one line of an order. Price is the unit price captured at
// order time and is never recomputed from the catalog afterwards.
type OrderItem struct {
	RecordID int64   `json:"recordId"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order models a persisted purchase request.
type Order struct {
	ID           int64       `json:"id"`
	Items        []OrderItem `json:"items"`
	TotalAmount  float64     `json:"totalAmount"`
	Status       OrderStatus `json:"status"`
	Created      time.Time   `json:"created"`
	LastModified time.Time   `json:"lastModified"`
}

// CreateOrder persists an order and its line items in a single transaction.
func (s *Store) CreateOrder(ctx context.Context, order Order) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (total_amount, status)
		VALUES ($1, $2)
		RETURNING id, created, last_modified
	`, order.TotalAmount, order.Status).Scan(&order.ID, &order.Created, &order.LastModified)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, record_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, i, item.RecordID, item.Quantity, item.Price); err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	return order, nil
}

// Orders returns all orders sorted by creation time descending.
func (s *Store) Orders(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, total_amount, status, created, last_modified
		FROM orders
		ORDER BY created DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	index := map[int64]int{}
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.TotalAmount, &order.Status, &order.Created, &order.LastModified); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Items = []OrderItem{}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, record_id, quantity, price
		FROM order_items
		ORDER BY order_id, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			item    OrderItem
		)
		if err := itemRows.Scan(&orderID, &item.RecordID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return orders, nil
}

// OrderByID fetches a single order with its line items.
func (s *Store) OrderByID(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, total_amount, status, created, last_modified
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.TotalAmount, &order.Status, &order.Created, &order.LastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("select order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return Order{}, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	order.Items = []OrderItem{}
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.RecordID, &item.Quantity, &item.Price); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("iterate order items: %w", err)
	}

	return order, nil
}

// SetOrderStatus moves an order from one status to another. The transition
// is conditional on the current status so racing transitions cannot both
// apply.
func (s *Store) SetOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, last_modified = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current OrderStatus
	err = s.db.QueryRowContext(ctx, `
		SELECT status
		FROM orders
		WHERE id = $1
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("lookup order status: %w", err)
	}
	return ErrOrderNotPending
}
