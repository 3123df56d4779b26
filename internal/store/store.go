package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrRecordNotFound signals a missing catalog record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrOrderNotFound signals a missing order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateRecord indicates the (artist, album, format, category) tuple is already taken.
	ErrDuplicateRecord = errors.New("record already exists with this artist, album, format and category combination")
	// ErrOrderNotPending indicates a status transition attempted on a non-pending order.
	ErrOrderNotPending = errors.New("order is not pending")
)

// InsufficientStockError reports a stock reservation that exceeded the
// available quantity. It carries the record identity and the quantity on
// hand at the time of the failed reservation.
type InsufficientStockError struct {
	RecordID  int64
	Artist    string
	Album     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for record %s - %s: requested %d, available %d",
		e.Artist, e.Album, e.Requested, e.Available)
}

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
