package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordFormat enumerates the physical or digital format of a release.
type RecordFormat string

const (
	FormatVinyl    RecordFormat = "VINYL"
	FormatCD       RecordFormat = "CD"
	FormatCassette RecordFormat = "CASSETTE"
	FormatDigital  RecordFormat = "DIGITAL"
)

// Valid reports whether f is a known format.
func (f RecordFormat) Valid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette, FormatDigital:
		return true
	}
	return false
}

// RecordCategory enumerates the genre tag of a release.
type RecordCategory string

const (
	CategoryRock        RecordCategory = "ROCK"
	CategoryJazz        RecordCategory = "JAZZ"
	CategoryPop         RecordCategory = "POP"
	CategoryClassical   RecordCategory = "CLASSICAL"
	CategoryHipHop      RecordCategory = "HIP_HOP"
	CategoryElectronic  RecordCategory = "ELECTRONIC"
	CategoryAlternative RecordCategory = "ALTERNATIVE"
	CategoryIndie       RecordCategory = "INDIE"
)

// Valid reports whether c is a known category.
func (c RecordCategory) Valid() bool {
	switch c {
	case CategoryRock, CategoryJazz, CategoryPop, CategoryClassical,
		CategoryHipHop, CategoryElectronic, CategoryAlternative, CategoryIndie:
		return true
	}
	return false
}

// Track is one entry of a record's track list.
type Track struct {
	Position         string `json:"position"`
	Title            string `json:"title"`
	Duration         string `json:"duration"`
	FirstReleaseDate string `json:"firstReleaseDate"`
}

// Record models one purchasable release in the catalog.
type Record struct {
	ID           int64          `json:"id"`
	Artist       string         `json:"artist"`
	Album        string         `json:"album"`
	Price        float64        `json:"price"`
	Quantity     int            `json:"qty"`
	Format       RecordFormat   `json:"format"`
	Category     RecordCategory `json:"category"`
	MBID         string         `json:"mbid,omitempty"`
	Tracklist    []Track        `json:"tracklist"`
	Created      time.Time      `json:"created"`
	LastModified time.Time      `json:"lastModified"`
}

const recordColumns = `id, artist, album, price, qty, format, category, mbid, tracklist, created, last_modified`

// CreateRecord inserts a new record. The catalog tuple (artist, album,
// format, category) must be unique; violations map to ErrDuplicateRecord.
func (s *Store) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	rec.Artist = strings.TrimSpace(rec.Artist)
	rec.Album = strings.TrimSpace(rec.Album)

	tracklistJSON, err := marshalTracklist(rec.Tracklist)
	if err != nil {
		return Record{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO records (artist, album, price, qty, format, category, mbid, tracklist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		RETURNING `+recordColumns+`
	`, rec.Artist, rec.Album, rec.Price, rec.Quantity, rec.Format, rec.Category, nullString(rec.MBID), tracklistJSON)

	created, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return created, nil
}

// UpdateRecord replaces the mutable fields of a record and refreshes its
// last-modified timestamp, returning the updated row.
func (s *Store) UpdateRecord(ctx context.Context, id int64, rec Record) (Record, error) {
	tracklistJSON, err := marshalTracklist(rec.Tracklist)
	if err != nil {
		return Record{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE records
		SET artist = $2, album = $3, price = $4, qty = $5, format = $6,
		    category = $7, mbid = $8, tracklist = $9::jsonb, last_modified = NOW()
		WHERE id = $1
		RETURNING `+recordColumns+`
	`, id, rec.Artist, rec.Album, rec.Price, rec.Quantity, rec.Format, rec.Category, nullString(rec.MBID), tracklistJSON)

	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, fmt.Errorf("update record: %w", err)
	}
	return updated, nil
}

// RecordByID fetches a single record.
func (s *Store) RecordByID(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("select record: %w", err)
	}
	return rec, nil
}

// RecordFilter constrains the results returned by ListRecords. Text filters
// match case-insensitive substrings; format and category match exactly.
type RecordFilter struct {
	Query    string
	Artist   string
	Album    string
	Format   RecordFormat
	Category RecordCategory
	Offset   int
	Limit    int
}

// ListRecords returns records matching the filter, sorted ascending by
// last-modified timestamp, along with the total count matching the filter
// before pagination.
func (s *Store) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error) {
	var (
		clauses []string
		args    []any
	)

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		clauses = append(clauses, fmt.Sprintf("(artist ILIKE $%d OR album ILIKE $%d)", len(args), len(args)))
	}
	if artist := strings.TrimSpace(filter.Artist); artist != "" {
		args = append(args, "%"+artist+"%")
		clauses = append(clauses, fmt.Sprintf("artist ILIKE $%d", len(args)))
	}
	if album := strings.TrimSpace(filter.Album); album != "" {
		args = append(args, "%"+album+"%")
		clauses = append(clauses, fmt.Sprintf("album ILIKE $%d", len(args)))
	}
	if filter.Format != "" {
		args = append(args, filter.Format)
		clauses = append(clauses, fmt.Sprintf("format = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT `+recordColumns+` FROM records%s ORDER BY last_modified ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}

	return records, total, nil
}

// AdjustStock applies delta to the on-hand quantity, clamping the result at
// zero, and refreshes the last-modified timestamp. An over-decrement is not
// an error: the quantity simply bottoms out.
func (s *Store) AdjustStock(ctx context.Context, id int64, delta int) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE records
		SET qty = GREATEST(0, qty + $2), last_modified = NOW()
		WHERE id = $1
		RETURNING `+recordColumns+`
	`, id, delta)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("adjust stock: %w", err)
	}
	return rec, nil
}

// ReserveStock decrements the on-hand quantity by qty only if at least qty
// units are available. The conditional update makes concurrent reservations
// safe: two orders racing for the last unit cannot both succeed.
func (s *Store) ReserveStock(ctx context.Context, id int64, qty int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET qty = qty - $2, last_modified = NOW()
		WHERE id = $1 AND qty >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var (
		artist    string
		album     string
		available int
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT artist, album, qty
		FROM records
		WHERE id = $1
	`, id).Scan(&artist, &album, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("lookup record for reservation: %w", err)
	}

	return &InsufficientStockError{
		RecordID:  id,
		Artist:    artist,
		Album:     album,
		Requested: qty,
		Available: available,
	}
}

// ReleaseStock returns previously reserved units to the on-hand quantity.
// Used as the compensating write when a later reservation in the same order
// fails.
func (s *Store) ReleaseStock(ctx context.Context, id int64, qty int) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET qty = qty + $2, last_modified = NOW()
		WHERE id = $1
	`, id, qty); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		mbid      sql.NullString
		tracklist []byte
	)
	if err := row.Scan(&rec.ID, &rec.Artist, &rec.Album, &rec.Price, &rec.Quantity,
		&rec.Format, &rec.Category, &mbid, &tracklist, &rec.Created, &rec.LastModified); err != nil {
		return Record{}, err
	}
	rec.MBID = mbid.String

	rec.Tracklist = []Track{}
	if len(tracklist) > 0 {
		if err := json.Unmarshal(tracklist, &rec.Tracklist); err != nil {
			return Record{}, fmt.Errorf("decode tracklist: %w", err)
		}
	}
	return rec, nil
}

func marshalTracklist(tracks []Track) (string, error) {
	if tracks == nil {
		tracks = []Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return "", fmt.Errorf("prepare tracklist payload: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
