// Package records owns catalog CRUD, search with cache memoization, and
// stock mutation.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"recordstore/internal/app"
	"recordstore/internal/musicbrainz"
	"recordstore/internal/store"
)

const (
	searchCachePrefix = "records:"
	defaultPageLimit  = 10
)

// Store captures the persistence needs for catalog workflows.
type Store interface {
	CreateRecord(ctx context.Context, rec store.Record) (store.Record, error)
	UpdateRecord(ctx context.Context, id int64, rec store.Record) (store.Record, error)
	RecordByID(ctx context.Context, id int64) (store.Record, error)
	ListRecords(ctx context.Context, filter store.RecordFilter) ([]store.Record, int, error)
	AdjustStock(ctx context.Context, id int64, delta int) (store.Record, error)
	ReserveStock(ctx context.Context, id int64, qty int) error
	ReleaseStock(ctx context.Context, id int64, qty int) error
}

// MetadataClient resolves track lists from an external release identifier.
type MetadataClient interface {
	FetchRelease(ctx context.Context, mbid string) (musicbrainz.Release, error)
}

// Cache memoizes search results.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// Service coordinates catalog operations.
type Service struct {
	store    Store
	metadata MetadataClient
	cache    Cache
	log      zerolog.Logger
}

// New constructs a Service backed by the provided collaborators.
func New(store Store, metadata MetadataClient, cache Cache, log zerolog.Logger) *Service {
	return &Service{store: store, metadata: metadata, cache: cache, log: log}
}

// CreateInput carries the fields for a new catalog record.
type CreateInput struct {
	Artist   string               `json:"artist"`
	Album    string               `json:"album"`
	Price    float64              `json:"price"`
	Quantity int                  `json:"qty"`
	Format   store.RecordFormat   `json:"format"`
	Category store.RecordCategory `json:"category"`
	MBID     string               `json:"mbid,omitempty"`
}

// UpdateInput is a partial patch for an existing record. Nil fields are left
// unchanged.
type UpdateInput struct {
	Artist   *string               `json:"artist,omitempty"`
	Album    *string               `json:"album,omitempty"`
	Price    *float64              `json:"price,omitempty"`
	Quantity *int                  `json:"qty,omitempty"`
	Format   *store.RecordFormat   `json:"format,omitempty"`
	Category *store.RecordCategory `json:"category,omitempty"`
	MBID     *string               `json:"mbid,omitempty"`
}

// Create validates the input, optionally resolves a track list when a
// release identifier is supplied, and persists the record. A failed metadata
// fetch fails the creation: no partial record is persisted.
func (s *Service) Create(ctx context.Context, in CreateInput) (store.Record, error) {
	if errs := validateCreate(in); len(errs) > 0 {
		return store.Record{}, app.InvalidInputErr(errs.String())
	}

	rec := store.Record{
		Artist:    in.Artist,
		Album:     in.Album,
		Price:     in.Price,
		Quantity:  in.Quantity,
		Format:    in.Format,
		Category:  in.Category,
		MBID:      in.MBID,
		Tracklist: []store.Track{},
	}

	if in.MBID != "" {
		release, err := s.metadata.FetchRelease(ctx, in.MBID)
		if err != nil {
			return store.Record{}, fmt.Errorf("fetch release %s: %w", in.MBID, err)
		}
		rec.Tracklist = toStoreTracks(release.Tracklist)
	}

	created, err := s.store.CreateRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			return store.Record{}, err
		}
		return store.Record{}, app.ProcessingErr("create record", err)
	}

	s.InvalidateCache(ctx)
	return created, nil
}

// Update applies a partial patch. A changed release identifier triggers a
// metadata refetch; unlike Create, a refetch failure is logged and the
// update proceeds with the patch as supplied.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (store.Record, error) {
	existing, err := s.store.RecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return store.Record{}, err
		}
		return store.Record{}, app.ProcessingErr("load record", err)
	}

	updated := existing
	if in.Artist != nil {
		updated.Artist = *in.Artist
	}
	if in.Album != nil {
		updated.Album = *in.Album
	}
	if in.Price != nil {
		updated.Price = *in.Price
	}
	if in.Quantity != nil {
		updated.Quantity = *in.Quantity
	}
	if in.Format != nil {
		updated.Format = *in.Format
	}
	if in.Category != nil {
		updated.Category = *in.Category
	}
	if in.MBID != nil {
		updated.MBID = *in.MBID
	}

	if errs := validateRecord(updated); len(errs) > 0 {
		return store.Record{}, app.InvalidInputErr(errs.String())
	}

	if in.MBID != nil && *in.MBID != "" && *in.MBID != existing.MBID {
		release, err := s.metadata.FetchRelease(ctx, *in.MBID)
		if err != nil {
			s.log.Warn().Err(err).Str("mbid", *in.MBID).Int64("record_id", id).
				Msg("metadata refetch failed, keeping existing tracklist")
		} else {
			updated.Tracklist = toStoreTracks(release.Tracklist)
		}
	}

	result, err := s.store.UpdateRecord(ctx, id, updated)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, store.ErrDuplicateRecord) {
			return store.Record{}, err
		}
		return store.Record{}, app.ProcessingErr("update record", err)
	}

	s.InvalidateCache(ctx)
	return result, nil
}

// ListFilter carries search, filter and pagination parameters.
type ListFilter struct {
	Query    string
	Artist   string
	Album    string
	Format   store.RecordFormat
	Category store.RecordCategory
	Page     int
	Limit    int
}

// ListResult is one page of search results plus pagination metadata.
type ListResult struct {
	Data  []store.Record `json:"data"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

// List returns records matching the filter, memoizing each distinct filter
// set in the cache. A cache hit is returned verbatim without touching the
// store.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}

	key := cacheKey(filter)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached ListResult
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			s.log.Debug().Str("key", key).Msg("search served from cache")
			return cached, nil
		}
		// Corrupt entry: fall through to the store.
	}

	data, total, err := s.store.ListRecords(ctx, store.RecordFilter{
		Query:    filter.Query,
		Artist:   filter.Artist,
		Album:    filter.Album,
		Format:   filter.Format,
		Category: filter.Category,
		Offset:   (filter.Page - 1) * filter.Limit,
		Limit:    filter.Limit,
	})
	if err != nil {
		return ListResult{}, app.ProcessingErr("list records", err)
	}

	result := ListResult{
		Data:  data,
		Total: total,
		Page:  filter.Page,
		Pages: (total + filter.Limit - 1) / filter.Limit,
	}

	if raw, err := json.Marshal(result); err == nil {
		s.cache.Set(ctx, key, string(raw))
	}

	return result, nil
}

// Get fetches a single record.
func (s *Service) Get(ctx context.Context, id int64) (store.Record, error) {
	rec, err := s.store.RecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return store.Record{}, err
		}
		return store.Record{}, app.ProcessingErr("fetch record", err)
	}
	return rec, nil
}

// AdjustStock applies a bounded stock mutation: the resulting quantity is
// clamped at zero and an over-decrement is never reported as an error.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (store.Record, error) {
	rec, err := s.store.AdjustStock(ctx, id, delta)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return store.Record{}, err
		}
		return store.Record{}, app.ProcessingErr("adjust stock", err)
	}
	s.InvalidateCache(ctx)
	return rec, nil
}

// ReserveStock conditionally decrements the on-hand quantity for an order
// line. Failures carry the record identity and available quantity.
func (s *Service) ReserveStock(ctx context.Context, id int64, qty int) error {
	if err := s.store.ReserveStock(ctx, id, qty); err != nil {
		return err
	}
	s.InvalidateCache(ctx)
	return nil
}

// ReleaseStock compensates a prior reservation.
func (s *Service) ReleaseStock(ctx context.Context, id int64, qty int) error {
	if err := s.store.ReleaseStock(ctx, id, qty); err != nil {
		return err
	}
	s.InvalidateCache(ctx)
	return nil
}

// InvalidateCache drops every memoized search result. Failures are logged
// and swallowed: a cache invalidation failure must not fail the surrounding
// write.
func (s *Service) InvalidateCache(ctx context.Context) {
	app.BestEffort(s.log, "invalidate search cache", func() error {
		_, err := s.cache.DeleteByPattern(ctx, searchCachePrefix+"*")
		return err
	})
}

// cacheKey derives a deterministic key from all filter values and pagination
// parameters. Absent filters serialize as empty strings.
func cacheKey(filter ListFilter) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s:%d:%d", searchCachePrefix,
		filter.Query, filter.Artist, filter.Album, filter.Format, filter.Category,
		filter.Page, filter.Limit)
}

func toStoreTracks(tracks []musicbrainz.Track) []store.Track {
	out := make([]store.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, store.Track{
			Position:         t.Position,
			Title:            t.Title,
			Duration:         t.Duration,
			FirstReleaseDate: t.FirstReleaseDate,
		})
	}
	return out
}
