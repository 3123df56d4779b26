package records

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"recordstore/internal/app"
	"recordstore/internal/musicbrainz"
	"recordstore/internal/store"
)

type stubStore struct {
	created    store.Record
	createErr  error
	createHits int

	existing store.Record
	byIDErr  error

	updated   store.Record
	updateErr error
	updateIn  store.Record

	listData   []store.Record
	listTotal  int
	listErr    error
	listFilter store.RecordFilter
	listHits   int

	adjusted  store.Record
	adjustErr error
}

func (s *stubStore) CreateRecord(ctx context.Context, rec store.Record) (store.Record, error) {
	s.createHits++
	s.created = rec
	if s.createErr != nil {
		return store.Record{}, s.createErr
	}
	rec.ID = 1
	return rec, nil
}

func (s *stubStore) UpdateRecord(ctx context.Context, id int64, rec store.Record) (store.Record, error) {
	s.updateIn = rec
	if s.updateErr != nil {
		return store.Record{}, s.updateErr
	}
	if s.updated.ID != 0 {
		return s.updated, nil
	}
	return rec, nil
}

func (s *stubStore) RecordByID(ctx context.Context, id int64) (store.Record, error) {
	if s.byIDErr != nil {
		return store.Record{}, s.byIDErr
	}
	return s.existing, nil
}

func (s *stubStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]store.Record, int, error) {
	s.listHits++
	s.listFilter = filter
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return s.listData, s.listTotal, nil
}

func (s *stubStore) AdjustStock(ctx context.Context, id int64, delta int) (store.Record, error) {
	if s.adjustErr != nil {
		return store.Record{}, s.adjustErr
	}
	return s.adjusted, nil
}

func (s *stubStore) ReserveStock(ctx context.Context, id int64, qty int) error { return nil }
func (s *stubStore) ReleaseStock(ctx context.Context, id int64, qty int) error { return nil }

type stubMetadata struct {
	release musicbrainz.Release
	err     error
	hits    int
}

func (m *stubMetadata) FetchRelease(ctx context.Context, mbid string) (musicbrainz.Release, error) {
	m.hits++
	if m.err != nil {
		return musicbrainz.Release{}, m.err
	}
	return m.release, nil
}

type stubCache struct {
	entries map[string]string
	getErr  bool
	deletes []string
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string]string{}}
}

func (c *stubCache) Get(ctx context.Context, key string) (string, bool) {
	if c.getErr {
		return "", false
	}
	val, ok := c.entries[key]
	return val, ok
}

func (c *stubCache) Set(ctx context.Context, key, value string) {
	c.entries[key] = value
}

func (c *stubCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	c.deletes = append(c.deletes, pattern)
	n := len(c.entries)
	c.entries = map[string]string{}
	return n, nil
}

func newTestService(st *stubStore, md *stubMetadata, ca *stubCache) *Service {
	return New(st, md, ca, zerolog.Nop())
}

func validCreateInput() CreateInput {
	return CreateInput{
		Artist:   "Pink Floyd",
		Album:    "The Wall",
		Price:    25.99,
		Quantity: 5,
		Format:   store.FormatVinyl,
		Category: store.CategoryRock,
	}
}

func TestCreateWithoutReleaseID(t *testing.T) {
	st := &stubStore{}
	md := &stubMetadata{}
	svc := newTestService(st, md, newStubCache())

	rec, err := svc.Create(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if md.hits != 0 {
		t.Fatalf("expected no metadata fetch, got %d", md.hits)
	}
	if rec.ID != 1 {
		t.Fatalf("expected id 1, got %d", rec.ID)
	}
	if st.created.Tracklist == nil || len(st.created.Tracklist) != 0 {
		t.Fatalf("expected empty tracklist, got %#v", st.created.Tracklist)
	}
}

func TestCreateResolvesTracklist(t *testing.T) {
	st := &stubStore{}
	md := &stubMetadata{release: musicbrainz.Release{
		Artist: "Pink Floyd",
		Album:  "The Wall",
		Tracklist: []musicbrainz.Track{
			{Position: "1", Title: "In the Flesh?", Duration: "199000"},
		},
	}}
	svc := newTestService(st, md, newStubCache())

	in := validCreateInput()
	in.MBID = "mbid-1"
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if md.hits != 1 {
		t.Fatalf("expected one metadata fetch, got %d", md.hits)
	}
	if len(st.created.Tracklist) != 1 || st.created.Tracklist[0].Title != "In the Flesh?" {
		t.Fatalf("unexpected tracklist: %#v", st.created.Tracklist)
	}
}

func TestCreateFetchFailureAbortsCreation(t *testing.T) {
	st := &stubStore{}
	md := &stubMetadata{err: musicbrainz.ErrUnavailable}
	svc := newTestService(st, md, newStubCache())

	in := validCreateInput()
	in.MBID = "mbid-1"
	_, err := svc.Create(context.Background(), in)
	if !errors.Is(err, musicbrainz.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if st.createHits != 0 {
		t.Fatal("no record must be persisted when the fetch fails")
	}
}

func TestCreateDuplicatePropagates(t *testing.T) {
	st := &stubStore{createErr: store.ErrDuplicateRecord}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	_, err := svc.Create(context.Background(), validCreateInput())
	if !errors.Is(err, store.ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
}

func TestCreateWrapsUnexpectedErrors(t *testing.T) {
	st := &stubStore{createErr: errors.New("connection reset")}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	_, err := svc.Create(context.Background(), validCreateInput())
	if !errors.Is(err, app.ErrProcessing) {
		t.Fatalf("expected ErrProcessing, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing artist", func(in *CreateInput) { in.Artist = " " }},
		{"missing album", func(in *CreateInput) { in.Album = "" }},
		{"negative price", func(in *CreateInput) { in.Price = -1 }},
		{"negative quantity", func(in *CreateInput) { in.Quantity = -1 }},
		{"unknown format", func(in *CreateInput) { in.Format = "8TRACK" }},
		{"unknown category", func(in *CreateInput) { in.Category = "POLKA" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := &stubStore{}
			svc := newTestService(st, &stubMetadata{}, newStubCache())

			in := validCreateInput()
			tc.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			if !errors.Is(err, app.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if st.createHits != 0 {
				t.Fatal("invalid input must not reach the store")
			}
		})
	}
}

func TestUpdateNotFound(t *testing.T) {
	st := &stubStore{byIDErr: store.ErrRecordNotFound}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	_, err := svc.Update(context.Background(), 42, UpdateInput{})
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateRefetchFailureProceeds(t *testing.T) {
	existingTracks := []store.Track{{Position: "1", Title: "Old Track"}}
	st := &stubStore{existing: store.Record{
		ID:        7,
		Artist:    "Pink Floyd",
		Album:     "The Wall",
		Price:     25.99,
		Format:    store.FormatVinyl,
		Category:  store.CategoryRock,
		MBID:      "old-mbid",
		Tracklist: existingTracks,
	}}
	md := &stubMetadata{err: musicbrainz.ErrUnavailable}
	svc := newTestService(st, md, newStubCache())

	newMBID := "new-mbid"
	rec, err := svc.Update(context.Background(), 7, UpdateInput{MBID: &newMBID})
	if err != nil {
		t.Fatalf("update must proceed past a failed refetch, got %v", err)
	}
	if md.hits != 1 {
		t.Fatalf("expected one metadata fetch, got %d", md.hits)
	}
	if rec.MBID != "new-mbid" {
		t.Fatalf("expected patched mbid, got %q", rec.MBID)
	}
	if !reflect.DeepEqual(st.updateIn.Tracklist, existingTracks) {
		t.Fatalf("tracklist must be left as-is on refetch failure, got %#v", st.updateIn.Tracklist)
	}
}

func TestUpdateUnchangedMBIDSkipsFetch(t *testing.T) {
	st := &stubStore{existing: store.Record{
		ID: 7, Artist: "Pink Floyd", Album: "The Wall", Price: 25.99,
		Format: store.FormatVinyl, Category: store.CategoryRock, MBID: "same",
	}}
	md := &stubMetadata{}
	svc := newTestService(st, md, newStubCache())

	same := "same"
	price := 19.99
	if _, err := svc.Update(context.Background(), 7, UpdateInput{MBID: &same, Price: &price}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if md.hits != 0 {
		t.Fatalf("expected no metadata fetch for unchanged mbid, got %d", md.hits)
	}
	if st.updateIn.Price != 19.99 {
		t.Fatalf("expected patched price, got %v", st.updateIn.Price)
	}
}

func TestUpdateConflictPropagates(t *testing.T) {
	st := &stubStore{
		existing: store.Record{
			ID: 7, Artist: "Pink Floyd", Album: "The Wall", Price: 25.99,
			Format: store.FormatVinyl, Category: store.CategoryRock,
		},
		updateErr: store.ErrDuplicateRecord,
	}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	album := "Animals"
	_, err := svc.Update(context.Background(), 7, UpdateInput{Album: &album})
	if !errors.Is(err, store.ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ca := newStubCache()
	ca.entries["records:::::::1:10"] = "{}"
	st := &stubStore{existing: store.Record{
		ID: 7, Artist: "Pink Floyd", Album: "The Wall", Price: 25.99,
		Format: store.FormatVinyl, Category: store.CategoryRock,
	}}
	svc := newTestService(st, &stubMetadata{}, ca)

	price := 30.00
	if _, err := svc.Update(context.Background(), 7, UpdateInput{Price: &price}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(ca.deletes) != 1 || ca.deletes[0] != "records:*" {
		t.Fatalf("expected one pattern delete of records:*, got %#v", ca.deletes)
	}
	if len(ca.entries) != 0 {
		t.Fatal("expected cache emptied")
	}
}

func TestListReturnsPageMetadata(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		listData: []store.Record{{
			ID: 1, Artist: "Pink Floyd", Album: "The Wall", Price: 25.99, Quantity: 5,
			Format: store.FormatVinyl, Category: store.CategoryRock,
			Tracklist: []store.Track{}, Created: created, LastModified: created,
		}},
		listTotal: 1,
	}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	result, err := svc.List(context.Background(), ListFilter{Artist: "Pink Floyd", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || result.Page != 1 || result.Pages != 1 {
		t.Fatalf("unexpected pagination: %+v", result)
	}
	if len(result.Data) != 1 || result.Data[0].Album != "The Wall" {
		t.Fatalf("unexpected data: %#v", result.Data)
	}
}

func TestListDefaultsPagination(t *testing.T) {
	st := &stubStore{listData: []store.Record{}, listTotal: 35}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	result, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if st.listFilter.Offset != 0 || st.listFilter.Limit != 10 {
		t.Fatalf("unexpected store filter: %+v", st.listFilter)
	}
	if result.Page != 1 || result.Pages != 4 {
		t.Fatalf("unexpected pagination: page=%d pages=%d", result.Page, result.Pages)
	}
}

func TestListSecondCallServedFromCache(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		listData: []store.Record{{
			ID: 1, Artist: "Pink Floyd", Album: "The Wall", Price: 25.99, Quantity: 5,
			Format: store.FormatVinyl, Category: store.CategoryRock,
			Tracklist: []store.Track{}, Created: created, LastModified: created,
		}},
		listTotal: 1,
	}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	filter := ListFilter{Artist: "Pink Floyd", Page: 1, Limit: 10}

	first, err := svc.List(context.Background(), filter)
	if err != nil {
		t.Fatalf("first List: %v", err)
	}
	second, err := svc.List(context.Background(), filter)
	if err != nil {
		t.Fatalf("second List: %v", err)
	}

	if st.listHits != 1 {
		t.Fatalf("expected a single store query, got %d", st.listHits)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestListCacheUnavailableFallsThrough(t *testing.T) {
	st := &stubStore{listData: []store.Record{}, listTotal: 0}
	ca := newStubCache()
	ca.getErr = true
	svc := newTestService(st, &stubMetadata{}, ca)

	filter := ListFilter{Page: 1, Limit: 10}
	if _, err := svc.List(context.Background(), filter); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := svc.List(context.Background(), filter); err != nil {
		t.Fatalf("List: %v", err)
	}
	if st.listHits != 2 {
		t.Fatalf("expected both calls to reach the store, got %d", st.listHits)
	}
}

func TestCacheKeySerializesAllFilters(t *testing.T) {
	key := cacheKey(ListFilter{
		Query:    "floyd",
		Artist:   "Pink Floyd",
		Album:    "The Wall",
		Format:   store.FormatVinyl,
		Category: store.CategoryRock,
		Page:     2,
		Limit:    5,
	})
	if key != "records:floyd:Pink Floyd:The Wall:VINYL:ROCK:2:5" {
		t.Fatalf("unexpected cache key %q", key)
	}

	empty := cacheKey(ListFilter{Page: 1, Limit: 10})
	if empty != "records::::::1:10" {
		t.Fatalf("absent filters must serialize as empty strings, got %q", empty)
	}
}

func TestAdjustStockPassesThrough(t *testing.T) {
	st := &stubStore{adjusted: store.Record{ID: 1, Quantity: 0}}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	rec, err := svc.AdjustStock(context.Background(), 1, -105)
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if rec.Quantity != 0 {
		t.Fatalf("expected clamped quantity, got %d", rec.Quantity)
	}
}

func TestAdjustStockNotFound(t *testing.T) {
	st := &stubStore{adjustErr: store.ErrRecordNotFound}
	svc := newTestService(st, &stubMetadata{}, newStubCache())

	_, err := svc.AdjustStock(context.Background(), 42, 1)
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
