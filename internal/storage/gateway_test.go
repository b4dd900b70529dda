package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelgrove/service/internal/derivative"
)

// fakeStore is an in-memory ObjectStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	putFailures    map[string]int // key → remaining failures before success
	removeFailures map[string]int
	down           bool // every call fails
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:        make(map[string][]byte),
		types:          make(map[string]string),
		putFailures:    make(map[string]int),
		removeFailures: make(map[string]int),
	}
}

var errFault = errors.New("injected fault")

func (f *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType, cacheControl string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFault
	}
	if n := f.putFailures[key]; n > 0 {
		f.putFailures[key] = n - 1
		return errFault
	}
	if cacheControl == "" {
		return errors.New("missing cache control")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), ObjectInfo{ContentType: f.types[key], Size: int64(len(data))}, nil
}

func (f *fakeStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return ObjectInfo{ContentType: f.types[key], Size: int64(len(data))}, nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFault
	}
	if n := f.removeFailures[key]; n > 0 {
		f.removeFailures[key] = n - 1
		return errFault
	}
	if _, ok := f.objects[key]; !ok {
		return ErrNotFound
	}
	delete(f.objects, key)
	delete(f.types, key)
	return nil
}

func (f *fakeStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://store.test/presigned/" + key, nil
}

func (f *fakeStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func testGateway(store ObjectStore) *Gateway {
	return NewGateway(store, "https://cdn.test", "photos", 2, time.Millisecond)
}

func smallPlan() []derivative.Spec {
	return []derivative.Spec{
		{Tier: derivative.TierThumbnail, Encoding: derivative.EncodingWebP, TargetWidth: 200, Quality: 60},
		{Tier: derivative.TierRegular, Encoding: derivative.EncodingWebP, TargetWidth: 1080, Quality: 80},
		{Tier: derivative.TierRegular, Encoding: derivative.EncodingAVIF, TargetWidth: 1080, Quality: 80},
	}
}

func TestPutResolvesCDNURL(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	g := testGateway(store)

	url, err := g.Put(context.Background(), "photos/abc-thumbnail.webp", []byte("bytes"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/photos/abc-thumbnail.webp", url)
	assert.Equal(t, 1, store.len())
}

func TestPutRetriesTransientFaults(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.putFailures["photos/abc-small.webp"] = 2
	g := testGateway(store)

	_, err := g.Put(context.Background(), "photos/abc-small.webp", []byte("bytes"), "image/webp")
	require.NoError(t, err, "two transient faults fit inside two retries")
	assert.Equal(t, 1, store.len())
}

func TestPutSurfacesStorageErrorAfterRetries(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.putFailures["photos/abc-small.webp"] = 5
	g := testGateway(store)

	_, err := g.Put(context.Background(), "photos/abc-small.webp", []byte("bytes"), "image/webp")
	require.ErrorIs(t, err, ErrStorage)
}

func TestDeleteMissingKeyIsSuccess(t *testing.T) {
	t.Parallel()

	g := testGateway(newFakeStore())
	assert.NoError(t, g.Delete(context.Background(), "photos/never-written.webp"))
}

func TestDeleteAssetDerivativesReportsPerKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	g := testGateway(store)
	plan := smallPlan()
	ctx := context.Background()

	// Persist two of three; the third stays absent.
	for _, spec := range plan[:2] {
		key := derivative.ObjectKey("photos", "abc", spec.Tier, spec.Encoding)
		_, err := g.Put(ctx, key, []byte("bytes"), spec.Encoding.ContentType())
		require.NoError(t, err)
	}

	report, err := g.DeleteAssetDerivatives(ctx, "abc", plan)
	require.NoError(t, err)
	require.Len(t, report.Entries, len(plan))
	assert.Equal(t, OutcomeDeleted, report.Entries[0].Outcome)
	assert.Equal(t, OutcomeDeleted, report.Entries[1].Outcome)
	assert.Equal(t, OutcomeNotFound, report.Entries[2].Outcome)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 0, store.len())
}

func TestDeleteAssetDerivativesIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	g := testGateway(store)
	plan := smallPlan()
	ctx := context.Background()

	for _, spec := range plan {
		key := derivative.ObjectKey("photos", "abc", spec.Tier, spec.Encoding)
		_, err := g.Put(ctx, key, []byte("bytes"), spec.Encoding.ContentType())
		require.NoError(t, err)
	}

	_, err := g.DeleteAssetDerivatives(ctx, "abc", plan)
	require.NoError(t, err)

	// Second pass: everything already absent, still no errors.
	report, err := g.DeleteAssetDerivatives(ctx, "abc", plan)
	require.NoError(t, err)
	for _, entry := range report.Entries {
		assert.Equal(t, OutcomeNotFound, entry.Outcome)
	}
}

func TestDeleteAssetDerivativesSystemicFault(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.down = true
	g := testGateway(store)

	report, err := g.DeleteAssetDerivatives(context.Background(), "abc", smallPlan())
	require.ErrorIs(t, err, ErrStorage)
	assert.Len(t, report.Failed(), len(smallPlan()))
}

func TestDeleteAssetDerivativesPartialFailureDoesNotFailCall(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	g := testGateway(store)
	plan := smallPlan()
	ctx := context.Background()

	for _, spec := range plan {
		key := derivative.ObjectKey("photos", "abc", spec.Tier, spec.Encoding)
		_, err := g.Put(ctx, key, []byte("bytes"), spec.Encoding.ContentType())
		require.NoError(t, err)
	}
	// One key fails past the retry budget.
	store.removeFailures[derivative.ObjectKey("photos", "abc", plan[1].Tier, plan[1].Encoding)] = 5

	report, err := g.DeleteAssetDerivatives(ctx, "abc", plan)
	require.NoError(t, err, "partial failure is reported, not raised")
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, OutcomeError, report.Entries[1].Outcome)
}
