package ingest

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/storage"
	"github.com/pixelgrove/service/internal/transcode"
)

type fakeTranscoder struct {
	err error
}

func (f *fakeTranscoder) Generate(_ context.Context, _ []byte, plan []derivative.Spec) ([]transcode.Encoded, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]transcode.Encoded, len(plan))
	for i, spec := range plan {
		out[i] = transcode.Encoded{Spec: spec, Data: []byte("pixels"), Width: 100, Height: 60}
	}
	return out, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string // Put on this key always fails
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string][]byte)}
}

func (f *fakeGateway) Folder() string { return "photos" }

func (f *fakeGateway) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return "", storage.ErrStorage
	}
	f.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (f *fakeGateway) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(nil), storage.ObjectInfo{}, nil
}

func (f *fakeGateway) DeleteAssetDerivatives(_ context.Context, baseID string, plan []derivative.Spec) (storage.DeleteReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report := storage.DeleteReport{}
	for _, spec := range plan {
		key := derivative.ObjectKey("photos", baseID, spec.Tier, spec.Encoding)
		entry := storage.DeleteEntry{Key: key, Outcome: storage.OutcomeNotFound}
		if _, ok := f.objects[key]; ok {
			delete(f.objects, key)
			entry.Outcome = storage.OutcomeDeleted
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

func (f *fakeGateway) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func TestIngestReturnsFullOrderedSet(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	o := NewOrchestrator(&fakeTranscoder{}, gw, 4)
	plan := derivative.DefaultPlan()

	set, err := o.Ingest(context.Background(), "base1", []byte("src"), plan)
	require.NoError(t, err)
	require.Len(t, set, len(plan))
	for i, d := range set {
		assert.Equal(t, plan[i].Tier, d.Tier)
		assert.Equal(t, plan[i].Encoding, d.Encoding)
		assert.Contains(t, d.URL, "base1-"+string(d.Tier))
	}
	assert.Equal(t, len(plan), gw.stored())
}

func TestIngestRollsBackOnPutFailure(t *testing.T) {
	t.Parallel()

	plan := derivative.DefaultPlan()
	gw := newFakeGateway()
	gw.failKey = derivative.ObjectKey("photos", "base2", plan[3].Tier, plan[3].Encoding)
	o := NewOrchestrator(&fakeTranscoder{}, gw, 2)

	_, err := o.Ingest(context.Background(), "base2", []byte("src"), plan)
	require.ErrorIs(t, err, ErrIngest)
	require.ErrorIs(t, err, storage.ErrStorage, "store failure must stay inspectable through the wrap")
	assert.Equal(t, 0, gw.stored(), "no derivative may survive a failed ingest")
}

func TestIngestSurfacesTranscodeFailureWithoutWrites(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	o := NewOrchestrator(&fakeTranscoder{err: transcode.ErrDecode}, gw, 2)

	_, err := o.Ingest(context.Background(), "base3", []byte("junk"), derivative.DefaultPlan())
	require.ErrorIs(t, err, ErrIngest)
	require.ErrorIs(t, err, transcode.ErrDecode, "decode failure must stay inspectable through the wrap")
	assert.Equal(t, 0, gw.stored())
}

func TestIngestThenRemoveLeavesNothing(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	o := NewOrchestrator(&fakeTranscoder{}, gw, 4)
	plan := derivative.DefaultPlan()
	ctx := context.Background()

	_, err := o.Ingest(ctx, "base4", []byte("src"), plan)
	require.NoError(t, err)

	report, err := o.Remove(ctx, "base4", plan)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 0, gw.stored())

	// Removing again reports every key absent, no errors.
	report, err = o.Remove(ctx, "base4", plan)
	require.NoError(t, err)
	for _, entry := range report.Entries {
		assert.Equal(t, storage.OutcomeNotFound, entry.Outcome)
	}
}
