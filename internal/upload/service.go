package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/storage"
)

// uploadFolder is the staging prefix raw sources are PUT under. Derivative
// keys live under the gateway's own folder.
const uploadFolder = "uploads"

// IntentStore is the persistence surface the coordinator needs.
// Implemented by *Repository.
type IntentStore interface {
	Insert(ctx context.Context, in *Intent) error
	Resolve(ctx context.Context, uploadID, key string) (*Intent, error)
	Sweep(ctx context.Context) (int64, error)
}

// SourceStore is the slice of the storage gateway the coordinator drives:
// presigning the staging PUT, reading the uploaded bytes back, and
// discarding the staging object once processing succeeded.
// Implemented by *storage.Gateway.
type SourceStore interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Ingester runs the derivative pipeline for finalized uploads.
// Implemented by *ingest.Orchestrator.
type Ingester interface {
	Ingest(ctx context.Context, baseID string, src []byte, plan []derivative.Spec) (derivative.Set, error)
}

// Service coordinates the two-phase upload: credential issuance on the
// control plane, then the finalize handshake that hands the staged bytes
// to the pipeline. It never carries payload bytes on the issue path.
type Service struct {
	store       IntentStore
	source      SourceStore
	ingester    Ingester
	plan        []derivative.Spec
	maxBytes    int64
	presignTTL  time.Duration
	asyncBudget time.Duration
}

// NewService creates an upload Service. maxBytes is the declared-size
// ceiling; presignTTL bounds credential validity (minutes, not hours);
// asyncBudget caps background finalize processing.
func NewService(store IntentStore, source SourceStore, ingester Ingester, plan []derivative.Spec, maxBytes int64, presignTTL, asyncBudget time.Duration) *Service {
	return &Service{
		store:       store,
		source:      source,
		ingester:    ingester,
		plan:        plan,
		maxBytes:    maxBytes,
		presignTTL:  presignTTL,
		asyncBudget: asyncBudget,
	}
}

// Issue validates the declared upload and returns a scoped, time-limited
// write credential for a deterministic staging key. No storage write
// happens here.
func (s *Service) Issue(ctx context.Context, fileName, contentType string, size int64) (*IssuedIntent, error) {
	ext, ok := acceptedTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSize, size)
	}
	if size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, size, s.maxBytes)
	}

	baseID := uuid.NewString()
	intent := &Intent{
		ID:          uuid.NewString(),
		BaseID:      baseID,
		ObjectKey:   path.Join(uploadFolder, baseID+ext),
		ContentType: contentType,
		MaxBytes:    size,
		Status:      StatusIssued,
		ExpiresAt:   time.Now().Add(s.presignTTL),
	}
	if err := s.store.Insert(ctx, intent); err != nil {
		return nil, err
	}

	uploadURL, err := s.source.PresignPut(ctx, intent.ObjectKey, contentType, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	log.Printf("upload: issued intent %s for %q (%d bytes)", intent.ID, fileName, size)
	return &IssuedIntent{
		UploadID:  intent.ID,
		Key:       intent.ObjectKey,
		UploadURL: uploadURL,
		ExpiresAt: intent.ExpiresAt,
	}, nil
}

// Finalize consumes the intent, pulls the staged bytes, and runs the
// derivative pipeline synchronously, returning the asset's base id and the
// complete derivative set. The staging object is discarded best-effort
// once the set is persisted.
func (s *Service) Finalize(ctx context.Context, uploadID, key string) (string, derivative.Set, error) {
	intent, err := s.store.Resolve(ctx, uploadID, key)
	if err != nil {
		return "", nil, err
	}

	src, err := s.fetchSource(ctx, intent)
	if err != nil {
		return "", nil, err
	}

	set, err := s.ingester.Ingest(ctx, intent.BaseID, src, s.plan)
	if err != nil {
		return "", nil, err
	}

	if err := s.source.Delete(ctx, intent.ObjectKey); err != nil {
		log.Printf("upload: staging object %s not removed: %v", intent.ObjectKey, err)
	}
	return intent.BaseID, set, nil
}

// FinalizeAsync consumes the intent now but runs the pipeline out of band,
// so the API-facing control flow never blocks on CPU-bound work. The
// staged object is stat'd before the intent is consumed, so a finalize
// without uploaded bytes fails here exactly as the synchronous path does.
// The returned BaseID lets the caller correlate the eventual derivative set.
func (s *Service) FinalizeAsync(ctx context.Context, uploadID, key string) (string, error) {
	if _, err := s.source.Stat(ctx, key); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}

	intent, err := s.store.Resolve(ctx, uploadID, key)
	if err != nil {
		return "", err
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), s.asyncBudget)
		defer cancel()

		src, err := s.fetchSource(bg, intent)
		if err != nil {
			log.Printf("upload: async finalize %s: %v", intent.ID, err)
			return
		}
		if _, err := s.ingester.Ingest(bg, intent.BaseID, src, s.plan); err != nil {
			log.Printf("upload: async finalize %s: %v", intent.ID, err)
			return
		}
		if err := s.source.Delete(bg, intent.ObjectKey); err != nil {
			log.Printf("upload: staging object %s not removed: %v", intent.ObjectKey, err)
		}
		log.Printf("upload: async finalize %s complete", intent.ID)
	}()

	return intent.BaseID, nil
}

// StartSweeper expires lapsed intents on a fixed interval until ctx ends.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.Sweep(ctx)
				if err != nil {
					log.Printf("upload: intent sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("upload: expired %d stale intents", n)
				}
			}
		}
	}()
}

// fetchSource reads the staged object, enforcing the declared size.
func (s *Service) fetchSource(ctx context.Context, intent *Intent) ([]byte, error) {
	rc, _, err := s.source.Get(ctx, intent.ObjectKey)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(rc, intent.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > intent.MaxBytes {
		return nil, fmt.Errorf("%w: staged object exceeds declared size", ErrPayloadTooLarge)
	}
	return data, nil
}
