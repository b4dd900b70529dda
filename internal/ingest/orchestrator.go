// Package ingest glues the transcode pipeline to the storage gateway. One
// ingestion call exclusively owns its asset's derivative generation: the
// caller either receives the complete derivative set or an error with no
// half-written set left referenced.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/storage"
	"github.com/pixelgrove/service/internal/transcode"
)

// ErrIngest wraps any stage failure of an ingestion attempt after rollback
// has been attempted.
var ErrIngest = errors.New("ingestion failed")

// Transcoder produces the full derivative batch for one source, or fails
// as a whole. Implemented by *transcode.Pipeline.
type Transcoder interface {
	Generate(ctx context.Context, src []byte, plan []derivative.Spec) ([]transcode.Encoded, error)
}

// Store is the slice of the storage gateway the orchestrator drives.
// Implemented by *storage.Gateway.
type Store interface {
	Folder() string
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	DeleteAssetDerivatives(ctx context.Context, baseID string, plan []derivative.Spec) (storage.DeleteReport, error)
}

// Orchestrator runs the ingest state machine:
// decoding → encoding → persisting → complete, with best-effort rollback
// of persisted derivatives on any persist-phase failure.
type Orchestrator struct {
	transcoder Transcoder
	store      Store
	workers    int
}

// NewOrchestrator creates an Orchestrator. workers bounds the concurrent
// persist fan-out.
func NewOrchestrator(transcoder Transcoder, store Store, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{transcoder: transcoder, store: store, workers: workers}
}

// Ingest transcodes src into every derivative in plan and persists them
// all, returning the ordered descriptor set for the caller's metadata
// store. On any persist failure, whatever was already written is cleaned
// up before the error surfaces.
func (o *Orchestrator) Ingest(ctx context.Context, baseID string, src []byte, plan []derivative.Spec) (derivative.Set, error) {
	encoded, err := o.transcoder.Generate(ctx, src, plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngest, err)
	}

	set := make(derivative.Set, len(encoded))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, enc := range encoded {
		g.Go(func() error {
			key := derivative.ObjectKey(o.store.Folder(), baseID, enc.Spec.Tier, enc.Spec.Encoding)
			url, err := o.store.Put(gctx, key, enc.Data, enc.Spec.Encoding.ContentType())
			if err != nil {
				return fmt.Errorf("persist %s: %w", key, err)
			}
			set[i] = derivative.Descriptor{
				Tier:     enc.Spec.Tier,
				Encoding: enc.Spec.Encoding,
				URL:      url,
				Width:    enc.Width,
				Height:   enc.Height,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.rollback(baseID, plan)
		return nil, fmt.Errorf("%w: %w", ErrIngest, err)
	}

	log.Printf("ingest %s: %d derivatives persisted", baseID, len(set))
	return set, nil
}

// Remove fans out deletion across the asset's full planned key-space.
func (o *Orchestrator) Remove(ctx context.Context, baseID string, plan []derivative.Spec) (storage.DeleteReport, error) {
	report, err := o.store.DeleteAssetDerivatives(ctx, baseID, plan)
	if err != nil {
		return report, err
	}
	if failed := report.Failed(); len(failed) > 0 {
		log.Printf("ingest %s: %d of %d keys failed to delete", baseID, len(failed), len(report.Entries))
	}
	return report, nil
}

// rollback best-effort deletes whatever the failed persist phase already
// wrote. It runs on a fresh context so a cancelled ingest still cleans up.
func (o *Orchestrator) rollback(baseID string, plan []derivative.Spec) {
	report, err := o.store.DeleteAssetDerivatives(context.Background(), baseID, plan)
	if err != nil {
		log.Printf("ingest %s: rollback unreachable store: %v", baseID, err)
		return
	}
	if failed := report.Failed(); len(failed) > 0 {
		log.Printf("ingest %s: rollback left %d keys behind", baseID, len(failed))
	}
}
