// Package format implements the format registry & dispatch layer (spec §4.4):
// MIME detection, handler selection, and sync/async adapters over the
// FormatHandler interface.
//
// Grounded on the teacher's internal/processor/processor.go dispatch-by-type
// switch (generalized here into a registry instead of a switch statement)
// and on yhilem-ai_kreuzberg/packages/go/kreuzberg's FormatType discriminator
// naming, which confirmed the field/operation names used throughout.
package format

import (
	"context"

	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Handler is the contract a format-specific extractor implements. Concrete
// parsers for PDF/DOCX/PPTX/HTML/Email/XLSX/JSON/YAML are external
// collaborators (spec §1 Non-goals); the core only consumes this interface.
type Handler interface {
	// ExtractBytesSync extracts from an in-memory payload.
	ExtractBytesSync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error)
	// ExtractBytesAsync is the async-friendly counterpart; implementations
	// that are inherently synchronous run on a worker goroutine (§5).
	ExtractBytesAsync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error)
	// ExtractPathSync extracts directly from a file path.
	ExtractPathSync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error)
	// ExtractPathAsync is the async-friendly counterpart to ExtractPathSync.
	ExtractPathAsync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error)

	// Capabilities describes what this handler can do for its MIME types,
	// used by the orchestrator to decide whether an OCR subpipeline is
	// needed (spec §4.5 step 3).
	Capabilities() Capabilities
}

// Capabilities is the declaration spec §4.4 requires of every handler: "for
// each MIME it declares whether it can emit text directly, whether it can
// emit images, whether it consumes OCR, and its preferred output MIME".
type Capabilities struct {
	EmitsTextDirectly bool
	EmitsImages       bool
	ConsumesOCR       bool
	PreferredMIME     string
}

// SyncAdapter wraps a handler that only implements the synchronous entry
// points, providing the async ones by running the sync call on a worker
// goroutine. Sync entry points must never drive an async runtime (spec §5);
// this adapter only ever adds concurrency, never removes it.
type SyncAdapter struct {
	Bytes func(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error)
	Path  func(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error)
	Caps  Capabilities
}

func (a SyncAdapter) ExtractBytesSync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return a.Bytes(ctx, data, cfg)
}

func (a SyncAdapter) ExtractBytesAsync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return runOnWorker(ctx, func() (value.ExtractionResult, error) {
		return a.Bytes(ctx, data, cfg)
	})
}

func (a SyncAdapter) ExtractPathSync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return a.Path(ctx, path, cfg)
}

func (a SyncAdapter) ExtractPathAsync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return runOnWorker(ctx, func() (value.ExtractionResult, error) {
		return a.Path(ctx, path, cfg)
	})
}

func (a SyncAdapter) Capabilities() Capabilities { return a.Caps }

// runOnWorker runs fn on a separate goroutine so a synchronous handler body
// can be called from an async entry point without blocking the caller's own
// goroutine scheduling, while still honoring ctx cancellation.
func runOnWorker(ctx context.Context, fn func() (value.ExtractionResult, error)) (value.ExtractionResult, error) {
	type out struct {
		result value.ExtractionResult
		err    error
	}
	ch := make(chan out, 1)
	go func() {
		r, err := fn()
		ch <- out{r, err}
	}()
	select {
	case <-ctx.Done():
		return value.ExtractionResult{}, ctx.Err()
	case o := <-ch:
		return o.result, o.err
	}
}
