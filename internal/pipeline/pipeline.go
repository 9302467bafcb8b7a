// Package pipeline implements the extraction pipeline orchestrator (spec
// §4.5), the core's most consequential component: extract() runs cache
// lookup, handler dispatch, the OCR subpipeline, quality processing, the
// Safe-Feature envelope over optional features, validators, hooks, and the
// final cache store.
//
// Grounded on the teacher's internal/processor/processor.go orchestration
// shape (construct-time dependency wiring, sequential step pipeline,
// structured logging at each stage) generalized from its fixed 3-tier OCR
// cascade into the spec's handler → OCR → features → hooks sequence.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/fileprocess-worker/internal/cache"
	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/format"
	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
	"github.com/adverant/nexus/fileprocess-worker/internal/ocr"
	"github.com/adverant/nexus/fileprocess-worker/internal/preprocess"
	"github.com/adverant/nexus/fileprocess-worker/internal/storage"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Input is a single extraction request: either a path or an in-memory
// payload, optionally with a known MIME type.
type Input struct {
	Path  string
	Bytes []byte
	MIME  string
}

func (in Input) isPathBased() bool { return in.Path != "" }

// Orchestrator wires every dependency extract() needs. Only Dispatcher is
// required; a nil Caches disables the document cache. A nil OCR backend (or
// an OCR variant other than tesseract) makes image OCR fail with a
// MissingDependency error, which is must-bubble, so an extraction that needs
// OCR over its images fails as a whole.
type Orchestrator struct {
	Caches     *cache.Registry
	Dispatcher *format.Dispatcher
	OCR        ocr.Backend
	Features   Features
	Log        *logging.Logger

	// Ledger is optional: when set, every Extract call records one audit
	// row (job id, cache hit/miss, error tag, duration) regardless of
	// outcome. Nil means no ledger persistence.
	Ledger *storage.Ledger
}

// New builds an Orchestrator from its dependencies.
func New(caches *cache.Registry, dispatcher *format.Dispatcher, ocrBackend ocr.Backend, features Features, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewLogger("pipeline")
	}
	return &Orchestrator{Caches: caches, Dispatcher: dispatcher, OCR: ocrBackend, Features: features, Log: log}
}

// Extract implements spec §4.5's extract(source, mime, config) → ExtractionResult.
func (o *Orchestrator) Extract(ctx context.Context, in Input, cfg value.ExtractionConfig) (result value.ExtractionResult, err error) {
	jobID := uuid.NewString()
	started := time.Now()
	cacheHit := false
	if o.Ledger != nil {
		defer func() {
			entry := storage.LedgerEntry{
				JobID:            jobID,
				Path:             in.Path,
				MimeType:         result.MimeType,
				CacheHit:         cacheHit,
				ProcessingTimeMs: time.Since(started).Milliseconds(),
			}
			if err != nil {
				var de *kerrors.DomainError
				if ok := kerrors.AsDomainError(err, &de); ok {
					entry.ErrorTag = string(de.Tag)
				} else {
					entry.ErrorTag = string(kerrors.System)
				}
			}
			if recErr := o.Ledger.Record(context.Background(), entry); recErr != nil {
				o.Log.Warn("ledger record failed", "err", recErr)
			}
		}()
	}

	if err = cfg.Validate(); err != nil {
		return value.ExtractionResult{}, err
	}

	// Step 1: cache lookup. Bytes-only input (no path) has no stable source
	// fingerprint to key on, so it always misses straight to Building —
	// matching §4.1's fingerprinting policy, which is defined over resolved
	// paths.
	var cacheKey string
	var source cache.SourceFile
	useDocCache := cfg.UseCache && in.isPathBased() && o.Caches != nil
	if useDocCache {
		absPath, err := filepath.Abs(in.Path)
		if err != nil {
			return value.ExtractionResult{}, kerrors.NewSystemError("resolve absolute path", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return value.ExtractionResult{}, kerrors.NewSystemError("stat source file", err)
		}
		source = cache.SourceFile{Size: info.Size(), Mtime: info.ModTime().UnixNano()}
		cacheKey = cache.DocumentCacheKey(absPath, source, cfg)

		if o.Caches.Documents.IsProcessing(cacheKey) {
			event := o.Caches.Documents.MarkProcessing(cacheKey)
			select {
			case <-ctx.Done():
				return value.ExtractionResult{}, ctx.Err()
			case <-event:
			}
		}
		if o.Caches.Lock != nil && !o.Caches.Lock.TryAcquire(ctx, cacheKey) {
			// Another replica is building this key; wait for its release
			// event rather than racing it, then fall through to re-check
			// the on-disk cache below.
			o.Caches.Lock.WaitForRelease(ctx, cacheKey)
			if ctx.Err() != nil {
				return value.ExtractionResult{}, ctx.Err()
			}
		}
		if payload, ok := o.Caches.Documents.Get(cacheKey, &source); ok {
			var cached value.ExtractionResult
			if err := decodeJSON(payload, &cached); err == nil {
				cacheHit = true
				return *cached.Clone(), nil
			}
		}
	}

	// Step 2: mark processing; mark_complete on every exit path (§4.5 step 2,
	// state machine note: "Failed still runs mark_complete").
	if useDocCache {
		o.Caches.Documents.MarkProcessing(cacheKey)
		defer o.Caches.Documents.MarkComplete(cacheKey)
		if o.Caches.Lock != nil {
			defer o.Caches.Lock.Release(ctx, cacheKey)
		}
	}

	result, err = o.build(ctx, in, cfg)
	if err != nil {
		return value.ExtractionResult{}, err
	}

	// Step 8: cache store.
	if useDocCache {
		if encoded, err := encodeJSON(result); err == nil {
			o.Caches.Documents.Set(cacheKey, encoded, &source)
		}
	}
	return result, nil
}

func (o *Orchestrator) build(ctx context.Context, in Input, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	// Step 3: handler invocation.
	var (
		result value.ExtractionResult
		caps   format.Capabilities
		err    error
	)
	if in.isPathBased() {
		result, _, caps, err = o.Dispatcher.ExtractPath(ctx, in.Path, in.MIME, cfg)
	} else {
		result, _, caps, err = o.Dispatcher.ExtractBytes(ctx, in.Bytes, in.MIME, cfg)
	}
	if err != nil {
		return value.ExtractionResult{}, err
	}

	builder := value.NewBuilder(result)

	needsOCR := cfg.ForceOCR || (caps.ConsumesOCR && strings.TrimSpace(result.Content) == "")
	if needsOCR && len(result.Images) > 0 {
		if err := o.runImageOCR(ctx, builder, cfg); err != nil {
			var de *kerrors.DomainError
			if ok := kerrors.AsDomainError(err, &de); ok && kerrors.IsMustBubble(de.Tag) {
				return value.ExtractionResult{}, err
			}
			builder.Mutate(func(r *value.ExtractionResult) {
				r.Metadata.AddProcessingError(value.ProcessingError{
					Feature:      "ocr",
					ErrorType:    string(classifyTag(err)),
					ErrorMessage: err.Error(),
				})
			})
		}
	}

	// Step 4: quality processing.
	if cfg.EnableQualityProcessing {
		builder.Mutate(func(r *value.ExtractionResult) {
			normalized := ocr.Normalize(normalizeWhitespace(r.Content))
			r.Content = normalized
			score := qualityScore(normalized)
			r.Metadata.QualityScore = &score
		})
	}

	// Step 5: optional features, Safe-Feature envelope.
	if err := o.runOptionalFeatures(ctx, builder, cfg); err != nil {
		return value.ExtractionResult{}, err
	}

	assembled := builder.Build()

	// Step 6: validators.
	for _, v := range cfg.Validators {
		if err := v(&assembled); err != nil {
			return value.ExtractionResult{}, kerrors.NewValidationError(
				fmt.Sprintf("validator rejected result: %v", err), nil,
			)
		}
	}

	// Step 7: hooks.
	current := &assembled
	for _, hook := range cfg.PostProcessingHooks {
		next, err := hook(current)
		if err != nil {
			var de *kerrors.DomainError
			if ok := kerrors.AsDomainError(err, &de); ok && kerrors.IsMustBubble(de.Tag) {
				return value.ExtractionResult{}, err
			}
			current.Metadata.AddProcessingError(value.ProcessingError{
				Feature:      "post_processing_hook",
				ErrorType:    string(classifyTag(err)),
				ErrorMessage: err.Error(),
			})
			continue
		}
		current = next
	}

	return *current, nil
}

// runImageOCR runs the OCR backend over every extracted image and merges
// results into content/image_ocr_results (spec §4.5 step 3). The merge
// policy (append rather than replace any existing handler text) resolves
// the open question in spec §9 about force_ocr interaction with handler
// text: appending is the non-destructive default when the interaction is
// left unspecified.
func (o *Orchestrator) runImageOCR(ctx context.Context, builder *value.Builder, cfg value.ExtractionConfig) error {
	if o.OCR == nil {
		return kerrors.NewMissingDependencyError("ocr_backend", nil)
	}
	if cfg.OCR.Kind != value.OCRTesseract || cfg.OCR.Tesseract == nil {
		return kerrors.NewMissingDependencyError("ocr_backend", nil)
	}

	var snapshot value.ExtractionResult
	builder.Mutate(func(r *value.ExtractionResult) { snapshot = *r })

	var ocrResults []value.ImageOCRResult
	var appended strings.Builder
	appended.WriteString(snapshot.Content)

	preprocessOpts := preprocess.Options{
		TargetDPI:         cfg.TargetDPI,
		MinDPI:            cfg.MinDPI,
		MaxDPI:            cfg.MaxDPI,
		MaxImageDimension: cfg.MaxImageDimension,
		AutoAdjustDPI:     cfg.AutoAdjustDPI,
	}

	for _, img := range snapshot.Images {
		start := time.Now()
		decoded, _, decErr := decodeImageBytes(img.Data)
		if decErr != nil {
			ocrResults = append(ocrResults, value.ImageOCRResult{Image: img, SkippedReason: decErr.Error()})
			continue
		}

		var hint *preprocess.DPIHint
		if img.DPI != nil {
			hint = &preprocess.DPIHint{X: img.DPI[0], Y: img.DPI[1]}
		}
		rescaled, preMeta := preprocess.Normalize(decoded, hint, preprocessOpts)

		ocrResult, err := o.OCR.ProcessImage(ctx, rescaled, *cfg.OCR.Tesseract)
		elapsed := time.Since(start)
		if err != nil {
			ocrResults = append(ocrResults, value.ImageOCRResult{Image: img, SkippedReason: err.Error()})
			continue
		}
		ocrResult.Metadata.ImagePreprocessing = &preMeta
		ocrResults = append(ocrResults, value.ImageOCRResult{
			Image:          img,
			OCRResult:      ocrResult,
			ProcessingTime: &elapsed,
		})
		if appended.Len() > 0 {
			appended.WriteString("\n\n")
		}
		appended.WriteString(ocrResult.Content)
	}

	builder.Mutate(func(r *value.ExtractionResult) {
		r.Content = appended.String()
		r.ImageOCRResults = ocrResults
	})
	return nil
}

// runOptionalFeatures wraps each enabled optional feature in the
// Safe-Feature envelope (spec §7): failures are recorded into
// metadata.processing_errors and the pipeline continues with that feature's
// default empty value, except for must-bubble tags.
//
// Ordering follows spec §4.5: feature outputs do not see each other's
// results except chunking sees post-quality content, and token reduction
// runs last so its output never feeds chunking/entities/keywords.
func (o *Orchestrator) runOptionalFeatures(ctx context.Context, builder *value.Builder, cfg value.ExtractionConfig) error {
	var content string
	builder.Mutate(func(r *value.ExtractionResult) { content = r.Content })

	if cfg.LanguageDetection.Enabled && o.Features.LanguageDetection != nil {
		if err := safe(builder, "language_detection", func() error {
			langs, err := o.Features.LanguageDetection(ctx, content)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) { r.DetectedLanguages = langs })
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.Entities.Enabled && o.Features.Entities != nil {
		if err := safe(builder, "entities", func() error {
			entities, err := o.Features.Entities(ctx, content, cfg.Entities.Options)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) { r.Entities = entities })
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.Keywords.Enabled && o.Features.Keywords != nil {
		if err := safe(builder, "keywords", func() error {
			keywords, err := o.Features.Keywords(ctx, content, cfg.Keywords.Options)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) { r.Keywords = keywords })
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.Chunking.Enabled && o.Features.Chunking != nil {
		if err := safe(builder, "chunking", func() error {
			chunks, err := o.Features.Chunking(ctx, content, cfg.MaxChars, cfg.MaxOverlap)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) { r.Chunks = chunks })
			return nil
		}); err != nil {
			return err
		}
	}

	if o.Features.DocumentType != nil {
		if err := safe(builder, "document_type", func() error {
			docType, confidence, err := o.Features.DocumentType(ctx, content)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) {
				r.DocumentType = docType
				r.DocumentTypeConfidence = confidence
			})
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.TokenReduction.Enabled && o.Features.TokenReduction != nil {
		if err := safe(builder, "token_reduction", func() error {
			var langHint string
			var current string
			builder.Mutate(func(r *value.ExtractionResult) {
				current = r.Content
				if len(r.DetectedLanguages) > 0 {
					langHint = r.DetectedLanguages[0]
				}
			})
			reduced, stats, err := o.Features.TokenReduction(ctx, current, langHint)
			if err != nil {
				return err
			}
			builder.Mutate(func(r *value.ExtractionResult) {
				r.Content = reduced
				r.Metadata.TokenReduction = &stats
			})
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// safe runs fn and, on failure, classifies the error: must-bubble tags
// (system, missing-dependency) are returned unchanged so the caller aborts
// the extraction; everything else is appended as a ProcessingError and
// suppressed, per spec §7's Safe-Feature envelope.
func safe(builder *value.Builder, feature string, fn func() error) (bubbled error) {
	defer func() {
		if r := recover(); r != nil {
			// A panic is a runtime error, one of spec §7's must-bubble kinds,
			// not a suppressible domain failure.
			bubbled = kerrors.NewSystemError(fmt.Sprintf("%s panicked", feature), fmt.Errorf("%v", r))
		}
	}()
	err := fn()
	if err == nil {
		return nil
	}
	var de *kerrors.DomainError
	if ok := kerrors.AsDomainError(err, &de); ok && kerrors.IsMustBubble(de.Tag) {
		return err
	}
	builder.Mutate(func(res *value.ExtractionResult) {
		res.Metadata.AddProcessingError(value.ProcessingError{
			Feature:      feature,
			ErrorType:    string(classifyTag(err)),
			ErrorMessage: err.Error(),
		})
	})
	return nil
}

func classifyTag(err error) kerrors.Tag {
	var de *kerrors.DomainError
	if kerrors.AsDomainError(err, &de) {
		return de.Tag
	}
	return kerrors.System
}
