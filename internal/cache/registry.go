package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Registry owns the four fixed namespaces and is the single point of entry
// the rest of the pipeline depends on, replacing the Python original's
// module-level singletons (§9 design note: globals move to dependency
// injection / a Runtime handle).
type Registry struct {
	OCR       *Cache
	Documents *Cache
	Tables    *Cache
	MIME      *Cache

	// Lock is optional: when set (a multi-replica worker deployment), the
	// document single-flight barrier below is also arbitrated across
	// replicas through it. Nil means single-process single-flight only.
	Lock *DistributedLock
}

// NewRegistry builds all four namespaces under root.
func NewRegistry(root string, maxSizeMB float64, maxAgeDays int, log *logging.Logger) (*Registry, error) {
	mk := func(ns string) (*Cache, error) {
		return New(ns, Config{Root: root, MaxSizeMB: maxSizeMB, MaxAgeDays: maxAgeDays, Logger: log})
	}
	ocr, err := mk(NamespaceOCR)
	if err != nil {
		return nil, err
	}
	docs, err := mk(NamespaceDocuments)
	if err != nil {
		return nil, err
	}
	tables, err := mk(NamespaceTables)
	if err != nil {
		return nil, err
	}
	mime, err := mk(NamespaceMIME)
	if err != nil {
		return nil, err
	}
	return &Registry{OCR: ocr, Documents: docs, Tables: tables, MIME: mime}, nil
}

// ClearAll fans clear() out across every namespace.
func (r *Registry) ClearAll() {
	r.OCR.Clear()
	r.Documents.Clear()
	r.Tables.Clear()
	r.MIME.Clear()
}

// DocumentCacheKey derives the document cache key described in spec §4.1's
// fingerprinting policy: resolved absolute path + size + mtime, plus a
// stable digest of only the subset of ExtractionConfig that can affect
// content. Hooks, validators, and the cache flag itself must never
// influence the key.
func DocumentCacheKey(absPath string, source SourceFile, cfg value.ExtractionConfig) string {
	h := sha256.New()
	fmt.Fprintf(h, "path=%s\n", absPath)
	fmt.Fprintf(h, "size=%d\n", source.Size)
	fmt.Fprintf(h, "mtime=%d\n", source.Mtime)

	fmt.Fprintf(h, "ocr_kind=%s\n", cfg.OCR.Kind)
	if cfg.OCR.Kind == value.OCRTesseract && cfg.OCR.Tesseract != nil {
		fmt.Fprintf(h, "ocr_lang=%s\n", cfg.OCR.Tesseract.Language)
		fmt.Fprintf(h, "ocr_psm=%d\n", cfg.OCR.Tesseract.PSM)
		fmt.Fprintf(h, "ocr_output_format=%s\n", cfg.OCR.Tesseract.OutputFormat)
	}
	fmt.Fprintf(h, "force_ocr=%v\n", cfg.ForceOCR)
	fmt.Fprintf(h, "max_chars=%d\n", cfg.MaxChars)
	fmt.Fprintf(h, "max_overlap=%d\n", cfg.MaxOverlap)

	// Sort option keys so the digest is stable regardless of map iteration
	// order for any feature's opaque options bag that happens to affect
	// content (html_to_markdown sub-options: spec §9 open question notes the
	// source hashes all of them today, so this hashes the whole toggle).
	hashToggle := func(name string, t value.FeatureToggle) {
		fmt.Fprintf(h, "%s=%v\n", name, t.Enabled)
		keys := make([]string, 0, len(t.Options))
		for k := range t.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s.%s=%v\n", name, k, t.Options[k])
		}
	}
	hashToggle("chunking", cfg.Chunking)
	hashToggle("tables", cfg.Tables)
	hashToggle("images", cfg.Images)
	hashToggle("language_detection", cfg.LanguageDetection)
	hashToggle("entities", cfg.Entities)
	hashToggle("keywords", cfg.Keywords)
	hashToggle("json_extraction", cfg.JSONExtraction)
	hashToggle("token_reduction", cfg.TokenReduction)
	hashToggle("html_to_markdown", cfg.HTMLToMarkdown)

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// NamespaceDir returns the absolute directory a namespace lives under,
// useful for passing into a subprocess-backed OCR engine that wants its own
// cache directory handle.
func NamespaceDir(root, namespace string) string {
	return filepath.Join(root, namespace)
}
