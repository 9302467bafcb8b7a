// Package ocr implements the OCR engine of spec §4.3: a Tesseract-shaped
// backend producing word-level records, shaped into text/markdown/hocr/tsv
// output, with TSV→table reconstruction and a batch entry point that
// isolates per-item failures.
package ocr

import (
	"context"
	"image"

	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Word is a single recognized word with its bounding box and confidence,
// the record shape spec §4.3 step 2 names: {left, top, width, height, conf, text}.
type Word struct {
	Left, Top, Width, Height int
	Confidence               float64 // 0..100
	Text                     string
}

// Backend is the OCR interface spec §4.3 names: three entry points, each
// producing an ExtractionResult. TesseractBackend is the only implementation
// in this module; the entry points take a value.TesseractConfig, and the
// easyocr/paddleocr variants of value.OCRVariant have no backend here.
type Backend interface {
	ProcessImage(ctx context.Context, img image.Image, cfg value.TesseractConfig) (value.ExtractionResult, error)
	ProcessFile(ctx context.Context, path string, cfg value.TesseractConfig) (value.ExtractionResult, error)
	ProcessBatch(ctx context.Context, paths []string, cfg value.TesseractConfig) ([]value.ExtractionResult, error)
}

// supportedLanguages is the fixed set spec §4.3 requires validating the
// language code against ("reject unknown codes with Validation"). Kept
// small and explicit rather than delegating to the tesseract binary's own
// language list, matching the original's validate_language_code contract of
// failing fast before ever invoking the engine.
var supportedLanguages = map[string]bool{
	"eng": true, "deu": true, "fra": true, "spa": true, "ita": true,
	"por": true, "nld": true, "rus": true, "chi_sim": true, "chi_tra": true,
	"jpn": true, "kor": true, "ara": true, "hin": true,
}

// ValidateLanguage checks a (possibly "+"-joined, e.g. "eng+deu") language
// code against the supported set.
func ValidateLanguage(lang string) bool {
	if lang == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(lang); i++ {
		if i == len(lang) || lang[i] == '+' {
			code := lang[start:i]
			if !supportedLanguages[code] {
				return false
			}
			start = i + 1
		}
	}
	return true
}
