package value

import (
	"fmt"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
)

// OCRBackendKind tags which OCR backend variant an ExtractionConfig selects.
type OCRBackendKind string

const (
	OCRNone     OCRBackendKind = "none"
	OCRTesseract OCRBackendKind = "tesseract"
	OCREasyOCR   OCRBackendKind = "easyocr"
	OCRPaddleOCR OCRBackendKind = "paddleocr"
)

// OCRVariant is the tagged union of OCR backend configs. Exactly one of the
// pointer fields is set according to Kind, or none if Kind is OCRNone.
// (§9 design note: tagged OCR configs are a sum type.) ExtractionConfig.Validate
// below rejects a Kind outside the four tags; the config-file parser in
// internal/config maps an unrecognized `kind` to OCRNone instead of
// rejecting it.
type OCRVariant struct {
	Kind      OCRBackendKind
	Tesseract *TesseractConfig
	EasyOCR   *EasyOCRConfig
	PaddleOCR *PaddleOCRConfig
}

// TesseractConfig configures the Tesseract-shaped OCR backend (§4.3).
type TesseractConfig struct {
	Language                string  `toml:"language" json:"language"`
	PSM                     int     `toml:"psm" json:"psm"`
	OutputFormat            string  `toml:"output_format" json:"output_format"` // text|markdown|hocr|tsv
	EnableTableDetection    bool    `toml:"enable_table_detection" json:"enable_table_detection"`
	TableColumnThreshold    float64 `toml:"table_column_threshold" json:"table_column_threshold"`
	TableRowThresholdRatio  float64 `toml:"table_row_threshold_ratio" json:"table_row_threshold_ratio"`
	TableMinConfidence      float64 `toml:"table_min_confidence" json:"table_min_confidence"`
}

// EasyOCRConfig and PaddleOCRConfig are alternative backend variants named by
// spec §3 as part of the sum type. Their internals are out of scope (§1);
// they exist here only so the tagged union and its rejection-of-unknown-tags
// behavior is complete.
type EasyOCRConfig struct {
	Language string `toml:"language" json:"language"`
}

type PaddleOCRConfig struct {
	Language string `toml:"language" json:"language"`
}

// FeatureToggle represents an optional feature that is either disabled
// ("none") or carries an opaque options bag understood by that feature's
// own implementation (out of scope here per §1).
type FeatureToggle struct {
	Enabled bool
	Options map[string]interface{}
}

// ExtractionConfig is the frozen configuration for a single extraction call.
type ExtractionConfig struct {
	OCR      OCRVariant
	ForceOCR bool

	Chunking          FeatureToggle
	Tables            FeatureToggle
	Images            FeatureToggle
	LanguageDetection FeatureToggle
	Entities          FeatureToggle
	Keywords          FeatureToggle
	HTMLToMarkdown    FeatureToggle
	JSONExtraction    FeatureToggle
	TokenReduction    FeatureToggle

	PDFPasswords []string

	PostProcessingHooks []Hook
	Validators          []Validator

	UseCache                bool
	EnableQualityProcessing bool

	TargetDPI         int
	MinDPI            int
	MaxDPI            int
	MaxImageDimension int
	AutoAdjustDPI     bool

	// MaxChars and MaxOverlap bound chunking output (§3 invariant on Chunks).
	MaxChars   int
	MaxOverlap int
}

// Hook mutates or replaces an ExtractionResult after feature processing.
// Returning an error does not abort the extraction (§4.5 step 7); the
// orchestrator folds hook failures into metadata.processing_errors. The
// exception is a System- or MissingDependency-tagged error, which aborts it.
type Hook func(*ExtractionResult) (*ExtractionResult, error)

// Validator inspects the assembled result. Returning an error aborts the
// extraction with a Validation-tagged failure (§4.5 step 6).
type Validator func(*ExtractionResult) error

// Default returns an ExtractionConfig with the same defaults the original
// implementation ships: 150 DPI target within [72, 600], 4000px dimension
// cap, cache and quality processing on.
func Default() ExtractionConfig {
	return ExtractionConfig{
		OCR:                     OCRVariant{Kind: OCRNone},
		UseCache:                true,
		EnableQualityProcessing: true,
		TargetDPI:               150,
		MinDPI:                  72,
		MaxDPI:                  600,
		MaxImageDimension:       4000,
		AutoAdjustDPI:           true,
		MaxChars:                2000,
		MaxOverlap:              200,
	}
}

// Validate enforces the invariants spec §3 names: 0 < min_dpi <= target_dpi
// <= max_dpi; max_image_dimension > 0; and that the OCR variant's Kind
// matches which pointer field (if any) is populated.
func (c ExtractionConfig) Validate() error {
	if !(0 < c.MinDPI && c.MinDPI <= c.TargetDPI && c.TargetDPI <= c.MaxDPI) {
		return kerrors.NewValidationError(
			fmt.Sprintf("invalid DPI bounds: min=%d target=%d max=%d", c.MinDPI, c.TargetDPI, c.MaxDPI),
			map[string]interface{}{"min_dpi": c.MinDPI, "target_dpi": c.TargetDPI, "max_dpi": c.MaxDPI},
		)
	}
	if c.MaxImageDimension <= 0 {
		return kerrors.NewValidationError(
			fmt.Sprintf("max_image_dimension must be > 0, got %d", c.MaxImageDimension),
			map[string]interface{}{"max_image_dimension": c.MaxImageDimension},
		)
	}
	switch c.OCR.Kind {
	case OCRNone:
		// nothing set.
	case OCRTesseract:
		if c.OCR.Tesseract == nil {
			return kerrors.NewValidationError("ocr kind is tesseract but no tesseract config provided", nil)
		}
	case OCREasyOCR:
		if c.OCR.EasyOCR == nil {
			return kerrors.NewValidationError("ocr kind is easyocr but no easyocr config provided", nil)
		}
	case OCRPaddleOCR:
		if c.OCR.PaddleOCR == nil {
			return kerrors.NewValidationError("ocr kind is paddleocr but no paddleocr config provided", nil)
		}
	default:
		return kerrors.NewValidationError(
			fmt.Sprintf("unknown ocr backend tag %q", c.OCR.Kind),
			map[string]interface{}{"ocr_kind": string(c.OCR.Kind)},
		)
	}
	return nil
}
