// Package value holds the extraction pipeline's frozen data model:
// ExtractionResult, Metadata, ExtractionConfig, TableData, ExtractedImage,
// ImageOCRResult and the ProcessingError record.
//
// Everything here is a value record except ExtractionResult itself, which is
// produced fresh per call and may be mutated only by the orchestrator
// (internal/pipeline) through the Builder below before it is returned.
package value

import "time"

// ExtractionResult is the output of a single extraction call.
type ExtractionResult struct {
	Content  string   `json:"content"`
	MimeType string   `json:"mime_type"`
	Metadata Metadata `json:"metadata"`

	Tables          []TableData     `json:"tables,omitempty"`
	Chunks          []string        `json:"chunks,omitempty"`
	Images          []ExtractedImage `json:"images,omitempty"`
	ImageOCRResults []ImageOCRResult `json:"image_ocr_results,omitempty"`

	Entities                []string `json:"entities,omitempty"`
	Keywords                []string `json:"keywords,omitempty"`
	DetectedLanguages       []string `json:"detected_languages,omitempty"`
	DocumentType            string   `json:"document_type,omitempty"`
	DocumentTypeConfidence  float64  `json:"document_type_confidence,omitempty"`
	Layout                  interface{} `json:"layout,omitempty"`
}

// Clone returns a defensive deep-enough copy, used when returning a cache hit
// so the caller cannot mutate the cached copy in place.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = r.Metadata.clone()
	out.Tables = append([]TableData(nil), r.Tables...)
	out.Chunks = append([]string(nil), r.Chunks...)
	out.Images = append([]ExtractedImage(nil), r.Images...)
	out.ImageOCRResults = append([]ImageOCRResult(nil), r.ImageOCRResults...)
	out.Entities = append([]string(nil), r.Entities...)
	out.Keywords = append([]string(nil), r.Keywords...)
	out.DetectedLanguages = append([]string(nil), r.DetectedLanguages...)
	return &out
}

// Metadata is an open record: a validated subset of well-known fields plus a
// free-form Attributes bag for anything else a handler or feature wants to
// attach. Unknown keys arriving through the API edge must never be dropped.
type Metadata struct {
	Error             string            `json:"error,omitempty"`
	Warning           string            `json:"warning,omitempty"`
	QualityScore      *float64          `json:"quality_score,omitempty"`
	ProcessingErrors  []ProcessingError `json:"processing_errors,omitempty"`
	ImagePreprocessing *ImagePreprocessingMetadata `json:"image_preprocessing,omitempty"`
	TokenReduction    *TokenReductionStats        `json:"token_reduction,omitempty"`
	Attributes        map[string]interface{}      `json:"attributes,omitempty"`
}

func (m Metadata) clone() Metadata {
	out := m
	out.ProcessingErrors = append([]ProcessingError(nil), m.ProcessingErrors...)
	if m.Attributes != nil {
		out.Attributes = make(map[string]interface{}, len(m.Attributes))
		for k, v := range m.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// AddProcessingError appends a ProcessingError record to the metadata, used
// by the Safe-Feature envelope (internal/pipeline) when a feature's failure
// is suppressed rather than bubbled.
func (m *Metadata) AddProcessingError(e ProcessingError) {
	m.ProcessingErrors = append(m.ProcessingErrors, e)
}

// ProcessingError is added to metadata, never thrown on its own. Created
// inside the Safe-Feature envelope and appended to metadata.processing_errors.
type ProcessingError struct {
	Feature      string `json:"feature"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Traceback    string `json:"traceback,omitempty"`
}

// TokenReductionStats is attached to metadata.token_reduction when the token
// reduction feature overwrites Content.
type TokenReductionStats struct {
	OriginalTokens int     `json:"original_tokens"`
	ReducedTokens  int     `json:"reduced_tokens"`
	ReductionRatio float64 `json:"reduction_ratio"`
	Language       string  `json:"language,omitempty"`
}

// ImagePreprocessingMetadata describes what the image preprocessor (C) did
// to a single raster image. Field names mirror original_source's DTO shape.
type ImagePreprocessingMetadata struct {
	OriginalDimensions [2]int     `json:"original_dimensions"`
	OriginalDPI        [2]float64 `json:"original_dpi"`
	TargetDPI          int        `json:"target_dpi"`
	ScaleFactor        float64    `json:"scale_factor"`
	AutoAdjusted       bool       `json:"auto_adjusted"`
	FinalDPI           int        `json:"final_dpi"`
	NewDimensions      *[2]int    `json:"new_dimensions,omitempty"`
	ResampleMethod     string     `json:"resample_method,omitempty"`
	DimensionClamped   bool       `json:"dimension_clamped"`
	CalculatedDPI      *int       `json:"calculated_dpi,omitempty"`
	SkippedResize      bool       `json:"skipped_resize"`
	ResizeError        string     `json:"resize_error,omitempty"`
}

// TableData is the reconstructed or handler-extracted table: text is a
// markdown pipe table using "|" as column separator and "| --- |" as the
// header separator row.
type TableData struct {
	PageNumber   int    `json:"page_number"`
	Text         string `json:"text"`
	CroppedImage []byte `json:"cropped_image,omitempty"`
}

// ExtractedImage is a raster image a handler pulled out of a document.
// It holds slices and pointers, so it is not comparable with == and cannot
// be used as a map key; no equality or hashing helper is defined for it.
type ExtractedImage struct {
	Data             []byte `json:"data"`
	Format           string `json:"format"`
	Filename         string `json:"filename,omitempty"`
	PageNumber       *int   `json:"page_number,omitempty"`
	Width            *int   `json:"width,omitempty"`
	Height           *int   `json:"height,omitempty"`
	Colorspace       string `json:"colorspace,omitempty"`
	BitsPerComponent *int   `json:"bits_per_component,omitempty"`
	IsMask           bool   `json:"is_mask"`
	Description      string `json:"description,omitempty"`

	// DPI is the (x_dpi, y_dpi) hint a handler can attach from the source
	// document's embedded resolution metadata; nil means unknown, and the
	// preprocessor falls back to its default of 72 (spec §4.2 step 2).
	DPI *[2]float64 `json:"dpi,omitempty"`
}

// ImageOCRResult pairs an extracted image with the OCR result run over it.
type ImageOCRResult struct {
	Image           ExtractedImage    `json:"image"`
	OCRResult       ExtractionResult  `json:"ocr_result"`
	ConfidenceScore *float64          `json:"confidence_score,omitempty"`
	ProcessingTime  *time.Duration    `json:"processing_time,omitempty"`
	SkippedReason   string            `json:"skipped_reason,omitempty"`
}

// Builder assembles an ExtractionResult across the orchestrator's pipeline
// steps (§9 design note: mutable ExtractionResult becomes an interior
// builder folded into an immutable record at return time).
type Builder struct {
	result ExtractionResult
}

// NewBuilder starts a builder from a handler's initial result.
func NewBuilder(initial ExtractionResult) *Builder {
	return &Builder{result: initial}
}

// Mutate exposes a &mut-style view to a single pipeline step; only the
// orchestrator package should call this.
func (b *Builder) Mutate(fn func(*ExtractionResult)) {
	fn(&b.result)
}

// Build folds the builder into the final immutable ExtractionResult.
func (b *Builder) Build() ExtractionResult {
	return b.result
}
