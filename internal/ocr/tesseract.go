package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/fileprocess-worker/internal/cache"
	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

const plainTextMime = "text/plain"

// TesseractBackend is the reference OCR backend of spec §4.3, grounded on
// the teacher's internal/processor/tesseract_ocr.go (gosseract wiring) and
// on original_source/_ocr/_tesseract.py (the per-item batch error shape and
// the config validation rules).
type TesseractBackend struct {
	ocrCache *cache.Cache
}

// NewTesseractBackend wires the OCR namespace cache in: identical inputs
// must produce byte-identical outputs (spec §4.3 "caching integration").
func NewTesseractBackend(ocrCache *cache.Cache) *TesseractBackend {
	return &TesseractBackend{ocrCache: ocrCache}
}

const engineVersion = "tesseract-v1"

func (b *TesseractBackend) cacheKey(cfg value.TesseractConfig, imageBytes []byte) string {
	configDigest := fmt.Sprintf("%s|%d|%s|%v|%f|%f|%f",
		cfg.Language, cfg.PSM, cfg.OutputFormat, cfg.EnableTableDetection,
		cfg.TableColumnThreshold, cfg.TableRowThresholdRatio, cfg.TableMinConfidence)
	return cache.KeyFor(engineVersion, configDigest, string(imageBytes))
}

func (b *TesseractBackend) validate(cfg value.TesseractConfig) error {
	if !ValidateLanguage(cfg.Language) {
		return kerrors.NewValidationError(
			fmt.Sprintf("language code %q is not supported by tesseract", cfg.Language),
			map[string]interface{}{"language": cfg.Language},
		)
	}
	if cfg.PSM < 0 || cfg.PSM > 10 {
		return kerrors.NewValidationError(
			fmt.Sprintf("psm %d out of range 0..10", cfg.PSM),
			map[string]interface{}{"psm": cfg.PSM},
		)
	}
	return nil
}

// ProcessImage recognizes text in an in-memory image (spec §4.3 entry point 1).
func (b *TesseractBackend) ProcessImage(ctx context.Context, img image.Image, cfg value.TesseractConfig) (value.ExtractionResult, error) {
	if err := b.validate(cfg); err != nil {
		return value.ExtractionResult{}, err
	}

	tmp, err := os.CreateTemp("", "kreuzberg-ocr-*.png")
	if err != nil {
		return value.ExtractionResult{}, kerrors.NewSystemError("create temp file for ocr", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return value.ExtractionResult{}, kerrors.NewSystemError("encode image for ocr", err)
	}
	tmp.Close()

	return b.ProcessFile(ctx, path, cfg)
}

// ProcessFile recognizes text in a file on disk (spec §4.3 entry point 2).
func (b *TesseractBackend) ProcessFile(ctx context.Context, path string, cfg value.TesseractConfig) (value.ExtractionResult, error) {
	if err := b.validate(cfg); err != nil {
		return value.ExtractionResult{}, err
	}

	imageBytes, err := os.ReadFile(path)
	if err != nil {
		return value.ExtractionResult{}, kerrors.NewSystemError("read image file for ocr", err)
	}

	key := b.cacheKey(cfg, imageBytes)
	if b.ocrCache != nil {
		if cached, ok := b.ocrCache.Get(key, nil); ok {
			var result value.ExtractionResult
			if err := decodeCachedResult(cached, &result); err == nil {
				return result, nil
			}
		}
	}

	result, err := b.recognize(path, cfg)
	if err != nil {
		return value.ExtractionResult{}, err
	}

	if b.ocrCache != nil {
		if encoded, err := encodeCachedResult(result); err == nil {
			b.ocrCache.Set(key, encoded, nil)
		}
	}
	return result, nil
}

// ProcessBatch runs OCR over every path, isolating per-item failures: a
// failing input becomes a result whose content starts with "[OCR error: …]"
// rather than aborting the batch (spec §4.3, literally porting
// original_source's process_batch_sync error-record shape).
func (b *TesseractBackend) ProcessBatch(ctx context.Context, paths []string, cfg value.TesseractConfig) ([]value.ExtractionResult, error) {
	if err := b.validate(cfg); err != nil {
		return nil, err
	}

	results := make([]value.ExtractionResult, len(paths))
	for i, p := range paths {
		select {
		case <-ctx.Done():
			results[i] = value.ExtractionResult{
				Content:  "",
				MimeType: plainTextMime,
				Metadata: value.Metadata{Error: "cancelled"},
			}
			continue
		default:
		}

		r, err := b.ProcessFile(ctx, p, cfg)
		if err != nil {
			// System errors bubble from single-item calls but stay
			// contained in batch mode (spec §4.3).
			errMsg := err.Error()
			if de, ok := err.(*kerrors.DomainError); ok {
				errMsg = de.Message
			}
			results[i] = value.ExtractionResult{
				Content:  fmt.Sprintf("[OCR error: %s]", errMsg),
				MimeType: plainTextMime,
				Metadata: value.Metadata{Error: errMsg},
			}
			continue
		}
		results[i] = r
	}
	return results, nil
}

func (b *TesseractBackend) recognize(path string, cfg value.TesseractConfig) (value.ExtractionResult, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(path); err != nil {
		return value.ExtractionResult{}, kerrors.NewOCRError("failed to set ocr image", nil, err)
	}
	if err := client.SetLanguage(cfg.Language); err != nil {
		return value.ExtractionResult{}, kerrors.NewOCRError("failed to set ocr language", map[string]interface{}{"language": cfg.Language}, err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PSM)); err != nil {
		return value.ExtractionResult{}, kerrors.NewOCRError("failed to set psm", map[string]interface{}{"psm": cfg.PSM}, err)
	}

	text, err := client.Text()
	if err != nil {
		return value.ExtractionResult{}, kerrors.NewOCRError("tesseract recognition failed", nil, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	words := make([]Word, 0, len(boxes))
	if err == nil {
		for _, box := range boxes {
			words = append(words, Word{
				Left:       box.Box.Min.X,
				Top:        box.Box.Min.Y,
				Width:      box.Box.Dx(),
				Height:     box.Box.Dy(),
				Confidence: box.Confidence,
				Text:       box.Word,
			})
		}
	}

	outputFormat := cfg.OutputFormat
	if outputFormat == "" {
		outputFormat = "text"
	}

	result := value.ExtractionResult{
		MimeType: shapeMimeType(outputFormat),
		Metadata: value.Metadata{Attributes: map[string]interface{}{
			"language":      cfg.Language,
			"output_format": outputFormat,
		}},
	}

	var tables []value.TableData
	if cfg.EnableTableDetection {
		tables = ReconstructTables(words, cfg.TableColumnThreshold, cfg.TableRowThresholdRatio, cfg.TableMinConfidence)
		result.Metadata.Attributes["tables_detected"] = len(tables) > 0
		result.Metadata.Attributes["table_count"] = len(tables)
	}

	switch outputFormat {
	case "hocr":
		hocr, herr := client.HOCRText()
		if herr == nil {
			result.Content = hocr
		}
	case "tsv":
		result.Content = renderTSV(words)
	case "markdown":
		md := Normalize(text)
		if len(tables) > 0 {
			md += "\n\n"
			for _, tbl := range tables {
				md += tbl.Text + "\n\n"
			}
		}
		result.Content = md
	default: // "text"
		result.Content = Normalize(text)
	}

	result.Tables = tables
	return result, nil
}

func shapeMimeType(outputFormat string) string {
	switch outputFormat {
	case "markdown":
		return "text/markdown"
	case "hocr":
		return "text/html"
	default:
		return plainTextMime
	}
}

func renderTSV(words []Word) string {
	out := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"
	for _, w := range words {
		out += fmt.Sprintf("5\t1\t1\t1\t1\t1\t%d\t%d\t%d\t%d\t%.1f\t%s\n",
			w.Left, w.Top, w.Width, w.Height, w.Confidence, w.Text)
	}
	return out
}
