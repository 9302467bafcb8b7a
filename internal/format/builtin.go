package format

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// PlainTextHandler covers text/plain and text/markdown: the content already
// is text, no OCR subpipeline needed (spec §1: concrete non-raster parsers
// are external collaborators, but plain text needs no parsing at all).
type PlainTextHandler struct {
	PreferredMIME string
}

func (h PlainTextHandler) Capabilities() Capabilities {
	return Capabilities{EmitsTextDirectly: true, PreferredMIME: h.PreferredMIME}
}

func (h PlainTextHandler) ExtractBytesSync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return value.ExtractionResult{Content: string(data), MimeType: h.PreferredMIME}, nil
}

func (h PlainTextHandler) ExtractBytesAsync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return h.ExtractBytesSync(ctx, data, cfg)
}

func (h PlainTextHandler) ExtractPathSync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return value.ExtractionResult{}, kerrors.NewParsingError("failed to read text file", map[string]interface{}{"path": path}, err)
	}
	return h.ExtractBytesSync(ctx, data, cfg)
}

func (h PlainTextHandler) ExtractPathAsync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return h.ExtractPathSync(ctx, path, cfg)
}

// RasterImageHandler covers image/png, image/jpeg, image/gif, image/tiff,
// image/bmp: these never carry extractable text themselves, so the handler's
// only job is to decode the raster and hand it to the orchestrator as an
// ExtractedImage; OCR (§4.3) runs downstream since Capabilities.ConsumesOCR
// is true and EmitsTextDirectly is false (spec §4.5 step 3). Only the PNG,
// JPEG and GIF decoders are linked in, so TIFF and BMP payloads fail to
// decode with a Parsing error.
type RasterImageHandler struct {
	PreferredMIME string
}

func (h RasterImageHandler) Capabilities() Capabilities {
	return Capabilities{EmitsImages: true, ConsumesOCR: true, PreferredMIME: h.PreferredMIME}
}

func (h RasterImageHandler) decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", kerrors.NewParsingError("failed to decode raster image", map[string]interface{}{"mime": h.PreferredMIME}, err)
	}
	return img, format, nil
}

func (h RasterImageHandler) ExtractBytesSync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	img, format, err := h.decode(data)
	if err != nil {
		return value.ExtractionResult{}, err
	}
	bounds := img.Bounds()
	w, h2 := bounds.Dx(), bounds.Dy()
	return value.ExtractionResult{
		MimeType: h.PreferredMIME,
		Images: []value.ExtractedImage{{
			Data:   data,
			Format: format,
			Width:  &w,
			Height: &h2,
		}},
	}, nil
}

func (h RasterImageHandler) ExtractBytesAsync(ctx context.Context, data []byte, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return h.ExtractBytesSync(ctx, data, cfg)
}

func (h RasterImageHandler) ExtractPathSync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return value.ExtractionResult{}, kerrors.NewParsingError("failed to read image file", map[string]interface{}{"path": path}, err)
	}
	return h.ExtractBytesSync(ctx, data, cfg)
}

func (h RasterImageHandler) ExtractPathAsync(ctx context.Context, path string, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	return h.ExtractPathSync(ctx, path, cfg)
}

// NewDefaultRegistry registers the built-in handlers this module implements
// directly (plain text, markdown, the raster image formats). Structured
// document formats (PDF/DOCX/PPTX/HTML/Email/XLSX/JSON/YAML) are out of
// scope (spec §1) — the registry exists so they can be plugged in by a
// caller without changing the dispatch contract.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("text/plain", PlainTextHandler{PreferredMIME: "text/plain"})
	reg.Register("text/markdown", PlainTextHandler{PreferredMIME: "text/markdown"})
	reg.Register("image/png", RasterImageHandler{PreferredMIME: "image/png"})
	reg.Register("image/jpeg", RasterImageHandler{PreferredMIME: "image/jpeg"})
	reg.Register("image/tiff", RasterImageHandler{PreferredMIME: "image/tiff"})
	reg.Register("image/bmp", RasterImageHandler{PreferredMIME: "image/bmp"})
	reg.Register("image/gif", RasterImageHandler{PreferredMIME: "image/gif"})
	return reg
}
