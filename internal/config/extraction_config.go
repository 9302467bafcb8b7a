package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// fileName is the dedicated config document name; sectionHost is the
// project-manifest fallback spec §4.7 names ("a section inside a project
// manifest").
const (
	fileName    = "kreuzberg.toml"
	sectionHost = "pyproject.toml"
	sectionKey  = "tool.kreuzberg"
)

// legacyFields are the known legacy-only flat field names spec §4.7
// requires rejecting with a remediation URL. Exact names supplemented from
// original_source's V3 config validator, since the distilled spec names the
// behavior ("reject legacy flat config shapes") but not the field list.
var legacyFields = []string{
	"ocr_backend", "chunk_content", "extract_tables", "extract_images",
	"extract_keywords", "extract_entities", "auto_detect_language",
	"keyword_count", "vision_tables_config", "ocr_config",
}

const remediationURL = "https://kreuzberg.dev/docs/migration/v3-to-v4-config"

// tomlExtractionConfig mirrors value.ExtractionConfig's serializable subset
// (hooks/validators are Go closures and have no file representation).
type tomlExtractionConfig struct {
	OCR                     *tomlOCRVariant `toml:"ocr"`
	ForceOCR                *bool           `toml:"force_ocr"`
	Chunking                *tomlToggle     `toml:"chunking"`
	Tables                  *tomlToggle     `toml:"tables"`
	Images                  *tomlToggle     `toml:"images"`
	LanguageDetection       *tomlToggle     `toml:"language_detection"`
	Entities                *tomlToggle     `toml:"entities"`
	Keywords                *tomlToggle     `toml:"keywords"`
	HTMLToMarkdown          *tomlToggle     `toml:"html_to_markdown"`
	JSONExtraction          *tomlToggle     `toml:"json_extraction"`
	TokenReduction          *tomlToggle     `toml:"token_reduction"`
	UseCache                *bool           `toml:"use_cache"`
	EnableQualityProcessing *bool           `toml:"enable_quality_processing"`
	TargetDPI               *int            `toml:"target_dpi"`
	MinDPI                  *int            `toml:"min_dpi"`
	MaxDPI                  *int            `toml:"max_dpi"`
	MaxImageDimension       *int            `toml:"max_image_dimension"`
	AutoAdjustDPI           *bool           `toml:"auto_adjust_dpi"`
	MaxChars                *int            `toml:"max_chars"`
	MaxOverlap              *int            `toml:"max_overlap"`

	// Unknown is excluded from TOML decoding and nothing in this package
	// fills it, so keys without a matching field are ignored by the parse
	// and are not kept here.
	Unknown map[string]interface{} `toml:"-"`
}

type tomlToggle struct {
	Enabled bool                   `toml:"enabled"`
	Options map[string]interface{} `toml:"options"`
}

type tomlOCRVariant struct {
	Kind      string                  `toml:"kind"`
	Tesseract *value.TesseractConfig  `toml:"tesseract"`
}

// DiscoverConfig implements discover_config(start_path?): walks ancestor
// directories for kreuzberg.toml first, then a [tool.kreuzberg] section
// inside pyproject.toml, stopping at the first hit or the filesystem root
// (spec §4.7).
func DiscoverConfig(startPath string) (*value.ExtractionConfig, error) {
	dir := startPath
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, kerrors.NewSystemError("get working directory", err)
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, kerrors.NewSystemError("resolve absolute start path", err)
	}

	for {
		candidate := filepath.Join(dir, fileName)
		if data, err := os.ReadFile(candidate); err == nil {
			return parseDedicatedDocument(data)
		}

		manifest := filepath.Join(dir, sectionHost)
		if data, err := os.ReadFile(manifest); err == nil {
			if cfg, ok, err := parseManifestSection(data); err != nil {
				return nil, err
			} else if ok {
				return cfg, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func parseDedicatedDocument(data []byte) (*value.ExtractionConfig, error) {
	if err := rejectLegacyShape(data); err != nil {
		return nil, err
	}
	var raw tomlExtractionConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, kerrors.NewValidationError("failed to parse kreuzberg.toml", map[string]interface{}{"err": err.Error()})
	}
	return materialize(raw), nil
}

func parseManifestSection(data []byte) (*value.ExtractionConfig, bool, error) {
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, false, kerrors.NewValidationError("failed to parse pyproject.toml", map[string]interface{}{"err": err.Error()})
	}
	tool, ok := doc["tool"].(map[string]interface{})
	if !ok {
		return nil, false, nil
	}
	section, ok := tool["kreuzberg"]
	if !ok {
		return nil, false, nil
	}

	reencoded, err := toml.Marshal(section)
	if err != nil {
		return nil, false, kerrors.NewValidationError("malformed tool.kreuzberg section", nil)
	}
	if err := rejectLegacyShape(reencoded); err != nil {
		return nil, true, err
	}
	var raw tomlExtractionConfig
	if err := toml.Unmarshal(reencoded, &raw); err != nil {
		return nil, true, kerrors.NewValidationError("failed to parse tool.kreuzberg section", map[string]interface{}{"err": err.Error()})
	}
	return materialize(raw), true, nil
}

// rejectLegacyShape detects the known legacy V3 flat field names and fails
// fast with remediation guidance rather than silently misinterpreting an
// old config (spec §4.7).
func rejectLegacyShape(data []byte) error {
	var generic map[string]interface{}
	if err := toml.Unmarshal(data, &generic); err != nil {
		return nil // let the typed parse report the syntax error
	}
	for _, legacy := range legacyFields {
		if _, present := generic[legacy]; present {
			return kerrors.NewValidationError(
				"legacy v3 configuration shape is no longer supported",
				map[string]interface{}{
					"field":           legacy,
					"remediation_url": remediationURL,
				},
			)
		}
	}
	return nil
}

// materialize folds a parsed file-level config onto value.Default(), leaving
// every unset field at its default (spec §4.7: "missing keys inherit from
// the lower layer").
func materialize(raw tomlExtractionConfig) *value.ExtractionConfig {
	cfg := value.Default()
	applyToggle := func(dst *value.FeatureToggle, src *tomlToggle) {
		if src == nil {
			return
		}
		dst.Enabled = src.Enabled
		dst.Options = src.Options
	}

	if raw.OCR != nil {
		switch raw.OCR.Kind {
		case "tesseract":
			cfg.OCR = value.OCRVariant{Kind: value.OCRTesseract, Tesseract: raw.OCR.Tesseract}
		case "easyocr":
			cfg.OCR = value.OCRVariant{Kind: value.OCREasyOCR, EasyOCR: &value.EasyOCRConfig{}}
		case "paddleocr":
			cfg.OCR = value.OCRVariant{Kind: value.OCRPaddleOCR, PaddleOCR: &value.PaddleOCRConfig{}}
		case "", "none":
			cfg.OCR = value.OCRVariant{Kind: value.OCRNone}
		}
	}
	if raw.ForceOCR != nil {
		cfg.ForceOCR = *raw.ForceOCR
	}
	applyToggle(&cfg.Chunking, raw.Chunking)
	applyToggle(&cfg.Tables, raw.Tables)
	applyToggle(&cfg.Images, raw.Images)
	applyToggle(&cfg.LanguageDetection, raw.LanguageDetection)
	applyToggle(&cfg.Entities, raw.Entities)
	applyToggle(&cfg.Keywords, raw.Keywords)
	applyToggle(&cfg.HTMLToMarkdown, raw.HTMLToMarkdown)
	applyToggle(&cfg.JSONExtraction, raw.JSONExtraction)
	applyToggle(&cfg.TokenReduction, raw.TokenReduction)

	if raw.UseCache != nil {
		cfg.UseCache = *raw.UseCache
	}
	if raw.EnableQualityProcessing != nil {
		cfg.EnableQualityProcessing = *raw.EnableQualityProcessing
	}
	if raw.TargetDPI != nil {
		cfg.TargetDPI = *raw.TargetDPI
	}
	if raw.MinDPI != nil {
		cfg.MinDPI = *raw.MinDPI
	}
	if raw.MaxDPI != nil {
		cfg.MaxDPI = *raw.MaxDPI
	}
	if raw.MaxImageDimension != nil {
		cfg.MaxImageDimension = *raw.MaxImageDimension
	}
	if raw.AutoAdjustDPI != nil {
		cfg.AutoAdjustDPI = *raw.AutoAdjustDPI
	}
	if raw.MaxChars != nil {
		cfg.MaxChars = *raw.MaxChars
	}
	if raw.MaxOverlap != nil {
		cfg.MaxOverlap = *raw.MaxOverlap
	}

	return &cfg
}

// MergeOverrides implements spec §4.7's merge order for a single call:
// discovered file < in-call JSON overrides < explicit constructor
// arguments. base is already the lowest layer; overrides is applied on top
// field-by-field, skipping zero values so missing keys keep inheriting from
// base.
func MergeOverrides(base value.ExtractionConfig, overrides value.ExtractionConfig) value.ExtractionConfig {
	merged := base
	if overrides.OCR.Kind != "" {
		merged.OCR = overrides.OCR
	}
	merged.ForceOCR = overrides.ForceOCR || base.ForceOCR
	merged.UseCache = overrides.UseCache || base.UseCache
	merged.EnableQualityProcessing = overrides.EnableQualityProcessing || base.EnableQualityProcessing
	merged.AutoAdjustDPI = overrides.AutoAdjustDPI || base.AutoAdjustDPI
	mergeToggle := func(dst *value.FeatureToggle, override value.FeatureToggle) {
		if override.Enabled {
			*dst = override
		}
	}
	mergeToggle(&merged.Chunking, overrides.Chunking)
	mergeToggle(&merged.Tables, overrides.Tables)
	mergeToggle(&merged.Images, overrides.Images)
	mergeToggle(&merged.LanguageDetection, overrides.LanguageDetection)
	mergeToggle(&merged.Entities, overrides.Entities)
	mergeToggle(&merged.Keywords, overrides.Keywords)
	mergeToggle(&merged.HTMLToMarkdown, overrides.HTMLToMarkdown)
	mergeToggle(&merged.JSONExtraction, overrides.JSONExtraction)
	mergeToggle(&merged.TokenReduction, overrides.TokenReduction)

	if overrides.TargetDPI != 0 {
		merged.TargetDPI = overrides.TargetDPI
	}
	if overrides.MinDPI != 0 {
		merged.MinDPI = overrides.MinDPI
	}
	if overrides.MaxDPI != 0 {
		merged.MaxDPI = overrides.MaxDPI
	}
	if overrides.MaxImageDimension != 0 {
		merged.MaxImageDimension = overrides.MaxImageDimension
	}
	if overrides.MaxChars != 0 {
		merged.MaxChars = overrides.MaxChars
	}
	if overrides.MaxOverlap != 0 {
		merged.MaxOverlap = overrides.MaxOverlap
	}
	if len(overrides.PDFPasswords) > 0 {
		merged.PDFPasswords = overrides.PDFPasswords
	}
	if len(overrides.PostProcessingHooks) > 0 {
		merged.PostProcessingHooks = overrides.PostProcessingHooks
	}
	if len(overrides.Validators) > 0 {
		merged.Validators = overrides.Validators
	}
	return merged
}
