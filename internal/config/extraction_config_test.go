package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

func TestDiscoverConfigFindsDedicatedDocument(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	toml := `
force_ocr = true
[ocr]
kind = "tesseract"
[ocr.tesseract]
language = "deu"
psm = 6
output_format = "markdown"
[chunking]
enabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(root, fileName), []byte(toml), 0o644))

	cfg, err := DiscoverConfig(nested)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.ForceOCR)
	assert.Equal(t, value.OCRTesseract, cfg.OCR.Kind)
	require.NotNil(t, cfg.OCR.Tesseract)
	assert.Equal(t, "deu", cfg.OCR.Tesseract.Language)
	assert.True(t, cfg.Chunking.Enabled)
}

func TestDiscoverConfigFallsBackToManifestSection(t *testing.T) {
	root := t.TempDir()
	manifest := `
[tool.kreuzberg]
force_ocr = false

[tool.kreuzberg.tables]
enabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(root, sectionHost), []byte(manifest), 0o644))

	cfg, err := DiscoverConfig(root)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Tables.Enabled)
}

func TestDiscoverConfigReturnsNilWhenNothingFound(t *testing.T) {
	root := t.TempDir()
	cfg, err := DiscoverConfig(root)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestDiscoverConfigRejectsLegacyShape(t *testing.T) {
	root := t.TempDir()
	legacy := `
ocr_backend = "tesseract"
chunk_content = true
`
	require.NoError(t, os.WriteFile(filepath.Join(root, fileName), []byte(legacy), 0o644))

	_, err := DiscoverConfig(root)
	require.Error(t, err)
	var de *kerrors.DomainError
	require.True(t, kerrors.AsDomainError(err, &de))
	assert.Equal(t, kerrors.Validation, de.Tag)
	assert.Contains(t, de.Context["remediation_url"], "migration")
}

func TestMergeOverridesLayeringOrder(t *testing.T) {
	base := value.Default()
	base.TargetDPI = 150
	base.Tables.Enabled = true

	overrides := value.ExtractionConfig{TargetDPI: 300}
	merged := MergeOverrides(base, overrides)

	assert.Equal(t, 300, merged.TargetDPI)
	assert.True(t, merged.Tables.Enabled, "fields absent from overrides must inherit from base")
}
