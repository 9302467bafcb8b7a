package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBulletGlyphFolding(t *testing.T) {
	got := Normalize("• item one\n• item two")
	assert.Equal(t, "- item one\n- item two", got)
}

func TestNormalizeShortGarbageStripped(t *testing.T) {
	got := Normalize("Diagram caption\n\nCache\n1\n-\n(@)\nLegend")
	assert.Equal(t, "Diagram caption\n\nCache\nLegend", got)
}

func TestNormalizeNumericStubPreserved(t *testing.T) {
	got := Normalize("Sentence\n3\nEO")
	assert.Equal(t, "Sentence\n3\nEO", got)
}

func TestNormalizeDuplicateLineDedup(t *testing.T) {
	got := Normalize("Repeat line\nrepeat line\nRepeat line")
	assert.Equal(t, "Repeat line", got)
}
