package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructTablesMatchesScenario(t *testing.T) {
	words := []Word{
		{Left: 80, Top: 95, Width: 60, Height: 20, Confidence: 95, Text: "Product"},
		{Left: 230, Top: 95, Width: 40, Height: 20, Confidence: 95, Text: "Price"},
		{Left: 380, Top: 95, Width: 60, Height: 20, Confidence: 95, Text: "Quantity"},

		{Left: 80, Top: 145, Width: 60, Height: 20, Confidence: 95, Text: "Apples"},
		{Left: 230, Top: 145, Width: 40, Height: 20, Confidence: 95, Text: "$2.50"},
		{Left: 380, Top: 145, Width: 20, Height: 20, Confidence: 95, Text: "10"},

		{Left: 80, Top: 195, Width: 60, Height: 20, Confidence: 95, Text: "Bananas"},
		{Left: 230, Top: 195, Width: 40, Height: 20, Confidence: 95, Text: "$1.20"},
		{Left: 380, Top: 195, Width: 20, Height: 20, Confidence: 95, Text: "15"},
	}

	tables := ReconstructTables(words, 60, 0.5, 50)
	require.Len(t, tables, 1)

	assert.Contains(t, tables[0].Text, "| Product | Price | Quantity |")
	assert.Contains(t, tables[0].Text, "| --- | --- | --- |")
	assert.Contains(t, tables[0].Text, "| Apples | $2.50 | 10 |")
	assert.Contains(t, tables[0].Text, "| Bananas | $1.20 | 15 |")
}

func TestReconstructTablesFiltersLowConfidence(t *testing.T) {
	words := []Word{
		{Left: 0, Top: 0, Width: 10, Height: 10, Confidence: 10, Text: "noise"},
	}
	tables := ReconstructTables(words, 60, 0.5, 50)
	assert.Empty(t, tables)
}
