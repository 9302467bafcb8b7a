package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func defaultOptions() Options {
	return Options{TargetDPI: 150, MinDPI: 72, MaxDPI: 600, MaxImageDimension: 4000, AutoAdjustDPI: true}
}

func TestNormalizeWithinBudgetRespectsBounds(t *testing.T) {
	img := solidImage(800, 600)
	out, meta := Normalize(img, nil, defaultOptions())
	require.NotNil(t, out)

	if meta.NewDimensions != nil {
		assert.LessOrEqual(t, meta.NewDimensions[0], defaultOptions().MaxImageDimension)
		assert.LessOrEqual(t, meta.NewDimensions[1], defaultOptions().MaxImageDimension)
	}
	assert.GreaterOrEqual(t, meta.FinalDPI, 72)
	assert.LessOrEqual(t, meta.FinalDPI, 600)
}

func TestNormalizeMemoryBudgetViolationReportsError(t *testing.T) {
	opt := defaultOptions()
	opt.MaxImageMemoryMB = 0.001 // force violation
	img := solidImage(100, 100)

	_, meta := Normalize(img, nil, opt)
	assert.True(t, meta.SkippedResize)
	assert.NotEmpty(t, meta.ResizeError)
}

func TestNormalizeSkipsResizeForNearUnityScale(t *testing.T) {
	opt := defaultOptions()
	opt.TargetDPI = 72
	opt.AutoAdjustDPI = false
	img := solidImage(200, 200)

	_, meta := Normalize(img, &DPIHint{X: 72, Y: 72}, opt)
	assert.True(t, meta.SkippedResize)
}

func TestNormalizeClampsOversizedDimensions(t *testing.T) {
	opt := defaultOptions()
	opt.AutoAdjustDPI = false
	opt.TargetDPI = 600
	opt.MaxImageDimension = 500
	img := solidImage(1000, 800)

	_, meta := Normalize(img, &DPIHint{X: 72, Y: 72}, opt)
	if meta.NewDimensions != nil {
		assert.LessOrEqual(t, meta.NewDimensions[0], 500)
		assert.LessOrEqual(t, meta.NewDimensions[1], 500)
	}
}
