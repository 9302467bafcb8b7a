package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/fileprocess-worker/internal/pipeline"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

type stubExtractor struct {
	calls int
	fail  map[string]bool
}

func (s *stubExtractor) Extract(ctx context.Context, in pipeline.Input, cfg value.ExtractionConfig) (value.ExtractionResult, error) {
	s.calls++
	if s.fail[in.Path] {
		return value.ExtractionResult{}, assertErr("boom")
	}
	return value.ExtractionResult{Content: "content:" + in.Path}, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestExtractFilesPreservesOrderAndIsolatesFailures(t *testing.T) {
	stub := &stubExtractor{fail: map[string]bool{"bad": true}}
	r := NewRunner(stub, nil)

	results := r.ExtractFiles(context.Background(), []string{"ok1", "bad", "ok2"}, value.Default())
	require.Len(t, results, 3)
	assert.Equal(t, "content:ok1", results[0].Content)
	assert.NotEmpty(t, results[1].Metadata.Error)
	assert.Equal(t, "content:ok2", results[2].Content)
}

func TestExtractFilesDedupsDuplicatePaths(t *testing.T) {
	stub := &stubExtractor{}
	r := NewRunner(stub, nil)

	paths := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		paths = append(paths, "same-path")
	}
	results := r.ExtractFiles(context.Background(), paths, value.Default())
	require.Len(t, results, 20)
	for _, res := range results {
		assert.Equal(t, "content:same-path", res.Content)
	}
}

func TestExtractFilesCancellation(t *testing.T) {
	stub := &stubExtractor{}
	r := NewRunner(stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.ExtractFiles(ctx, []string{"a", "b"}, value.Default())
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, cancelledError, res.Metadata.Error)
	}
}
