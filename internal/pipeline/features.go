package pipeline

import (
	"context"

	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// The optional-feature internals (entity extraction, keyword extraction,
// chunking, language detection, token reduction, document classification)
// are external collaborators (spec §1 Non-goals): the orchestrator invokes
// them through these uniform function types and never depends on a concrete
// implementation. A nil field disables that feature regardless of the
// config toggle, the same as toggle.Enabled == false.
type (
	LanguageDetector   func(ctx context.Context, content string) ([]string, error)
	EntityExtractor    func(ctx context.Context, content string, opts map[string]interface{}) ([]string, error)
	KeywordExtractor   func(ctx context.Context, content string, opts map[string]interface{}) ([]string, error)
	Chunker            func(ctx context.Context, content string, maxChars, maxOverlap int) ([]string, error)
	DocumentClassifier func(ctx context.Context, content string) (docType string, confidence float64, err error)
	TokenReducer       func(ctx context.Context, content string, languageHint string) (string, value.TokenReductionStats, error)
)

// Features bundles every optional-feature implementation the orchestrator
// may call. All fields are optional; a nil field means that feature is
// skipped even if its config toggle is enabled, and no processing error is
// recorded for it. A MissingDependency error returned by a feature that is
// present bubbles out of the Safe-Feature envelope and aborts the extraction.
type Features struct {
	LanguageDetection  LanguageDetector
	Entities           EntityExtractor
	Keywords           KeywordExtractor
	Chunking           Chunker
	DocumentType       DocumentClassifier
	TokenReduction     TokenReducer
}
