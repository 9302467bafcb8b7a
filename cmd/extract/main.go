// Command extract is a single-shot CLI over the extraction core: one file
// in, one ExtractionResult out. It is a reference frontend only — the core
// API has no CLI awareness (spec §1 non-goals exclude frontend lifecycle).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/fileprocess-worker/internal/config"
	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/format"
	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
	"github.com/adverant/nexus/fileprocess-worker/internal/ocr"
	"github.com/adverant/nexus/fileprocess-worker/internal/pipeline"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Exit codes mirror the reference CLI surface in spec §6: 0 success, 2
// validation failure, 1 anything else.
const (
	exitOK         = 0
	exitValidation = 2
	exitOther      = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	ocrBackendFlag := fs.String("ocr-backend", "tesseract", "OCR backend to use: tesseract|none")
	outputFormat := fs.String("output-format", "text", "output shape: text|markdown|json")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: extract <path> [--ocr-backend tesseract|none] [--output-format text|markdown|json]")
		return exitValidation
	}
	path := fs.Arg(0)

	// Layer 1: discover kreuzberg.toml or a [tool.kreuzberg] pyproject.toml
	// section, walking up from the target file's directory (spec §6
	// discover_config(start_path?)). Layer 2: this process's explicit flags,
	// which always win per MergeOverrides' documented precedence.
	base := value.Default()
	if discovered, err := config.DiscoverConfig(filepath.Dir(path)); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitValidation
	} else if discovered != nil {
		base = *discovered
	}

	overrides := value.ExtractionConfig{}
	switch *ocrBackendFlag {
	case "tesseract":
		overrides.OCR = value.OCRVariant{Kind: value.OCRTesseract, Tesseract: &value.TesseractConfig{
			Language:     "eng",
			PSM:          3,
			OutputFormat: "text",
		}}
	case "none":
		overrides.OCR = value.OCRVariant{Kind: value.OCRNone}
	default:
		fmt.Fprintf(os.Stderr, "unknown --ocr-backend %q\n", *ocrBackendFlag)
		return exitValidation
	}
	cfg := config.MergeOverrides(base, overrides)

	registry := format.NewDefaultRegistry()
	dispatcher := format.NewDispatcher(registry, nil)
	ocrBackend := ocr.NewTesseractBackend(nil)
	orchestrator := pipeline.New(nil, dispatcher, ocrBackend, pipeline.Features{}, logging.NewLogger("extract"))

	result, err := orchestrator.Extract(context.Background(), pipeline.Input{Path: path}, cfg)
	if err != nil {
		var domainErr *kerrors.DomainError
		if kerrors.AsDomainError(err, &domainErr) && domainErr.Tag == kerrors.Validation {
			fmt.Fprintln(os.Stderr, domainErr.Error())
			return exitValidation
		}
		fmt.Fprintln(os.Stderr, err.Error())
		return exitOther
	}

	if err := render(result, *outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitOther
	}
	return exitOK
}

func render(result value.ExtractionResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "markdown", "text":
		fmt.Println(result.Content)
		return nil
	default:
		return fmt.Errorf("unknown --output-format %q", format)
	}
}
