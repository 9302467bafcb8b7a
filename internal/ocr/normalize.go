package ocr

import (
	"regexp"
	"strings"
)

// bulletPattern matches bullet glyphs and stray leading letter-bullets at
// the start of a line (spec §8 scenario 1: "• item one" → "- item one").
var bulletPattern = regexp.MustCompile(`^(\x{2022}|\x{25CF}|\x{25AA}|e |- )\s*`)

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// shortLineMaxLen bounds what counts as a "short" candidate-garbage line
// (spec §8 scenarios 2/3: "1", "-", "(@)" are short; "3", "EO" are short too
// but must be preserved).
const shortLineMaxLen = 3

var symbolOnly = regexp.MustCompile(`^[^a-zA-Z0-9]+$`)

// Normalize is the plain-text normalizer referenced by spec §4.3 step 3 and
// exercised by §8 scenarios 1-4: bullet glyph folding, short-garbage-line
// stripping, adjacent duplicate-line dedup.
//
// Garbage detection groups consecutive short lines (<= shortLineMaxLen
// characters) into runs; a run is dropped wholesale only if it contains at
// least one purely symbolic line ("-", "(@)") — that's the signal the run is
// visual noise rather than content. A run of short lines that is entirely
// alphanumeric (numeric stubs like "3", "EO") is left untouched, matching
// scenario 3's "no stripping of short numerics mid-flow" while still
// stripping scenario 2's mixed numeric/symbol noise block as one unit.
//
// Supplemented from original_source (the distilled spec gives examples, not
// an algorithm); this is a from-scratch Go implementation of that intent.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := dropGarbageRuns(lines)
	return dedupAndFold(kept)
}

func dropGarbageRuns(lines []string) []string {
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || len(trimmed) > shortLineMaxLen {
			out = append(out, lines[i])
			i++
			continue
		}

		// Collect the maximal run of consecutive short, non-blank lines.
		runStart := i
		hasSymbol := false
		for i < len(lines) {
			t := strings.TrimSpace(lines[i])
			if t == "" || len(t) > shortLineMaxLen {
				break
			}
			if symbolOnly.MatchString(t) {
				hasSymbol = true
			}
			i++
		}

		if !hasSymbol {
			out = append(out, lines[runStart:i]...)
		}
		// else: whole run is dropped as visual noise.
	}
	return out
}

func dedupAndFold(lines []string) string {
	out := make([]string, 0, len(lines))
	var prevNormalized string
	havePrev := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			out = append(out, "")
			havePrev = false
			continue
		}

		folded := bulletPattern.ReplaceAllString(trimmed, "- ")
		folded = whitespaceRun.ReplaceAllString(folded, " ")

		if havePrev && strings.EqualFold(folded, prevNormalized) {
			continue
		}

		out = append(out, folded)
		prevNormalized = folded
		havePrev = true
	}

	return strings.Join(out, "\n")
}
