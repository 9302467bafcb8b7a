package format

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/adverant/nexus/fileprocess-worker/internal/cache"
	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
)

// extensionMIME is the fast path: extension → MIME, checked before any
// content sniff (spec §4.4 step 1: "detect from path extension then by
// content sniff"). Grounded on toricodesthings-PDF-to-Text-Extraction-Service's
// use of gabriel-vasile/mimetype as the sniffing fallback for exactly this
// kind of document pipeline.
var extensionMIME = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "application/xml",
	".json": "application/json",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".eml":  "message/rfc822",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bmp":  "image/bmp",
}

// DetectFromPath resolves a MIME type for path, consulting the mime cache
// namespace keyed by content digest (spec §4.4 step 1) so the sniff only
// runs once per distinct file content.
func DetectFromPath(path string, mimeCache *cache.Cache) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := extensionMIME[ext]; ok {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", kerrors.NewSystemError("read file for mime detection", err)
	}
	return DetectFromBytes(data, mimeCache)
}

// DetectFromBytes sniffs content directly, consulting/populating the mime
// cache namespace by a digest of the sniffed prefix.
func DetectFromBytes(data []byte, mimeCache *cache.Cache) (string, error) {
	n := len(data)
	if n > 3072 {
		n = 3072
	}
	prefix := data[:n]
	key := cache.KeyFor("mime-sniff", string(prefix))

	if mimeCache != nil {
		if cached, ok := mimeCache.Get(key, nil); ok {
			return string(cached), nil
		}
	}

	detected := mimetype.Detect(data)
	result := detected.String()
	if mimeCache != nil {
		mimeCache.Set(key, []byte(result), nil)
	}
	return result, nil
}

// ValidateMIME rejects a MIME type that is not registered with any handler,
// a Validation error per spec §4.4 step 2.
func ValidateMIME(mime string, reg *Registry) (string, error) {
	if _, ok := reg.Lookup(mime); !ok {
		return "", kerrors.NewValidationError(
			"unsupported mime type",
			map[string]interface{}{"mime_type": mime},
		)
	}
	return mime, nil
}
