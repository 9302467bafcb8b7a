package ocr

import "encoding/json"

// encodeCachedResult/decodeCachedResult serialize an ExtractionResult for
// storage in the OCR cache namespace. JSON rather than gob: the payload must
// stay readable by operators inspecting the cache directory directly (spec
// §6: cache entries are plain files, not an opaque binary blob).
func encodeCachedResult(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeCachedResult(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}
