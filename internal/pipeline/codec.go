package pipeline

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// encodeJSON/decodeJSON serialize an ExtractionResult for the document
// cache namespace; kept as plain JSON (not gob) so a cache entry is
// inspectable on disk, matching the OCR cache namespace's own codec choice.
func encodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func decodeImageBytes(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}
