package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

func TestDispatcherResolveBytesDetectsPDF(t *testing.T) {
	reg := NewRegistry()
	reg.Register("application/pdf", PlainTextHandler{PreferredMIME: "application/pdf"})
	d := NewDispatcher(reg, nil)

	mime, handler, err := d.ResolveBytes([]byte("%PDF-1.7\n%"), "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
	assert.NotNil(t, handler)
}

func TestDispatcherResolveBytesUnknownMimeIsValidation(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)
	_, _, err := d.ResolveBytes([]byte("hello"), "application/x-nonexistent")
	require.Error(t, err)
	var de *kerrors.DomainError
	require.True(t, kerrors.AsDomainError(err, &de))
	assert.Equal(t, kerrors.Validation, de.Tag)
}

func TestPlainTextHandlerRoundTrips(t *testing.T) {
	h := PlainTextHandler{PreferredMIME: "text/plain"}
	result, err := h.ExtractBytesSync(context.Background(), []byte("hello world"), value.Default())
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Content)
}
