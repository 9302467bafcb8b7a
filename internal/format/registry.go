package format

import (
	"context"
	"sync"

	"github.com/adverant/nexus/fileprocess-worker/internal/cache"
	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// Registry maps a MIME type to at most one Handler (spec §4.4: "a MIME type
// maps to at most one FormatHandler").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry; Register populates it.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds mime to handler, overwriting any prior binding.
func (r *Registry) Register(mime string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[mime] = handler
}

// Lookup returns the handler bound to mime, if any.
func (r *Registry) Lookup(mime string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[mime]
	return h, ok
}

// Dispatcher resolves a MIME type and the handler bound to it, then adapts
// the sync/async entry points per spec §4.4 step 3.
type Dispatcher struct {
	Registry  *Registry
	MIMECache *cache.Cache
}

// NewDispatcher wires a registry and the mime cache namespace.
func NewDispatcher(reg *Registry, mimeCache *cache.Cache) *Dispatcher {
	return &Dispatcher{Registry: reg, MIMECache: mimeCache}
}

// ResolveBytes detects (if needed) and validates a MIME type for in-memory
// content, returning the bound handler.
func (d *Dispatcher) ResolveBytes(data []byte, mime string) (string, Handler, error) {
	if mime == "" {
		detected, err := DetectFromBytes(data, d.MIMECache)
		if err != nil {
			return "", nil, err
		}
		mime = detected
	}
	handler, ok := d.Registry.Lookup(mime)
	if !ok {
		return "", nil, kerrors.NewValidationError(
			"no handler registered for mime type",
			map[string]interface{}{"mime_type": mime},
		)
	}
	return mime, handler, nil
}

// ResolvePath detects (if needed) and validates a MIME type for a file path,
// returning the bound handler.
func (d *Dispatcher) ResolvePath(path string, mime string) (string, Handler, error) {
	if mime == "" {
		detected, err := DetectFromPath(path, d.MIMECache)
		if err != nil {
			return "", nil, err
		}
		mime = detected
	}
	handler, ok := d.Registry.Lookup(mime)
	if !ok {
		return "", nil, kerrors.NewValidationError(
			"no handler registered for mime type",
			map[string]interface{}{"mime_type": mime},
		)
	}
	return mime, handler, nil
}

// ExtractBytes resolves and invokes the sync bytes entry point.
func (d *Dispatcher) ExtractBytes(ctx context.Context, data []byte, mime string, cfg value.ExtractionConfig) (value.ExtractionResult, string, Capabilities, error) {
	resolved, handler, err := d.ResolveBytes(data, mime)
	if err != nil {
		return value.ExtractionResult{}, "", Capabilities{}, err
	}
	result, err := handler.ExtractBytesSync(ctx, data, cfg)
	return result, resolved, handler.Capabilities(), err
}

// ExtractPath resolves and invokes the sync path entry point.
func (d *Dispatcher) ExtractPath(ctx context.Context, path string, mime string, cfg value.ExtractionConfig) (value.ExtractionResult, string, Capabilities, error) {
	resolved, handler, err := d.ResolvePath(path, mime)
	if err != nil {
		return value.ExtractionResult{}, "", Capabilities{}, err
	}
	result, err := handler.ExtractPathSync(ctx, path, cfg)
	return result, resolved, handler.Capabilities(), err
}
