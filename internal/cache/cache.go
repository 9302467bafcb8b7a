// Package cache implements the multi-namespace content-addressed byte cache
// of spec §4.1: four logical namespaces (ocr, documents, tables, mime) share
// the same contract and an on-disk layout rooted at a configurable path.
//
// Grounded on original_source/kreuzberg/_utils/_cache.py's per-key
// threading.Event single-flight barrier, ported to a per-key chan struct{}
// guarded by a mutex — the same "don't hold the lock across the wait" shape.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
)

// Namespace names, fixed by spec §4.1/glossary.
const (
	NamespaceOCR       = "ocr"
	NamespaceDocuments = "documents"
	NamespaceTables    = "tables"
	NamespaceMIME      = "mime"
)

// SourceFile fingerprints the file a cache entry was derived from, so a
// mutation to size or mtime invalidates the entry (spec §8 "source-file
// invalidation").
type SourceFile struct {
	Size  int64
	Mtime int64 // unix nanoseconds
}

// sidecar is the on-disk metadata persisted next to the payload
// (spec §6: "<key>.meta carries {created_at, source_size, source_mtime}").
type sidecar struct {
	CreatedAt    int64 `json:"created_at"`
	LastAccess   int64 `json:"last_access"`
	HasSource    bool  `json:"has_source"`
	SourceSize   int64 `json:"source_size"`
	SourceMtime  int64 `json:"source_mtime"`
}

// Stats mirrors spec §4.1's get_stats() return shape.
type Stats struct {
	TotalFiles         int
	TotalSizeMB        float64
	AvailableSpaceMB   float64
	OldestFileAgeDays  float64
	NewestFileAgeDays  float64
}

// Cache is a single namespace of the content-addressed byte cache.
type Cache struct {
	namespace     string
	root          string
	maxSizeMB     float64
	maxAgeDays    int
	log           *logging.Logger

	mu              sync.Mutex
	processingEvent map[string]chan struct{}
}

// Config configures a namespace Cache.
type Config struct {
	Root       string // cache root directory; namespace subdir is created under it
	MaxSizeMB  float64
	MaxAgeDays int
	Logger     *logging.Logger
}

// New creates (or reopens) a namespace cache rooted at cfg.Root/<namespace>.
func New(namespace string, cfg Config) (*Cache, error) {
	dir := filepath.Join(cfg.Root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewLogger("cache." + namespace)
	}
	return &Cache{
		namespace:       namespace,
		root:            dir,
		maxSizeMB:       cfg.MaxSizeMB,
		maxAgeDays:      cfg.MaxAgeDays,
		log:             log,
		processingEvent: make(map[string]chan struct{}),
	}, nil
}

// KeyFor derives a content-addressed hex key from arbitrary fingerprint
// parts, using xxhash — fast, non-cryptographic, matching the teacher's own
// indirect dependency on cespare/xxhash (pulled in transitively by
// asynq/redis) promoted here to a direct, meaningful use.
func KeyFor(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (c *Cache) paths(key string) (payload, meta string) {
	sub := key
	if len(sub) >= 2 {
		sub = sub[:2]
	}
	dir := filepath.Join(c.root, sub)
	return filepath.Join(dir, key+".bin"), filepath.Join(dir, key+".meta")
}

// Get returns the stored payload only if it exists, is not expired, and (if
// source is non-nil) the recorded source fingerprint matches. Any mismatch
// is a miss and the entry is dropped (spec §4.1).
func (c *Cache) Get(key string, source *SourceFile) ([]byte, bool) {
	payloadPath, metaPath := c.paths(key)

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, false
	}
	var m sidecar
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		c.drop(key)
		return nil, false
	}

	if c.maxAgeDays > 0 {
		age := time.Since(time.Unix(0, m.CreatedAt))
		if age > time.Duration(c.maxAgeDays)*24*time.Hour {
			c.drop(key)
			return nil, false
		}
	}

	if source != nil {
		if !m.HasSource || m.SourceSize != source.Size || m.SourceMtime != source.Mtime {
			c.drop(key)
			return nil, false
		}
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		c.drop(key)
		return nil, false
	}

	m.LastAccess = time.Now().UnixNano()
	if b, err := json.Marshal(m); err == nil {
		_ = os.WriteFile(metaPath, b, 0o644)
	}

	return payload, true
}

// Set stores payload and (if source is non-nil) its fingerprint. Silently
// no-ops on IO error (spec: "cache errors never propagate; a miss is always
// a safe fallback"). Writes via temp file + rename so readers never observe
// a partial write (spec §5 shared-resource policy).
func (c *Cache) Set(key string, payload []byte, source *SourceFile) {
	payloadPath, metaPath := c.paths(key)
	dir := filepath.Dir(payloadPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Warn("cache set: mkdir failed", "namespace", c.namespace, "err", err)
		return
	}

	if err := writeAtomic(payloadPath, payload); err != nil {
		c.log.Warn("cache set: write payload failed", "namespace", c.namespace, "err", err)
		return
	}

	now := time.Now().UnixNano()
	m := sidecar{CreatedAt: now, LastAccess: now}
	if source != nil {
		m.HasSource = true
		m.SourceSize = source.Size
		m.SourceMtime = source.Mtime
	}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return
	}
	_ = writeAtomic(metaPath, metaBytes)

	c.evictIfOverBudget()
}

// evictIfOverBudget removes least-recently-accessed entries until the
// namespace is back under maxSizeMB (spec §4.1 invariant I-3: "eviction
// preserves recently accessed entries first"). A disabled budget (<= 0)
// leaves eviction to age expiry alone.
func (c *Cache) evictIfOverBudget() {
	if c.maxSizeMB <= 0 {
		return
	}

	type candidate struct {
		payloadPath string
		metaPath    string
		size        int64
		lastAccess  int64
	}

	var candidates []candidate
	var total int64
	_ = filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".bin" {
			return nil
		}
		total += info.Size()
		metaPath := path[:len(path)-len(".bin")] + ".meta"
		var lastAccess int64
		if mb, err := os.ReadFile(metaPath); err == nil {
			var m sidecar
			if json.Unmarshal(mb, &m) == nil {
				lastAccess = m.LastAccess
			}
		}
		candidates = append(candidates, candidate{payloadPath: path, metaPath: metaPath, size: info.Size(), lastAccess: lastAccess})
		return nil
	})

	budget := int64(c.maxSizeMB * 1024 * 1024)
	if total <= budget {
		return
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].lastAccess < candidates[j].lastAccess })
	for _, cand := range candidates {
		if total <= budget {
			break
		}
		if err := os.Remove(cand.payloadPath); err != nil {
			continue
		}
		_ = os.Remove(cand.metaPath)
		total -= cand.size
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Cache) drop(key string) {
	payloadPath, metaPath := c.paths(key)
	_ = os.Remove(payloadPath)
	_ = os.Remove(metaPath)
}

// IsProcessing reports whether a build for key is currently in flight.
func (c *Cache) IsProcessing(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processingEvent[key]
	return ok
}

// MarkProcessing registers key as in-flight and returns the event channel
// that will be closed when MarkComplete runs. If a build is already in
// flight, the existing event is returned so a second caller can wait on the
// same one.
func (c *Cache) MarkProcessing(key string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.processingEvent[key]
	if !ok {
		ch = make(chan struct{})
		c.processingEvent[key] = ch
	}
	return ch
}

// MarkComplete signals the event for key, waking every waiter, and must run
// on every exit path including errors (spec §4.5 step 2).
func (c *Cache) MarkComplete(key string) {
	c.mu.Lock()
	ch, ok := c.processingEvent[key]
	if ok {
		delete(c.processingEvent, key)
	}
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Clear removes every entry in the namespace and returns the count removed
// and bytes freed.
func (c *Cache) Clear() (removed int, freedBytes int64) {
	_ = filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".bin" {
			removed++
			freedBytes += info.Size()
		}
		return os.Remove(path)
	})
	c.mu.Lock()
	c.processingEvent = make(map[string]chan struct{})
	c.mu.Unlock()
	return removed, freedBytes
}

// GetStats derives cache statistics directly from the filesystem layout
// (supplemented from original_source's Rust-delegated stats call, since the
// distilled spec names the fields but not their derivation).
func (c *Cache) GetStats() Stats {
	var stats Stats
	var totalBytes int64
	var oldest, newest int64

	_ = filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".bin" {
			return nil
		}
		stats.TotalFiles++
		totalBytes += info.Size()

		metaPath := path[:len(path)-len(".bin")] + ".meta"
		if mb, err := os.ReadFile(metaPath); err == nil {
			var m sidecar
			if json.Unmarshal(mb, &m) == nil {
				if oldest == 0 || m.CreatedAt < oldest {
					oldest = m.CreatedAt
				}
				if m.CreatedAt > newest {
					newest = m.CreatedAt
				}
			}
		}
		return nil
	})

	stats.TotalSizeMB = float64(totalBytes) / (1024 * 1024)
	if oldest > 0 {
		stats.OldestFileAgeDays = time.Since(time.Unix(0, oldest)).Hours() / 24
	}
	if newest > 0 {
		stats.NewestFileAgeDays = time.Since(time.Unix(0, newest)).Hours() / 24
	}
	stats.AvailableSpaceMB = availableSpaceMB(c.root)
	return stats
}

func availableSpaceMB(path string) float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0
	}
	return float64(stat.Bavail) * float64(stat.Bsize) / (1024 * 1024)
}
