package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGetIdempotence(t *testing.T) {
	dir := t.TempDir()
	c, err := New(NamespaceDocuments, Config{Root: dir, MaxSizeMB: 10, MaxAgeDays: 30})
	require.NoError(t, err)

	key := KeyFor("hello", "world")
	c.Set(key, []byte("payload"), nil)

	got, ok := c.Get(key, nil)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	c.Clear()
	_, ok = c.Get(key, nil)
	assert.False(t, ok)
}

func TestCacheSourceFileInvalidation(t *testing.T) {
	dir := t.TempDir()
	c, err := New(NamespaceDocuments, Config{Root: dir, MaxSizeMB: 10, MaxAgeDays: 30})
	require.NoError(t, err)

	key := KeyFor("doc")
	src := &SourceFile{Size: 100, Mtime: 1000}
	c.Set(key, []byte("v1"), src)

	_, ok := c.Get(key, src)
	require.True(t, ok)

	mutated := &SourceFile{Size: 101, Mtime: 1000}
	_, ok = c.Get(key, mutated)
	assert.False(t, ok, "mutated size must invalidate the entry")
}

func TestCacheEvictsLeastRecentlyAccessedOverBudget(t *testing.T) {
	dir := t.TempDir()
	// Budget of exactly two payloads' worth so the third Set forces an eviction.
	c, err := New(NamespaceDocuments, Config{Root: dir, MaxSizeMB: 20.0 / (1024 * 1024), MaxAgeDays: 0})
	require.NoError(t, err)

	payload := make([]byte, 10)
	keyA, keyB, keyC := KeyFor("a"), KeyFor("b"), KeyFor("c")

	c.Set(keyA, payload, nil)
	c.Set(keyB, payload, nil)

	_, ok := c.Get(keyA, nil) // touch A so its last_access is newer than B's
	require.True(t, ok)

	c.Set(keyC, payload, nil) // pushes total over budget, triggers eviction

	_, okA := c.Get(keyA, nil)
	_, okB := c.Get(keyB, nil)
	_, okC := c.Get(keyC, nil)

	assert.False(t, okB, "least-recently-accessed entry must be evicted first")
	assert.True(t, okA)
	assert.True(t, okC)
}

func TestCacheSingleFlightBarrier(t *testing.T) {
	dir := t.TempDir()
	c, err := New(NamespaceOCR, Config{Root: dir, MaxSizeMB: 10, MaxAgeDays: 30})
	require.NoError(t, err)

	key := KeyFor("shared")
	assert.False(t, c.IsProcessing(key))

	ch := c.MarkProcessing(key)
	assert.True(t, c.IsProcessing(key))

	// A second caller for the same key gets the same event.
	ch2 := c.MarkProcessing(key)

	done := make(chan struct{})
	go func() {
		<-ch2
		close(done)
	}()

	c.MarkComplete(key)
	<-done
	assert.False(t, c.IsProcessing(key))
	select {
	case <-ch:
	default:
		t.Fatal("event must be closed after MarkComplete")
	}
}
