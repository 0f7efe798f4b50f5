package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache.db"), "@WikiBot")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLookup_Miss(t *testing.T) {
	c := newTestCache(t)

	entry, err := c.Lookup(context.Background(), "how do I craft a torch?")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreAndLookup(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	sources := []Source{{Title: "Torch", URL: "https://wiki.example/Torch"}}
	require.NoError(t, c.Store(ctx, "How do I craft a torch?", "Combine coal and a stick.", sources))

	entry, err := c.Lookup(ctx, "how do i craft a torch")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Combine coal and a stick.", entry.AnswerText)
	assert.Equal(t, sources, entry.Sources)
	assert.Equal(t, 1, entry.HitCount)
	assert.Equal(t, []string{"How do I craft a torch?"}, entry.RawExamples)

	entry, err = c.Lookup(ctx, "How do I craft a torch?")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.HitCount)
}

func TestLookup_NormalizedPhrasingsShareEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "How do I craft a sword?", "Two planks and a stick.", nil))

	for _, raw := range []string{
		"how do i craft a sword",
		"  HOW DO I CRAFT A SWORD!! ",
		"@WikiBot how do i craft a sword?",
	} {
		entry, err := c.Lookup(ctx, raw)
		require.NoError(t, err)
		require.NotNil(t, entry, "phrasing %q should hit", raw)
		assert.Equal(t, "Two planks and a stick.", entry.AnswerText)
	}

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 3, stats.TotalHits)
}

func TestStore_OverwritePreservesHitCount(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "what is redstone", "old answer", nil))

	_, err := c.Lookup(ctx, "what is redstone")
	require.NoError(t, err)
	_, err = c.Lookup(ctx, "what is redstone")
	require.NoError(t, err)

	require.NoError(t, c.Store(ctx, "What is Redstone?", "new answer", nil))

	entry, err := c.Lookup(ctx, "what is redstone")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "new answer", entry.AnswerText)
	assert.Equal(t, 3, entry.HitCount)

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestStore_AccumulatesRawExamples(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "how to make bread", "Three wheat.", nil))
	require.NoError(t, c.Store(ctx, "How to make BREAD?", "Three wheat.", nil))
	require.NoError(t, c.Store(ctx, "how to make bread", "Three wheat.", nil))

	entry, err := c.Lookup(ctx, "how to make bread")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{"how to make bread", "How to make BREAD?"}, entry.RawExamples)
}

func TestStore_CapsRawExamples(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < maxRawExamples+5; i++ {
		raw := fmt.Sprintf("how to make bread%s", punctuationRun(i))
		require.NoError(t, c.Store(ctx, raw, "Three wheat.", nil))
	}

	entry, err := c.Lookup(ctx, "how to make bread")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, entry.RawExamples, maxRawExamples)
}

// punctuationRun makes phrasings that differ raw but normalize alike.
func punctuationRun(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += "!"
	}
	return out
}

func TestTopQueries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "query one", "a1", nil))
	require.NoError(t, c.Store(ctx, "query two", "a2", nil))
	require.NoError(t, c.Store(ctx, "query three", "a3", nil))

	for i := 0; i < 3; i++ {
		_, err := c.Lookup(ctx, "query two")
		require.NoError(t, err)
	}
	_, err := c.Lookup(ctx, "query three")
	require.NoError(t, err)

	top, err := c.TopQueries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "query two", top[0].NormalizedKey)
	assert.Equal(t, 3, top[0].HitCount)
	assert.Equal(t, "query three", top[1].NormalizedKey)

	none, err := c.TopQueries(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "doomed query", "gone soon", nil))
	require.NoError(t, c.Delete(ctx, "Doomed Query!"))

	entry, err := c.Lookup(ctx, "doomed query")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// deleting a missing key is not an error
	require.NoError(t, c.Delete(ctx, "never stored"))
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "q1", "a1", nil))
	require.NoError(t, c.Store(ctx, "q2", "a2", nil))
	require.NoError(t, c.Clear(ctx))

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 0, stats.TotalHits)
}

func TestStore_ConcurrentSameKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.Store(ctx, "parallel query", fmt.Sprintf("answer %d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	entry, err := c.Lookup(ctx, "parallel query")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, entry.AnswerText, "answer ")
}

func TestReopen_PersistsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := New(path)
	require.NoError(t, err)
	require.NoError(t, c.Store(ctx, "durable query", "still here", nil))
	require.NoError(t, c.Close())

	c, err = New(path)
	require.NoError(t, err)
	defer c.Close()

	entry, err := c.Lookup(ctx, "durable query")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "still here", entry.AnswerText)
}
