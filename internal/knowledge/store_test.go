package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// TestMain verifies no test leaves the debounce timer goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "knowledge.json")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(tempStorePath(t), 10*time.Millisecond, zap.NewNop())
	t.Cleanup(s.Shutdown)
	return s
}

func TestStore_CacheRoundTrip(t *testing.T) {
	s := newTestStore(t)

	result := map[string]any{"answer": "22 degrees and sunny"}
	s.CacheSearchResult("What's the Weather?", result, 85)

	entry, ok := s.GetCachedResult("what's the weather?")
	require.True(t, ok)
	assert.Equal(t, 85.0, entry.Confidence)
	if diff := cmp.Diff(result, entry.Result); diff != "" {
		t.Errorf("cached result mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LookupIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	s.CacheSearchResult("Bitcoin Price", "$50k", 70)

	tests := []struct {
		name  string
		query string
		hit   bool
	}{
		{name: "exact lowercase", query: "bitcoin price", hit: true},
		{name: "mixed case", query: "BITCOIN price", hit: true},
		{name: "padded whitespace", query: "  bitcoin price  ", hit: true},
		{name: "different query", query: "ethereum price", hit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := s.GetCachedResult(tt.query)
			assert.Equal(t, tt.hit, ok)
		})
	}
}

func TestStore_AccessCounting(t *testing.T) {
	s := newTestStore(t)
	s.CacheSearchResult("server stats", "42 players", 90)

	first, ok := s.GetCachedResult("server stats")
	require.True(t, ok)
	second, ok := s.GetCachedResult("server stats")
	require.True(t, ok)

	assert.Equal(t, 2, first.AccessCount, "write counts as the first access")
	assert.Equal(t, 3, second.AccessCount)
}

func TestStore_RecachePreservesAccessCount(t *testing.T) {
	s := newTestStore(t)
	s.CacheSearchResult("go generics", "use type parameters", 60)
	_, _ = s.GetCachedResult("go generics")

	// Refresh the entry; the access count carries forward plus one.
	s.CacheSearchResult("go generics", "updated answer", 80)

	entry, ok := s.GetCachedResult("go generics")
	require.True(t, ok)
	assert.Equal(t, "updated answer", entry.Result)
	assert.Equal(t, 80.0, entry.Confidence)
	assert.Equal(t, 4, entry.AccessCount)
}

func TestStore_HistoryBound(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 150; i++ {
		s.CacheSearchResult(fmt.Sprintf("query %d", i), i, 50)
	}

	history := s.RecentHistory(0)
	require.Len(t, history, 100)
	assert.Equal(t, "query 149", history[0].Query, "newest first")
	assert.Equal(t, "query 50", history[99].Query, "oldest surviving entry")
}

func TestStore_CleanupOldKnowledge(t *testing.T) {
	s := newTestStore(t)
	s.CacheSearchResult("fresh query", "new", 50)
	s.CacheSearchResult("stale unused", "old", 50)
	s.CacheSearchResult("stale popular", "old but loved", 50)

	// Backdate entries and set access counts directly.
	s.mu.Lock()
	old := time.Now().Add(-40 * 24 * time.Hour)
	s.knowledgeCache["stale unused"].Timestamp = old
	s.knowledgeCache["stale unused"].AccessCount = 1
	s.knowledgeCache["stale popular"].Timestamp = old
	s.knowledgeCache["stale popular"].AccessCount = 7
	s.mu.Unlock()

	assert.Equal(t, 1, s.CountStaleKnowledge())
	removed := s.CleanupOldKnowledge()
	assert.Equal(t, 1, removed)

	_, ok := s.GetCachedResult("stale unused")
	assert.False(t, ok, "old rarely-used entries are pruned")
	_, ok = s.GetCachedResult("stale popular")
	assert.True(t, ok, "old frequently-used entries survive")
	_, ok = s.GetCachedResult("fresh query")
	assert.True(t, ok)
}

func TestStore_MissingFileStartsFresh(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "missing.json"), time.Hour, zap.NewNop())
	defer s.Shutdown()

	assert.Equal(t, 0, s.Stats().Entries)
}

func TestStore_CorruptFileStartsFresh(t *testing.T) {
	path := tempStorePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{definitely not json"), 0644))

	s := NewStore(path, 10*time.Millisecond, zap.NewNop())
	defer s.Shutdown()

	assert.Equal(t, 0, s.Stats().Entries)

	// The store must still work after a corrupt load.
	s.CacheSearchResult("recovery", "works", 99)
	_, ok := s.GetCachedResult("recovery")
	assert.True(t, ok)
}

func TestStore_DebouncedSaveWritesFile(t *testing.T) {
	path := tempStorePath(t)
	s := NewStore(path, 10*time.Millisecond, zap.NewNop())
	defer s.Shutdown()

	s.CacheSearchResult("persist me", "to disk", 75)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond, "debounced save must land on disk")

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive the rename")
}

func TestStore_FileShape(t *testing.T) {
	path := tempStorePath(t)
	s := NewStore(path, time.Hour, zap.NewNop())
	defer s.Shutdown()

	s.CacheSearchResult("shape check", "value", 65)
	require.NoError(t, s.SaveNow())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"knowledgeCache", "searchHistory", "confidenceScores", "lastSaved", "version"} {
		assert.Contains(t, raw, key)
	}

	var version string
	require.NoError(t, json.Unmarshal(raw["version"], &version))
	assert.Equal(t, "2.0", version)

	var lastSaved string
	require.NoError(t, json.Unmarshal(raw["lastSaved"], &lastSaved))
	_, err = time.Parse(time.RFC3339, lastSaved)
	assert.NoError(t, err, "lastSaved must be ISO-8601")
}

func TestStore_ShutdownFlushesAndSurvivesReload(t *testing.T) {
	path := tempStorePath(t)
	logger := zap.NewNop()

	s := NewStore(path, time.Hour, logger) // debounce too long to fire on its own
	s.CacheSearchResult("durable", "across restarts", 88)
	_, _ = s.GetCachedResult("durable")
	s.Shutdown()
	s.Shutdown() // idempotent

	reopened := NewStore(path, time.Hour, logger)
	defer reopened.Shutdown()

	entry, ok := reopened.GetCachedResult("durable")
	require.True(t, ok)
	assert.Equal(t, "across restarts", entry.Result)
	assert.Equal(t, 88.0, entry.Confidence)
	assert.Equal(t, 3, entry.AccessCount, "persisted accesses plus this lookup")

	history := reopened.RecentHistory(1)
	require.Len(t, history, 1)
	assert.Equal(t, "durable", history[0].Query)
}

func TestStore_SetMarksSharedStoreDirty(t *testing.T) {
	path := tempStorePath(t)
	s := NewStore(path, 10*time.Millisecond, zap.NewNop())
	defer s.Shutdown()

	// Plain shared-store writes also schedule a save.
	s.Set("currentIntent", "anything")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	v, ok := s.Get("currentIntent")
	require.True(t, ok)
	assert.Equal(t, "anything", v)
}
