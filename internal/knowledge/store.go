// Package knowledge holds the disk-persisted knowledge cache and the
// multi-stage pipeline that fills and consumes it.
package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

const (
	// storeVersion is written into every knowledge file.
	storeVersion = "2.0"
	// maxHistoryEntries bounds searchHistory; oldest entries drop off.
	maxHistoryEntries = 100
	// staleAge and minAccessesToKeep drive cleanup: entries older than
	// staleAge are pruned unless they have been reused at least
	// minAccessesToKeep times.
	staleAge          = 30 * 24 * time.Hour
	minAccessesToKeep = 2
	// defaultSaveDebounce coalesces write bursts into one disk write.
	defaultSaveDebounce = 2 * time.Second
)

// Entry is one cached search result.
type Entry struct {
	Result      any       `json:"result"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
	AccessCount int       `json:"accessCount"`
}

// HistoryEntry records one cache write, newest first in the history list.
type HistoryEntry struct {
	Query      string    `json:"query"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// storeFile is the on-disk shape of the knowledge file.
type storeFile struct {
	KnowledgeCache   map[string]*Entry  `json:"knowledgeCache"`
	SearchHistory    []HistoryEntry     `json:"searchHistory"`
	ConfidenceScores map[string]float64 `json:"confidenceScores"`
	LastSaved        string             `json:"lastSaved"`
	Version          string             `json:"version"`
}

// Stats is a point-in-time snapshot for the status server and CLI.
type Stats struct {
	Entries       int       `json:"entries"`
	HistoryLength int       `json:"history_length"`
	TotalAccesses int       `json:"total_accesses"`
	LastSaved     time.Time `json:"last_saved"`
	Path          string    `json:"path"`
}

// Store is the persistent shared store: a plain in-memory flow store plus
// three always-present collections flushed to disk via debounced atomic
// writes. Every Set reschedules the save timer; Shutdown forces a final
// flush. Concurrent runs sharing one Store race last-write-wins on cache
// entries, which is acceptable because entries are idempotent
// recomputation rather than authoritative state.
type Store struct {
	*flow.MemoryStore

	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu               sync.Mutex
	knowledgeCache   map[string]*Entry
	searchHistory    []HistoryEntry
	confidenceScores map[string]float64
	lastSaved        time.Time
	dirty            bool
	timer            *time.Timer
	closed           bool
}

// NewStore opens the knowledge file at path, starting empty when the file
// is missing or unreadable; loading is best-effort and never fails
// construction. debounce <= 0 selects the 2s default.
func NewStore(path string, debounce time.Duration, logger *zap.Logger) *Store {
	if debounce <= 0 {
		debounce = defaultSaveDebounce
	}
	s := &Store{
		MemoryStore:      flow.NewMemoryStore(),
		path:             path,
		debounce:         debounce,
		logger:           logger,
		knowledgeCache:   make(map[string]*Entry),
		searchHistory:    make([]HistoryEntry, 0, maxHistoryEntries),
		confidenceScores: make(map[string]float64),
	}
	s.load()
	return s
}

// load reads the knowledge file. Missing file means fresh start; malformed
// content is logged and discarded rather than failing construction.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("knowledge file not found, starting fresh",
				zap.String("path", s.path))
		} else {
			s.logger.Warn("knowledge file unreadable, starting fresh",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn("knowledge file malformed, starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return
	}

	if file.KnowledgeCache != nil {
		s.knowledgeCache = file.KnowledgeCache
	}
	if file.SearchHistory != nil {
		s.searchHistory = file.SearchHistory
	}
	if file.ConfidenceScores != nil {
		s.confidenceScores = file.ConfidenceScores
	}
	if ts, err := time.Parse(time.RFC3339, file.LastSaved); err == nil {
		s.lastSaved = ts
	}
	s.logger.Info("knowledge file loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(s.knowledgeCache)),
		zap.Int("history", len(s.searchHistory)),
		zap.String("version", file.Version),
	)
}

// Set writes key into the shared store and marks the store dirty,
// rescheduling the debounced save.
func (s *Store) Set(key string, value any) {
	s.MemoryStore.Set(key, value)
	s.mu.Lock()
	s.markDirtyLocked()
	s.mu.Unlock()
}

// normalizeQuery makes cache keys case-insensitive.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// CacheSearchResult stores a gathered result under the normalized query,
// carrying forward the entry's access count, prepends a history record,
// and records the query's confidence.
func (s *Store) CacheSearchResult(query string, result any, confidence float64) {
	key := normalizeQuery(query)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := 0
	if existing, ok := s.knowledgeCache[key]; ok {
		previous = existing.AccessCount
	}
	s.knowledgeCache[key] = &Entry{
		Result:      result,
		Timestamp:   now,
		Confidence:  confidence,
		AccessCount: previous + 1,
	}

	s.searchHistory = append([]HistoryEntry{{
		Query:      key,
		Timestamp:  now,
		Confidence: confidence,
	}}, s.searchHistory...)
	if len(s.searchHistory) > maxHistoryEntries {
		s.searchHistory = s.searchHistory[:maxHistoryEntries]
	}

	s.confidenceScores[key] = confidence
	s.markDirtyLocked()
}

// GetCachedResult looks up a query case-insensitively. A hit increments
// the entry's access count (access counting is itself persisted). TTL is
// the caller's policy, applied against the returned entry's timestamp.
func (s *Store) GetCachedResult(query string) (Entry, bool) {
	key := normalizeQuery(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.knowledgeCache[key]
	if !ok {
		return Entry{}, false
	}
	entry.AccessCount++
	s.markDirtyLocked()
	return *entry, true
}

// CleanupOldKnowledge prunes entries older than 30 days with fewer than 2
// accesses. Frequently-reused entries are kept regardless of age. Returns
// how many entries were removed.
func (s *Store) CleanupOldKnowledge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-staleAge)
	for key, entry := range s.knowledgeCache {
		if entry.Timestamp.Before(cutoff) && entry.AccessCount < minAccessesToKeep {
			delete(s.knowledgeCache, key)
			delete(s.confidenceScores, key)
			removed++
		}
	}
	if removed > 0 {
		s.markDirtyLocked()
		s.logger.Info("pruned stale knowledge entries", zap.Int("removed", removed))
	}
	return removed
}

// CountStaleKnowledge reports how many entries CleanupOldKnowledge would
// remove, without removing them.
func (s *Store) CountStaleKnowledge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := 0
	cutoff := time.Now().Add(-staleAge)
	for _, entry := range s.knowledgeCache {
		if entry.Timestamp.Before(cutoff) && entry.AccessCount < minAccessesToKeep {
			stale++
		}
	}
	return stale
}

// RecentHistory returns up to limit history records, newest first.
func (s *Store) RecentHistory(limit int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.searchHistory) {
		limit = len(s.searchHistory)
	}
	out := make([]HistoryEntry, limit)
	copy(out, s.searchHistory[:limit])
	return out
}

// Stats snapshots the store for the status endpoint and the CLI.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, entry := range s.knowledgeCache {
		total += entry.AccessCount
	}
	return Stats{
		Entries:       len(s.knowledgeCache),
		HistoryLength: len(s.searchHistory),
		TotalAccesses: total,
		LastSaved:     s.lastSaved,
		Path:          s.path,
	}
}

// markDirtyLocked flags unsaved changes and (re)schedules the debounced
// save. Callers must hold s.mu.
func (s *Store) markDirtyLocked() {
	if s.closed {
		return
	}
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// flush is the debounce timer callback.
func (s *Store) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dirty {
		return
	}
	s.saveLocked()
}

// SaveNow forces a synchronous save regardless of the debounce timer.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked serializes the three collections plus metadata and writes
// them atomically: temp file first, then rename over the target. Callers
// must hold s.mu.
func (s *Store) saveLocked() error {
	now := time.Now().UTC()
	file := storeFile{
		KnowledgeCache:   s.knowledgeCache,
		SearchHistory:    s.searchHistory,
		ConfidenceScores: s.confidenceScores,
		LastSaved:        now.Format(time.RFC3339),
		Version:          storeVersion,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		s.logger.Error("failed to serialize knowledge store", zap.Error(err))
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Error("failed to create knowledge dir",
				zap.String("dir", dir), zap.Error(err))
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.logger.Error("failed to write knowledge temp file",
			zap.String("path", tmp), zap.Error(err))
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		s.logger.Error("failed to swap knowledge file",
			zap.String("path", s.path), zap.Error(err))
		return err
	}

	s.dirty = false
	s.lastSaved = now
	s.logger.Debug("knowledge store saved",
		zap.String("path", s.path),
		zap.Int("entries", len(s.knowledgeCache)),
	)
	return nil
}

// Shutdown stops the debounce timer and flushes any unsaved changes.
// Safe to call more than once.
func (s *Store) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.dirty {
		_ = s.saveLocked()
	}
}
