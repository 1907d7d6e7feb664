// Package state holds the process-wide runtime counters. The struct is
// constructed once in main and passed by pointer into every component that
// records or reports stats; there are no package-level singletons.
package state

import (
	"sync"
	"time"
)

// RuntimeState tracks what the process has done since start. All methods
// are safe for concurrent use.
type RuntimeState struct {
	mu               sync.Mutex
	startedAt        time.Time
	messagesSeen     int64
	messagesHandled  int64
	pipelineRuns     int64
	pipelineFailures int64
	cacheHits        int64
	sourceCalls      map[string]int64
	sourceFailures   map[string]int64
	errorsByKind     map[string]int64
}

// Snapshot is a point-in-time copy of the counters, shaped for the status
// endpoint.
type Snapshot struct {
	StartedAt        time.Time        `json:"started_at"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	MessagesSeen     int64            `json:"messages_seen"`
	MessagesHandled  int64            `json:"messages_handled"`
	PipelineRuns     int64            `json:"pipeline_runs"`
	PipelineFailures int64            `json:"pipeline_failures"`
	CacheHits        int64            `json:"cache_hits"`
	SourceCalls      map[string]int64 `json:"source_calls"`
	SourceFailures   map[string]int64 `json:"source_failures"`
	ErrorsByKind     map[string]int64 `json:"errors_by_kind"`
}

// New creates a RuntimeState anchored at the current time.
func New() *RuntimeState {
	return &RuntimeState{
		startedAt:      time.Now(),
		sourceCalls:    make(map[string]int64),
		sourceFailures: make(map[string]int64),
		errorsByKind:   make(map[string]int64),
	}
}

// RecordMessageSeen counts every inbound message, handled or not.
func (s *RuntimeState) RecordMessageSeen() {
	s.mu.Lock()
	s.messagesSeen++
	s.mu.Unlock()
}

// RecordMessageHandled counts messages that triggered the pipeline.
func (s *RuntimeState) RecordMessageHandled() {
	s.mu.Lock()
	s.messagesHandled++
	s.mu.Unlock()
}

// RecordPipelineRun counts a completed pipeline run.
func (s *RuntimeState) RecordPipelineRun(success bool) {
	s.mu.Lock()
	s.pipelineRuns++
	if !success {
		s.pipelineFailures++
	}
	s.mu.Unlock()
}

// RecordCacheHit counts a knowledge-cache hit that skipped gathering.
func (s *RuntimeState) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// RecordSourceCall counts one information-source call and its outcome.
func (s *RuntimeState) RecordSourceCall(source string, ok bool) {
	s.mu.Lock()
	s.sourceCalls[source]++
	if !ok {
		s.sourceFailures[source]++
	}
	s.mu.Unlock()
}

// RecordError counts an error by its taxonomy kind.
func (s *RuntimeState) RecordError(kind string) {
	s.mu.Lock()
	s.errorsByKind[kind]++
	s.mu.Unlock()
}

// Snapshot copies the counters for reporting.
func (s *RuntimeState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		StartedAt:        s.startedAt,
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		MessagesSeen:     s.messagesSeen,
		MessagesHandled:  s.messagesHandled,
		PipelineRuns:     s.pipelineRuns,
		PipelineFailures: s.pipelineFailures,
		CacheHits:        s.cacheHits,
		SourceCalls:      copyCounts(s.sourceCalls),
		SourceFailures:   copyCounts(s.sourceFailures),
		ErrorsByKind:     copyCounts(s.errorsByKind),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
