package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/f0rky/Chimp-GPT-sub004/internal/constants"
	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

// Source is one attempted information source. Degraded sources record
// their failure instead of aborting the gather.
type Source struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"` // search or docs
	Degraded bool        `json:"degraded"`
	Err      string      `json:"error,omitempty"`
	Search   *SearchData `json:"search,omitempty"`
	Docs     string      `json:"docs,omitempty"`
}

// GatherReport is the information-gathering stage's output, stored under
// gatheredInfo.
type GatherReport struct {
	Query     string    `json:"query"`
	Sources   []Source  `json:"sources"`
	Digest    string    `json:"digest"`
	Healthy   int       `json:"healthy"`
	FromCache bool      `json:"fromCache"`
	CachedAt  time.Time `json:"cachedAt,omitempty"`
}

// docSites are consulted for code-related queries, alongside web search.
var docSites = []string{"mdn", "godocs", "stackoverflow"}

// Cache TTLs by query class. Financial and other time-sensitive answers
// go stale fastest; low-confidence entries get re-verified sooner than
// trusted ones.
const (
	ttlTimeSensitive = time.Hour
	ttlLowConfidence = 30 * time.Minute
	ttlDefault       = 24 * time.Hour

	lowConfidenceCutoff = 50
)

var timeSensitiveKeywords = []string{
	"price", "stock", "crypto", "rate", "today", "now", "latest", "news", "weather",
}

// cacheTTL picks the time-to-live for a cached entry based on the query
// class and the entry's own confidence.
func cacheTTL(query string, confidence float64) time.Duration {
	lower := strings.ToLower(query)
	for _, kw := range timeSensitiveKeywords {
		if strings.Contains(lower, kw) {
			return ttlTimeSensitive
		}
	}
	if confidence < lowConfidenceCutoff {
		return ttlLowConfidence
	}
	return ttlDefault
}

// gatherInformation checks the knowledge cache and, on a miss, fans out to
// web search plus documentation sources for code queries. The fan-out is
// all-settled: failed sources are recorded as degraded and gathering
// continues with whatever succeeded. The report always lands in the store,
// even when every source degraded.
func (p *Pipeline) gatherInformation(ctx context.Context, store flow.SharedStore, input any) (any, error) {
	intent, ok := input.(*Intent)
	if !ok {
		if fromStore, found := store.Get(keyCurrentIntent); found {
			intent, ok = fromStore.(*Intent)
		}
		if !ok || intent == nil {
			report := &GatherReport{}
			store.Set(keyGatheredInfo, report)
			return report, nil
		}
	}

	if report := p.freshCachedReport(intent.Query, store); report != nil {
		return report, nil
	}

	report := p.fanOut(ctx, intent)
	store.Set(keyGatheredInfo, report)

	p.logger.Debug("information gathered",
		zap.String("query", intent.Query),
		zap.Int("sources", len(report.Sources)),
		zap.Int("healthy", report.Healthy),
	)
	return report, nil
}

// freshCachedReport returns a cache-backed report when the stored entry is
// still inside its TTL, also writing the cached confidence into the
// confirmation slot so response generation can report it.
func (p *Pipeline) freshCachedReport(query string, store flow.SharedStore) *GatherReport {
	entry, ok := p.store.GetCachedResult(query)
	if !ok {
		return nil
	}
	ttl := cacheTTL(query, entry.Confidence)
	if time.Since(entry.Timestamp) >= ttl {
		p.logger.Debug("cached result expired",
			zap.String("query", query),
			zap.Duration("ttl", ttl),
			zap.Time("cached_at", entry.Timestamp),
		)
		return nil
	}

	digest, _ := entry.Result.(string)
	report := &GatherReport{
		Query:     query,
		Digest:    digest,
		Healthy:   1,
		FromCache: true,
		CachedAt:  entry.Timestamp,
	}
	store.Set(keyGatheredInfo, report)
	store.Set(keyConfirmation, &Confirmation{Confidence: entry.Confidence, FromCache: true})

	if p.stats != nil {
		p.stats.RecordCacheHit()
	}
	p.logger.Debug("cache hit short-circuits gathering",
		zap.String("query", query),
		zap.Float64("confidence", entry.Confidence),
	)
	return report
}

// fanOut runs every source in parallel and joins all of them, recording
// failures as degraded sources rather than aborting.
func (p *Pipeline) fanOut(ctx context.Context, intent *Intent) *GatherReport {
	tasks := []struct {
		name string
		kind string
		site string
	}{
		{name: "web_search", kind: "search"},
	}
	if intent.NeedsCode {
		for _, site := range docSites {
			tasks = append(tasks, struct {
				name string
				kind string
				site string
			}{name: "docs:" + site, kind: "docs", site: site})
		}
	}

	sources := make([]Source, len(tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxGatherConcurrency)

	for i, task := range tasks {
		idx := i
		t := task
		g.Go(func() error {
			src := Source{Name: t.name, Kind: t.kind}
			switch t.kind {
			case "search":
				data, err := p.deps.Search(gctx, intent.Query, constants.MaxSearchResults)
				if err != nil {
					src.Degraded = true
					src.Err = err.Error()
				} else {
					src.Search = data
				}
			case "docs":
				docs, err := p.deps.FetchDocs(gctx, intent.Query, t.site)
				if err != nil {
					src.Degraded = true
					src.Err = err.Error()
				} else {
					src.Docs = docs
				}
			}

			if p.stats != nil {
				p.stats.RecordSourceCall(t.name, !src.Degraded)
			}
			if src.Degraded {
				p.logger.Warn("information source degraded",
					zap.String("source", t.name),
					zap.String("error", src.Err),
				)
			}

			mu.Lock()
			sources[idx] = src
			mu.Unlock()
			return nil
		})
	}
	// Tasks never return errors; Wait is a join point.
	_ = g.Wait()

	healthy := 0
	for _, src := range sources {
		if !src.Degraded {
			healthy++
		}
	}

	report := &GatherReport{
		Query:   intent.Query,
		Sources: sources,
		Healthy: healthy,
	}
	report.Digest = buildDigest(report)
	return report
}

// digestLimit keeps the cached digest and the completion prompt bounded.
const digestLimit = 1200

// buildDigest condenses the healthy sources into the text block handed to
// response generation and cached for reuse.
func buildDigest(report *GatherReport) string {
	var b strings.Builder
	for _, src := range report.Sources {
		if src.Degraded {
			continue
		}
		switch src.Kind {
		case "search":
			if src.Search == nil {
				continue
			}
			if src.Search.InstantAnswer != "" {
				fmt.Fprintf(&b, "Answer: %s\n", src.Search.InstantAnswer)
			}
			if src.Search.Abstract != "" {
				fmt.Fprintf(&b, "Summary: %s\n", src.Search.Abstract)
			}
			for i, r := range src.Search.Results {
				if i >= 3 {
					break
				}
				fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
			}
		case "docs":
			if src.Docs != "" {
				fmt.Fprintf(&b, "[%s] %s\n", src.Name, src.Docs)
			}
		}
	}

	digest := strings.TrimSpace(b.String())
	if len(digest) > digestLimit {
		digest = digest[:digestLimit]
	}
	return digest
}
