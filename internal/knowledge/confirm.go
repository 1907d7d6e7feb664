package knowledge

import (
	"context"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

// Confirmation is the cross-source confidence verdict, stored under the
// confirmation key. Confidence is 0-100.
type Confirmation struct {
	Confidence float64 `json:"confidence"`
	WebHealthy bool    `json:"webHealthy"`
	DocSources int     `json:"docSources"`
	FromCache  bool    `json:"fromCache"`
}

// Source weights: a healthy web search vouches for 40 points; each healthy
// documentation source adds 30 up to a 60-point cap; the total caps at 100.
const (
	webSearchWeight  = 40
	perDocWeight     = 30
	docWeightCeiling = 60
	maxConfidence    = 100
)

// confirmSources assigns a weighted confidence to the gathered
// information and caches the digest under that confidence for reuse.
func (p *Pipeline) confirmSources(ctx context.Context, store flow.SharedStore, input any) (any, error) {
	report, ok := input.(*GatherReport)
	if !ok {
		if fromStore, found := store.Get(keyGatheredInfo); found {
			report, ok = fromStore.(*GatherReport)
		}
		if !ok || report == nil {
			conf := &Confirmation{}
			store.Set(keyConfirmation, conf)
			return conf, nil
		}
	}

	conf := &Confirmation{}
	for _, src := range report.Sources {
		if src.Degraded {
			continue
		}
		switch src.Kind {
		case "search":
			conf.WebHealthy = true
		case "docs":
			conf.DocSources++
		}
	}

	score := 0.0
	if conf.WebHealthy {
		score += webSearchWeight
	}
	docScore := float64(conf.DocSources * perDocWeight)
	if docScore > docWeightCeiling {
		docScore = docWeightCeiling
	}
	score += docScore
	if score > maxConfidence {
		score = maxConfidence
	}
	conf.Confidence = score
	store.Set(keyConfirmation, conf)

	// Cache the digest under the confirmed confidence so equivalent
	// queries can skip gathering until the TTL lapses.
	if report.Digest != "" {
		p.store.CacheSearchResult(report.Query, report.Digest, conf.Confidence)
	}

	p.logger.Debug("sources confirmed",
		zap.Float64("confidence", conf.Confidence),
		zap.Bool("web_healthy", conf.WebHealthy),
		zap.Int("doc_sources", conf.DocSources),
	)
	return conf, nil
}
