package conversation

import (
	"sort"
	"time"
)

// ContextOptions bounds context selection.
type ContextOptions struct {
	// MaxTokens is the selection budget, estimated at ~4 chars/token.
	MaxTokens int
	// MinRelevance drops candidates scoring below it before selection.
	MinRelevance float64
	// AmbientRatio caps how many non-directed messages may ride along,
	// as a fraction of the ambient pool.
	AmbientRatio float64
}

// DefaultContextOptions returns the production selection bounds.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		MaxTokens:    1000,
		MinRelevance: 0.1,
		AmbientRatio: 0.3,
	}
}

// ScoredMessage is a candidate augmented with its relevance verdict and
// its position in the original candidate slice.
type ScoredMessage struct {
	Message
	Relevance     RelevanceScore
	Directed      bool
	OriginalIndex int
}

// highRelevanceScore promotes non-directed messages into the priority
// phase when their composite alone clears it.
const highRelevanceScore = 0.6

// EstimateTokens approximates the token cost of text at 4 chars/token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// BuildWeightedContext selects a token-budgeted, chronologically ordered
// subset of candidates. Every candidate is scored against refs (most
// recent first); anything under MinRelevance is dropped; the rest is
// split into high-relevance (bot-directed or score above 0.6) and ambient.
// High-relevance messages are admitted first in score order, then at most
// floor(ambientCount × AmbientRatio) ambient ones, skipping any message
// that would blow the budget. The admitted set is re-sorted by timestamp
// so the model always sees chronological order. userCounts maps user ID
// to how many messages that user sent recently; nil derives it from the
// candidates themselves.
func (s *Scorer) BuildWeightedContext(candidates, refs []Message, userCounts map[string]int, now time.Time, opts ContextOptions) []ScoredMessage {
	def := DefaultContextOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = def.MinRelevance
	}
	if opts.AmbientRatio <= 0 {
		opts.AmbientRatio = def.AmbientRatio
	}

	if userCounts == nil {
		userCounts = make(map[string]int, len(candidates))
		for _, m := range candidates {
			userCounts[m.UserID]++
		}
	}

	scored := make([]ScoredMessage, 0, len(candidates))
	for i, msg := range candidates {
		rel := s.ScoreRelevance(msg, refs, userCounts[msg.UserID], now)
		if rel.Total < opts.MinRelevance {
			continue
		}
		scored = append(scored, ScoredMessage{
			Message:       msg,
			Relevance:     rel,
			Directed:      s.DetectBotIntent(msg).Directed,
			OriginalIndex: i,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance.Total > scored[j].Relevance.Total
	})

	var high, ambient []ScoredMessage
	for _, m := range scored {
		if m.Directed || m.Relevance.Total > highRelevanceScore {
			high = append(high, m)
		} else {
			ambient = append(ambient, m)
		}
	}

	selected := make([]ScoredMessage, 0, len(scored))
	budget := opts.MaxTokens
	used := 0

	for _, m := range high {
		cost := EstimateTokens(m.Content)
		if used+cost > budget {
			continue
		}
		selected = append(selected, m)
		used += cost
	}

	ambientAllowance := int(float64(len(ambient)) * opts.AmbientRatio)
	admitted := 0
	for _, m := range ambient {
		if admitted >= ambientAllowance {
			break
		}
		cost := EstimateTokens(m.Content)
		if used+cost > budget {
			continue
		}
		selected = append(selected, m)
		used += cost
		admitted++
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Timestamp.Equal(selected[j].Timestamp) {
			return selected[i].OriginalIndex < selected[j].OriginalIndex
		}
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})
	return selected
}
