// Package conversation scores candidate messages for context inclusion:
// temporal decay, bot-directed intent detection, semantic similarity, and
// the composite relevance used by the context builder.
package conversation

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Message is the immutable scoring input. The platform adapter maps its
// native event into this shape; the core never touches platform objects.
type Message struct {
	Content         string
	Timestamp       time.Time
	UserID          string
	IsReply         bool
	ReplyToBot      bool
	ReplyChainDepth int
	MentionsBot     bool
}

// IntentSignal is the outcome of bot-directed intent detection.
type IntentSignal struct {
	Confidence float64
	Directed   bool
	Mentioned  bool
}

// Components breaks a composite relevance score into its factors.
type Components struct {
	Temporal    float64
	BotDirected float64
	Semantic    float64
	Reply       float64
	User        float64
}

// RelevanceScore is derived per message per evaluation, never persisted.
type RelevanceScore struct {
	Total      float64
	Components Components
}

// ScoringConfig tunes the scoring functions.
type ScoringConfig struct {
	BotName            string
	CommandPrefix      string
	DecayRatePerMinute float64
	MemoryWindow       time.Duration
	DirectedThreshold  float64
}

// DefaultScoringConfig returns the tuning used in production.
func DefaultScoringConfig(botName, commandPrefix string) ScoringConfig {
	return ScoringConfig{
		BotName:            botName,
		CommandPrefix:      commandPrefix,
		DecayRatePerMinute: 0.08,
		MemoryWindow:       30 * time.Minute,
		DirectedThreshold:  0.4,
	}
}

// Scorer applies ScoringConfig to the pure scoring functions.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a scorer; zero-valued config fields fall back to defaults.
func NewScorer(cfg ScoringConfig) *Scorer {
	def := DefaultScoringConfig(cfg.BotName, cfg.CommandPrefix)
	if cfg.DecayRatePerMinute <= 0 {
		cfg.DecayRatePerMinute = def.DecayRatePerMinute
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = def.MemoryWindow
	}
	if cfg.DirectedThreshold <= 0 {
		cfg.DirectedThreshold = def.DirectedThreshold
	}
	return &Scorer{cfg: cfg}
}

// decayFloor keeps very old messages from vanishing entirely; they can
// still never dominate recent ones.
const decayFloor = 0.1

// TemporalDecay weights a message by age: exp(-ageMinutes * rate) with a
// floor of 0.1. Future timestamps clamp to 1.0; ages at or past three
// memory windows clamp straight to the floor regardless of the exponential.
func (s *Scorer) TemporalDecay(messageTime, now time.Time) float64 {
	if messageTime.After(now) {
		return 1.0
	}
	age := now.Sub(messageTime)
	if age >= 3*s.cfg.MemoryWindow {
		return decayFloor
	}
	ageMinutes := age.Minutes()
	return math.Max(math.Exp(-ageMinutes*s.cfg.DecayRatePerMinute), decayFloor)
}

var (
	mentionMarkup = regexp.MustCompile(`<@!?\d+>`)
	whOpener      = regexp.MustCompile(`^(who|what|when|where|why|how|which)\b`)
)

// Pattern tiers for intent detection. Question-like matches weigh 0.5,
// other directed matches 0.3, continuations 0.2.
var (
	politenessPhrases = []string{"please", "can you", "could you", "would you"}

	continuationWords = map[string]bool{
		"and": true, "also": true, "yes": true, "yeah": true,
		"ok": true, "okay": true, "sure": true, "thanks": true,
	}

	laughter       = regexp.MustCompile(`^(lo+l+|lmao+|rofl|ha(ha)+|he(he)+)[!.\s]*$`)
	emoteOnly      = regexp.MustCompile(`^(\s|<a?:\w+:\d+>|:[\w~]+:)+$`)
	shortReactions = map[string]bool{
		"nice": true, "cool": true, "wow": true, "bruh": true, "same": true,
	}
)

// DetectBotIntent classifies whether a message is addressed to the bot.
// An explicit platform mention is maximum confidence; a command prefix is
// high confidence; otherwise directed patterns accumulate, general-chat
// patterns halve the total, a reply to one of the bot's messages adds a
// fixed boost, and near-empty messages are heavily discounted. The result
// is clamped to [0,1] and compared against the directed threshold.
func (s *Scorer) DetectBotIntent(msg Message) IntentSignal {
	if msg.MentionsBot {
		return IntentSignal{Confidence: 1.0, Directed: true, Mentioned: true}
	}

	content := strings.TrimSpace(msg.Content)
	if s.cfg.CommandPrefix != "" && strings.HasPrefix(content, s.cfg.CommandPrefix) {
		return IntentSignal{Confidence: 0.8, Directed: 0.8 > s.cfg.DirectedThreshold}
	}

	lower := strings.ToLower(mentionMarkup.ReplaceAllString(content, ""))
	lower = strings.TrimSpace(lower)

	confidence := 0.0
	if s.cfg.BotName != "" && containsWord(lower, strings.ToLower(s.cfg.BotName)) {
		confidence += 0.3
	}
	for _, phrase := range politenessPhrases {
		if strings.Contains(lower, phrase) {
			confidence += 0.3
			break
		}
	}
	if strings.HasSuffix(lower, "?") {
		confidence += 0.5
	}
	if whOpener.MatchString(lower) {
		confidence += 0.5
	}
	if w := firstWord(lower); continuationWords[w] {
		confidence += 0.2
	}
	if laughter.MatchString(lower) || emoteOnly.MatchString(lower) || shortReactions[lower] {
		confidence *= 0.5
	}
	if msg.ReplyToBot {
		confidence += 0.3
	}
	if len(lower) < 3 {
		confidence *= 0.3
	}

	confidence = clamp01(confidence)
	return IntentSignal{
		Confidence: confidence,
		Directed:   confidence > s.cfg.DirectedThreshold,
	}
}

// topicVocabulary is the small fixed set of domain words whose shared
// presence in two messages marks them as probably about the same thing.
var topicVocabulary = []string{
	"weather", "time", "server", "stats", "image", "generate", "help",
}

// SemanticSimilarity is the Jaccard similarity of the two messages' word
// sets (lower-cased, punctuation stripped, words longer than two chars),
// plus a flat 0.2 boost when both share a topic-vocabulary word. Capped
// at 1.0.
func SemanticSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	similarity := float64(intersection) / float64(union)

	for _, topic := range topicVocabulary {
		if setA[topic] && setB[topic] {
			similarity += 0.2
			break
		}
	}
	return math.Min(similarity, 1.0)
}

// maxReferenceMessages bounds how many recent references similarity is
// computed against; more adds cost without improving the signal.
const maxReferenceMessages = 3

// ScoreRelevance combines the scoring factors into the composite used for
// context selection:
//
//	total = temporalDecay × (0.3 + botDirected + semantic + reply + user)
//
// clamped to [0,1]. Temporal decay is the gate factor: an old bot-directed
// message still scores below a recent ambient one, recency is a
// prerequisite rather than a tiebreaker. refs must be ordered most recent
// first; only the first three are consulted.
func (s *Scorer) ScoreRelevance(msg Message, refs []Message, userMessageCount int, now time.Time) RelevanceScore {
	temporal := s.TemporalDecay(msg.Timestamp, now)

	intent := s.DetectBotIntent(msg)
	botDirected := intent.Confidence * 0.4

	maxSimilarity := 0.0
	for i, ref := range refs {
		if i >= maxReferenceMessages {
			break
		}
		if sim := SemanticSimilarity(msg.Content, ref.Content); sim > maxSimilarity {
			maxSimilarity = sim
		}
	}
	semantic := maxSimilarity * 0.3

	reply := 0.0
	switch {
	case msg.ReplyToBot:
		reply = 0.2
	case msg.IsReply:
		reply = 0.1
	}

	user := math.Min(float64(userMessageCount)/10.0, 0.1)

	total := clamp01(temporal * (0.3 + botDirected + semantic + reply + user))
	return RelevanceScore{
		Total: total,
		Components: Components{
			Temporal:    temporal,
			BotDirected: botDirected,
			Semantic:    semantic,
			Reply:       reply,
			User:        user,
		},
	}
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s]+`)

func wordSet(text string) map[string]bool {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	set := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(nonWord.ReplaceAllString(text, " ")) {
		if w == word {
			return true
		}
	}
	return false
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ",.!")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
