package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testScorer() *Scorer {
	return NewScorer(DefaultScoringConfig("chimp", "!"))
}

func TestTemporalDecay(t *testing.T) {
	s := testScorer()
	now := time.Now()

	tests := []struct {
		name     string
		age      time.Duration
		expected float64
		delta    float64
	}{
		{name: "zero age is full weight", age: 0, expected: 1.0, delta: 0.0001},
		{name: "one minute decays slightly", age: time.Minute, expected: 0.923, delta: 0.001},
		{name: "ten minutes decays visibly", age: 10 * time.Minute, expected: 0.449, delta: 0.001},
		{name: "one hour bottoms out at the floor", age: 60 * time.Minute, expected: 0.1, delta: 0.0001},
		{name: "three windows clamps to floor", age: 90 * time.Minute, expected: 0.1, delta: 0.0001},
		{name: "ancient message keeps the floor", age: 240 * time.Hour, expected: 0.1, delta: 0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.TemporalDecay(now.Add(-tt.age), now)
			assert.InDelta(t, tt.expected, got, tt.delta)
		})
	}
}

func TestTemporalDecay_FutureTimestampClamps(t *testing.T) {
	s := testScorer()
	now := time.Now()

	assert.Equal(t, 1.0, s.TemporalDecay(now.Add(5*time.Minute), now))
}

func TestTemporalDecay_Monotonic(t *testing.T) {
	s := testScorer()
	now := time.Now()

	prev := s.TemporalDecay(now, now)
	for age := time.Minute; age <= 2*time.Hour; age += time.Minute {
		cur := s.TemporalDecay(now.Add(-age), now)
		assert.LessOrEqual(t, cur, prev, "decay must never increase with age (age=%v)", age)
		assert.GreaterOrEqual(t, cur, 0.1, "decay must respect the floor")
		prev = cur
	}
}

func TestDetectBotIntent(t *testing.T) {
	s := testScorer()

	tests := []struct {
		name          string
		msg           Message
		minConfidence float64
		maxConfidence float64
		directed      bool
	}{
		{
			name:          "platform mention is maximum confidence",
			msg:           Message{Content: "<@12345> help me out", MentionsBot: true},
			minConfidence: 1.0,
			maxConfidence: 1.0,
			directed:      true,
		},
		{
			name:          "command prefix is high confidence",
			msg:           Message{Content: "!stats"},
			minConfidence: 0.8,
			maxConfidence: 0.8,
			directed:      true,
		},
		{
			name:          "name mention plus question mark",
			msg:           Message{Content: "hey chimp, what's the weather?"},
			minConfidence: 0.8,
			maxConfidence: 1.0,
			directed:      true,
		},
		{
			name:          "bare question still accumulates",
			msg:           Message{Content: "what time is it?"},
			minConfidence: 0.5,
			maxConfidence: 1.0,
			directed:      true,
		},
		{
			name:          "plain chatter is not directed",
			msg:           Message{Content: "went to the store earlier today"},
			minConfidence: 0,
			maxConfidence: 0.4,
			directed:      false,
		},
		{
			name:          "laughter halves any signal",
			msg:           Message{Content: "hahaha"},
			minConfidence: 0,
			maxConfidence: 0.3,
			directed:      false,
		},
		{
			name:          "reply to the bot carries a boost",
			msg:           Message{Content: "that worked perfectly", IsReply: true, ReplyToBot: true},
			minConfidence: 0.3,
			maxConfidence: 0.4,
			directed:      false,
		},
		{
			name:          "near-empty message is discounted",
			msg:           Message{Content: "ok"},
			minConfidence: 0,
			maxConfidence: 0.1,
			directed:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.DetectBotIntent(tt.msg)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConfidence)
			assert.LessOrEqual(t, got.Confidence, tt.maxConfidence)
			assert.Equal(t, tt.directed, got.Directed)
		})
	}
}

func TestDetectBotIntent_ConfidenceAlwaysClamped(t *testing.T) {
	s := testScorer()

	// Stack every boosting pattern at once; the clamp must hold.
	loaded := Message{
		Content:    "chimp please can you tell me what is the weather and how is the server?",
		IsReply:    true,
		ReplyToBot: true,
	}
	contents := []string{
		loaded.Content, "", "?", "a", "lol?", "!x",
		"what what what what?", "<@999> <@998>",
	}

	for i, content := range contents {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			msg := loaded
			msg.Content = content
			got := s.DetectBotIntent(msg)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestSemanticSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{name: "identical sentences", a: "the server stats look great", b: "the server stats look great", min: 0.99, max: 1.0},
		{name: "disjoint sentences", a: "purple elephants dancing", b: "quarterly revenue numbers", min: 0, max: 0},
		{name: "partial overlap", a: "check the server status", b: "server status looks fine", min: 0.3, max: 0.7},
		{name: "shared topic word boost", a: "what is the weather like", b: "weather report please", min: 0.2, max: 1.0},
		{name: "short words ignored", a: "is it on", b: "it is on", min: 0, max: 0},
		{name: "empty input", a: "", b: "anything at all", min: 0, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SemanticSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestSemanticSimilarity_TopicBoostCapped(t *testing.T) {
	// Identical messages sharing a topic word must still cap at 1.0.
	got := SemanticSimilarity("weather today weather", "weather today weather")
	assert.LessOrEqual(t, got, 1.0)
}

func TestScoreRelevance_WorkedExample(t *testing.T) {
	s := testScorer()
	now := time.Now()

	msg := Message{
		Content:   "hey chimp, what's the weather?",
		Timestamp: now.Add(-30 * time.Second),
		UserID:    "user-1",
	}

	intent := s.DetectBotIntent(msg)
	assert.True(t, intent.Directed)
	assert.GreaterOrEqual(t, intent.Confidence, 0.8)

	score := s.ScoreRelevance(msg, nil, 3, now)
	assert.Greater(t, score.Total, 0.5, "a fresh directed question must score highly")
	assert.InDelta(t, 0.96, score.Components.Temporal, 0.01)
}

func TestScoreRelevance_DecayGatesDirectedness(t *testing.T) {
	s := testScorer()
	now := time.Now()

	oldDirected := Message{
		Content:   "chimp can you look up the stats please?",
		Timestamp: now.Add(-2 * time.Hour),
	}
	recentAmbient := Message{
		Content:   "we should grab lunch at that new place sometime soon",
		Timestamp: now.Add(-time.Minute),
	}

	oldScore := s.ScoreRelevance(oldDirected, nil, 0, now)
	recentScore := s.ScoreRelevance(recentAmbient, nil, 0, now)

	assert.Less(t, oldScore.Total, recentScore.Total,
		"recency is a prerequisite: an old directed message scores below a recent ambient one")
}

func TestScoreRelevance_ComponentsAndClamp(t *testing.T) {
	s := testScorer()
	now := time.Now()

	refs := []Message{
		{Content: "what is the weather today", Timestamp: now},
		{Content: "unrelated chat", Timestamp: now},
		{Content: "more unrelated chat", Timestamp: now},
		{Content: "weather weather weather", Timestamp: now}, // beyond the 3-ref window
	}
	msg := Message{
		Content:    "chimp what's the weather looking like today?",
		Timestamp:  now,
		UserID:     "u1",
		IsReply:    true,
		ReplyToBot: true,
	}

	score := s.ScoreRelevance(msg, refs, 50, now)

	assert.LessOrEqual(t, score.Total, 1.0)
	assert.GreaterOrEqual(t, score.Total, 0.0)
	assert.Equal(t, 0.2, score.Components.Reply)
	assert.Equal(t, 0.1, score.Components.User, "user activity boost caps at 0.1")
	assert.Greater(t, score.Components.Semantic, 0.0)
	assert.LessOrEqual(t, score.Components.Semantic, 0.3)
}
