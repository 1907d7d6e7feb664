package knowledge

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

var (
	mentionMarkup   = regexp.MustCompile(`<@!?\d+>`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	questionOpeners = regexp.MustCompile(`^(who|what|when|where|why|how|which)\b`)
)

// informationKeywords mark queries that need fresh external information.
var informationKeywords = []string{
	"search", "look up", "find out", "tell me about",
	"latest", "current", "news", "price", "weather",
}

// codeKeywords mark queries that want documentation or code material.
var codeKeywords = []string{
	"code", "function", "implement", "example", "snippet",
	"library", "api", "error", "debug",
}

// unknownUserResponse is the validation fallback; the pipeline ends with it
// when a message arrives without an author ID.
const unknownUserResponse = "I'm not sure who sent that, but I'm happy to help if you ask again!"

// detectIntent validates the message and distills it into an Intent stored
// under currentIntent. Validation failure never propagates as an error: it
// short-circuits the run with a fallback Result routed straight to
// formatting.
func (p *Pipeline) detectIntent(ctx context.Context, store flow.SharedStore, input any) (any, error) {
	// The store is shared across runs; downstream keys are per-run and must
	// not leak a previous run's gather or confirmation into this one.
	store.Delete(keyCurrentIntent)
	store.Delete(keyGatheredInfo)
	store.Delete(keyConfirmation)
	store.Delete(keyResponse)

	msg, ok := input.(IncomingMessage)
	if !ok {
		if ptr, isPtr := input.(*IncomingMessage); isPtr && ptr != nil {
			msg = *ptr
		} else {
			p.logger.Warn("intent node received unexpected input type")
			return &Result{
				Success:    true,
				Response:   unknownUserResponse,
				Type:       "fallback",
				Confidence: 0,
			}, nil
		}
	}

	if strings.TrimSpace(msg.UserID) == "" {
		p.logger.Warn("message rejected: missing user ID")
		return &Result{
			Success:    true,
			Response:   unknownUserResponse,
			Type:       "fallback",
			Confidence: 0,
		}, nil
	}

	query := p.stripAddressing(msg.Content)
	intent := &Intent{
		Query:            query,
		NeedsCode:        wantsCode(query),
		NeedsInformation: wantsInformation(query),
		UserID:           msg.UserID,
		IsOwner:          p.cfg.OwnerUserID != "" && msg.UserID == p.cfg.OwnerUserID,
		History:          msg.History,
		Timestamp:        time.Now(),
	}
	store.Set(keyCurrentIntent, intent)

	p.logger.Debug("intent detected",
		zap.String("query", intent.Query),
		zap.Bool("needs_information", intent.NeedsInformation),
		zap.Bool("needs_code", intent.NeedsCode),
		zap.Bool("is_owner", intent.IsOwner),
	)
	return intent, nil
}

// stripAddressing removes mention markup, the bot's name, and the command
// prefix so downstream stages see only the actual query.
func (p *Pipeline) stripAddressing(content string) string {
	query := mentionMarkup.ReplaceAllString(content, " ")
	query = strings.TrimSpace(query)

	if p.cfg.CommandPrefix != "" && strings.HasPrefix(query, p.cfg.CommandPrefix) {
		query = query[len(p.cfg.CommandPrefix):]
	}
	if p.nameStripper != nil {
		query = p.nameStripper.ReplaceAllString(query, " ")
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(query, " "))
}

func wantsInformation(query string) bool {
	lower := strings.ToLower(query)
	if questionOpeners.MatchString(lower) || strings.HasSuffix(lower, "?") {
		return true
	}
	for _, kw := range informationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func wantsCode(query string) bool {
	if strings.Contains(query, "```") {
		return true
	}
	lower := strings.ToLower(query)
	for _, kw := range codeKeywords {
		if containsWholeWord(lower, kw) {
			return true
		}
	}
	return false
}

// containsWholeWord avoids substring false positives like "api" in "rapid".
func containsWholeWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
