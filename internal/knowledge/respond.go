package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

// structuredMarkers force the report format instead of a free-form answer.
var structuredMarkers = []string{
	"documentation", "docs", "structured", "report", "code example", "snippet",
}

// Fallback layers for response generation, worst case last. Response
// generation must never yield empty output, whatever failed upstream.
const (
	fallbackWithDigest = "Here's what I found:\n%s"
	fallbackNoInfo     = "I couldn't gather solid information on that just now, but I'm happy to take another crack at it if you rephrase."
	fallbackGeneric    = "I'm not quite sure how to help with that one, but I'm here if you want to try asking another way!"
)

// generateResponse always runs and always produces a non-empty response:
// a model-generated natural answer by default, a structured report when
// the query explicitly asks for one, and canned fallbacks for every
// failure layer, enforced by a final safety check.
func (p *Pipeline) generateResponse(ctx context.Context, store flow.SharedStore, input any) (any, error) {
	intent, _ := store.GetOr(keyCurrentIntent, (*Intent)(nil)).(*Intent)
	report, _ := store.GetOr(keyGatheredInfo, (*GatherReport)(nil)).(*GatherReport)
	conf, _ := store.GetOr(keyConfirmation, (*Confirmation)(nil)).(*Confirmation)

	if intent == nil {
		// Validation fallbacks never reach this node; a missing intent
		// means the store was tampered with between nodes.
		result := &Result{Success: true, Response: fallbackGeneric, Type: "fallback", Confidence: 0}
		store.Set(keyResponse, result)
		return result, nil
	}

	confidence := 0.0
	fromCache := false
	if conf != nil {
		confidence = conf.Confidence
		fromCache = conf.FromCache
	}
	digest := ""
	if report != nil {
		digest = report.Digest
		fromCache = fromCache || report.FromCache
	}

	var result *Result
	if wantsStructuredAnswer(intent.Query) {
		result = p.structuredReport(intent, report, confidence)
	} else {
		result = p.naturalAnswer(ctx, intent, digest, confidence)
	}
	result.FromCache = fromCache

	// Final safety check: never return empty.
	if strings.TrimSpace(result.Response) == "" {
		p.logger.Warn("empty response caught by safety check",
			zap.String("query", intent.Query))
		result.Response = fallbackGeneric
		result.Type = "fallback"
	}

	store.Set(keyResponse, result)
	return result, nil
}

func wantsStructuredAnswer(query string) bool {
	lower := strings.ToLower(query)
	for _, marker := range structuredMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// naturalAnswer asks the model for a free-form reply grounded in the
// digest. Model failure falls back to the digest itself, then to canned
// text.
func (p *Pipeline) naturalAnswer(ctx context.Context, intent *Intent, digest string, confidence float64) *Result {
	system := fmt.Sprintf(
		"You are %s, a helpful and concise chat assistant. Answer naturally in a few sentences.",
		p.cfg.BotName)
	prompt := intent.Query
	if digest != "" {
		prompt = fmt.Sprintf("%s\n\nGathered information (confidence %.0f%%):\n%s",
			intent.Query, confidence, digest)
	}
	if intent.History != "" {
		prompt = fmt.Sprintf("Recent conversation:\n%s\n\n%s", intent.History, prompt)
	}

	text, err := p.deps.Complete(ctx, CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   400,
		Temperature: 0.7,
	})
	if err == nil && strings.TrimSpace(text) != "" {
		return &Result{Success: true, Response: strings.TrimSpace(text), Type: "answer", Confidence: confidence}
	}
	if err != nil {
		p.logger.Warn("completion failed, falling back",
			zap.String("query", intent.Query),
			zap.Error(err),
		)
	}

	if digest != "" {
		return &Result{
			Success:    true,
			Response:   fmt.Sprintf(fallbackWithDigest, digest),
			Type:       "fallback",
			Confidence: confidence,
		}
	}
	if intent.NeedsInformation {
		return &Result{Success: true, Response: fallbackNoInfo, Type: "fallback", Confidence: 0}
	}
	return &Result{Success: true, Response: fallbackGeneric, Type: "fallback", Confidence: 0}
}

// structuredReport renders the gathered material as a sectioned report:
// summary, sourced bullet points, a confidence line, and, for the owner
// only, an example code block when one was found in the documentation.
func (p *Pipeline) structuredReport(intent *Intent, report *GatherReport, confidence float64) *Result {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", strings.TrimSpace(intent.Query))

	wrote := false
	if report != nil {
		if report.FromCache && report.Digest != "" {
			b.WriteString(report.Digest)
			b.WriteString("\n")
			wrote = true
		}
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
					fmt.Fprintf(&b, "%s\n\n", src.Search.InstantAnswer)
					wrote = true
				} else if src.Search.Abstract != "" {
					fmt.Fprintf(&b, "%s\n\n", src.Search.Abstract)
					wrote = true
				}
				for i, r := range src.Search.Results {
					if i >= 3 {
						break
					}
					fmt.Fprintf(&b, "• %s - %s\n", r.Title, r.Snippet)
					wrote = true
				}
			case "docs":
				if text := stripCodeFences(src.Docs); text != "" {
					fmt.Fprintf(&b, "• [%s] %s\n", src.Name, truncateLine(text, 200))
					wrote = true
				}
			}
		}
	}
	if !wrote {
		b.WriteString("No solid sources came back for this one.\n")
	}

	fmt.Fprintf(&b, "\nConfidence: %.0f%%\n", confidence)

	if intent.NeedsCode && intent.IsOwner {
		if block := firstCodeBlock(report); block != "" {
			b.WriteString("\n")
			b.WriteString(block)
			b.WriteString("\n")
		}
	}

	return &Result{
		Success:    true,
		Response:   strings.TrimSpace(b.String()),
		Type:       "report",
		Confidence: confidence,
	}
}

// firstCodeBlock pulls the first fenced code block out of the healthy
// documentation sources.
func firstCodeBlock(report *GatherReport) string {
	if report == nil {
		return ""
	}
	for _, src := range report.Sources {
		if src.Degraded || src.Kind != "docs" {
			continue
		}
		start := strings.Index(src.Docs, "```")
		if start < 0 {
			continue
		}
		rest := src.Docs[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		return src.Docs[start : start+3+end+3]
	}
	return ""
}

// stripCodeFences removes fenced blocks so bullet summaries stay prose.
func stripCodeFences(text string) string {
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			break
		}
		rest := text[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + rest[end+3:]
	}
	return strings.TrimSpace(text)
}

func truncateLine(text string, limit int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "…"
}
