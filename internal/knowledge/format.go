package knowledge

import (
	"context"
	"strings"

	"github.com/f0rky/Chimp-GPT-sub004/internal/constants"
	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
)

const truncationNotice = "\n*(response trimmed to fit)*"

// formatResponse is the final node: it fits the response into Discord's
// message limit, keeping code blocks intact in preference to prose.
func (p *Pipeline) formatResponse(ctx context.Context, store flow.SharedStore, input any) (any, error) {
	result, ok := input.(*Result)
	if !ok {
		result, ok = store.GetOr(keyResponse, (*Result)(nil)).(*Result)
		if !ok || result == nil {
			result = &Result{Success: true, Response: fallbackGeneric, Type: "fallback"}
		}
	}
	result.Response = FormatForDiscord(result.Response)
	store.Set(keyResponse, result)
	return result, nil
}

// FormatForDiscord trims content to the working message limit. Fenced
// code blocks are preserved ahead of prose: reports lead with their
// summary, so cutting from the tail drops search detail before anything
// a reader would miss. An oversized lone block is truncated inside its
// fences rather than left unterminated.
func FormatForDiscord(content string) string {
	if len(content) <= constants.WorkingMessageLimit {
		return content
	}

	budget := constants.WorkingMessageLimit - len(truncationNotice)
	prose, blocks := splitCodeBlocks(content)

	if len(blocks) == 0 {
		return truncateAtLineBoundary(content, budget) + truncationNotice
	}

	var kept []string
	blockLen := 0
	for _, block := range blocks {
		cost := len(block)
		if len(kept) > 0 {
			cost++ // joining newline
		}
		if blockLen+cost <= budget {
			kept = append(kept, block)
			blockLen += cost
			continue
		}
		if len(kept) == 0 {
			// Even one block overflows: keep it, shortened inside the fences.
			trimmed := truncateCodeBlock(block, budget)
			kept = append(kept, trimmed)
			blockLen = len(trimmed)
		}
		break
	}

	out := strings.Join(kept, "\n")
	if textBudget := budget - blockLen - 2; textBudget > 0 && strings.TrimSpace(prose) != "" {
		head := truncateAtLineBoundary(strings.TrimSpace(prose), textBudget)
		if head != "" {
			out = head + "\n\n" + out
		}
	}
	out += truncationNotice

	// Hard limit guard; Discord rejects anything past it outright.
	if len(out) > constants.DiscordMaxMessageLength {
		out = out[:constants.DiscordMaxMessageLength]
	}
	return out
}

// splitCodeBlocks separates fenced code blocks from the surrounding
// prose, preserving block order.
func splitCodeBlocks(content string) (prose string, blocks []string) {
	var b strings.Builder
	for {
		start := strings.Index(content, "```")
		if start < 0 {
			b.WriteString(content)
			break
		}
		b.WriteString(content[:start])
		rest := content[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			// Unterminated fence: treat the remainder as one block and
			// close it so Discord renders it sanely.
			blocks = append(blocks, content[start:]+"\n```")
			break
		}
		blocks = append(blocks, content[start:start+3+end+3])
		content = rest[end+3:]
	}
	return b.String(), blocks
}

// truncateAtLineBoundary cuts text to max bytes, preferring the last
// full line and then the last word before the limit.
func truncateAtLineBoundary(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return strings.TrimRight(cut[:i], "\n ")
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return cut[:i]
	}
	return cut
}

// truncateCodeBlock shortens a fenced block to max bytes while keeping
// the opening fence (with its language tag) and a closing fence.
func truncateCodeBlock(block string, max int) string {
	const closer = "\n```"
	if len(block) <= max {
		return block
	}
	nl := strings.IndexByte(block, '\n')
	if nl < 0 || max <= nl+len(closer) {
		// No room for any code at all; degrade to an empty block.
		return "```" + closer
	}
	opener := block[:nl]
	body := strings.TrimSuffix(block[nl+1:], "```")
	body = strings.TrimRight(body, "\n")
	room := max - len(opener) - len(closer) - 1
	if room < 0 {
		room = 0
	}
	if len(body) > room {
		body = truncateAtLineBoundary(body, room)
	}
	return opener + "\n" + body + closer
}
