package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/constants"
)

// session is the slice of *discordgo.Session the handler uses, narrowed
// for testability.
type session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// chunkPause spaces multi-part sends to stay under the rate limit.
const chunkPause = 100 * time.Millisecond

// partIndicatorReserve leaves room for the "*(Part X/Y)*" suffix.
const partIndicatorReserve = 20

// sendLongMessage delivers content, splitting into fence-safe chunks with
// part indicators when it exceeds the platform limit. A failed chunk stops
// the remainder; half a response plus an error beats an inconsistent one.
func (h *Handler) sendLongMessage(s session, channelID, content string) {
	maxLength := constants.DiscordMaxMessageLength

	if len(content) <= maxLength {
		if _, err := s.ChannelMessageSend(channelID, content); err != nil {
			h.logger.Error("failed to send message",
				zap.Error(err),
				zap.String("channel_id", channelID),
			)
		}
		return
	}

	chunks := splitMessage(content, maxLength-partIndicatorReserve)
	for i, chunk := range chunks {
		message := chunk
		if len(chunks) > 1 {
			message = fmt.Sprintf("%s\n*(Part %d/%d)*", chunk, i+1, len(chunks))
		}
		if len(message) > maxLength {
			message = message[:maxLength-3] + "..."
			h.logger.Warn("chunk still too long after splitting, truncating",
				zap.Int("chunk", i+1),
				zap.Int("length", len(message)),
			)
		}

		if _, err := s.ChannelMessageSend(channelID, message); err != nil {
			h.logger.Error("failed to send message chunk",
				zap.Error(err),
				zap.String("channel_id", channelID),
				zap.Int("chunk", i+1),
				zap.Int("total_chunks", len(chunks)),
			)
			break
		}
		if i < len(chunks)-1 {
			time.Sleep(chunkPause)
		}
	}
}

// splitMessage cuts content into chunks of at most maxLength, splitting at
// line boundaries and never leaving a fenced code block open: a chunk
// ending mid-block gets a closing fence, and the next chunk reopens with
// the original fence line (language tag included).
func splitMessage(content string, maxLength int) []string {
	if len(content) <= maxLength {
		return []string{content}
	}

	// Pre-cut pathological single lines so the main loop can assume any
	// line fits a fresh chunk.
	lineBudget := maxLength - 8
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		for len(line) > lineBudget {
			lines = append(lines, line[:lineBudget])
			line = line[lineBudget:]
		}
		lines = append(lines, line)
	}

	var chunks []string
	var current strings.Builder
	inBlock := false
	fence := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := current.String()
		current.Reset()
		if inBlock {
			chunk += "\n```"
			current.WriteString(fence)
		}
		chunks = append(chunks, chunk)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isFence := strings.HasPrefix(trimmed, "```")
		closesBlock := isFence && inBlock

		reserve := 0
		if inBlock && !closesBlock {
			reserve = len("\n```")
		}
		needed := len(line)
		if current.Len() > 0 {
			needed++
		}
		if current.Len() > 0 && current.Len()+needed+reserve > maxLength {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)

		if isFence {
			if inBlock {
				inBlock = false
				fence = ""
			} else {
				inBlock = true
				fence = trimmed
			}
		}
	}

	if tail := current.String(); tail != "" && tail != fence {
		if inBlock && !strings.HasSuffix(strings.TrimSpace(tail), "```") {
			tail += "\n```"
		}
		chunks = append(chunks, tail)
	}
	return chunks
}
