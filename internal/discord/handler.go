package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/conversation"
	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	"github.com/f0rky/Chimp-GPT-sub004/internal/plugins"
	"github.com/f0rky/Chimp-GPT-sub004/internal/state"
)

// defaultResponseTimeout bounds one full pipeline run per message.
const defaultResponseTimeout = 60 * time.Second

// Handler receives Discord message events, decides whether the bot is
// being addressed, and runs the knowledge pipeline for messages that are.
// Every message, answered or not, lands in the channel memory so the
// context builder sees the whole conversation.
type Handler struct {
	pipeline    *knowledge.Pipeline
	registry    *plugins.Registry
	memory      *ChannelMemory
	scorer      *conversation.Scorer
	stats       *state.RuntimeState
	contextOpts conversation.ContextOptions
	timeout     time.Duration
	logger      *zap.Logger
}

// NewHandler wires the message handler. registry and stats may be nil;
// zero contextOpts fields and timeout <= 0 select the defaults.
func NewHandler(
	pipeline *knowledge.Pipeline,
	registry *plugins.Registry,
	memory *ChannelMemory,
	scorer *conversation.Scorer,
	stats *state.RuntimeState,
	contextOpts conversation.ContextOptions,
	timeout time.Duration,
	logger *zap.Logger,
) *Handler {
	if timeout <= 0 {
		timeout = defaultResponseTimeout
	}
	return &Handler{
		pipeline:    pipeline,
		registry:    registry,
		memory:      memory,
		scorer:      scorer,
		stats:       stats,
		contextOpts: contextOpts,
		timeout:     timeout,
		logger:      logger,
	}
}

// HandleMessage is the discordgo MessageCreate callback.
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	h.handle(s, m, botID)
}

// handle is HandleMessage with the session narrowed for tests.
func (h *Handler) handle(s session, m *discordgo.MessageCreate, botID string) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return
	}
	if h.stats != nil {
		h.stats.RecordMessageSeen()
	}

	msg := toScoringMessage(m, botID)
	h.memory.Record(m.ChannelID, msg)

	isDM := m.GuildID == ""
	if !h.shouldRespond(msg, isDM) {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	if h.stats != nil {
		h.stats.RecordMessageHandled()
	}
	h.logger.Info("processing message",
		zap.String("user_id", m.Author.ID),
		zap.String("channel_id", m.ChannelID),
		zap.Bool("is_dm", isDM),
	)

	_ = s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	incoming := knowledge.IncomingMessage{
		Content:     m.Content,
		Timestamp:   msg.Timestamp,
		UserID:      m.Author.ID,
		IsReply:     msg.IsReply,
		ReplyToBot:  msg.ReplyToBot,
		MentionsBot: msg.MentionsBot,
		History:     h.renderHistory(m.ChannelID, msg),
	}
	result := h.pipeline.Process(ctx, incoming)

	if h.registry != nil {
		_ = h.registry.EmitMessageProcessed(ctx, incoming, result)
		_ = h.registry.EmitPipelineComplete(ctx, result)
	}

	h.sendLongMessage(s, m.ChannelID, result.Response)
}

// shouldRespond decides whether the bot was addressed: DMs always,
// otherwise the intent detector's verdict (mentions and the command
// prefix are high confidence there).
func (h *Handler) shouldRespond(msg conversation.Message, isDM bool) bool {
	if isDM {
		return true
	}
	return h.scorer.DetectBotIntent(msg).Directed
}

// historyLines bounds how much selected context gets rendered into the
// pipeline prompt.
const historyLines = 10

// renderHistory selects the relevant slice of the channel's recent
// conversation and renders it as prompt-ready lines. The current message
// is the newest reference for similarity scoring.
func (h *Handler) renderHistory(channelID string, current conversation.Message) string {
	window := h.memory.Window(channelID)
	if len(window) <= 1 {
		return ""
	}

	// Drop the current message; it is the query, not context.
	candidates := window[:len(window)-1]
	refs := []conversation.Message{current}

	selected := h.scorer.BuildWeightedContext(
		candidates, refs, h.memory.UserCounts(channelID), time.Now(), h.contextOpts)
	if len(selected) > historyLines {
		selected = selected[len(selected)-historyLines:]
	}

	var b strings.Builder
	for _, m := range selected {
		fmt.Fprintf(&b, "%s: %s\n", m.UserID, m.Content)
	}
	return strings.TrimSpace(b.String())
}

// toScoringMessage maps a discordgo event into the platform-neutral shape
// used for scoring and memory.
func toScoringMessage(m *discordgo.MessageCreate, botID string) conversation.Message {
	mentionsBot := false
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			mentionsBot = true
			break
		}
	}

	isReply := m.MessageReference != nil
	replyToBot := false
	depth := 0
	if m.ReferencedMessage != nil {
		isReply = true
		depth = 1
		if m.ReferencedMessage.Author != nil && m.ReferencedMessage.Author.ID == botID {
			replyToBot = true
		}
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return conversation.Message{
		Content:         m.Content,
		Timestamp:       ts,
		UserID:          m.Author.ID,
		IsReply:         isReply,
		ReplyToBot:      replyToBot,
		ReplyChainDepth: depth,
		MentionsBot:     mentionsBot,
	}
}
