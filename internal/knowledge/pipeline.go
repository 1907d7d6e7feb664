package knowledge

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/flow"
	"github.com/f0rky/Chimp-GPT-sub004/internal/state"
	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

// Store keys shared between pipeline nodes. Nodes pass structured state by
// writing these keys rather than threading parameters through edges.
const (
	keyCurrentIntent = "currentIntent"
	keyGatheredInfo  = "gatheredInfo"
	keyConfirmation  = "confirmation"
	keyResponse      = "response"
)

// IncomingMessage is the narrow inbound contract: the platform adapter maps
// its native event into this shape and the pipeline reads nothing else.
// History is an optional pre-rendered block of recent channel conversation,
// already relevance-filtered by the adapter.
type IncomingMessage struct {
	Content     string
	Timestamp   time.Time
	UserID      string
	IsReply     bool
	ReplyToBot  bool
	MentionsBot bool
	History     string
}

// Intent is produced once per run and stored under currentIntent for
// downstream nodes.
type Intent struct {
	Query            string    `json:"query"`
	NeedsCode        bool      `json:"needsCode"`
	NeedsInformation bool      `json:"needsInformation"`
	UserID           string    `json:"userId"`
	IsOwner          bool      `json:"isOwner"`
	History          string    `json:"history,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Result is what the caller sends back to the platform.
type Result struct {
	Success    bool    `json:"success"`
	Response   string  `json:"response"`
	Type       string  `json:"type"` // answer, report, fallback, error
	Confidence float64 `json:"confidence"`
	FromCache  bool    `json:"fromCache"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchData is the injected search function's payload.
type SearchData struct {
	InstantAnswer string         `json:"instantAnswer,omitempty"`
	Abstract      string         `json:"abstract,omitempty"`
	Results       []SearchResult `json:"results"`
}

// CompletionRequest is the injected chat-completion contract.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Deps are the injected collaborator functions. Each must return an error
// on failure (never a silently partial payload); the gather stage relies
// on error returns to classify a source as degraded.
type Deps struct {
	Search    func(ctx context.Context, query string, maxResults int) (*SearchData, error)
	FetchDocs func(ctx context.Context, query, site string) (string, error)
	Complete  func(ctx context.Context, req CompletionRequest) (string, error)
}

// PipelineConfig tunes intent parsing and response generation.
type PipelineConfig struct {
	BotName       string
	CommandPrefix string
	OwnerUserID   string
}

// Pipeline is the knowledge workflow: intent detection, optional
// information gathering with caching, optional cross-source confirmation,
// response generation, and output-size formatting, wired as a flow over
// the persistent store.
type Pipeline struct {
	store        *Store
	deps         Deps
	cfg          PipelineConfig
	flow         *flow.Flow
	stats        *state.RuntimeState
	logger       *zap.Logger
	nameStripper *regexp.Regexp
}

// NewPipeline wires the five nodes into a flow sharing the given store.
// stats may be nil when no counters are wanted (tests).
func NewPipeline(store *Store, deps Deps, cfg PipelineConfig, stats *state.RuntimeState, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		store:  store,
		deps:   deps,
		cfg:    cfg,
		stats:  stats,
		logger: logger,
	}
	if cfg.BotName != "" {
		p.nameStripper = regexp.MustCompile(
			`(?i)\b(hey |hi |ok )?` + regexp.QuoteMeta(cfg.BotName) + `\b[,:]?\s*`)
	}

	intent := flow.NewNode("intent_detection", p.detectIntent)
	gather := flow.NewNode("information_gathering", p.gatherInformation)
	confirm := flow.NewNode("confirmation", p.confirmSources)
	respond := flow.NewNode("response_generation", p.generateResponse)
	format := flow.NewNode("formatting", p.formatResponse)

	// Happy path: intent -> gather -> confirm -> respond -> format.
	// Gathering is skipped when no information is needed; confirmation is
	// skipped on cache hits and when every source degraded.
	intent.When(gather, func(output any, _ flow.SharedStore) bool {
		in, ok := output.(*Intent)
		return ok && in.NeedsInformation
	})
	intent.When(respond, func(output any, _ flow.SharedStore) bool {
		in, ok := output.(*Intent)
		return ok && !in.NeedsInformation
	})
	intent.When(format, func(output any, _ flow.SharedStore) bool {
		_, ok := output.(*Result)
		return ok
	})

	gather.When(confirm, func(output any, _ flow.SharedStore) bool {
		report, ok := output.(*GatherReport)
		return ok && report.Healthy > 0 && !report.FromCache
	})
	gather.When(respond, func(output any, _ flow.SharedStore) bool {
		report, ok := output.(*GatherReport)
		return ok && (report.Healthy == 0 || report.FromCache)
	})

	confirm.Then(respond)
	respond.Then(format)

	p.flow = flow.New("knowledge", intent, store, logger)
	return p
}

// Store exposes the pipeline's persistent store.
func (p *Pipeline) Store() *Store {
	return p.store
}

// genericErrorResponse is the worst-case user-visible text; the user never
// sees a raw error.
const genericErrorResponse = "I encountered an error while working on that. Please try again in a moment."

// Process runs the pipeline for one message. Nodes handle their own
// failures with stage-appropriate fallbacks; anything that still escapes
// is converted here into a generic failure result and a structured log
// entry, never a raw error to the user.
func (p *Pipeline) Process(ctx context.Context, msg IncomingMessage) Result {
	output, err := p.flow.Run(ctx, msg)
	if err != nil {
		p.logger.Error("knowledge pipeline failed",
			zap.String("user_id", msg.UserID),
			zap.String("error_kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		p.recordRun(false)
		if p.stats != nil {
			p.stats.RecordError(string(apperrors.KindOf(err)))
		}
		return Result{
			Success:    false,
			Response:   genericErrorResponse,
			Type:       "error",
			Confidence: 0,
		}
	}

	result, ok := output.(*Result)
	if !ok || result == nil || result.Response == "" {
		// The formatting node always returns a *Result; reaching this
		// means a wiring defect, handled the same as a run failure.
		p.logger.Error("knowledge pipeline produced no result",
			zap.String("user_id", msg.UserID))
		p.recordRun(false)
		return Result{
			Success:    false,
			Response:   genericErrorResponse,
			Type:       "error",
			Confidence: 0,
		}
	}

	p.recordRun(result.Success)
	return *result
}

func (p *Pipeline) recordRun(success bool) {
	if p.stats != nil {
		p.stats.RecordPipelineRun(success)
	}
}
