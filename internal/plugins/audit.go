package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
)

// AuditPlugin logs one structured line per processed message: who asked,
// what kind of answer came back, and how confident the pipeline was.
type AuditPlugin struct {
	logger *zap.Logger
}

// NewAuditPlugin builds the audit plugin around the given logger.
func NewAuditPlugin(logger *zap.Logger) *AuditPlugin {
	return &AuditPlugin{logger: logger}
}

func (p *AuditPlugin) Name() string    { return "audit" }
func (p *AuditPlugin) Version() string { return "1.0.0" }

// Register attaches the audit hook.
func (p *AuditPlugin) Register(r *Registry) error {
	r.OnMessageProcessed(p.Name(), func(_ context.Context, msg knowledge.IncomingMessage, result knowledge.Result) error {
		p.logger.Info("message processed",
			zap.String("user_id", msg.UserID),
			zap.String("result_type", result.Type),
			zap.Float64("confidence", result.Confidence),
			zap.Bool("from_cache", result.FromCache),
			zap.Int("response_length", len(result.Response)),
		)
		return nil
	})
	return nil
}
