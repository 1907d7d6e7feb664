package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

// Plugin is a compiled-in extension. Register is called exactly once, at
// startup, and is where the plugin attaches its hooks.
type Plugin interface {
	Name() string
	Version() string
	Register(r *Registry) error
}

// Info identifies a registered plugin for the status surface.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MessageProcessedHook runs after the pipeline handled one message.
type MessageProcessedHook func(ctx context.Context, msg knowledge.IncomingMessage, result knowledge.Result) error

// PipelineCompleteHook runs after every pipeline run, handled or not.
type PipelineCompleteHook func(ctx context.Context, result knowledge.Result) error

type messageHook struct {
	plugin string
	fn     MessageProcessedHook
}

type pipelineHook struct {
	plugin string
	fn     PipelineCompleteHook
}

// Registry holds the compiled-in plugins and their hook points. Hooks run
// synchronously in registration order; a failing hook is logged and
// reported to the caller but never stops the remaining hooks.
type Registry struct {
	mu                 sync.RWMutex
	logger             *zap.Logger
	plugins            map[string]Info
	onMessageProcessed []messageHook
	onPipelineComplete []pipelineHook
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger,
		plugins: make(map[string]Info),
	}
}

// RegisterAll registers every plugin, failing fast on a duplicate name or
// a Register error. Registration is startup-only and not concurrent with
// hook dispatch.
func (r *Registry) RegisterAll(plugins ...Plugin) error {
	for _, p := range plugins {
		name := p.Name()
		r.mu.Lock()
		if _, exists := r.plugins[name]; exists {
			r.mu.Unlock()
			return apperrors.NewPluginError(name, "duplicate plugin name", nil)
		}
		r.plugins[name] = Info{Name: name, Version: p.Version()}
		r.mu.Unlock()

		if err := p.Register(r); err != nil {
			r.mu.Lock()
			delete(r.plugins, name)
			r.mu.Unlock()
			return apperrors.NewPluginError(name, "registration failed", err)
		}
		r.logger.Info("plugin registered",
			zap.String("plugin", name),
			zap.String("version", p.Version()),
		)
	}
	return nil
}

// OnMessageProcessed attaches a hook; plugin names the owner for
// attribution in logs.
func (r *Registry) OnMessageProcessed(plugin string, fn MessageProcessedHook) {
	r.mu.Lock()
	r.onMessageProcessed = append(r.onMessageProcessed, messageHook{plugin: plugin, fn: fn})
	r.mu.Unlock()
}

// OnPipelineComplete attaches a hook; plugin names the owner for
// attribution in logs.
func (r *Registry) OnPipelineComplete(plugin string, fn PipelineCompleteHook) {
	r.mu.Lock()
	r.onPipelineComplete = append(r.onPipelineComplete, pipelineHook{plugin: plugin, fn: fn})
	r.mu.Unlock()
}

// EmitMessageProcessed runs the message hooks in order. Every hook runs;
// failures come back joined, each also logged with its plugin name.
func (r *Registry) EmitMessageProcessed(ctx context.Context, msg knowledge.IncomingMessage, result knowledge.Result) error {
	r.mu.RLock()
	hooks := r.onMessageProcessed
	r.mu.RUnlock()

	var errs []error
	for _, h := range hooks {
		if err := h.fn(ctx, msg, result); err != nil {
			r.logger.Warn("plugin hook failed",
				zap.String("plugin", h.plugin),
				zap.String("hook", "message_processed"),
				zap.Error(err),
			)
			errs = append(errs, apperrors.NewPluginError(h.plugin, "message_processed hook", err))
		}
	}
	return errors.Join(errs...)
}

// EmitPipelineComplete runs the pipeline hooks in order, same failure
// handling as EmitMessageProcessed.
func (r *Registry) EmitPipelineComplete(ctx context.Context, result knowledge.Result) error {
	r.mu.RLock()
	hooks := r.onPipelineComplete
	r.mu.RUnlock()

	var errs []error
	for _, h := range hooks {
		if err := h.fn(ctx, result); err != nil {
			r.logger.Warn("plugin hook failed",
				zap.String("plugin", h.plugin),
				zap.String("hook", "pipeline_complete"),
				zap.Error(err),
			)
			errs = append(errs, apperrors.NewPluginError(h.plugin, "pipeline_complete hook", err))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the registered plugin's info.
func (r *Registry) Lookup(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.plugins[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", apperrors.ErrNotRegistered, name)
	}
	return info, nil
}

// Plugins lists the registered plugins sorted by name.
func (r *Registry) Plugins() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.plugins))
	for _, info := range r.plugins {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
