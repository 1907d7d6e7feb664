package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

// testPlugin wires configurable hooks for registry tests.
type testPlugin struct {
	name        string
	registerErr error
	onMessage   MessageProcessedHook
	onPipeline  PipelineCompleteHook
}

func (p *testPlugin) Name() string    { return p.name }
func (p *testPlugin) Version() string { return "0.0.1" }

func (p *testPlugin) Register(r *Registry) error {
	if p.registerErr != nil {
		return p.registerErr
	}
	if p.onMessage != nil {
		r.OnMessageProcessed(p.name, p.onMessage)
	}
	if p.onPipeline != nil {
		r.OnPipelineComplete(p.name, p.onPipeline)
	}
	return nil
}

func TestRegisterAllAndLookup(t *testing.T) {
	r := New(zap.NewNop())

	err := r.RegisterAll(
		&testPlugin{name: "beta"},
		&testPlugin{name: "alpha"},
	)
	require.NoError(t, err)

	info, err := r.Lookup("alpha")
	require.NoError(t, err)
	assert.Equal(t, Info{Name: "alpha", Version: "0.0.1"}, info)

	listed := r.Plugins()
	require.Len(t, listed, 2)
	assert.Equal(t, "alpha", listed[0].Name, "listing is sorted by name")
	assert.Equal(t, "beta", listed[1].Name)
}

func TestRegisterAllRejectsDuplicates(t *testing.T) {
	r := New(zap.NewNop())

	err := r.RegisterAll(
		&testPlugin{name: "same"},
		&testPlugin{name: "same"},
	)

	require.Error(t, err)
	assert.Equal(t, apperrors.KindPlugin, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "same")
}

func TestRegisterFailureUnwindsPlugin(t *testing.T) {
	r := New(zap.NewNop())

	err := r.RegisterAll(&testPlugin{name: "broken", registerErr: errors.New("boom")})

	require.Error(t, err)
	_, lookupErr := r.Lookup("broken")
	assert.ErrorIs(t, lookupErr, apperrors.ErrNotRegistered)
}

func TestLookupUnknownPlugin(t *testing.T) {
	r := New(zap.NewNop())

	_, err := r.Lookup("ghost")

	assert.ErrorIs(t, err, apperrors.ErrNotRegistered)
}

func TestEmitMessageProcessedRunsAllHooks(t *testing.T) {
	r := New(zap.NewNop())
	var order []string

	err := r.RegisterAll(
		&testPlugin{name: "first", onMessage: func(context.Context, knowledge.IncomingMessage, knowledge.Result) error {
			order = append(order, "first")
			return errors.New("first failed")
		}},
		&testPlugin{name: "second", onMessage: func(context.Context, knowledge.IncomingMessage, knowledge.Result) error {
			order = append(order, "second")
			return nil
		}},
	)
	require.NoError(t, err)

	emitErr := r.EmitMessageProcessed(context.Background(), knowledge.IncomingMessage{UserID: "u"}, knowledge.Result{})

	assert.Equal(t, []string{"first", "second"}, order, "a failing hook must not stop later hooks")
	require.Error(t, emitErr)
	assert.Equal(t, apperrors.KindPlugin, apperrors.KindOf(emitErr))
	assert.Contains(t, emitErr.Error(), "first failed")
}

func TestEmitPipelineCompletePayload(t *testing.T) {
	r := New(zap.NewNop())
	var seen knowledge.Result

	err := r.RegisterAll(&testPlugin{name: "observer", onPipeline: func(_ context.Context, result knowledge.Result) error {
		seen = result
		return nil
	}})
	require.NoError(t, err)

	want := knowledge.Result{Success: true, Response: "done", Type: "answer", Confidence: 70}
	require.NoError(t, r.EmitPipelineComplete(context.Background(), want))
	assert.Equal(t, want, seen)
}

func TestEmitWithNoHooks(t *testing.T) {
	r := New(zap.NewNop())

	assert.NoError(t, r.EmitMessageProcessed(context.Background(), knowledge.IncomingMessage{}, knowledge.Result{}))
	assert.NoError(t, r.EmitPipelineComplete(context.Background(), knowledge.Result{}))
}

func TestAuditPluginRegisters(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.RegisterAll(NewAuditPlugin(zap.NewNop())))

	info, err := r.Lookup("audit")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info.Version)
	assert.NoError(t, r.EmitMessageProcessed(context.Background(),
		knowledge.IncomingMessage{UserID: "u"}, knowledge.Result{Type: "answer"}))
}
