// Package flow implements a small graph execution runtime: nodes connected
// by conditional edges, mutating a shared key/value store. Concrete
// pipelines wire nodes into a Flow and run it per input.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyRunID is the store key holding the current run's identifier.
const KeyRunID = "flowRunID"

// Flow is a runnable graph: a start node plus the store its nodes share.
type Flow struct {
	name   string
	start  *Node
	store  SharedStore
	logger *zap.Logger
}

// New creates a flow. The store is shared across every run of this flow;
// per-run keys are overwritten on each run.
func New(name string, start *Node, store SharedStore, logger *zap.Logger) *Flow {
	return &Flow{
		name:   name,
		start:  start,
		store:  store,
		logger: logger,
	}
}

// Store exposes the flow's shared store.
func (f *Flow) Store() SharedStore {
	return f.store
}

// Run executes the flow from its start node with the given input and
// returns the final output. A flow is re-entrant: Run may be called many
// times against the same store. Any error from a node action aborts the
// run and is returned; the engine adds no implicit recovery.
func (f *Flow) Run(ctx context.Context, input any) (any, error) {
	if f.start == nil {
		return nil, fmt.Errorf("flow %q has no start node", f.name)
	}

	runID := uuid.NewString()
	f.store.Set(KeyRunID, runID)

	started := time.Now()
	f.logger.Debug("flow run started",
		zap.String("flow", f.name),
		zap.String("run_id", runID),
	)

	output, err := f.start.Execute(ctx, f.store, input)
	if err != nil {
		f.logger.Error("flow run failed",
			zap.String("flow", f.name),
			zap.String("run_id", runID),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return nil, err
	}

	f.logger.Debug("flow run finished",
		zap.String("flow", f.name),
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)),
	)
	return output, nil
}
