package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func passthrough(name string) *Node {
	return NewNode(name, func(ctx context.Context, store SharedStore, input any) (any, error) {
		return input, nil
	})
}

func constant(name string, value any) *Node {
	return NewNode(name, func(ctx context.Context, store SharedStore, input any) (any, error) {
		return value, nil
	})
}

func TestNodeExecute_NoEdgesReturnsOwnOutput(t *testing.T) {
	store := NewMemoryStore()
	node := constant("answer", 42)

	out, err := node.Execute(context.Background(), store, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestNodeExecute_ConditionalRouting(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "high input routes to high branch", input: 10, expected: "high"},
		{name: "low input routes to low branch", input: 1, expected: "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			start := passthrough("start")
			start.When(constant("high", "high"), func(output any, _ SharedStore) bool {
				return output.(int) > 5
			})
			start.When(constant("low", "low"), func(output any, _ SharedStore) bool {
				return output.(int) <= 5
			})

			out, err := start.Execute(context.Background(), store, tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestNodeExecute_LastFiredEdgeWins(t *testing.T) {
	// Both edges fire; the second edge's result must overwrite the first.
	store := NewMemoryStore()
	start := passthrough("start")
	start.Then(constant("first", "first"))
	start.Then(constant("second", "second"))

	out, err := start.Execute(context.Background(), store, "x")

	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestNodeExecute_ActionErrorAbortsRun(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	failing := NewNode("failing", func(ctx context.Context, store SharedStore, input any) (any, error) {
		return nil, boom
	})
	start := passthrough("start")
	start.Then(failing)
	start.Then(constant("after", "never"))

	_, err := start.Execute(context.Background(), store, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
}

func TestNodeExecute_StoreSharedAcrossNodes(t *testing.T) {
	store := NewMemoryStore()
	writer := NewNode("writer", func(ctx context.Context, store SharedStore, input any) (any, error) {
		store.Set("seen", input)
		return input, nil
	})
	reader := NewNode("reader", func(ctx context.Context, store SharedStore, input any) (any, error) {
		v, ok := store.Get("seen")
		require.True(t, ok)
		return v, nil
	})
	writer.Then(reader)

	out, err := writer.Execute(context.Background(), store, "hello")

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestNodeExecute_ContextCancellation(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := passthrough("start").Execute(ctx, store, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlowRun_ReEntrant(t *testing.T) {
	store := NewMemoryStore()
	counter := NewNode("counter", func(ctx context.Context, store SharedStore, input any) (any, error) {
		n, _ := store.GetOr("count", 0).(int)
		store.Set("count", n+1)
		return n + 1, nil
	})
	f := New("counting", counter, store, zap.NewNop())

	first, err := f.Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := f.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestFlowRun_StampsRunID(t *testing.T) {
	store := NewMemoryStore()
	f := New("stamped", passthrough("start"), store, zap.NewNop())

	_, err := f.Run(context.Background(), nil)
	require.NoError(t, err)
	firstID, ok := store.Get(KeyRunID)
	require.True(t, ok)

	_, err = f.Run(context.Background(), nil)
	require.NoError(t, err)
	secondID, _ := store.Get(KeyRunID)

	assert.NotEmpty(t, firstID)
	assert.NotEqual(t, firstID, secondID, "each run gets a fresh ID")
}

func TestFlowRun_NilStartNode(t *testing.T) {
	f := New("empty", nil, NewMemoryStore(), zap.NewNop())

	_, err := f.Run(context.Background(), nil)

	assert.Error(t, err)
}

func TestMemoryStore_Snapshot(t *testing.T) {
	store := NewMemoryStore()
	store.Set("a", 1)
	store.Set("b", "two")
	store.Delete("missing")

	snap := store.Snapshot()
	store.Set("c", 3) // must not leak into the snapshot

	want := map[string]any{"a": 1, "b": "two"}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, store.Len())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, store.Keys())
}
