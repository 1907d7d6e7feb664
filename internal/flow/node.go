package flow

import (
	"context"
	"fmt"
)

// Action is the work a node performs: it may read and write the store and
// returns an output passed along fired edges. Returning an error aborts the
// whole flow run; flows that want fallback behaviour catch errors inside the
// action and route to a fallback branch via edge predicates instead.
type Action func(ctx context.Context, store SharedStore, input any) (any, error)

// Predicate decides whether an edge fires, given the source node's output
// and the shared store. A nil predicate always fires.
type Predicate func(output any, store SharedStore) bool

// Edge connects a node to a downstream target, guarded by a predicate.
type Edge struct {
	target *Node
	when   Predicate
}

// Node is a single processing step plus its outgoing conditional edges.
// Nodes are stateless; all run state lives in the SharedStore.
type Node struct {
	name   string
	action Action
	edges  []Edge
}

// NewNode creates a node with the given name and action.
func NewNode(name string, action Action) *Node {
	return &Node{name: name, action: action}
}

// Name returns the node's identity, used in logs and error context.
func (n *Node) Name() string {
	return n.name
}

// Then adds an unconditional edge to target. Returns n for chaining.
func (n *Node) Then(target *Node) *Node {
	return n.When(target, nil)
}

// When adds a conditional edge to target. Edge order is declaration order.
// Returns n for chaining.
func (n *Node) When(target *Node, pred Predicate) *Node {
	n.edges = append(n.edges, Edge{target: target, when: pred})
	return n
}

// Execute runs the node's action, then evaluates every edge in declaration
// order. Each edge whose predicate passes executes its target with this
// node's output as input. When several edges fire, the last fired edge's
// result becomes this node's result (last-write-wins, not first-match);
// downstream flows rely on this to let a later branch override an earlier
// one. When no edge fires, the node's own output is returned unchanged.
func (n *Node) Execute(ctx context.Context, store SharedStore, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("node %q: %w", n.name, err)
	}

	output, err := n.action(ctx, store, input)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", n.name, err)
	}

	result := output
	for _, edge := range n.edges {
		if edge.when != nil && !edge.when(output, store) {
			continue
		}
		downstream, err := edge.target.Execute(ctx, store, output)
		if err != nil {
			return nil, err
		}
		result = downstream
	}
	return result, nil
}
