// Package router implements the hierarchical routing loop shared by the
// top-level supervisor and every team supervisor. A Router owns a set of
// member nodes and repeatedly picks the next one to run until a routing
// decision says "end". Pending routes stamped on the state preempt the
// routing function, so control decisions made elsewhere (escalations,
// resource requests) always win over the model's choice.
package router

import (
	"context"
	"fmt"

	"github.com/and-other-tales/juno/internal/state"
)

// DefaultMaxSteps bounds a routing loop that never reaches "end".
const DefaultMaxSteps = 100

// NodeFunc executes one node and returns the updated state.
type NodeFunc func(ctx context.Context, st *state.RunState) (*state.RunState, error)

// RouteFunc picks the next member node to run. Returning state.NodeEnd or an
// empty string ends the loop; an error or an unknown member falls back to the
// router's Fallback node.
type RouteFunc func(ctx context.Context, st *state.RunState) (string, error)

// PreemptFunc inspects the state before routing and may force a member node.
// Returning an empty string defers to the routing function.
type PreemptFunc func(st *state.RunState) string

// Router runs member nodes in the order the routing function dictates.
type Router struct {
	// Name identifies the supervisor that owns this router, for errors and
	// notices.
	Name string

	// Members are the node names this router may dispatch to.
	Members []string

	// Route picks the next member when no pending route or preemption
	// applies.
	Route RouteFunc

	// Preempt, when set, is consulted before Route on every step.
	Preempt PreemptFunc

	// Fallback is the member used when Route fails or names an unknown
	// node. Empty means a routing failure ends the loop.
	Fallback string

	// MaxSteps bounds the loop; zero means DefaultMaxSteps.
	MaxSteps int

	handlers map[string]NodeFunc
}

// New creates a router for the named supervisor over the given members.
func New(name string, members []string, route RouteFunc) *Router {
	return &Router{
		Name:     name,
		Members:  members,
		Route:    route,
		handlers: make(map[string]NodeFunc),
	}
}

// Handle registers the node function for a member.
func (r *Router) Handle(node string, fn NodeFunc) {
	r.handlers[node] = fn
}

// Run executes the routing loop until a decision ends it, the step limit is
// reached, or the context is cancelled.
func (r *Router) Run(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if step >= maxSteps {
			return st, fmt.Errorf("router %s exceeded %d steps without ending", r.Name, maxSteps)
		}

		next, err := r.pick(ctx, st)
		if err != nil {
			return st, err
		}
		if next == state.NodeEnd || next == "" {
			return st, nil
		}
		if consumed := r.consumePending(st); consumed != nil {
			st = consumed
		}

		fn, ok := r.handlers[next]
		if !ok {
			return st, fmt.Errorf("router %s has no handler for node %q", r.Name, next)
		}
		st, err = fn(ctx, st)
		if err != nil {
			return st, fmt.Errorf("node %s: %w", next, err)
		}
	}
}

// pick resolves the next node: pending route first, then preemption, then
// the routing function with fallback on failure.
func (r *Router) pick(ctx context.Context, st *state.RunState) (string, error) {
	if st.Next != "" {
		if st.Next == state.NodeEnd || r.isMember(st.Next) {
			return st.Next, nil
		}
		// A pending route for a node outside this router belongs to an
		// enclosing router; end here so it can take over.
		return state.NodeEnd, nil
	}

	if r.Preempt != nil {
		if forced := r.Preempt(st); forced != "" {
			if forced != state.NodeEnd && !r.isMember(forced) {
				return "", fmt.Errorf("router %s: preemption to unknown node %q", r.Name, forced)
			}
			return forced, nil
		}
	}

	next, err := r.Route(ctx, st)
	if err != nil || (next != state.NodeEnd && next != "" && !r.isMember(next)) {
		if r.Fallback != "" {
			return r.Fallback, nil
		}
		if err != nil {
			return "", fmt.Errorf("router %s: routing failed: %w", r.Name, err)
		}
		return state.NodeEnd, nil
	}
	return next, nil
}

// consumePending clears a pending route that this router is about to act on.
// Returns nil when there is nothing to consume.
func (r *Router) consumePending(st *state.RunState) *state.RunState {
	if st.Next == "" {
		return nil
	}
	next := st.Clone()
	next.Next = ""
	return next
}

func (r *Router) isMember(node string) bool {
	for _, m := range r.Members {
		if m == node {
			return true
		}
	}
	return false
}
