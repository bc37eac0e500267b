package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/strategy"
)

// Node is one vertex of a compiled plan. The typed implementation is erased
// behind adapter closures at registration time; the engine only sees the
// Run* methods.
type Node struct {
	id        string
	kind      Kind
	inType    reflect.Type
	outType   reflect.Type
	impl      any
	strat     strategy.Config
	shareable bool
	composite *CompositeSpec

	source    func(ctx context.Context, run *pipeline.Context) (any, error)
	transform func(ctx context.Context, run *pipeline.Context, item any) Outcome
	sink      func(ctx context.Context, run *pipeline.Context, item any) error

	upstream   *Node
	downstream *Node
}

func (n *Node) ID() string { return n.id }

func (n *Node) Kind() Kind { return n.kind }

// InputType is nil for sources.
func (n *Node) InputType() reflect.Type { return n.inType }

// OutputType is nil for sinks.
func (n *Node) OutputType() reflect.Type { return n.outType }

func (n *Node) Strategy() strategy.Config { return n.strat }

// Shareable reports whether the node may serve concurrent runs of the plan.
func (n *Node) Shareable() bool { return n.shareable }

// Composite returns the nested pipeline spec, nil for plain nodes.
func (n *Node) Composite() *CompositeSpec { return n.composite }

// Impl exposes the registered implementation, e.g. for Resettable checks.
func (n *Node) Impl() any { return n.impl }

func (n *Node) Upstream() *Node { return n.upstream }

func (n *Node) Downstream() *Node { return n.downstream }

// RunSource pulls the next item from a source node.
func (n *Node) RunSource(ctx context.Context, run *pipeline.Context) (any, error) {
	return n.source(ctx, run)
}

// RunTransform processes one item through a transform node.
func (n *Node) RunTransform(ctx context.Context, run *pipeline.Context, item any) Outcome {
	return n.transform(ctx, run, item)
}

// RunSink delivers one item to a sink node.
func (n *Node) RunSink(ctx context.Context, run *pipeline.Context, item any) error {
	return n.sink(ctx, run, item)
}

// Plan is the validated, immutable graph the engine executes. Nodes are
// ordered source-first.
type Plan struct {
	nodes []*Node
	byID  map[string]*Node
}

// Nodes returns the execution chain in order. The slice is a copy.
func (p *Plan) Nodes() []*Node {
	nodes := make([]*Node, len(p.nodes))
	copy(nodes, p.nodes)

	return nodes
}

// Node looks a node up by id.
func (p *Plan) Node(id string) (*Node, bool) {
	n, ok := p.byID[id]

	return n, ok
}

// Source returns the plan's entry node.
func (p *Plan) Source() *Node {
	return p.nodes[0]
}

// Sink returns the plan's terminal node.
func (p *Plan) Sink() *Node {
	return p.nodes[len(p.nodes)-1]
}

func (p *Plan) Len() int {
	return len(p.nodes)
}

// NodeDescriptor is the serializable shape of one node, for inspection
// surfaces.
type NodeDescriptor struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	InputType  string `json:"input_type,omitempty"`
	OutputType string `json:"output_type,omitempty"`
	Strategy   string `json:"strategy"`
	Workers    int    `json:"workers,omitempty"`
	Ordered    bool   `json:"ordered,omitempty"`
	Shareable  bool   `json:"shareable,omitempty"`
	Composite  bool   `json:"composite,omitempty"`
	Downstream string `json:"downstream,omitempty"`
}

// Describe renders the plan for inspection surfaces such as the HTTP API.
func (p *Plan) Describe() []NodeDescriptor {
	descriptors := make([]NodeDescriptor, 0, len(p.nodes))

	for _, n := range p.nodes {
		d := NodeDescriptor{
			ID:        n.id,
			Kind:      n.kind,
			Strategy:  string(n.strat.Kind),
			Workers:   n.strat.Workers,
			Ordered:   n.strat.Ordered,
			Shareable: n.shareable,
			Composite: n.composite != nil,
		}

		if n.inType != nil {
			d.InputType = n.inType.String()
		}

		if n.outType != nil {
			d.OutputType = n.outType.String()
		}

		if n.downstream != nil {
			d.Downstream = n.downstream.id
		}

		descriptors = append(descriptors, d)
	}

	return descriptors
}

// Library is a concurrency-safe arena of named plans, the unit the serving
// surface registers and runs from.
type Library struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

func NewLibrary() *Library {
	return &Library{plans: make(map[string]*Plan)}
}

// Add registers a plan under a unique id.
func (l *Library) Add(id string, plan *Plan) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.plans[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlan, id)
	}

	l.plans[id] = plan

	return nil
}

// Get looks a plan up by id.
func (l *Library) Get(id string) (*Plan, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	plan, ok := l.plans[id]

	return plan, ok
}

// IDs returns the registered plan ids.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.plans))
	for id := range l.plans {
		ids = append(ids, id)
	}

	return ids
}
