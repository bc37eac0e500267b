package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/strategy"
)

// Builder registers nodes and edges and compiles them into a Plan. It is
// single-use: Build may be called at most once.
type Builder struct {
	nodes   []*Node
	byID    map[string]*Node
	outEdge map[*Node]*Node
	inEdge  map[*Node]*Node
	errs    []error
	built   bool
}

func NewBuilder() *Builder {
	return &Builder{
		byID:    make(map[string]*Node),
		outEdge: make(map[*Node]*Node),
		inEdge:  make(map[*Node]*Node),
	}
}

// NodeOption configures a node at registration time.
type NodeOption func(*Node)

// WithStrategy selects the node's execution strategy; the default is
// sequential.
func WithStrategy(cfg strategy.Config) NodeOption {
	return func(n *Node) { n.strat = cfg }
}

// WithShareable marks a node as safe to reuse across independent runs of
// the same plan.
func WithShareable() NodeOption {
	return func(n *Node) { n.shareable = true }
}

// SourceHandle references a registered source node.
type SourceHandle[O any] struct {
	node *Node
}

// TransformHandle references a registered transform or composite node.
type TransformHandle[I, O any] struct {
	node *Node
}

// SinkHandle references a registered sink node.
type SinkHandle[I any] struct {
	node *Node
}

// Outlet is anything producing items of type T. The outletType method never
// runs; it ties T to the handle's payload type so Connect can infer it.
type Outlet[T any] interface {
	outletNode() *Node
	outletType() T
}

// Inlet is anything consuming items of type T.
type Inlet[T any] interface {
	inletNode() *Node
	inletType() T
}

func (h SourceHandle[O]) outletNode() *Node { return h.node }

func (h SourceHandle[O]) outletType() (_ O) { return }

func (h TransformHandle[I, O]) outletNode() *Node { return h.node }

func (h TransformHandle[I, O]) outletType() (_ O) { return }

func (h TransformHandle[I, O]) inletNode() *Node { return h.node }

func (h TransformHandle[I, O]) inletType() (_ I) { return }

func (h SinkHandle[I]) inletNode() *Node { return h.node }

func (h SinkHandle[I]) inletType() (_ I) { return }

// AddSource registers a source node. An empty id derives one from the
// implementation type.
func AddSource[O any](b *Builder, id string, src Source[O], opts ...NodeOption) SourceHandle[O] {
	n := b.register(id, KindSource, nil, typeFor[O](), src, opts)
	n.source = func(ctx context.Context, run *pipeline.Context) (any, error) {
		return src.Next(ctx, run)
	}

	return SourceHandle[O]{node: n}
}

// AddTransform registers a transform node.
func AddTransform[I, O any](b *Builder, id string, tr Transform[I, O], opts ...NodeOption) TransformHandle[I, O] {
	n := b.register(id, KindTransform, typeFor[I](), typeFor[O](), tr, opts)
	n.transform = func(ctx context.Context, run *pipeline.Context, item any) Outcome {
		return tr.Process(ctx, run, item.(I)).out
	}

	return TransformHandle[I, O]{node: n}
}

// AddSink registers a sink node.
func AddSink[I any](b *Builder, id string, sink Sink[I], opts ...NodeOption) SinkHandle[I] {
	n := b.register(id, KindSink, typeFor[I](), nil, sink, opts)
	n.sink = func(ctx context.Context, run *pipeline.Context, item any) error {
		return sink.Consume(ctx, run, item.(I))
	}

	return SinkHandle[I]{node: n}
}

// Connect wires an outlet to an inlet. Type compatibility is enforced by
// the shared type parameter; dynamic wiring goes through ConnectByID.
func Connect[T any](b *Builder, from Outlet[T], to Inlet[T]) error {
	return b.connect(from.outletNode(), to.inletNode())
}

// ConnectByID wires two registered nodes, checking payload types at
// registration time rather than through the type system.
func (b *Builder) ConnectByID(fromID, toID string) error {
	from, ok := b.byID[fromID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, fromID)
	}

	to, ok := b.byID[toID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, toID)
	}

	return b.connect(from, to)
}

// Build validates the graph and returns the immutable plan. It fails with
// ErrAlreadyBuilt on any call after the first.
func (b *Builder) Build() (*Plan, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}

	b.built = true

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	if len(b.nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	if err := b.checkArity(); err != nil {
		return nil, err
	}

	if err := b.checkAcyclic(); err != nil {
		return nil, err
	}

	ordered, err := b.orderedChain()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Node, len(ordered))

	for i, n := range ordered {
		byID[n.id] = n

		if i+1 < len(ordered) {
			n.downstream = ordered[i+1]
			ordered[i+1].upstream = n
		}
	}

	return &Plan{nodes: ordered, byID: byID}, nil
}

func (b *Builder) register(id string, kind Kind, in, out reflect.Type, impl any, opts []NodeOption) *Node {
	if id == "" {
		id = b.deriveID(kind, impl)
	}

	n := &Node{
		id:      id,
		kind:    kind,
		inType:  in,
		outType: out,
		impl:    impl,
		strat:   strategy.Sequential(),
	}

	for _, opt := range opts {
		opt(n)
	}

	if b.built {
		b.errs = append(b.errs, fmt.Errorf("%w: cannot add node %s", ErrAlreadyBuilt, id))

		return n
	}

	if _, exists := b.byID[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, id))

		return n
	}

	b.byID[id] = n
	b.nodes = append(b.nodes, n)

	return n
}

func (b *Builder) connect(from, to *Node) error {
	if b.built {
		return ErrAlreadyBuilt
	}

	if from.outType == nil {
		return fmt.Errorf("%w: node %s has no output port", ErrTypeMismatch, from.id)
	}

	if to.inType == nil {
		return fmt.Errorf("%w: node %s has no input port", ErrTypeMismatch, to.id)
	}

	if from.outType != to.inType {
		return fmt.Errorf("%w: %s produces %s but %s consumes %s",
			ErrTypeMismatch, from.id, from.outType, to.id, to.inType)
	}

	if _, occupied := b.outEdge[from]; occupied {
		return fmt.Errorf("%w: output of %s", ErrPortOccupied, from.id)
	}

	if _, occupied := b.inEdge[to]; occupied {
		return fmt.Errorf("%w: input of %s", ErrPortOccupied, to.id)
	}

	b.outEdge[from] = to
	b.inEdge[to] = from

	return nil
}

// checkArity verifies every port demanded by the node kind is wired.
func (b *Builder) checkArity() error {
	for _, n := range b.nodes {
		if n.inType != nil {
			if _, ok := b.inEdge[n]; !ok {
				return fmt.Errorf("%w: %s has no upstream connection", ErrDisconnectedNode, n.id)
			}
		}

		if n.outType != nil {
			if _, ok := b.outEdge[n]; !ok {
				return fmt.Errorf("%w: %s has no downstream connection", ErrDisconnectedNode, n.id)
			}
		}
	}

	return nil
}

// checkAcyclic runs Kahn's algorithm; leftover nodes sit on a cycle.
func (b *Builder) checkAcyclic() error {
	indegree := make(map[*Node]int, len(b.nodes))

	for _, n := range b.nodes {
		if _, ok := b.inEdge[n]; ok {
			indegree[n] = 1
		}
	}

	queue := make([]*Node, 0, len(b.nodes))

	for _, n := range b.nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	visited := 0

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++

		if next, ok := b.outEdge[n]; ok {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(b.nodes) {
		return ErrCyclicGraph
	}

	return nil
}

// orderedChain walks from the single source to the single sink, requiring
// exactly one weakly-connected component.
func (b *Builder) orderedChain() ([]*Node, error) {
	var start *Node

	for _, n := range b.nodes {
		if n.kind == KindSource {
			if start != nil {
				return nil, fmt.Errorf("%w: multiple source components (%s, %s)",
					ErrDisconnectedNode, start.id, n.id)
			}

			start = n
		}
	}

	if start == nil {
		return nil, fmt.Errorf("%w: no source node", ErrDisconnectedNode)
	}

	ordered := make([]*Node, 0, len(b.nodes))
	for n := start; n != nil; n = b.outEdge[n] {
		ordered = append(ordered, n)
	}

	if len(ordered) != len(b.nodes) {
		return nil, fmt.Errorf("%w: graph has more than one component", ErrDisconnectedNode)
	}

	last := ordered[len(ordered)-1]
	if last.kind != KindSink {
		return nil, fmt.Errorf("%w: chain ends at %s, not a sink", ErrDisconnectedNode, last.id)
	}

	return ordered, nil
}

func (b *Builder) deriveID(kind Kind, impl any) string {
	name := strings.ToLower(reflect.Indirect(reflect.ValueOf(impl)).Type().Name())
	if name == "" {
		name = string(kind)
	}

	id := name
	for i := 2; ; i++ {
		if _, exists := b.byID[id]; !exists {
			return id
		}

		id = fmt.Sprintf("%s-%d", name, i)
	}
}

func typeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
