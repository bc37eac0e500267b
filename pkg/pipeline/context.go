// Package pipeline carries the per-run mutable state that flows into every
// node invocation: parameter namespaces, the cancellation signal, logging,
// and the resilience and observability policies.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/fluxor-io/fluxor/pkg/resilience"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Well-known context item keys used by the composite mechanism.
const (
	CompositeInputKey  = "fluxor.composite.input"
	CompositeOutputKey = "fluxor.composite.output"
)

// Inheritance controls which namespaces a composite child context
// shallow-copies from its parent at invocation time.
type Inheritance struct {
	Parameters bool
	Items      bool
	Properties bool
}

// Isolated is the all-false preset: the child starts empty.
func Isolated() Inheritance {
	return Inheritance{}
}

// InheritAll is the all-true preset.
func InheritAll() Inheritance {
	return Inheritance{Parameters: true, Items: true, Properties: true}
}

// LoggerFactory produces a node-scoped logger.
type LoggerFactory func(nodeID string) *slog.Logger

// Context is the per-run bag of state. It is exclusively owned by the run
// (or composite invocation) that created it and is discarded when that run
// ends.
type Context struct {
	id string

	parameters *Namespace
	items      *Namespace
	properties *Namespace
	shared     *Shared

	done       chan struct{}
	cancelOnce sync.Once

	// base is the caller-supplied logger without run attributes; child
	// contexts derive their run-annotated logger from it.
	base          *slog.Logger
	logger        *slog.Logger
	loggerFactory LoggerFactory
	tracer        trace.Tracer

	policy     resilience.Policy
	handler    resilience.ErrorHandler
	observer   observer.Observer
	lineage    observer.LineageHook
	deadLetter deadletter.Sink
}

// Option configures a Context at creation time.
type Option func(*Context)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

func WithLoggerFactory(factory LoggerFactory) Option {
	return func(c *Context) { c.loggerFactory = factory }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Context) { c.tracer = tracer }
}

func WithPolicy(policy resilience.Policy) Option {
	return func(c *Context) { c.policy = policy }
}

func WithErrorHandler(handler resilience.ErrorHandler) Option {
	return func(c *Context) { c.handler = handler }
}

func WithObserver(obs observer.Observer) Option {
	return func(c *Context) { c.observer = obs }
}

func WithLineageHook(hook observer.LineageHook) Option {
	return func(c *Context) { c.lineage = hook }
}

func WithDeadLetter(sink deadletter.Sink) Option {
	return func(c *Context) { c.deadLetter = sink }
}

// WithParameters seeds the Parameters namespace.
func WithParameters(values map[string]any) Option {
	return func(c *Context) {
		for key, value := range values {
			c.parameters.Set(key, value)
		}
	}
}

// New creates a run context with generated id and empty namespaces.
func New(opts ...Option) *Context {
	c := &Context{
		id:         generateRunID(),
		parameters: newNamespace(),
		items:      newNamespace(),
		properties: newNamespace(),
		shared:     newShared(),
		done:       make(chan struct{}),
		logger:     slog.Default(),
		policy:     resilience.DefaultPolicy(),
		handler:    resilience.DefaultHandler(),
		observer:   observer.Noop{},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.base = c.logger
	c.logger = c.base.With("run_id", c.id)

	return c
}

// RunID returns the run's unique identifier.
func (c *Context) RunID() string {
	return c.id
}

func (c *Context) Parameters() *Namespace { return c.parameters }

func (c *Context) Items() *Namespace { return c.items }

func (c *Context) Properties() *Namespace { return c.properties }

// Shared returns the synchronized cross-worker state accessor.
func (c *Context) Shared() *Shared { return c.shared }

// Cancel requests the run to stop. It is safe to call multiple times and
// from any goroutine.
func (c *Context) Cancel() {
	c.cancelOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed when Cancel is called.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Logger returns the run-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// NodeLogger returns a logger scoped to one node, going through the
// caller-supplied factory when one was provided.
func (c *Context) NodeLogger(nodeID string) *slog.Logger {
	if c.loggerFactory != nil {
		return c.loggerFactory(nodeID)
	}

	return c.logger.With("node_id", nodeID)
}

// Tracer returns the run tracer, never nil.
func (c *Context) Tracer() trace.Tracer {
	if c.tracer == nil {
		return noop.NewTracerProvider().Tracer("fluxor")
	}

	return c.tracer
}

func (c *Context) Policy() resilience.Policy { return c.policy }

func (c *Context) ErrorHandler() resilience.ErrorHandler { return c.handler }

func (c *Context) Observer() observer.Observer { return c.observer }

func (c *Context) DeadLetter() deadletter.Sink { return c.deadLetter }

// Lineage invokes the lineage hook if one is attached.
func (c *Context) Lineage(nodeID string, outcome observer.Outcome, cardinality int) {
	if c.lineage != nil {
		c.lineage(nodeID, outcome, cardinality)
	}
}

// Child creates the context for one composite invocation. Namespaces are
// shallow-copied from the parent only where the matching inheritance flag is
// set; everything else (policies, logging, observability) is carried over.
// The child has its own cancellation signal and shared state and is never
// visible to sibling invocations.
func (c *Context) Child(inherit Inheritance) *Context {
	child := &Context{
		id:            generateRunID(),
		parameters:    newNamespace(),
		items:         newNamespace(),
		properties:    newNamespace(),
		shared:        newShared(),
		done:          make(chan struct{}),
		base:          c.base,
		loggerFactory: c.loggerFactory,
		tracer:        c.tracer,
		policy:        c.policy,
		handler:       c.handler,
		observer:      c.observer,
		lineage:       c.lineage,
		deadLetter:    c.deadLetter,
	}

	if inherit.Parameters {
		child.parameters = c.parameters.clone()
	}

	if inherit.Items {
		child.items = c.items.clone()
	}

	if inherit.Properties {
		child.properties = c.properties.clone()
	}

	child.logger = c.base.With("run_id", child.id)

	return child
}

func generateRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String()[:8])
}
