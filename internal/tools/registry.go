package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/planner"
	"github.com/ppiankov/cogito/internal/resolve"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// executions counts tool runs by tool and result
	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_tool_executions_total",
		Help: "Tool executions by tool and result",
	}, []string{"tool", "result"})

	// executionDuration tracks tool latency
	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogito_tool_execution_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"tool"})
)

// Tool is a single capability the executor can invoke
type Tool interface {
	Name() string
	Description() string

	// Match reports whether the tool applies to a turn and with which params
	Match(intent model.Intent, input string) (map[string]any, bool)

	Run(ctx context.Context, params map[string]any, rctx *model.TurnContext) (any, error)
}

// Deps are the collaborators the built-in tools are made from. Nil fields
// leave the matching tool unregistered.
type Deps struct {
	Canon   *canon.Store
	Memory  resolve.Resolver
	Fetcher *Fetcher
}

// Registry holds tools in registration order. It implements the pipeline's
// tool runner and the planner's tool selector.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string
	deps     Deps
	builtins sync.Once
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Call EnsureBuiltins to add the
// built-in tools.
func NewRegistry(deps Deps, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		deps:   deps,
		logger: logger,
	}
}

// EnsureBuiltins registers the built-in tools. Repeated calls are no-ops.
func (r *Registry) EnsureBuiltins() *Registry {
	r.builtins.Do(func() {
		// Selection order: explicit URLs, then memory, then canon
		if r.deps.Fetcher != nil {
			r.mustRegister(NewWebFetch(r.deps.Fetcher))
		}
		if r.deps.Memory != nil {
			r.mustRegister(NewMemoryRecall(r.deps.Memory))
		}
		if r.deps.Canon != nil {
			r.mustRegister(NewCanonLookup(r.deps.Canon))
		}
	})
	return r
}

func (r *Registry) mustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		r.logger.Warn("builtin tool not registered", "tool", t.Name(), "error", err)
	}
}

// Register adds a tool; names are unique
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists tools in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Select returns the first registered tool that matches the turn
func (r *Registry) Select(intent model.Intent, input string) (planner.ToolChoice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if params, ok := r.tools[name].Match(intent, input); ok {
			return planner.ToolChoice{Name: name, Params: params}, true
		}
	}
	return planner.ToolChoice{}, false
}

// Execute runs one tool call
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, rctx *model.TurnContext) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		executions.WithLabelValues(name, "unknown").Inc()
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	ctx, span := otel.Tracer("cogito.tools").Start(ctx, "tool."+name,
		trace.WithAttributes(attribute.String("tool", name)))
	defer span.End()

	start := time.Now()
	out, err := t.Run(ctx, params, rctx)
	executionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		executions.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	executions.WithLabelValues(name, "ok").Inc()
	return out, nil
}

// stringParam reads a required string parameter
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing %q parameter", key)
	}
	return v, nil
}
