package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/finengine/internal/finance"
	"github.com/MrWong99/finengine/internal/finance/args"
	"github.com/MrWong99/finengine/internal/observe"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a catalogue
// name to be offered as a correction of an unknown tool name.
const suggestThreshold = 0.85

// unknownToolLabel replaces caller-chosen names in metric attributes.
const unknownToolLabel = "_unknown"

// Envelope is the transport-neutral outcome of one invocation.
type Envelope struct {
	OK     bool           `json:"ok"`
	Tool   string         `json:"tool"`
	CallID string         `json:"call_id"`
	Result any            `json:"result,omitempty"`
	Error  *finance.Error `json:"error,omitempty"`
}

// Selection narrows the active catalogue. An empty Enabled list keeps every
// tool; Disabled is applied afterwards.
type Selection struct {
	Enabled  []string
	Disabled []string
}

// Option configures a [Router].
type Option func(*Router)

// WithMetrics records per-call OpenTelemetry metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithStatsWindow sets how many recent calls per tool feed [Router.Stats].
func WithStatsWindow(n int) Option {
	return func(r *Router) { r.windowSize = n }
}

// Router dispatches invocations to the catalogue. The definition table is
// fixed at construction; only the active selection can change afterwards.
// All methods are safe for concurrent use.
type Router struct {
	defs  map[string]Definition
	order []string

	active atomic.Pointer[[]string]

	metrics    *observe.Metrics
	windowSize int
	stats      map[string]*window

	inFlight atomic.Int64
}

// NewRouter builds a router over defs, all of them active. It panics on an
// empty or duplicate tool name.
func NewRouter(defs []Definition, opts ...Option) *Router {
	r := &Router{defs: make(map[string]Definition, len(defs))}
	for _, o := range opts {
		o(r)
	}
	r.stats = make(map[string]*window, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			panic("dispatch: tool with empty name")
		}
		if _, dup := r.defs[d.Name]; dup {
			panic(fmt.Sprintf("dispatch: duplicate tool %q", d.Name))
		}
		if d.Call == nil {
			panic(fmt.Sprintf("dispatch: tool %q has no call function", d.Name))
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
		r.stats[d.Name] = newWindow(r.windowSize)
	}
	all := slices.Clone(r.order)
	r.active.Store(&all)
	return r
}

// Select replaces the active selection and returns the names in s that are
// not in the catalogue.
func (r *Router) Select(s Selection) (unknown []string) {
	for _, n := range slices.Concat(s.Enabled, s.Disabled) {
		if _, ok := r.defs[n]; !ok && !slices.Contains(unknown, n) {
			unknown = append(unknown, n)
		}
	}
	active := make([]string, 0, len(r.order))
	for _, n := range r.order {
		if len(s.Enabled) > 0 && !slices.Contains(s.Enabled, n) {
			continue
		}
		if slices.Contains(s.Disabled, n) {
			continue
		}
		active = append(active, n)
	}
	r.active.Store(&active)
	return unknown
}

// Active returns the active definitions in catalogue order.
func (r *Router) Active() []Definition {
	names := *r.active.Load()
	out := make([]Definition, len(names))
	for i, n := range names {
		out[i] = r.defs[n]
	}
	return out
}

// Definitions returns every definition in catalogue order, active or not.
func (r *Router) Definitions() []Definition {
	out := make([]Definition, len(r.order))
	for i, n := range r.order {
		out[i] = r.defs[n]
	}
	return out
}

// Lookup returns the active definition called name.
func (r *Router) Lookup(name string) (Definition, bool) {
	if !slices.Contains(*r.active.Load(), name) {
		return Definition{}, false
	}
	return r.defs[name], true
}

// InFlight reports the number of invocations currently running.
func (r *Router) InFlight() int64 { return r.inFlight.Load() }

// Idle reports whether no invocation is running.
func (r *Router) Idle() bool { return r.inFlight.Load() == 0 }

// Stats returns recent latency and error figures for every tool in
// catalogue order.
func (r *Router) Stats() []ToolStats {
	out := make([]ToolStats, len(r.order))
	for i, n := range r.order {
		out[i] = r.stats[n].snapshot(n)
	}
	return out
}

// Dispatch validates raw against the named tool and runs it. Every error is
// a *finance.Error; no partial result accompanies it.
func (r *Router) Dispatch(ctx context.Context, name string, raw []byte) (any, error) {
	def, ok := r.Lookup(name)
	if !ok {
		err := r.unknownTool(name)
		if r.metrics != nil {
			r.metrics.RecordToolCall(ctx, unknownToolLabel, string(finance.KindUnknownTool), 0)
		}
		return nil, err
	}

	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	if r.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("tool", name))
		r.metrics.ActiveCalls.Add(ctx, 1, attrs)
		defer r.metrics.ActiveCalls.Add(context.WithoutCancel(ctx), -1, attrs)
	}

	ctx, span := observe.StartSpan(ctx, "dispatch."+name,
		trace.WithAttributes(attribute.String("tool", name)))
	start := time.Now()

	result, err := r.run(ctx, def, raw)

	elapsed := time.Since(start)
	var kind string
	if err != nil {
		kind = string(err.(*finance.Error).Kind)
	}
	r.stats[name].record(elapsed, err != nil)
	if r.metrics != nil {
		r.metrics.RecordToolCall(context.WithoutCancel(ctx), name, kind, elapsed.Seconds())
	}
	observe.EndSpan(span, err)

	log := observe.Logger(ctx)
	if err != nil {
		log.LogAttrs(ctx, slog.LevelDebug, "tool call failed",
			slog.String("tool", name),
			slog.String("kind", kind),
			slog.Duration("elapsed", elapsed),
		)
		return nil, err
	}
	log.LogAttrs(ctx, slog.LevelDebug, "tool call",
		slog.String("tool", name),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (r *Router) run(ctx context.Context, def Definition, raw []byte) (any, error) {
	bag, err := args.Parse(raw)
	if err != nil {
		return nil, asToolError(ctx, def.Name, err)
	}
	if err := args.Validate(def.Fields, bag); err != nil {
		return nil, asToolError(ctx, def.Name, err)
	}
	res, err := def.Call(ctx, bag)
	if err != nil {
		return nil, asToolError(ctx, def.Name, err)
	}
	// Results travel as JSON, which has no Infinity or NaN.
	if _, err := json.Marshal(res); err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return nil, finance.Domainf("result is not a finite number (%s)", unsupported.Str)
		}
		return nil, asToolError(ctx, def.Name, err)
	}
	return res, nil
}

// Invoke runs [Router.Dispatch] and wraps the outcome in an [Envelope] with
// a fresh call ID.
func (r *Router) Invoke(ctx context.Context, name string, raw []byte) Envelope {
	env := Envelope{Tool: name, CallID: uuid.NewString()}
	res, err := r.Dispatch(ctx, name, raw)
	if err != nil {
		env.Error = err.(*finance.Error)
		return env
	}
	env.OK = true
	env.Result = res
	return env
}

// Suggest returns the active tool name most similar to name, or "" when
// none is close enough.
func (r *Router) Suggest(name string) string {
	probe := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "calculate_")
	if probe == "" {
		return ""
	}
	var (
		best  string
		score float64
	)
	for _, n := range *r.active.Load() {
		if s := matchr.JaroWinkler(probe, n, false); s > score {
			best, score = n, s
		}
	}
	if score < suggestThreshold {
		return ""
	}
	return best
}

func (r *Router) unknownTool(name string) *finance.Error {
	msg := fmt.Sprintf("unknown tool %q", finance.Sanitize(name))
	if s := r.Suggest(name); s != "" {
		msg += fmt.Sprintf("; did you mean %q?", s)
	}
	return &finance.Error{Kind: finance.KindUnknownTool, Message: msg}
}

// asToolError normalises err to a *finance.Error. Errors that did not come
// from validation or a calculator are collaborator failures.
func asToolError(ctx context.Context, tool string, err error) *finance.Error {
	var te *finance.Error
	if errors.As(err, &te) {
		return te
	}
	observe.Logger(ctx).LogAttrs(ctx, slog.LevelWarn, "tool collaborator failed",
		slog.String("tool", tool),
		slog.String("error", err.Error()),
	)
	return &finance.Error{Kind: finance.KindRetriever, Message: "collaborator failed: " + finance.Sanitize(err.Error())}
}
