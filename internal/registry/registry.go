package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"timeline-orchestrator/internal/timeline"
)

// Registry coordinates segment registrations for one session.
//
// It is safe for concurrent use. Create one per session with New and release
// it with Close.
type Registry struct {
	tl     Timeline
	cfg    config
	labels *labelTable

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	expected   int
	settled    int
	closed     bool
	fired      bool
	done       chan struct{}
	onReady    []func()
	seen       map[string]int
	placements []Placement
	failures   []error
}

// New returns a registry scheduling into tl.
func New(tl Timeline, opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		tl:     tl,
		cfg:    cfg,
		labels: newLabelTable(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		seen:   make(map[string]int),
	}
}

// Timeline returns the master timeline the registry schedules into.
func (r *Registry) Timeline() Timeline {
	return r.tl
}

// Register submits a segment. The expected count is incremented before
// Register returns; resolution continues in the background.
func (r *Registry) Register(req Request) error {
	if req.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRequest)
	}
	if req.Build == nil {
		return fmt.Errorf("%w: segment %q has no build function", ErrInvalidRequest, req.ID)
	}
	req = cloneRequest(req)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.expected++
	r.seen[req.ID]++
	duplicate := r.seen[req.ID] > 1
	r.wg.Add(1)
	r.mu.Unlock()

	if duplicate {
		r.cfg.logger.Warn("segment registered more than once",
			slog.String("segment", req.ID))
	}
	r.cfg.recorder.SegmentSubmitted()

	go func() {
		defer r.wg.Done()
		r.settle(r.resolve(req))
	}()
	return nil
}

// Ready reports whether every submitted registration has settled.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected > 0 && r.settled == r.expected
}

// Done is closed the first time the registry becomes ready, after auto-play
// and before the OnReady callbacks run.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the registry first becomes ready or ctx is done. It
// returns the strict-mode failures, if any.
func (r *Registry) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnReady registers fn to run once when the registry first becomes ready.
// If that already happened, fn runs immediately. Callbacks run on the
// goroutine of the last registration to settle, after Done is closed.
func (r *Registry) OnReady(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if !r.fired {
		r.onReady = append(r.onReady, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

// Ledger returns the expected and settled registration counts.
func (r *Registry) Ledger() (expected, settled int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected, r.settled
}

// Label returns the resolved global time of a qualified label.
func (r *Registry) Label(name string) (float64, bool) {
	return r.labels.lookup(name)
}

// Labels returns a copy of the label table.
func (r *Registry) Labels() map[string]float64 {
	return r.labels.snapshot()
}

// Placements returns the settled registrations in settlement order.
func (r *Registry) Placements() []Placement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.placements)
}

// Err returns the unresolved dependencies recorded in strict mode.
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.failures...)
}

// Close rejects further registrations, cancels pending dependency waits and
// blocks until every in-flight registration has settled. Readiness reached
// during Close does not start playback.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) resolve(req Request) Placement {
	started := time.Now()
	startAt, err := r.awaitDependencies(req)
	waited := time.Since(started)

	var p Placement
	switch {
	case err == nil:
		p = r.place(req.ID, OutcomeResolved, startAt, req.Build, req.Labels)
	case errors.Is(err, context.Canceled):
		p = Placement{ID: req.ID, Outcome: OutcomeCanceled, Err: err}
	default:
		p = r.fallBack(req, err)
	}
	p.Waited = waited
	return p
}

// awaitDependencies waits for every dependency concurrently and returns the
// latest of their global times.
func (r *Registry) awaitDependencies(req Request) (float64, error) {
	if len(req.DependsOn) == 0 {
		return 0, nil
	}
	timeout := r.cfg.dependencyTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	times := make([]float64, len(req.DependsOn))
	missed := make([]bool, len(req.DependsOn))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range req.DependsOn {
		g.Go(func() error {
			at, err := r.labels.wait(gctx, name)
			if err != nil {
				missed[i] = true
				return err
			}
			times[i] = at
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if r.ctx.Err() != nil {
			return 0, r.ctx.Err()
		}
		var missing []string
		for i, name := range req.DependsOn {
			if missed[i] {
				missing = append(missing, name)
			}
		}
		return 0, &UnresolvedError{Segment: req.ID, Missing: missing}
	}
	return slices.Max(times), nil
}

func (r *Registry) fallBack(req Request, cause error) Placement {
	dropped := Placement{ID: req.ID, Outcome: OutcomeDropped, Err: cause}
	r.cfg.logger.Warn("segment dependencies unresolved",
		slog.String("segment", req.ID),
		slog.String("error", cause.Error()))

	if r.cfg.strict {
		r.mu.Lock()
		r.failures = append(r.failures, cause)
		r.mu.Unlock()
		return dropped
	}
	if req.OnDependencyFailure == nil {
		r.cfg.logger.Info("segment dropped without fallback", slog.String("segment", req.ID))
		return dropped
	}

	fb, err := invokeFallback(req)
	if err != nil {
		r.cfg.logger.Error("fallback failed", slog.String("segment", req.ID), slog.String("error", err.Error()))
		dropped.Err = errors.Join(cause, err)
		return dropped
	}

	var p Placement
	switch v := fb.(type) {
	case BareContent:
		if v.Content == nil {
			break
		}
		p = r.place(req.ID, OutcomeFallback, 0, constant(v.Content), nil)
	case StructuredFallback:
		if v.Content == nil {
			break
		}
		p = r.place(req.ID, OutcomeFallback, v.StartAt, constant(v.Content), v.Labels)
	case NoFallback, nil:
		r.cfg.logger.Info("fallback inserted nothing", slog.String("segment", req.ID))
		return dropped
	}
	if p.ID == "" {
		r.cfg.logger.Warn("fallback result not recognised", slog.String("segment", req.ID),
			slog.String("type", fmt.Sprintf("%T", fb)))
		return dropped
	}
	if p.Err == nil {
		p.Err = cause
	}
	return p
}

// place builds the content, inserts it at startAt and publishes its labels.
func (r *Registry) place(id string, outcome Outcome, startAt float64, build func() timeline.Content, specs map[string]LabelSpec) Placement {
	content, locals, err := materialize(id, build, specs)
	if err != nil {
		r.cfg.logger.Error("segment content failed", slog.String("segment", id), slog.String("error", err.Error()))
		return Placement{ID: id, Outcome: OutcomeDropped, Err: err}
	}

	r.tl.AddSegment(content, startAt)

	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)
	published := make(map[string]float64, len(names))
	for _, name := range names {
		key := id + "." + name
		at := startAt + locals[name]
		if !r.labels.publish(key, at) {
			r.cfg.logger.Warn("label already published, keeping first value", slog.String("label", key))
			continue
		}
		r.tl.AddGlobalMarker(key, at)
		published[key] = at
	}

	return Placement{
		ID:       id,
		Outcome:  outcome,
		StartAt:  startAt,
		Duration: content.Duration(),
		Inserted: true,
		Labels:   published,
	}
}

func (r *Registry) settle(p Placement) {
	p.SettledAt = time.Now().UTC()

	r.mu.Lock()
	r.settled++
	r.placements = append(r.placements, p)
	fire := !r.fired && r.settled == r.expected
	var callbacks []func()
	if fire {
		r.fired = true
		callbacks = r.onReady
		r.onReady = nil
	}
	expected, settled := r.expected, r.settled
	failed := len(r.failures) > 0
	closed := r.closed
	r.mu.Unlock()

	r.cfg.recorder.SegmentSettled(string(p.Outcome), p.Waited)
	r.cfg.logger.Debug("segment settled",
		slog.String("segment", p.ID),
		slog.String("outcome", string(p.Outcome)),
		slog.Float64("start_at", p.StartAt),
		slog.Int("settled", settled),
		slog.Int("expected", expected))
	if !fire {
		return
	}

	r.cfg.logger.Info("timeline ready", slog.Int("segments", expected))
	r.cfg.recorder.SessionReady()
	if r.cfg.autoPlay && !failed && !closed {
		r.tl.Play()
	}
	close(r.done)
	for _, fn := range callbacks {
		fn()
	}
}

// materialize runs the segment-supplied build and label extractors. Panics
// are returned as errors so one segment cannot take down the session.
func materialize(id string, build func() timeline.Content, specs map[string]LabelSpec) (content timeline.Content, locals map[string]float64, err error) {
	stage := "build"
	defer func() {
		if v := recover(); v != nil {
			content, locals = nil, nil
			err = &panicError{segment: id, stage: stage, value: v}
		}
	}()
	content = build()
	if content == nil {
		return nil, nil, fmt.Errorf("segment %q: build returned no content", id)
	}
	locals = make(map[string]float64, len(specs))
	for name, spec := range specs {
		stage = "label " + name
		locals[name] = spec.localTime(content)
	}
	return content, locals, nil
}

func invokeFallback(req Request) (fb Fallback, err error) {
	defer func() {
		if v := recover(); v != nil {
			fb = nil
			err = &panicError{segment: req.ID, stage: "fallback", value: v}
		}
	}()
	return req.OnDependencyFailure(req.ID, slices.Clone(req.DependsOn)), nil
}

func constant(c timeline.Content) func() timeline.Content {
	return func() timeline.Content { return c }
}

func cloneRequest(req Request) Request {
	req.DependsOn = slices.Clone(req.DependsOn)
	if req.Labels != nil {
		labels := make(map[string]LabelSpec, len(req.Labels))
		for k, v := range req.Labels {
			labels[k] = v
		}
		req.Labels = labels
	}
	return req
}
