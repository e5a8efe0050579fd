package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hydrosignal/waternet-simulator/internal/logging"
	"github.com/hydrosignal/waternet-simulator/internal/observability"
	"github.com/hydrosignal/waternet-simulator/scada"
	"github.com/hydrosignal/waternet-simulator/timectrl"
)

var (
	ErrClosed    = errors.New("engine is closed")
	ErrLifecycle = errors.New("engine lifecycle violation")
	ErrAborted   = errors.New("scenario run aborted")
)

// State tracks the engine lifecycle:
// Uninitialized → Prepared → Stepping → Finished|Aborted → Closed.
type State int

const (
	StateUninitialized State = iota
	StatePrepared
	StateStepping
	StateFinished
	StateAborted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrepared:
		return "prepared"
	case StateStepping:
		return "stepping"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine orchestrates one scenario run: uncertainty application, event
// and control initialization, and the stepwise or bulk simulation loop
// that produces SCADA data. The engine owns its solver handle
// exclusively from Prepare until Close.
type Engine struct {
	cfg     ScenarioConfig
	solver  Solver
	clock   timectrl.ReportClock
	sensors scada.SensorConfig

	state      State
	solverOpen bool
	runID      string

	log       logging.Logger
	metrics   *observability.ScenarioCollector
	tracer    trace.Tracer
	listeners []func(*scada.Data)
}

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger; defaults to a noop logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics attaches a Prometheus collector for run/step metrics.
func WithMetrics(c *observability.ScenarioCollector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracer overrides the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine validates the scenario configuration and binds it to a
// solver. Configuration errors (bad step sizes, missing network) surface
// here, not at step time.
func NewEngine(cfg ScenarioConfig, solver Solver, opts ...Option) (*Engine, error) {
	if solver == nil {
		return nil, fmt.Errorf("%w: nil solver", ErrBadScenario)
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("%w: nil network", ErrBadScenario)
	}
	cfg.General = cfg.General.withDefaults()
	if err := cfg.General.validate(); err != nil {
		return nil, err
	}
	clock, err := timectrl.NewReportClock(cfg.General.HydraulicStep, cfg.General.ReportingStep)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadScenario, err)
	}
	if cfg.Sensors != nil {
		if err := cfg.Sensors.Validate(cfg.Network); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadScenario, err)
		}
	}

	e := &Engine{
		cfg:    cfg.copyForRun(),
		solver: solver,
		clock:  clock,
		runID:  uuid.NewString(),
		log:    logging.Noop(),
		tracer: otel.Tracer("waternet-simulator/core"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logging.String("run_id", e.runID))
	return e, nil
}

// RunID returns the unique identifier of this engine instance.
func (e *Engine) RunID() string { return e.runID }

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Sensors returns the effective sensor configuration. Before Prepare it
// reflects the scenario config; a nil scenario config is defaulted from
// topology during Prepare.
func (e *Engine) Sensors() scada.SensorConfig { return e.sensors }

// SetSensorConfig replaces the sensor configuration wholesale. Only
// legal before Prepare; mid-run replacement would desynchronise already
// collected fragments.
func (e *Engine) SetSensorConfig(sensors scada.SensorConfig) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: cannot replace sensor config in state %s", ErrLifecycle, e.state)
	}
	if err := sensors.Validate(e.cfg.Network); err != nil {
		return fmt.Errorf("%w: %v", ErrBadScenario, err)
	}
	e.cfg.Sensors = &sensors
	return nil
}

// RegisterFragmentListener registers a callback invoked with the
// aggregate fragment after every reported step, before control modules
// run. Only legal before Prepare.
func (e *Engine) RegisterFragmentListener(fn func(*scada.Data)) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: cannot register listener in state %s", ErrLifecycle, e.state)
	}
	if fn != nil {
		e.listeners = append(e.listeners, fn)
	}
	return nil
}

// Prepare loads the network into the solver, defaults the sensor
// configuration from topology if none was supplied, applies general
// parameters and uncertainty exactly once, and initialises every system
// event and control module. On failure the solver is released.
func (e *Engine) Prepare(ctx context.Context) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: prepare in state %s", ErrLifecycle, e.state)
	}

	if err := e.solver.Load(e.cfg.Network); err != nil {
		return e.failPrepare(ctx, fmt.Errorf("load network: %w", err))
	}
	e.solverOpen = true

	if e.cfg.Sensors != nil {
		e.sensors = *e.cfg.Sensors
	} else {
		e.sensors = scada.DefaultSensorConfig(e.cfg.Network)
	}
	if err := e.sensors.Validate(e.cfg.Network); err != nil {
		return e.failPrepare(ctx, err)
	}

	if err := e.solver.Configure(e.cfg.General); err != nil {
		return e.failPrepare(ctx, fmt.Errorf("configure solver: %w", err))
	}

	// Ground truth for the whole run is fixed here; uncertainty is never
	// re-rolled mid-run.
	if err := e.cfg.Uncertainty.Apply(e.solver); err != nil {
		return e.failPrepare(ctx, err)
	}

	for i, ev := range e.cfg.SystemEvents {
		if err := ev.Init(e.solver); err != nil {
			return e.failPrepare(ctx, fmt.Errorf("init system event %d: %w", i, err))
		}
	}
	for i, c := range e.cfg.Controls {
		if err := c.Init(e.solver); err != nil {
			return e.failPrepare(ctx, fmt.Errorf("init control module %d: %w", i, err))
		}
	}

	e.state = StatePrepared
	e.log.Info(ctx, "scenario prepared",
		logging.Int("system_events", len(e.cfg.SystemEvents)),
		logging.Int("sensor_events", len(e.cfg.SensorEvents)),
		logging.Int("controls", len(e.cfg.Controls)),
		logging.Any("duration_s", e.cfg.General.Duration),
	)
	return nil
}

func (e *Engine) failPrepare(ctx context.Context, err error) error {
	e.log.Error(ctx, "scenario preparation failed", logging.String("error", err.Error()))
	e.releaseSolver(ctx)
	e.state = StateClosed
	return err
}

// RunOptions tweak how a run executes.
type RunOptions struct {
	// HydraulicExport, when set, receives one solver-state line per
	// internal sub-step. Setting it forces the slow path even when no
	// events or controls are configured, because a bulk solve cannot
	// snapshot intermediate solver state.
	HydraulicExport io.Writer
}

// Run executes the whole scenario and returns the assembled SCADA data.
// Cancelling the context aborts the run; the solver is always released
// before the error surfaces.
func (e *Engine) Run(ctx context.Context) (*scada.Data, error) {
	return e.RunWithOptions(ctx, RunOptions{})
}

// RunWithOptions is Run with explicit options.
func (e *Engine) RunWithOptions(ctx context.Context, opts RunOptions) (*scada.Data, error) {
	if e.state == StateUninitialized {
		if err := e.Prepare(ctx); err != nil {
			return nil, err
		}
	}
	if e.state != StatePrepared {
		return nil, e.lifecycleErr("run")
	}

	ctx, span := e.tracer.Start(ctx, "scenario.run",
		trace.WithAttributes(attribute.String("run.id", e.runID)))
	defer span.End()

	if e.fastPathEligible(opts) {
		return e.runBulk(ctx)
	}
	return e.runStepwise(ctx, opts)
}

// fastPathEligible reports whether a single bulk solve can produce the
// run: nothing may need per-step interleaving.
func (e *Engine) fastPathEligible(opts RunOptions) bool {
	return len(e.cfg.SystemEvents) == 0 &&
		len(e.cfg.Controls) == 0 &&
		len(e.listeners) == 0 &&
		opts.HydraulicExport == nil
}

func (e *Engine) runBulk(ctx context.Context) (*scada.Data, error) {
	e.metrics.RecordRunStarted("bulk")
	e.metrics.RunBegan()
	defer e.metrics.RunEnded()

	frames, err := e.solver.Solve(e.sensors, e.clock.ReportStep)
	if err != nil {
		e.abort(ctx)
		e.metrics.RecordRunCompleted("failed")
		return nil, fmt.Errorf("bulk solve: %w", err)
	}

	data := scada.NewData(e.sensors, e.cfg.SensorEvents, e.cfg.Noise)
	for _, f := range frames {
		if err := data.Append(f); err != nil {
			e.abort(ctx)
			e.metrics.RecordRunCompleted("failed")
			return nil, err
		}
	}

	e.state = StateFinished
	e.metrics.RecordRunCompleted("finished")
	e.log.Info(ctx, "scenario finished", logging.String("path", "bulk"),
		logging.Int("reported_steps", data.Len()))
	return data, nil
}

func (e *Engine) runStepwise(ctx context.Context, opts RunOptions) (*scada.Data, error) {
	st, err := e.Start(ctx, opts)
	if err != nil {
		return nil, err
	}

	result := scada.NewData(e.sensors, e.cfg.SensorEvents, e.cfg.Noise)
	for {
		frag, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := result.Join(frag); err != nil {
			e.abort(ctx)
			e.metrics.RecordRunCompleted("failed")
			e.metrics.RunEnded()
			return nil, err
		}
	}

	e.log.Info(ctx, "scenario finished", logging.String("path", "stepwise"),
		logging.Int("reported_steps", result.Len()))
	return result, nil
}

// Start transitions the engine into Stepping and hands back the
// externally-driven Stepper. Callers that want full control over
// suspension and abort use this instead of Run.
func (e *Engine) Start(ctx context.Context, opts RunOptions) (*Stepper, error) {
	if e.state == StateUninitialized {
		if err := e.Prepare(ctx); err != nil {
			return nil, err
		}
	}
	if e.state != StatePrepared {
		return nil, e.lifecycleErr("start stepping")
	}
	e.state = StateStepping
	e.metrics.RecordRunStarted("stepwise")
	e.metrics.RunBegan()
	return &Stepper{engine: e, export: opts.HydraulicExport}, nil
}

// Close releases the solver handle; the engine is inert afterwards.
// Closing twice is harmless.
func (e *Engine) Close() error {
	if e.state == StateClosed {
		return nil
	}
	e.releaseSolver(context.Background())
	e.state = StateClosed
	return nil
}

func (e *Engine) lifecycleErr(op string) error {
	if e.state == StateClosed {
		return fmt.Errorf("%w: cannot %s", ErrClosed, op)
	}
	return fmt.Errorf("%w: cannot %s in state %s", ErrLifecycle, op, e.state)
}

// abort releases the solver and parks the engine in Aborted. Safe to
// call more than once.
func (e *Engine) abort(ctx context.Context) {
	e.releaseSolver(ctx)
	if e.state != StateClosed {
		e.state = StateAborted
	}
}

func (e *Engine) releaseSolver(ctx context.Context) {
	if !e.solverOpen {
		return
	}
	e.solverOpen = false
	if err := e.solver.Close(); err != nil {
		e.log.Warn(ctx, "solver close failed", logging.String("error", err.Error()))
	}
}

// Stepper drives the slow-path loop one reported step at a time. Each
// Next call advances internal sub-steps until the next reporting
// boundary and returns that step's fragment; abort is checked once per
// sub-step, via either the context or Abort.
type Stepper struct {
	engine *Engine
	export io.Writer

	upcoming     int64 // time the next sub-step will land on
	abortRequest bool
	done         bool
}

// Abort requests cooperative cancellation; it is honoured at the next
// sub-step boundary.
func (s *Stepper) Abort() { s.abortRequest = true }

// Next advances to the next reported step and returns its fragment.
// It returns io.EOF once the run has finished, ErrAborted after Abort,
// and the context error after cancellation. On any failure the solver
// has already been released.
func (s *Stepper) Next(ctx context.Context) (*scada.Data, error) {
	e := s.engine
	if s.done {
		if e.state == StateFinished {
			return nil, io.EOF
		}
		return nil, e.lifecycleErr("step")
	}
	if e.state != StateStepping {
		return nil, e.lifecycleErr("step")
	}

	frag := scada.NewData(e.sensors, e.cfg.SensorEvents, e.cfg.Noise)
	for {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, err, "aborted")
		}
		if s.abortRequest {
			return s.fail(ctx, ErrAborted, "aborted")
		}

		now := s.upcoming
		if e.clock.Aligned(now) {
			if err := s.applySystemEvents(now); err != nil {
				return s.fail(ctx, err, "failed")
			}
		}

		stepStart := time.Now()
		elapsed, err := e.solver.AdvanceOneStep()
		if err != nil {
			return s.fail(ctx, fmt.Errorf("advance at t=%d: %w", now, err), "failed")
		}
		e.metrics.RecordStep(time.Since(stepStart).Seconds())

		frame, err := e.solver.Snapshot(e.sensors)
		if err != nil {
			return s.fail(ctx, fmt.Errorf("snapshot at t=%d: %w", elapsed, err), "failed")
		}

		if s.export != nil {
			if err := e.solver.ExportState(s.export); err != nil {
				return s.fail(ctx, fmt.Errorf("hydraulic export at t=%d: %w", elapsed, err), "failed")
			}
		}

		s.upcoming = elapsed + e.clock.HydraulicStep
		finished := e.solver.RemainingSteps() <= 0

		if e.clock.Aligned(elapsed) {
			if err := frag.Append(frame); err != nil {
				return s.fail(ctx, err, "failed")
			}
			for _, fn := range e.listeners {
				fn(frag)
			}
			// Controls all see the same fragment snapshot; an earlier
			// module's commands only land in subsequent steps.
			for i, c := range e.cfg.Controls {
				if err := c.Step(frag); err != nil {
					return s.fail(ctx, fmt.Errorf("control module %d at t=%d: %w", i, elapsed, err), "failed")
				}
			}
			if finished {
				s.finish(ctx)
			}
			return frag, nil
		}

		if finished {
			s.finish(ctx)
			if frag.Len() > 0 {
				return frag, nil
			}
			return nil, io.EOF
		}
	}
}

func (s *Stepper) applySystemEvents(now int64) error {
	e := s.engine
	for i, ev := range e.cfg.SystemEvents {
		if err := ev.Apply(now); err != nil {
			return fmt.Errorf("system event %d at t=%d: %w", i, now, err)
		}
		if start, end := ev.Window(); now >= start && now <= end {
			e.metrics.RecordEventApplied("system")
			e.log.Debug(context.Background(), "system event applied",
				logging.Int("event", i), logging.Any("t", now))
		}
	}
	return nil
}

func (s *Stepper) finish(ctx context.Context) {
	e := s.engine
	s.done = true
	e.state = StateFinished
	e.metrics.RecordRunCompleted("finished")
	e.metrics.RunEnded()
	e.log.Debug(ctx, "stepping complete")
}

func (s *Stepper) fail(ctx context.Context, err error, outcome string) (*scada.Data, error) {
	e := s.engine
	s.done = true
	e.abort(ctx)
	e.metrics.RecordRunCompleted(outcome)
	e.metrics.RunEnded()
	if outcome == "aborted" {
		e.log.Info(ctx, "scenario aborted", logging.String("reason", err.Error()))
	} else {
		e.log.Error(ctx, "scenario failed", logging.String("error", err.Error()))
	}
	return nil, err
}
