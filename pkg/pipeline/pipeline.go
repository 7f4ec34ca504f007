// Package pipeline runs agents as a sequential workflow over one shared
// state store. The stock pipeline is scriptwriter, visualizer, formatter:
// the first stage receives the topic and every later stage receives the
// output of the stage before it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/germanamz/shorts/pkg/agent"
	"github.com/germanamz/shorts/pkg/state"
)

// TopicKey is the state key holding the run's topic.
const TopicKey = "topic"

// ErrNoStages is returned when a Pipeline is created without agents.
var ErrNoStages = errors.New("pipeline: at least one stage is required")

// StageError reports which stage stopped a run.
type StageError struct {
	Stage int
	Agent string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %d (%s): %v", e.Stage+1, e.Agent, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options configures a Pipeline.
type Options struct {
	Events       *EventBus     // Receives run and stage events; nil disables them.
	Logger       *slog.Logger  // Nil uses slog.Default().
	StageTimeout time.Duration // Per-stage deadline (0 = none).
}

// StageOutput is what one stage produced.
type StageOutput struct {
	Agent     string
	OutputKey string
	Model     string
	Text      string
	Fallback  bool
	Duration  time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Topic    string
	Outputs  []StageOutput
	Final    string            // Output of the last stage.
	State    map[string]string // Snapshot of the shared store at the end.
	Duration time.Duration
}

// Pipeline is a fixed sequence of agents. It holds no per-run state and can
// run concurrently.
type Pipeline struct {
	name    string
	stages  []*agent.Agent
	options Options
	log     *slog.Logger
}

// New creates a Pipeline.
func New(name string, stages []*agent.Agent, opts Options) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		name:    name,
		stages:  append([]*agent.Agent(nil), stages...),
		options: opts,
		log:     log.With("pipeline", name),
	}, nil
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// Stages returns the agents in run order.
func (p *Pipeline) Stages() []*agent.Agent {
	return append([]*agent.Agent(nil), p.stages...)
}

// Events returns the pipeline's event bus, or nil.
func (p *Pipeline) Events() *EventBus { return p.options.Events }

// Run executes every stage in order and stops at the first failure, which is
// returned as a *StageError together with the outputs produced so far.
func (p *Pipeline) Run(ctx context.Context, topic string) (Result, error) {
	runID := uuid.NewString()
	start := time.Now()

	st := &state.Store{}
	st.Set(TopicKey, topic)

	res := Result{RunID: runID, Topic: topic}
	log := p.log.With("run_id", runID)

	p.publish(Event{Kind: EventRunStart, RunID: runID, Stage: -1})
	log.InfoContext(ctx, "pipeline started", "stages", len(p.stages))

	input := topic
	for i, a := range p.stages {
		p.publish(Event{Kind: EventStageStart, RunID: runID, Stage: i, Agent: a.Name()})

		out, err := p.runStage(ctx, a, st, input)
		if err != nil {
			serr := &StageError{Stage: i, Agent: a.Name(), Err: err}
			p.publish(Event{Kind: EventStageError, RunID: runID, Stage: i, Agent: a.Name(), Err: serr})
			log.ErrorContext(ctx, "pipeline stage failed", "stage", a.Name(), "error", err)

			res.State = st.Snapshot()
			res.Duration = time.Since(start)

			return res, serr
		}

		res.Outputs = append(res.Outputs, out)
		p.publish(Event{Kind: EventStageEnd, RunID: runID, Stage: i, Agent: a.Name(), Output: &out})

		input = out.Text
	}

	res.Final = input
	res.State = st.Snapshot()
	res.Duration = time.Since(start)

	p.publish(Event{Kind: EventRunEnd, RunID: runID, Stage: -1})
	log.InfoContext(ctx, "pipeline finished", "duration", res.Duration)

	return res, nil
}

func (p *Pipeline) runStage(ctx context.Context, a *agent.Agent, st *state.Store, input string) (StageOutput, error) {
	if err := ctx.Err(); err != nil {
		return StageOutput{}, err
	}

	if p.options.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.options.StageTimeout)
		defer cancel()
	}

	start := time.Now()

	resp, err := a.Run(ctx, st, input)
	if err != nil {
		return StageOutput{}, err
	}

	return StageOutput{
		Agent:     a.Name(),
		OutputKey: a.OutputKey(),
		Model:     resp.Model,
		Text:      resp.Text,
		Fallback:  resp.Fallback,
		Duration:  time.Since(start),
	}, nil
}

func (p *Pipeline) publish(e Event) {
	e.Timestamp = time.Now()
	p.options.Events.Publish(e)
}
