package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/stt"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

const (
	eventBuffer   = 512
	settleTimeout = time.Second
)

// epoch is the simulated start time of every run
var epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// Record is one controller event observed while running a step
type Record struct {
	Step   Step
	Offset time.Duration
	Event  voice.Event
}

// Result summarizes a run
type Result struct {
	Records []Record
	Final   voice.Snapshot
	Starts  int
	Stops   int
	// Dropped counts transcript lines sent while no session was running
	Dropped int
}

// Commands returns the command names emitted during the run, in order
func (r *Result) Commands() []string {
	var out []string
	for _, rec := range r.Records {
		if rec.Event.Kind == voice.EventCommand {
			out = append(out, rec.Event.Command.String())
		}
	}
	return out
}

// Queries returns the query texts emitted during the run, in order
func (r *Result) Queries() []string {
	var out []string
	for _, rec := range r.Records {
		if rec.Event.Kind == voice.EventQuery {
			out = append(out, rec.Event.Text)
		}
	}
	return out
}

// Runner drives a controller from a script
type Runner struct {
	opts       voice.Options
	permission voice.Permission
	logger     zerolog.Logger
}

// NewRunner creates a runner. Now and AfterFunc in opts are replaced by the simulated clock.
func NewRunner(opts voice.Options, logger zerolog.Logger) *Runner {
	return &Runner{
		opts:       opts,
		permission: voice.PermissionGranted,
		logger:     logger.With().Str("component", "replay").Logger(),
	}
}

// SetPermission sets the permission the scripted recognizer reports
func (r *Runner) SetPermission(p voice.Permission) {
	r.permission = p
}

type run struct {
	ctrl    *voice.Controller
	source  *stt.ScriptedSource
	clock   *Clock
	events  <-chan voice.Event
	step    Step
	result  *Result
	report  func(Record)
	dropped int
}

// Run executes steps in order and reports every event as it is observed.
// report may be nil.
func (r *Runner) Run(ctx context.Context, steps []Step, report func(Record)) (*Result, error) {
	clock := NewClock(epoch)
	opts := r.opts
	opts.Now = clock.Now
	opts.AfterFunc = clock.AfterFunc
	if opts.Logger == nil {
		opts.Logger = &r.logger
	}

	source := stt.NewScriptedSource()
	source.SetPermission(r.permission)
	ctrl := voice.NewController(source, opts)
	events, unsubscribe := ctrl.Subscribe(eventBuffer)
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	go ctrl.Run(runCtx)
	defer func() {
		cancel()
		<-ctrl.Done()
	}()

	x := &run{
		ctrl:   ctrl,
		source: source,
		clock:  clock,
		events: events,
		result: &Result{},
		report: report,
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return x.result, err
		}
		x.step = step
		if err := x.apply(step); err != nil {
			return x.result, fmt.Errorf("line %d (%s): %w", step.Line, step, err)
		}
		if err := x.settle(); err != nil {
			return x.result, fmt.Errorf("line %d (%s): %w", step.Line, step, err)
		}
	}

	snap, err := ctrl.Snapshot()
	if err != nil {
		return x.result, err
	}
	x.result.Final = snap
	x.result.Starts, x.result.Stops = source.Counts()
	x.result.Dropped = x.dropped
	r.logger.Debug().
		Int("steps", len(steps)).
		Int("events", len(x.result.Records)).
		Str("state", snap.State.String()).
		Msg("Replay finished")
	return x.result, nil
}

func (x *run) apply(step Step) error {
	switch step.Op {
	case OpStart:
		return x.ctrl.Start()
	case OpStop:
		return x.ctrl.Stop(voice.StopManual, !step.On)
	case OpPause:
		return x.ctrl.Pause()
	case OpResume:
		return x.ctrl.ResumeAfterUserPause()
	case OpTTS:
		return x.ctrl.SetTTSActive(step.On)
	case OpTick:
		x.ctrl.Tick()
	case OpWait:
		var settleErr error
		x.clock.Advance(step.Wait, func() {
			if err := x.settle(); err != nil && settleErr == nil {
				settleErr = err
			}
		})
		return settleErr
	case OpPartial:
		x.emit(voice.Partial(step.Text))
	case OpFinal:
		x.emit(voice.Final(step.Text))
	case OpError:
		x.emit(voice.Failure(errors.New(step.Text)))
	case OpSilence:
		x.emit(voice.SilenceTimeout())
	default:
		return fmt.Errorf("unsupported instruction %q", step.Op)
	}
	return nil
}

func (x *run) emit(ev voice.TranscriptEvent) {
	if !x.source.Emit(ev) {
		x.dropped++
	}
}

// settle waits until the controller has drained its mailbox and is not
// waiting on a permission answer, then collects the events it published.
func (x *run) settle() error {
	deadline := time.Now().Add(settleTimeout)
	for {
		snap, err := x.ctrl.Snapshot()
		if err != nil {
			return err
		}
		if snap.State != voice.StateStarting {
			break
		}
		if time.Now().After(deadline) {
			return errors.New("controller did not finish starting")
		}
		time.Sleep(time.Millisecond)
	}
	x.collect()
	return nil
}

func (x *run) collect() {
	for {
		select {
		case ev, ok := <-x.events:
			if !ok {
				return
			}
			rec := Record{Step: x.step, Offset: ev.At.Sub(epoch), Event: ev}
			x.result.Records = append(x.result.Records, rec)
			if x.report != nil {
				x.report(rec)
			}
		default:
			return
		}
	}
}

// Describe renders an event on one line
func Describe(ev voice.Event) string {
	switch ev.Kind {
	case voice.EventState:
		return fmt.Sprintf("state      %s", ev.State)
	case voice.EventTranscript:
		kind := "partial"
		if ev.Final {
			kind = "final"
		}
		return fmt.Sprintf("transcript %s %q", kind, ev.Text)
	case voice.EventCommand:
		return fmt.Sprintf("command    %s", ev.Command)
	case voice.EventQuery:
		return fmt.Sprintf("query      %q", ev.Text)
	case voice.EventError:
		return fmt.Sprintf("error      %s", ev.Text)
	}
	return ev.Kind.String()
}
