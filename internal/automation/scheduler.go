package automation

import (
	"context"
	"time"
)

// tickSchedulerStopTimeout bounds how long a disable waits for the tick
// worker to join before abandoning the wait (spec.md §4.3).
const tickSchedulerStopTimeout = 1 * time.Second

// engineState reports the program manager's engine-wide running/enabled
// flags, consulted by the scheduler on every loop iteration.
type engineState interface {
	running() bool
	enabled() bool
}

// TickScheduler owns one long-lived worker per enabled program, waking it
// once per wall-clock minute boundary to re-evaluate its trigger condition
// (spec.md §4.3).
type TickScheduler struct {
	program   *ProgramRecord
	evaluator *ConditionEvaluator
	runner    *ProgramRunner
	engine    engineState
	log       Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTickScheduler constructs a scheduler for one program. It does not
// start the worker; call Start.
func NewTickScheduler(program *ProgramRecord, evaluator *ConditionEvaluator, runner *ProgramRunner, engine engineState, log Logger) *TickScheduler {
	if log == nil {
		log = noopLogger{}
	}
	return &TickScheduler{
		program:   program,
		evaluator: evaluator,
		runner:    runner,
		engine:    engine,
		log:       log,
	}
}

// Start spawns the tick worker. Calling Start on an already-running
// scheduler is a no-op.
func (s *TickScheduler) Start() {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, done)
}

// Stop joins the worker with a 1-second deadline; if it does not yield in
// time, Stop returns anyway (the worker's context is already cancelled and
// it will exit on its next wake, per spec.md §4.3's "force-terminate").
func (s *TickScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil

	cancel()

	select {
	case <-done:
	case <-time.After(tickSchedulerStopTimeout):
		s.log.Warn("tick scheduler did not stop within deadline, abandoning join",
			"address", s.program.Address, "name", s.program.Name)
	}
}

func (s *TickScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if !s.sleepUntilNextMinute(ctx) {
			return
		}

		if ctx.Err() != nil {
			return
		}

		if s.program.Running() || !s.program.Enabled() || !s.engine.running() || !s.engine.enabled() {
			continue
		}

		if s.evaluator.Evaluate(ctx, s.program) {
			s.runner.Start(ctx, s.program, "", "tick")
		}
	}
}

// sleepUntilNextMinute sleeps until the next wall-clock minute boundary,
// interruptibly. It returns false if ctx was cancelled during the wait.
func (s *TickScheduler) sleepUntilNextMinute(ctx context.Context) bool {
	now := time.Now()
	wait := time.Duration(60-now.Second())*time.Second - time.Duration(now.Nanosecond())

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
