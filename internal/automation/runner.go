package automation

import (
	"context"
	"time"
)

// ProgramRunner executes a program's action body with the at-most-one
// active-run invariant (single-flight), per spec.md §4.2, and records every
// dispatch to execution history (SPEC_FULL.md §15).
type ProgramRunner struct {
	host    ScriptHost
	pub     ModulePublisher
	repo    ExecutionRecorder
	metrics ExecutionMetrics
	log     Logger
}

// NewProgramRunner constructs a runner. pub, repo, and metrics may all be
// nil: a nil pub drops status/error publications, a nil repo/metrics simply
// skips execution-history persistence for that sink.
func NewProgramRunner(host ScriptHost, pub ModulePublisher, repo ExecutionRecorder, metrics ExecutionMetrics, log Logger) *ProgramRunner {
	if log == nil {
		log = noopLogger{}
	}
	return &ProgramRunner{host: host, pub: pub, repo: repo, metrics: metrics, log: log}
}

// Start dispatches program's body with options at most once. If the
// program is already running, Start returns immediately: no error, no
// queueing (spec.md §4.2 step 1). triggerType identifies what invoked this
// run ("manual", "tick", or "event") and is recorded on the execution.
func (r *ProgramRunner) Start(ctx context.Context, program *ProgramRecord, options string, triggerType string) {
	program.OperationLock.Lock()

	if program.running {
		program.OperationLock.Unlock()
		return
	}

	if r.host == nil {
		program.OperationLock.Unlock()
		r.log.Error("program start aborted, no script host configured",
			"address", program.Address, "name", program.Name, "error", ErrNoScriptHost)
		r.publishStatus(program, StatusIdle)
		return
	}

	// A prior worker handle should never still be set once running is
	// false, but defensively request its stop if one lingers.
	if program.bodyCancel != nil {
		program.bodyCancel()
		program.bodyCancel = nil
	}

	if program.Handles.Body == nil {
		// StartFailure: the body worker cannot be created. Silent abort
		// back to Idle, per spec.md §7.
		program.OperationLock.Unlock()
		r.publishStatus(program, StatusIdle)
		return
	}

	program.running = true
	program.triggerTime = time.Now()
	triggeredAt := program.triggerTime.UTC()
	wasOnce := program.ConditionType == ConditionOnce
	if wasOnce {
		program.enabled = false
	}

	runCtx, cancel := context.WithCancel(ctx)
	program.bodyCancel = cancel

	program.OperationLock.Unlock()

	r.publishStatus(program, StatusRunning)
	if wasOnce {
		r.log.Info("program auto-disabled (Once)", "address", program.Address, "name", program.Name)
	}

	go r.runBody(runCtx, program, options, triggerType, triggeredAt, cancel)
}

// Stop requests termination of program's active body, if any.
func (r *ProgramRunner) Stop(program *ProgramRecord) {
	program.OperationLock.Lock()
	cancel := program.bodyCancel
	program.OperationLock.Unlock()

	if cancel != nil {
		cancel()
	}
	if r.host != nil {
		r.host.Stop(program)
	}
}

// runBody is the dedicated worker for one run. It invokes the ScriptHost,
// classifies any fault, records the dispatch to execution history, and
// always returns the program to Idle.
func (r *ProgramRunner) runBody(ctx context.Context, program *ProgramRecord, options string, triggerType string, triggeredAt time.Time, cancel func()) {
	result := r.host.Run(ctx, program, options)
	completedAt := time.Now().UTC()

	interrupted := ctx.Err() != nil

	program.OperationLock.Lock()
	program.running = false
	if program.bodyCancel != nil {
		// Only clear if we're still the current worker's cancel func —
		// a new run cannot have started while running was true, so this
		// is always safe.
		program.bodyCancel = nil
	}

	var fault *Fault
	if result.Fault != nil && !result.Fault.Benign {
		fault = result.Fault
		program.recordError(ProgramError{
			Message:   fault.Message,
			CodeBlock: CodeBlockBody,
		})
		program.enabled = false
	}
	program.OperationLock.Unlock()

	cancel()

	if fault != nil {
		r.log.Warn("program body fault, auto-disabling",
			"address", program.Address, "name", program.Name, "error", fault.Message)
		if r.pub != nil {
			r.pub.RaiseEvent(program.Address, program.Domain, "RuntimeError", sanitize(CodeBlockBody+": "+fault.Message))
		}
	}

	r.recordExecution(program, triggerType, triggeredAt, completedAt, interrupted, fault)

	if interrupted {
		r.publishStatus(program, StatusInterrupted)
	}
	r.publishStatus(program, StatusIdle)
}

// recordExecution persists one completed dispatch to every configured sink.
// A persistence failure is logged, not propagated: history is best-effort
// and must never block or fail a program's run.
func (r *ProgramRunner) recordExecution(program *ProgramRecord, triggerType string, triggeredAt, completedAt time.Time, interrupted bool, fault *Fault) {
	if r.repo == nil && r.metrics == nil {
		return
	}

	exec := NewExecution(program.Address, triggerType, "")
	exec.TriggeredAt = triggeredAt
	exec.CompletedAt = &completedAt
	durationMS := int(completedAt.Sub(triggeredAt).Milliseconds())
	exec.DurationMS = &durationMS

	switch {
	case fault != nil:
		exec.Outcome = "fault"
		msg := fault.Message
		exec.ErrorMessage = &msg
	case interrupted:
		exec.Outcome = "interrupted"
	default:
		exec.Outcome = "ok"
	}

	if r.repo != nil {
		if err := r.repo.CreateExecution(context.Background(), exec); err != nil {
			r.log.Error("failed to record program execution",
				"address", program.Address, "execution_id", exec.ID, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.WriteProgramExecution(*exec)
	}
}

func (r *ProgramRunner) publishStatus(program *ProgramRecord, status ProgramStatus) {
	if r.pub == nil {
		return
	}
	r.pub.RaiseEvent(program.Address, program.Domain, "ProgramStatus", string(status))
}
