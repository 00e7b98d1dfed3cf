package automation

import "context"

// ConditionResult is what EvaluateCondition returns: either a boolean value
// or a fault. Fault classifies whether the fault is a benign reflective
// dispatch artifact (ignored entirely) or a genuine user-script fault (which
// drives auto-disable).
type ConditionResult struct {
	Value bool
	Fault *Fault
}

// RunResult is what Run returns: either a return value (opaque, unused by
// the manager) or a fault.
type RunResult struct {
	ReturnValue any
	Fault       *Fault
}

// Fault classifies a ScriptHost-reported error at the compile or runtime
// boundary. Benign is true for a reflective-dispatch wrapper with no
// user-visible meaning — a fault the manager must ignore entirely (no
// disable, no publication), per spec.md's BenignTargetFault.
type Fault struct {
	Message string
	Benign  bool
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	return f.Message
}

// ScriptHost is the external collaborator that compiles and evaluates
// program code. The program manager only calls through this interface; it
// never inspects compiled artifacts or source.
type ScriptHost interface {
	// Compile prepares a program's condition and body for execution,
	// returning its opaque handles and any compile-time diagnostics.
	// Compile errors are surfaced to the caller; they do not auto-disable
	// the program (it simply never starts successfully).
	Compile(ctx context.Context, program *ProgramRecord) (ScriptHandles, []ProgramError, error)

	// EvaluateCondition runs the program's compiled trigger condition.
	EvaluateCondition(ctx context.Context, program *ProgramRecord) ConditionResult

	// Run executes the program's compiled body with the given options
	// string, blocking until it completes or the context is cancelled.
	Run(ctx context.Context, program *ProgramRecord, options string) RunResult

	// Stop requests termination of any body worker currently executing for
	// program. It is safe to call when nothing is running.
	Stop(program *ProgramRecord)
}

// ModuleBus is the consumer-side contract the program manager needs from
// the hub-wide module registry and event bus: delivery of PropertyChange
// events into the EventRouter. It is satisfied by internal/modulebus or any
// equivalent hub transport.
type ModuleBus interface {
	// Subscribe registers fn to be called for every PropertyChange the bus
	// observes. The returned func unsubscribes.
	Subscribe(fn func(PropertyChange)) (unsubscribe func())
}

// ModulePublisher is the producer-side contract: what the manager needs to
// tell the ModuleBus about a program's own published state.
type ModulePublisher interface {
	// RaiseEvent publishes a property value from "Automation Program" as
	// the source, mirroring spec.md §6's ModuleBus "Out" contract.
	RaiseEvent(address int, domain string, property string, value string)
}

// ExecutionRecorder persists one completed program dispatch to durable
// storage. It is satisfied by Repository's CreateExecution method.
type ExecutionRecorder interface {
	CreateExecution(ctx context.Context, exec *Execution) error
}

// ExecutionMetrics mirrors a completed dispatch to a time-series backend.
// Implementations must not block the caller on a slow or unreachable
// backend, matching internal/infrastructure/influxdb's async write API.
type ExecutionMetrics interface {
	WriteProgramExecution(exec Execution)
}

// Logger is the narrow logging interface the automation package accepts,
// matching the Debug/Info/Warn/Error shape the rest of the codebase uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything; used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
