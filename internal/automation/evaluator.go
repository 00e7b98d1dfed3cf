package automation

import (
	"context"
	"strings"
)

// ConditionEvaluator applies a program's ConditionType on top of the raw
// boolean its ScriptHost trigger returns, producing a "should run now"
// decision (spec.md §4.4).
type ConditionEvaluator struct {
	host ScriptHost
	pub  ModulePublisher
	log  Logger
}

// NewConditionEvaluator constructs an evaluator. pub may be nil (publishing
// is skipped).
func NewConditionEvaluator(host ScriptHost, pub ModulePublisher, log Logger) *ConditionEvaluator {
	if log == nil {
		log = noopLogger{}
	}
	return &ConditionEvaluator{host: host, pub: pub, log: log}
}

// Evaluate runs the program's trigger and decides whether it should fire.
// It holds program.OperationLock for the full evaluation, serializing it
// against itself and against ProgramRunner.Start's single-flight check.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, program *ProgramRecord) bool {
	program.OperationLock.Lock()
	defer program.OperationLock.Unlock()

	if !program.enabled {
		return false
	}

	result := e.host.EvaluateCondition(ctx, program)

	var raw bool
	if result.Fault != nil && !result.Fault.Benign {
		e.recordConditionFault(program, result.Fault)
		raw = false
	} else {
		raw = result.Value
	}

	prev := program.lastConditionResult
	program.lastConditionResult = raw

	var decision bool
	switch program.ConditionType {
	case ConditionOnTrue, ConditionOnce:
		decision = raw
	case ConditionOnFalse:
		decision = !raw
	case ConditionOnSwitchTrue:
		decision = raw && raw != prev
	case ConditionOnSwitchFalse:
		decision = !raw && raw != prev
	default:
		decision = false
	}

	// Re-check enabled: a fault recorded above may have just disabled the
	// program, and that must win over whatever the mode computed.
	return decision && program.enabled
}

// recordConditionFault classifies a non-benign condition fault: it records
// a ProgramError, auto-disables the program, and publishes RuntimeError.
// Caller must hold program.OperationLock.
func (e *ConditionEvaluator) recordConditionFault(program *ProgramRecord, fault *Fault) {
	program.recordError(ProgramError{
		Message:   fault.Message,
		CodeBlock: CodeBlockCondition,
	})
	program.enabled = false

	e.log.Warn("program condition fault, auto-disabling",
		"address", program.Address, "name", program.Name, "error", fault.Message)

	if e.pub != nil {
		e.pub.RaiseEvent(program.Address, program.Domain, "RuntimeError", sanitize(CodeBlockCondition+": "+fault.Message))
	}
}

// sanitize replaces newlines and carriage returns with spaces, per
// spec.md §6's RuntimeError publication rule.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
