package scripthost

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/nerrad567/automationd/internal/automation"
)

// ConditionFunc is a program's trigger condition, registered per address.
type ConditionFunc func(ctx context.Context) (bool, error)

// BodyFunc is a program's action body, registered per address. options is
// the manual-trigger or event-raised options string, passed through
// unexamined.
type BodyFunc func(ctx context.Context, options string) (any, error)

// ClosureHost is a minimal automation.ScriptHost backed by Go closures
// registered per program address rather than any compiled script source.
type ClosureHost struct {
	mu         sync.Mutex
	conditions map[int]ConditionFunc
	bodies     map[int]BodyFunc
	running    map[int]context.CancelFunc
}

// NewClosureHost creates an empty host. Register conditions and bodies with
// RegisterCondition/RegisterBody before any program referencing their
// address is compiled.
func NewClosureHost() *ClosureHost {
	return &ClosureHost{
		conditions: make(map[int]ConditionFunc),
		bodies:     make(map[int]BodyFunc),
		running:    make(map[int]context.CancelFunc),
	}
}

// RegisterCondition assigns the trigger condition for a program address.
func (h *ClosureHost) RegisterCondition(address int, fn ConditionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conditions[address] = fn
}

// RegisterBody assigns the action body for a program address.
func (h *ClosureHost) RegisterBody(address int, fn BodyFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bodies[address] = fn
}

// Compile looks up the condition and body registered for program.Address
// and hands them back as opaque handles. A program with no registered
// condition or body still compiles: EvaluateCondition/Run report a benign
// fault for the missing half, mirroring a reflective call against a nil
// target rather than a genuine script error.
func (h *ClosureHost) Compile(_ context.Context, program *automation.ProgramRecord) (automation.ScriptHandles, []automation.ProgramError, error) {
	h.mu.Lock()
	cond, hasCond := h.conditions[program.Address]
	body, hasBody := h.bodies[program.Address]
	h.mu.Unlock()

	var diagnostics []automation.ProgramError
	if !hasCond {
		diagnostics = append(diagnostics, automation.ProgramError{
			Message:   fmt.Sprintf("no condition registered for program %d", program.Address),
			CodeBlock: automation.CodeBlockCondition,
		})
	}
	if !hasBody {
		diagnostics = append(diagnostics, automation.ProgramError{
			Message:   fmt.Sprintf("no body registered for program %d", program.Address),
			CodeBlock: automation.CodeBlockBody,
		})
	}

	return automation.ScriptHandles{Condition: cond, Body: body}, diagnostics, nil
}

// EvaluateCondition runs the program's compiled condition closure, if any,
// inside a panic-recovery boundary.
func (h *ClosureHost) EvaluateCondition(ctx context.Context, program *automation.ProgramRecord) (result automation.ConditionResult) {
	cond, ok := program.Handles.Condition.(ConditionFunc)
	if !ok || cond == nil {
		return automation.ConditionResult{Fault: &automation.Fault{
			Message: "condition target is nil",
			Benign:  true,
		}}
	}

	defer func() {
		if r := recover(); r != nil {
			result = automation.ConditionResult{Fault: classifyPanic(r)}
		}
	}()

	value, err := cond(ctx)
	if err != nil {
		return automation.ConditionResult{Fault: &automation.Fault{Message: err.Error()}}
	}
	return automation.ConditionResult{Value: value}
}

// Run executes the program's compiled body closure, if any, blocking until
// it returns or ctx is cancelled. The body is cancellable via Stop.
func (h *ClosureHost) Run(ctx context.Context, program *automation.ProgramRecord, options string) (result automation.RunResult) {
	body, ok := program.Handles.Body.(BodyFunc)
	if !ok || body == nil {
		return automation.RunResult{Fault: &automation.Fault{
			Message: "body target is nil",
			Benign:  true,
		}}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.running[program.Address] = cancel
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.running, program.Address)
		h.mu.Unlock()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			result = automation.RunResult{Fault: classifyPanic(r)}
		}
	}()

	value, err := body(runCtx, options)
	if err != nil {
		return automation.RunResult{Fault: &automation.Fault{Message: err.Error()}}
	}
	return automation.RunResult{ReturnValue: value}
}

// Stop cancels any body execution in progress for program. Safe to call
// when nothing is running.
func (h *ClosureHost) Stop(program *automation.ProgramRecord) {
	h.mu.Lock()
	cancel, ok := h.running[program.Address]
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

// classifyPanic turns a recovered panic value into a Fault, marking it
// Benign when it looks like a reflective call against a nil target rather
// than a genuine user-script fault.
func classifyPanic(r any) *automation.Fault {
	err, ok := r.(error)
	if !ok {
		return &automation.Fault{Message: fmt.Sprint(r)}
	}

	if re, ok := err.(runtime.Error); ok {
		return &automation.Fault{
			Message: re.Error(),
			Benign:  isBenignRuntimeError(re),
		}
	}
	return &automation.Fault{Message: err.Error()}
}

// isBenignRuntimeError reports whether re is the nil-pointer/nil-function
// panic a reflective dispatch against an unset target produces, as opposed
// to a fault raised by the program's own body or condition.
func isBenignRuntimeError(re runtime.Error) bool {
	msg := re.Error()
	return strings.Contains(msg, "invalid memory address or nil pointer dereference") ||
		strings.Contains(msg, "reflect: Call using zero Value argument")
}
