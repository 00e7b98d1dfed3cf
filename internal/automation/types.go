// Package automation implements the program manager: the hub subsystem that
// hosts user-authored programs (a trigger condition paired with an action
// body), re-evaluates their triggers against incoming module property
// changes and a one-minute wall-clock tick, and runs their bodies with
// single-flight isolation and fault containment.
package automation

import (
	"sync"
	"time"
)

// USERSpaceBase is the floor for program addresses. PID allocation never
// returns a value below it, leaving the range below reserved for built-in
// or system programs.
const USERSpaceBase = 1000

// ConditionType selects how a program's raw trigger evaluation is turned
// into a run/no-run decision by the ConditionEvaluator.
type ConditionType string

const (
	// ConditionOnTrue runs the body whenever the raw condition is true.
	ConditionOnTrue ConditionType = "OnTrue"
	// ConditionOnFalse runs the body whenever the raw condition is false.
	ConditionOnFalse ConditionType = "OnFalse"
	// ConditionOnSwitchTrue runs the body on a false->true transition only.
	ConditionOnSwitchTrue ConditionType = "OnSwitchTrue"
	// ConditionOnSwitchFalse runs the body on a true->false transition only.
	ConditionOnSwitchFalse ConditionType = "OnSwitchFalse"
	// ConditionOnce behaves like ConditionOnTrue, except the program
	// auto-disables the instant its body is dispatched.
	ConditionOnce ConditionType = "Once"
)

// ProgramStatus is a published, observable lifecycle state for a program's
// body. Values are exactly the strings published to the ModuleBus.
type ProgramStatus string

const (
	StatusIdle        ProgramStatus = "Idle"
	StatusRunning     ProgramStatus = "Running"
	StatusInterrupted ProgramStatus = "Interrupted"
	StatusEnabled     ProgramStatus = "Enabled"
	StatusDisabled    ProgramStatus = "Disabled"
)

// Fault code blocks, used as the ProgramError.CodeBlock / RuntimeError prefix.
const (
	CodeBlockCondition = "TC" // trigger condition fault
	CodeBlockBody      = "CR" // action body fault
)

// ProgramError is one compile or runtime diagnostic attached to a program.
// It mirrors what a ScriptHost reports for a single fault location.
type ProgramError struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Message   string `json:"message"`
	Number    int    `json:"number"`
	CodeBlock string `json:"code_block"` // "TC" or "CR"
}

// ScriptHandles are the opaque references a ScriptHost hands back after
// compiling a program's condition and body. The program manager never
// inspects them; it only passes them back to the ScriptHost.
type ScriptHandles struct {
	Condition any
	Body      any
}

// HookFunc is an optional per-program observer invoked by the EventRouter
// around a module property change. Returning false ("halt") or mutating
// param.Value away from its original value stops further propagation for
// that stage (see EventRouter).
type HookFunc func(helper ModuleHelper, param *Parameter) bool

// Parameter is the module property carried by a PropertyChange. Value is
// compared against its original value to detect hook mutation.
type Parameter struct {
	Name  string
	Value any

	originalValue any
}

// NewParameter snapshots value as the baseline for mutation detection.
func NewParameter(name string, value any) *Parameter {
	return &Parameter{Name: name, Value: value, originalValue: value}
}

// Mutated reports whether Value has been changed away from its original
// value since the Parameter was created.
func (p *Parameter) Mutated() bool {
	return p.Value != p.originalValue
}

// PropertyChange is delivered by the ModuleBus to the EventRouter whenever
// a module's parameter changes.
//
// SenderAddress and SenderRef carry the same "is this my own echo?"
// relation through two different handles, matching how the pre-change and
// post-change stages each compare self-origin (spec design note, preserved
// deliberately rather than unified): pre-change compares SenderAddress
// against ProgramRecord.Address; post-change compares SenderRef against the
// program's own pointer identity.
type PropertyChange struct {
	SenderAddress int
	SenderRef     any
	Module        string
	Domain        string
	Parameter     *Parameter
}

// ModuleHelper is the narrow module-facing handle passed to hooks, letting
// a program read or act on the module that raised the change without the
// router exposing its own internals.
type ModuleHelper interface {
	ModuleAddress() string
	ModuleDomain() string
}

// ProgramRecord is the in-memory state of one program: its configuration,
// published status, last trigger evaluation, and accumulated script errors.
//
// Mutable fields (Enabled, Running, LastConditionResult, ScriptErrors,
// TriggerTime) are guarded by OperationLock. OperationLock serializes
// condition evaluation against itself and against body-start, but it does
// not cover the body's runtime — once ProgramRunner has recorded Running
// and released the lock, the body executes unguarded by it.
type ProgramRecord struct {
	Address int
	Name    string
	Domain  string

	ConditionType ConditionType

	PreChangeHook  HookFunc
	PostChangeHook HookFunc

	Handles ScriptHandles

	OperationLock sync.Mutex

	enabled             bool
	running             bool
	lastConditionResult bool
	triggerTime         time.Time
	scriptErrors        []ProgramError

	// bodyCancel cancels the currently-dispatched body execution, if any.
	// Set and cleared under OperationLock.
	bodyCancel func()
}

// NewProgramRecord constructs a record in its initial Idle, disabled state.
func NewProgramRecord(address int, name, domain string, condType ConditionType) *ProgramRecord {
	return &ProgramRecord{
		Address:       address,
		Name:          name,
		Domain:        domain,
		ConditionType: condType,
	}
}

// Enabled reports the program's current enable state.
func (p *ProgramRecord) Enabled() bool {
	p.OperationLock.Lock()
	defer p.OperationLock.Unlock()
	return p.enabled
}

// SetEnabled sets the program's enable state. Toggling it is observable by
// callers via Enabled and drives scheduler start/stop at the manager level.
func (p *ProgramRecord) SetEnabled(enabled bool) {
	p.OperationLock.Lock()
	p.enabled = enabled
	p.OperationLock.Unlock()
}

// Running reports whether a body execution is currently active.
func (p *ProgramRecord) Running() bool {
	p.OperationLock.Lock()
	defer p.OperationLock.Unlock()
	return p.running
}

// LastConditionResult returns the raw boolean result of the most recent
// trigger evaluation (before mode is applied).
func (p *ProgramRecord) LastConditionResult() bool {
	p.OperationLock.Lock()
	defer p.OperationLock.Unlock()
	return p.lastConditionResult
}

// TriggerTime returns the timestamp of the most recent body start.
func (p *ProgramRecord) TriggerTime() time.Time {
	p.OperationLock.Lock()
	defer p.OperationLock.Unlock()
	return p.triggerTime
}

// ScriptErrors returns a copy of the program's accumulated diagnostics.
func (p *ProgramRecord) ScriptErrors() []ProgramError {
	p.OperationLock.Lock()
	defer p.OperationLock.Unlock()
	out := make([]ProgramError, len(p.scriptErrors))
	copy(out, p.scriptErrors)
	return out
}

// recordError replaces the program's diagnostics with a single fresh entry.
// Callers must hold OperationLock.
func (p *ProgramRecord) recordError(e ProgramError) {
	p.scriptErrors = []ProgramError{e}
}
