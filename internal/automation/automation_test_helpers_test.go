package automation

import (
	"context"
	"sync"
)

// ─── Mock ScriptHost ────────────────────────────────────────────────────────

// mockScriptHost lets tests script condition/run outcomes per program
// address, and records every Run/Stop call it sees.
type mockScriptHost struct {
	mu sync.Mutex

	conditions map[int][]ConditionResult // consumed in order, last value sticks
	runs       map[int][]RunResult
	noBody     map[int]bool // Handles.Body left nil for this address

	runCalls  []runCall
	stopCalls []int
}

type runCall struct {
	Address int
	Options string
}

func newMockScriptHost() *mockScriptHost {
	return &mockScriptHost{
		conditions: make(map[int][]ConditionResult),
		runs:       make(map[int][]RunResult),
		noBody:     make(map[int]bool),
	}
}

func (h *mockScriptHost) setCondition(address int, results ...ConditionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conditions[address] = results
}

func (h *mockScriptHost) setRun(address int, results ...RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[address] = results
}

func (h *mockScriptHost) setNoBody(address int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.noBody[address] = true
}

func (h *mockScriptHost) Compile(_ context.Context, program *ProgramRecord) (ScriptHandles, []ProgramError, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.noBody[program.Address] {
		return ScriptHandles{Condition: "cond"}, nil, nil
	}
	return ScriptHandles{Condition: "cond", Body: "body"}, nil, nil
}

func (h *mockScriptHost) EvaluateCondition(_ context.Context, program *ProgramRecord) ConditionResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	queue := h.conditions[program.Address]
	if len(queue) == 0 {
		return ConditionResult{Value: false}
	}
	result := queue[0]
	if len(queue) > 1 {
		h.conditions[program.Address] = queue[1:]
	}
	return result
}

func (h *mockScriptHost) Run(_ context.Context, program *ProgramRecord, options string) RunResult {
	h.mu.Lock()
	h.runCalls = append(h.runCalls, runCall{Address: program.Address, Options: options})
	queue := h.runs[program.Address]
	var result RunResult
	if len(queue) > 0 {
		result = queue[0]
		if len(queue) > 1 {
			h.runs[program.Address] = queue[1:]
		}
	}
	h.mu.Unlock()
	return result
}

func (h *mockScriptHost) Stop(program *ProgramRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopCalls = append(h.stopCalls, program.Address)
}

func (h *mockScriptHost) runCallCount(address int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.runCalls {
		if c.Address == address {
			n++
		}
	}
	return n
}

// ─── Mock ModulePublisher ───────────────────────────────────────────────────

type publishedEvent struct {
	Address  int
	Domain   string
	Property string
	Value    string
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{}
}

func (p *mockPublisher) RaiseEvent(address int, domain, property, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Address: address, Domain: domain, Property: property, Value: value})
}

func (p *mockPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *mockPublisher) last() (publishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return publishedEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

// ─── Mock ExecutionRecorder ─────────────────────────────────────────────────

type mockExecutionRecorder struct {
	mu    sync.Mutex
	execs []Execution
}

func newMockExecutionRecorder() *mockExecutionRecorder {
	return &mockExecutionRecorder{}
}

func (m *mockExecutionRecorder) CreateExecution(_ context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, *exec)
	return nil
}

func (m *mockExecutionRecorder) all() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, len(m.execs))
	copy(out, m.execs)
	return out
}

// ─── engineState fake ───────────────────────────────────────────────────────

type fakeEngineState struct {
	isRunning bool
	isEnabled bool
}

func (f fakeEngineState) running() bool { return f.isRunning }
func (f fakeEngineState) enabled() bool { return f.isEnabled }
