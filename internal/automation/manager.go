package automation

import (
	"context"
	"sync"
	"sync/atomic"
)

// ProgramManager is the façade over the program registry: lifecycle
// (add/remove), PID allocation, and the engine-wide enable/running flags
// that gate body dispatch across every program (spec.md §4.1).
//
// All operations are infallible at this level: underlying stop/delete
// calls swallow their own errors by design, since the thing they are
// cleaning up (a worker, an artifact file) may already be gone.
type ProgramManager struct {
	reg       *registry
	evaluator *ConditionEvaluator
	runner    *ProgramRunner
	router    *EventRouter
	repo      Repository
	host      ScriptHost
	log       Logger

	schedulersMu sync.Mutex
	schedulers   map[int]*TickScheduler

	engineRunning atomic.Bool
	engineEnabled atomic.Bool
}

// ManagerConfig bundles a ProgramManager's collaborators. Metrics is
// optional: when nil, execution history is still persisted via Repository
// but not mirrored to a time-series backend.
type ManagerConfig struct {
	Host       ScriptHost
	Publisher  ModulePublisher
	Repository Repository
	Metrics    ExecutionMetrics
	Logger     Logger
}

// NewProgramManager constructs a manager with an empty registry and starts
// its event router's workers. Populate it with Add (for example with the
// records from Repository.ListPrograms).
func NewProgramManager(cfg ManagerConfig) *ProgramManager {
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}

	m := &ProgramManager{
		reg:        newRegistry(),
		repo:       cfg.Repository,
		host:       cfg.Host,
		log:        log,
		schedulers: make(map[int]*TickScheduler),
	}
	m.evaluator = NewConditionEvaluator(cfg.Host, cfg.Publisher, log)
	m.runner = NewProgramRunner(cfg.Host, cfg.Publisher, cfg.Repository, cfg.Metrics, log)
	m.router = NewEventRouter(m.reg, m.evaluator, m.runner, m, log)
	m.engineRunning.Store(true)
	m.engineEnabled.Store(true)
	return m
}

// running implements engineState.
func (m *ProgramManager) running() bool { return m.engineRunning.Load() }

// enabled implements engineState.
func (m *ProgramManager) enabled() bool { return m.engineEnabled.Load() }

// SetEnabled flips the engine-wide enable flag. When false, the manager
// still accepts registrations but suppresses body dispatch in post-change
// routing and in tick evaluation (spec.md §4.1).
func (m *ProgramManager) SetEnabled(enabled bool) {
	m.engineEnabled.Store(enabled)
}

// Router returns the manager's EventRouter, the ModuleBus delivery target.
func (m *ProgramManager) Router() *EventRouter { return m.router }

// Add registers program, publishes its initial Idle status, and — if it is
// enabled — starts its tick scheduler.
func (m *ProgramManager) Add(program *ProgramRecord) bool {
	if !m.reg.Add(program) {
		return false
	}

	if m.runner.pub != nil {
		m.runner.pub.RaiseEvent(program.Address, program.Domain, "ProgramStatus", string(StatusIdle))
	}

	if program.Enabled() {
		m.startScheduler(program)
	}
	return true
}

// Remove disables program, stops its body and scheduler, removes it from
// the registry, and best-effort deletes its compiled artifacts. Failure to
// delete artifacts is non-fatal (spec.md §4.1, §7).
func (m *ProgramManager) Remove(ctx context.Context, address int) bool {
	program, ok := m.reg.Get(address)
	if !ok {
		return false
	}

	program.SetEnabled(false)
	m.stopScheduler(address)
	m.runner.Stop(program)
	m.reg.Remove(address)

	if m.repo != nil {
		if err := m.repo.DeleteProgramArtifacts(ctx, address); err != nil {
			m.log.Warn("artifact cleanup failed, continuing", "address", address, "error", err)
		}
	}
	return true
}

// GeneratePid returns 1 + the highest existing Address, floored at
// USERSpaceBase (spec.md §4.1, PID law in §8).
func (m *ProgramManager) GeneratePid() int {
	if max, ok := m.reg.MaxAddress(); ok && max+1 > USERSpaceBase {
		return max + 1
	}
	return USERSpaceBase
}

// StopAll flips engine-running to false, stops every program's tick
// scheduler, and requests every program's body stop. No join deadline is
// imposed on body stops (spec.md §5).
func (m *ProgramManager) StopAll() {
	m.engineRunning.Store(false)

	for _, program := range m.reg.Snapshot() {
		m.stopScheduler(program.Address)
		m.runner.Stop(program)
	}
}

// SetProgramEnabled toggles one program's enable flag, starting or
// stopping its tick scheduler accordingly.
func (m *ProgramManager) SetProgramEnabled(address int, enabled bool) bool {
	program, ok := m.reg.Get(address)
	if !ok {
		return false
	}

	program.SetEnabled(enabled)
	if enabled {
		m.startScheduler(program)
	} else {
		m.stopScheduler(address)
	}
	return true
}

// Get returns the program record at address.
func (m *ProgramManager) Get(address int) (*ProgramRecord, bool) {
	return m.reg.Get(address)
}

// List returns a snapshot of all registered programs, in registry order.
func (m *ProgramManager) List() []*ProgramRecord {
	return m.reg.Snapshot()
}

// Trigger manually invokes trigger evaluation and, if satisfied, dispatches
// the body — the same path a tick or event would take. Used by the manual
// "run now" API operation.
func (m *ProgramManager) Trigger(ctx context.Context, address int, options string) bool {
	program, ok := m.reg.Get(address)
	if !ok {
		return false
	}
	if !program.Enabled() || !m.running() || !m.enabled() {
		return false
	}
	if m.evaluator.Evaluate(ctx, program) {
		m.runner.Start(ctx, program, options, "manual")
		return true
	}
	return false
}

func (m *ProgramManager) startScheduler(program *ProgramRecord) {
	m.schedulersMu.Lock()
	defer m.schedulersMu.Unlock()

	if _, exists := m.schedulers[program.Address]; exists {
		return
	}
	sched := NewTickScheduler(program, m.evaluator, m.runner, m, m.log)
	sched.Start()
	m.schedulers[program.Address] = sched
}

func (m *ProgramManager) stopScheduler(address int) {
	m.schedulersMu.Lock()
	sched, exists := m.schedulers[address]
	if exists {
		delete(m.schedulers, address)
	}
	m.schedulersMu.Unlock()

	if exists {
		sched.Stop()
	}
}
