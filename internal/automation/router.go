package automation

import "context"

// eventWorkerPoolSize bounds concurrent post-change dispatch tasks, the
// same bounded-concurrency shape the teacher's scene engine uses for
// parallel action groups (spec.md §9: "any bounded-concurrency task
// dispatch; the only contract is that tasks run eventually and do not
// block the caller of PropertyChange").
const eventWorkerPoolSize = 8

// EventRouter delivers a PropertyChange through every enabled program's
// pre-change and post-change stages, per spec.md §4.5.
//
// Pre-change runs synchronously, on the caller's goroutine, in registry
// order; it can veto propagation (hook returns false) or halt it (hook
// mutates the parameter). Post-change is handed off to a bounded worker
// pool so PropertyChange never blocks its caller.
type EventRouter struct {
	registry  *registry
	evaluator *ConditionEvaluator
	runner    *ProgramRunner
	engine    engineState
	log       Logger

	tasks chan func()
}

// NewEventRouter constructs a router and starts its worker pool.
func NewEventRouter(reg *registry, evaluator *ConditionEvaluator, runner *ProgramRunner, engine engineState, log Logger) *EventRouter {
	if log == nil {
		log = noopLogger{}
	}
	r := &EventRouter{
		registry:  reg,
		evaluator: evaluator,
		runner:    runner,
		engine:    engine,
		log:       log,
		tasks:     make(chan func(), eventWorkerPoolSize*4),
	}
	for i := 0; i < eventWorkerPoolSize; i++ {
		go r.worker()
	}
	return r
}

func (r *EventRouter) worker() {
	for task := range r.tasks {
		task()
	}
}

// Dispatch runs the pre-change stage synchronously and, if it survives,
// schedules the post-change stage on the worker pool. It never blocks
// waiting for post-change to complete.
func (r *EventRouter) Dispatch(change PropertyChange) {
	snapshot := r.registry.Snapshot()

	if !r.preChange(snapshot, change) {
		return
	}

	r.tasks <- func() {
		r.postChange(snapshot, change)
	}
}

// preChange is the synchronous veto/mutation-halt stage. It returns false
// if propagation should stop here (the post-change stage must not run).
func (r *EventRouter) preChange(programs []*ProgramRecord, change PropertyChange) bool {
	for _, p := range programs {
		if !p.Enabled() {
			continue
		}
		if change.SenderAddress == p.Address {
			continue // self-loop suppression by address
		}
		if p.PreChangeHook == nil {
			continue
		}

		helper := moduleHelper{module: change.Module, domain: change.Domain}
		ok := p.PreChangeHook(helper, change.Parameter)
		if !ok {
			return false
		}
		if change.Parameter != nil && change.Parameter.Mutated() {
			return false
		}
	}
	return true
}

// postChange runs on a worker-pool goroutine: for each program, it
// independently dispatches trigger re-evaluation and invokes the
// post-change hook. A hook that halts stops processing of the remaining
// programs in this iteration (both their hook call and their evaluate/run
// dispatch).
func (r *EventRouter) postChange(programs []*ProgramRecord, change PropertyChange) {
	ctx := context.Background()

	for _, p := range programs {
		if change.SenderRef != nil && change.SenderRef == p {
			continue // self-loop suppression by identity
		}
		if !p.Enabled() {
			continue
		}

		if !p.Running() && p.Enabled() && r.engine.running() && r.engine.enabled() {
			go func(program *ProgramRecord) {
				if r.evaluator.Evaluate(ctx, program) {
					r.runner.Start(ctx, program, "", "event")
				}
			}(p)
		}

		if p.PostChangeHook == nil || change.Parameter == nil {
			continue
		}

		helper := moduleHelper{module: change.Module, domain: change.Domain}
		ok := p.PostChangeHook(helper, change.Parameter)
		if !ok || change.Parameter.Mutated() {
			return
		}
	}
}

// moduleHelper is the default ModuleHelper implementation handed to hooks.
type moduleHelper struct {
	module string
	domain string
}

func (m moduleHelper) ModuleAddress() string { return m.module }
func (m moduleHelper) ModuleDomain() string  { return m.domain }
