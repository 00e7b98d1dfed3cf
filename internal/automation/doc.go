// Package automation implements the hub's program manager.
//
// A program pairs a trigger condition with an action body, both compiled
// and evaluated by an external ScriptHost. The manager re-evaluates
// triggers against incoming module property changes and a one-minute
// wall-clock tick, and runs bodies with single-flight isolation: at most
// one body execution per program is ever active.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│              ProgramManager (manager.go)                 │
//	│  Lifecycle: Add/Remove/GeneratePid/StopAll/engine-Enabled │
//	│  ┌──────────────┐    ┌──────────────┐                   │
//	│  │   registry   │───▶│  Repository  │                   │
//	│  │(registry.go) │    │(repository.go)│                  │
//	│  └──────────────┘    └──────────────┘                   │
//	│        │                                                 │
//	│        ▼                                                 │
//	│  ┌───────────────┐   ┌────────────────┐   ┌────────────┐│
//	│  │ TickScheduler │   │  EventRouter   │   │ Condition- ││
//	│  │(scheduler.go) │──▶│  (router.go)   │──▶│ Evaluator  ││
//	│  └───────────────┘   └────────────────┘   └────────────┘│
//	│        │                     │                    │      │
//	│        └─────────────────────┴────────────────────┘      │
//	│                              ▼                            │
//	│                     ProgramRunner (runner.go)             │
//	│              single-flight body dispatch, fault→disable   │
//	└─────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - ProgramRecord: in-memory state of one program (config, status, last
//     evaluation, script errors), guarded by its own OperationLock
//   - ProgramManager: registry façade — lifecycle, PID allocation, engine
//     enable/running flags
//   - EventRouter: pre-change synchronous veto stage, post-change
//     worker-pool dispatch stage
//   - TickScheduler: per-program minute-aligned trigger re-evaluation
//   - ConditionEvaluator: applies ConditionType mode on top of a raw
//     ScriptHost boolean, with edge detection
//   - ProgramRunner: single-flight body dispatch with fault containment
//   - DynamicApiRegistry: command-URI dispatch, exact + pattern fallback
//
// # Thread Safety
//
// ProgramManager, registry, EventRouter, and DynamicApiRegistry are safe
// for concurrent use from multiple goroutines. A ProgramRecord's mutable
// fields are safe for concurrent access via its exported accessor methods,
// which take its OperationLock.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db, artifactsDir)
//	manager := automation.NewProgramManager(automation.ManagerConfig{
//	    Host:       scriptHost,
//	    Publisher:  modulePublisher,
//	    Repository: repo,
//	    Logger:     log,
//	})
//
//	programs, _ := repo.ListPrograms(ctx)
//	for _, p := range programs {
//	    manager.Add(p)
//	}
//
//	unsubscribe := moduleBus.Subscribe(manager.Router().Dispatch)
//	defer unsubscribe()
package automation
