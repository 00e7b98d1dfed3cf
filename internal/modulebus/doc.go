// Package modulebus provides a reference implementation of the module
// registry and event bus the program manager (internal/automation) treats
// as an external collaborator.
//
// A Module is a minimal addressable unit on the hub's module bus: an
// identity (ID, Domain, Protocol) plus its last-known parameter values. It
// deliberately carries none of a specific wire protocol's address format or
// capability taxonomy — that belongs to whatever bridge fronts the real
// hardware, not to the program manager's view of it.
//
// Registry caches Modules in memory over a Repository, the same
// cache-over-repository shape as the hub's device registry: reads are
// served from cache, writes go through the repository first and then
// update the cache.
//
// Bus wraps a Registry with an MQTT transport, subscribing to every
// module's state topic and translating each incoming message into an
// automation.PropertyChange delivered to every automation.ModuleBus
// subscriber (normally automation.ProgramManager.Router().Dispatch). It
// also implements automation.ModulePublisher: a program's RaiseEvent call
// is published both as an MQTT mirror topic and as a parameter set on a
// synthetic per-program mirror module, so other programs can observe it
// exactly like a real module's state change.
//
// # Usage
//
//	repo := modulebus.NewSQLiteRepository(db)
//	reg := modulebus.NewRegistry(repo)
//	reg.RefreshCache(ctx)
//
//	bus := modulebus.NewBus(mqttClient, reg)
//	bus.SetLogger(log)
//	bus.Start(ctx)
//	defer bus.Stop()
//
//	unsubscribe := bus.Subscribe(manager.Router().Dispatch)
//	defer unsubscribe()
package modulebus
