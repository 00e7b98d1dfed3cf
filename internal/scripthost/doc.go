// Package scripthost provides ClosureHost, a minimal reference
// implementation of the automation.ScriptHost contract.
//
// Conditions and bodies are registered as plain Go closures per program
// address rather than compiled from any scripting language: this is
// intentionally small, good enough to run the demo binary and exercise the
// program manager end to end. A real scripting host (Lua, JS, a DSL) is out
// of scope; nothing in the retrieved example pack ships a scripting-engine
// dependency to ground a fuller one on.
//
// # Usage
//
//	host := scripthost.NewClosureHost()
//	host.RegisterCondition(1080, func(ctx context.Context) (bool, error) {
//	    return true, nil
//	})
//	host.RegisterBody(1080, func(ctx context.Context, options string) (any, error) {
//	    return nil, nil
//	})
//
//	manager := automation.NewProgramManager(automation.ManagerConfig{
//	    Host: host,
//	    ...
//	})
package scripthost
