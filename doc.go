// Package hostscript embeds a Lua or Python interpreter in a Go program and
// runs a directory of scripts against host functions.
//
// # Overview
//
// An [engine.Engine] owns one interpreter. Connect starts it, registers the
// host modules, and loads every script in the scripts directory. RunAll runs
// each loaded script once; RunCode runs a single string. A script that fails
// is reported in its Result and the rest still run.
//
// # Basic Usage
//
//	state := hostfunc.NewState(0)
//	registry, _ := hostfunc.NewRegistry(hostfunc.NewStateModule(state))
//
//	e, _ := engine.New(lua.New(), registry, engine.WithScriptsDir("scripts"))
//	if err := e.Connect(ctx); err != nil {
//	    return err
//	}
//	defer e.Disconnect()
//
//	summary, _ := e.RunAll(ctx)
//	fmt.Println(summary.Attempted, summary.Failed, state.Get())
//
// Scripts reach the host through the Module bridge:
//
//	print(Module.test(2))  -- 2 * state, then state += 1
//
// See the [engine], [hostfunc], [scripts], [language/lua] and
// [language/python] packages for detailed API documentation.
package hostscript
