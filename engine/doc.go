// Package engine sequences the life of an embedded script interpreter.
//
// # Overview
//
// An [Engine] connects to an interpreter, registers host modules from a
// [hostfunc.Registry], discovers scripts in a directory, runs each of them
// once, and finally disconnects, releasing the interpreter.
//
// # Basic Usage
//
//	state := hostfunc.NewState(1)
//	registry, _ := hostfunc.NewRegistry(hostfunc.NewStateModule(state))
//
//	eng, err := engine.New(lua.New(), registry, engine.WithScriptsDir("./scripts"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Disconnect()
//
//	summary, _ := eng.RunAll(ctx)
//	fmt.Println(summary.Attempted, state.Get())
//
// # Lifecycle
//
// Connect on a connected engine returns [ErrAlreadyConnected] and
// Disconnect on a disconnected one returns [ErrAlreadyDisconnected]; neither
// has side effects. RunAll and RunCode require a connected engine and
// report [ErrNotConnected] otherwise. A disconnected engine can connect
// again with a fresh interpreter.
//
// Script failures never abort RunAll: each failure is logged, counted, and
// recorded as a [ScriptError] in the script's [Result].
//
// # Language Interface
//
// To add support for a new language, implement [Language] and
// [Interpreter]. See [github.com/caffeineduck/hostscript/language/lua].
package engine
