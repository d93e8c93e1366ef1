// Package hostfunc defines the host functions that script code can call.
//
// Host functions are grouped into named [Module] values. A module is built
// once, registered with an interpreter before it starts, and never changes
// afterwards. Each function receives positional [Args] and returns a plain Go
// value, which interpreter backends convert to and from their own value
// representation.
//
// # Modules
//
//	mod, err := hostfunc.NewModule("greet", "Greeting helpers",
//	    hostfunc.Entry{Name: "hello", Arity: 1, Fn: func(ctx context.Context, args hostfunc.Args) (any, error) {
//	        name, err := args.String(0)
//	        if err != nil {
//	            return nil, err
//	        }
//	        return "Hello, " + name, nil
//	    }},
//	)
//
// Arguments of the wrong count or type produce an [ArgumentError]. Backends
// raise it inside the script as the module's own error type, so scripts can
// catch it without catching every failure.
//
// # Shared State
//
// [State] is a single integer shared by host and scripts. [NewStateModule]
// exposes it as Module.test:
//
//	state := hostfunc.NewState(2)
//	registry, _ := hostfunc.NewRegistry(hostfunc.NewStateModule(state))
//	// script: Module.test(10) -> 20, state is now 3
//
// [KVStore] and [NewKVModule] share string-keyed values in the same way.
package hostfunc
