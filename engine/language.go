package engine

import (
	"context"
	"io"

	"github.com/caffeineduck/hostscript/hostfunc"
)

// Language creates interpreters for one scripting language.
// Implement this interface to add support for a new language.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "lua", "python").
	Name() string

	// Extension returns the file extension of scripts in this language,
	// including the dot. It is the default discovery filter.
	Extension() string

	// NewInterpreter returns a fresh, unstarted interpreter.
	NewInterpreter() (Interpreter, error)
}

// Interpreter is one interpreter runtime. The engine drives it through
// Register, Start, Import, then any number of Exec calls, then Close.
type Interpreter interface {
	// Register adds a host module to the interpreter's module table.
	// It fails once the interpreter has started.
	Register(mod *hostfunc.Module) error

	// Start initializes the runtime. Registered modules become importable.
	Start(ctx context.Context) error

	// Import binds a registered module into the global namespace.
	Import(ctx context.Context, name string) error

	// Exec runs source once. chunk names the code in diagnostics. Script
	// output goes to out. Errors may implement ExitCode() int to report the
	// interpreter's status code.
	Exec(ctx context.Context, chunk, source string, out io.Writer) error

	// Close releases every resource owned by the runtime.
	Close() error
}
