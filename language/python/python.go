// Package python provides the Python language adapter for hostscript. The
// interpreter is a WASI build of Python (e.g. RustPython) run with wazero.
package python

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/caffeineduck/hostscript/engine"
	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

var (
	ErrStarted    = errors.New("interpreter already started")
	ErrNotStarted = errors.New("interpreter not started")
	ErrNoModule   = errors.New("no interpreter module")
)

//go:embed prelude.py.tmpl
var preludeSource string

var preludeTemplate = template.Must(template.New("prelude").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	Parse(preludeSource))

// Python implements engine.Language for Python scripts.
type Python struct {
	module           []byte
	memoryLimitPages uint32
	cacheDir         string
}

// Option configures the Python adapter.
type Option func(*Python)

// WithMemoryLimit caps interpreter memory. Each page is 64KB; zero keeps
// the wazero default.
func WithMemoryLimit(pages uint32) Option {
	return func(p *Python) {
		p.memoryLimitPages = pages
	}
}

// WithDiskCache keeps compiled interpreter code in dir across processes.
// An empty dir uses XDG_CACHE_HOME/hostscript or ~/.cache/hostscript.
func WithDiskCache(dir string) Option {
	return func(p *Python) {
		if dir == "" {
			dir = DefaultCacheDir()
		}
		p.cacheDir = dir
	}
}

// DefaultCacheDir returns the compilation cache directory used by
// WithDiskCache("").
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "hostscript")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "hostscript")
	}
	return filepath.Join(os.TempDir(), "hostscript-cache")
}

// New returns a Python adapter running the given interpreter WASM binary.
func New(module []byte, opts ...Option) *Python {
	p := &Python{module: module}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromFile reads the interpreter WASM binary from path.
func FromFile(path string, opts ...Option) (*Python, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read python module: %w", err)
	}
	return New(data, opts...), nil
}

// Name returns "python".
func (p *Python) Name() string { return "python" }

// Extension returns ".py".
func (p *Python) Extension() string { return ".py" }

func (p *Python) NewInterpreter() (engine.Interpreter, error) {
	if len(p.module) == 0 {
		return nil, ErrNoModule
	}
	registry, _ := hostfunc.NewRegistry()
	return &interpreter{lang: p, registry: registry}, nil
}

// interpreter compiles the Python module once and instantiates it for
// every Exec. Interpreter globals do not survive between executions.
type interpreter struct {
	lang     *Python
	registry *hostfunc.Registry
	imports  []string

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
}

func (i *interpreter) Register(mod *hostfunc.Module) error {
	if i.runtime != nil {
		return ErrStarted
	}
	return i.registry.Register(mod)
}

func (i *interpreter) Start(ctx context.Context) error {
	if i.runtime != nil {
		return ErrStarted
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if i.lang.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(i.lang.memoryLimitPages)
	}

	var cache wazero.CompilationCache
	if i.lang.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(i.lang.cacheDir)
		if err != nil {
			return fmt.Errorf("create disk cache: %w", err)
		}
		rtConfig = rtConfig.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	fail := func(err error) error {
		rt.Close(ctx)
		if cache != nil {
			cache.Close(ctx)
		}
		return err
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return fail(fmt.Errorf("instantiate WASI: %w", err))
	}

	compiled, err := rt.CompileModule(ctx, i.lang.module)
	if err != nil {
		return fail(fmt.Errorf("compile python: %w", err))
	}

	i.runtime = rt
	i.compiled = compiled
	i.cache = cache
	return nil
}

// Import makes the prelude bind the module as a global.
func (i *interpreter) Import(ctx context.Context, name string) error {
	if i.runtime == nil {
		return ErrNotStarted
	}
	if _, ok := i.registry.Lookup(name); !ok {
		return fmt.Errorf("%s: %w", name, hostfunc.ErrUnknownModule)
	}
	i.imports = append(i.imports, name)
	return nil
}

// ExitError reports a non-zero interpreter exit.
type ExitError struct {
	Code   uint32
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("python exited with status %d", e.Code)
	}
	return fmt.Sprintf("python exited with status %d: %s", e.Code, msg)
}

func (e *ExitError) ExitCode() int { return int(e.Code) }

func (i *interpreter) Exec(ctx context.Context, chunk, source string, out io.Writer) error {
	if i.runtime == nil {
		return ErrNotStarted
	}

	prelude, err := i.prelude()
	if err != nil {
		return err
	}

	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, i.registry, stdinWriter)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(out).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs("python", "-c", prelude+"\n"+source).
		WithEnv("HOSTSCRIPT_CHUNK", chunk).
		WithName("")

	mod, err := i.runtime.InstantiateModule(ctx, i.compiled, moduleConfig)
	stdinWriter.Close()
	if mod != nil {
		mod.Close(ctx)
	}

	stderr := protocol.Stderr()
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				io.WriteString(out, stderr)
				return nil
			}
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr}
		}
		return fmt.Errorf("execution failed: %w", err)
	}

	io.WriteString(out, stderr)
	return nil
}

func (i *interpreter) prelude() (string, error) {
	type moduleData struct {
		Name  string
		Doc   string
		Funcs []string
	}
	data := struct {
		Modules []moduleData
		Imports []string
	}{Imports: i.imports}

	for _, m := range i.registry.Modules() {
		data.Modules = append(data.Modules, moduleData{Name: m.Name(), Doc: m.Doc(), Funcs: m.FuncNames()})
	}

	var buf bytes.Buffer
	if err := preludeTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prelude: %w", err)
	}
	return buf.String(), nil
}

func (i *interpreter) Close() error {
	if i.runtime == nil {
		return nil
	}
	ctx := context.Background()
	err := i.runtime.Close(ctx)
	if i.cache != nil {
		if cerr := i.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	i.runtime = nil
	i.compiled = nil
	i.cache = nil
	return err
}
