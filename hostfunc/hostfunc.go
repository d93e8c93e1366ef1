package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	ErrDuplicateModule   = errors.New("duplicate module")
	ErrDuplicateFunction = errors.New("duplicate function")
	ErrInvalidName       = errors.New("invalid name")
	ErrUnknownFunction   = errors.New("unknown function")
	ErrUnknownModule     = errors.New("unknown module")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Func is a host function callable from script code.
type Func func(ctx context.Context, args Args) (any, error)

// Entry describes one function exposed by a [Module].
type Entry struct {
	Name  string
	Arity int // negative means variadic
	Doc   string
	Fn    Func
}

// Module is a named, ordered set of host functions. It is immutable once
// built by [NewModule].
type Module struct {
	name  string
	doc   string
	funcs []Entry
	index map[string]int
}

// NewModule builds a module from entries, keeping their order.
func NewModule(name, doc string, entries ...Entry) (*Module, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("module %q: %w", name, ErrInvalidName)
	}

	m := &Module{
		name:  name,
		doc:   doc,
		funcs: make([]Entry, 0, len(entries)),
		index: make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if !identPattern.MatchString(e.Name) {
			return nil, fmt.Errorf("function %q in module %s: %w", e.Name, name, ErrInvalidName)
		}
		if e.Fn == nil {
			return nil, fmt.Errorf("function %s.%s has no implementation", name, e.Name)
		}
		if _, ok := m.index[e.Name]; ok {
			return nil, fmt.Errorf("%s.%s: %w", name, e.Name, ErrDuplicateFunction)
		}
		m.index[e.Name] = len(m.funcs)
		m.funcs = append(m.funcs, e)
	}
	return m, nil
}

// MustModule is like NewModule but panics on error. Use it for static tables.
func MustModule(name, doc string, entries ...Entry) *Module {
	m, err := NewModule(name, doc, entries...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Module) Name() string { return m.name }
func (m *Module) Doc() string  { return m.doc }

// Funcs returns the module's functions in definition order.
func (m *Module) Funcs() []Entry {
	out := make([]Entry, len(m.funcs))
	copy(out, m.funcs)
	return out
}

// FuncNames returns the function names in definition order.
func (m *Module) FuncNames() []string {
	names := make([]string, len(m.funcs))
	for i, e := range m.funcs {
		names[i] = e.Name
	}
	return names
}

func (m *Module) Lookup(name string) (Entry, bool) {
	i, ok := m.index[name]
	if !ok {
		return Entry{}, false
	}
	return m.funcs[i], true
}

// Call validates arity and invokes fn. ArgumentErrors returned by the
// function carry the qualified function name.
func (m *Module) Call(ctx context.Context, fn string, args Args) (any, error) {
	e, ok := m.Lookup(fn)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", m.name, fn, ErrUnknownFunction)
	}

	qualified := m.name + "." + fn
	if e.Arity >= 0 && len(args) != e.Arity {
		return nil, &ArgumentError{
			Func:   qualified,
			Index:  -1,
			Reason: fmt.Sprintf("expected %d argument(s), got %d", e.Arity, len(args)),
		}
	}

	result, err := e.Fn(ctx, args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) && argErr.Func == "" {
			argErr.Func = qualified
		}
		return nil, err
	}
	return result, nil
}

// Registry is the ordered table of modules handed to an interpreter.
type Registry struct {
	mu      sync.RWMutex
	modules []*Module
	byName  map[string]*Module
}

func NewRegistry(modules ...*Module) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Module)}
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[m.Name()]; ok {
		return fmt.Errorf("module %s: %w", m.Name(), ErrDuplicateModule)
	}
	r.byName[m.Name()] = m
	r.modules = append(r.modules, m)
	return nil
}

func (r *Registry) Lookup(name string) (*Module, bool) {
	r.mu.RLock()
	m, ok := r.byName[name]
	r.mu.RUnlock()
	return m, ok
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Call dispatches a qualified "Module.fn" name.
func (r *Registry) Call(ctx context.Context, qualified string, args Args) (any, error) {
	modName, fn, ok := strings.Cut(qualified, ".")
	if !ok {
		return nil, fmt.Errorf("%s: %w", qualified, ErrUnknownFunction)
	}
	m, ok := r.Lookup(modName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", qualified, ErrUnknownFunction)
	}
	return m.Call(ctx, fn, args)
}
