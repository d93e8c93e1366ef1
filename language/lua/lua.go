// Package lua provides the Lua language adapter for hostscript, backed by
// gopher-lua.
package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/hostscript/engine"
	"github.com/caffeineduck/hostscript/hostfunc"
	lua "github.com/yuin/gopher-lua"
)

var (
	ErrStarted    = errors.New("interpreter already started")
	ErrNotStarted = errors.New("interpreter not started")
)

// Lua implements engine.Language for Lua 5.1 scripts.
type Lua struct {
	safeLibs bool
}

// Option configures the Lua adapter.
type Option func(*Lua)

// WithSafeLibs opens only the base, package, table, string and math
// libraries. Scripts get no io or os access.
func WithSafeLibs() Option {
	return func(l *Lua) {
		l.safeLibs = true
	}
}

// New returns a Lua language adapter.
func New(opts ...Option) *Lua {
	l := &Lua{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns "lua".
func (l *Lua) Name() string { return "lua" }

// Extension returns ".lua".
func (l *Lua) Extension() string { return ".lua" }

func (l *Lua) NewInterpreter() (engine.Interpreter, error) {
	return &interpreter{safeLibs: l.safeLibs}, nil
}

type interpreter struct {
	safeLibs bool
	modules  []*hostfunc.Module

	L   *lua.LState
	out io.Writer
}

func (i *interpreter) Register(mod *hostfunc.Module) error {
	if i.L != nil {
		return ErrStarted
	}
	for _, m := range i.modules {
		if m.Name() == mod.Name() {
			return fmt.Errorf("module %s: %w", mod.Name(), hostfunc.ErrDuplicateModule)
		}
	}
	i.modules = append(i.modules, mod)
	return nil
}

func (i *interpreter) Start(ctx context.Context) error {
	if i.L != nil {
		return ErrStarted
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: i.safeLibs})
	if i.safeLibs {
		if err := openSafeLibs(L); err != nil {
			L.Close()
			return err
		}
	}

	L.SetGlobal("print", L.NewFunction(i.print))

	for _, mod := range i.modules {
		L.PreloadModule(mod.Name(), func(L *lua.LState) int {
			L.Push(i.moduleTable(L, mod))
			return 1
		})
	}

	i.L = L
	return nil
}

func openSafeLibs(L *lua.LState) error {
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			return fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	return nil
}

// Import requires the module and binds it to a global of the same name.
func (i *interpreter) Import(ctx context.Context, name string) error {
	if i.L == nil {
		return ErrNotStarted
	}
	L := i.L
	err := L.CallByParam(lua.P{Fn: L.GetGlobal("require"), NRet: 1, Protect: true}, lua.LString(name))
	if err != nil {
		return err
	}
	mod := L.Get(-1)
	L.Pop(1)
	L.SetGlobal(name, mod)
	return nil
}

func (i *interpreter) Exec(ctx context.Context, chunk, source string, out io.Writer) error {
	if i.L == nil {
		return ErrNotStarted
	}
	L := i.L

	i.out = out
	defer func() {
		i.out = nil
		L.SetTop(0)
	}()

	fn, err := L.Load(strings.NewReader(source), chunk)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return unwrapError(err)
	}
	return nil
}

func (i *interpreter) Close() error {
	if i.L != nil {
		i.L.Close()
		i.L = nil
	}
	return nil
}

// print replaces the base library's print so output reaches the
// execution's writer.
func (i *interpreter) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, top)
	for n := 1; n <= top; n++ {
		parts[n-1] = L.ToStringMeta(L.Get(n)).String()
	}
	if i.out != nil {
		fmt.Fprintln(i.out, strings.Join(parts, "\t"))
	}
	return 0
}

// moduleTable builds the Lua table for mod. Its error field is the
// metatable of every ArgumentError raised by the module's functions.
func (i *interpreter) moduleTable(L *lua.LState, mod *hostfunc.Module) *lua.LTable {
	errType := L.NewTable()
	L.SetField(errType, "__name", lua.LString(mod.Name()+".error"))
	L.SetField(errType, "__tostring", L.NewFunction(errorToString))
	L.SetField(errType, "__index", L.NewFunction(errorIndex))

	tbl := L.NewTable()
	L.SetField(tbl, "__doc", lua.LString(mod.Doc()))
	L.SetField(tbl, "error", errType)
	for _, entry := range mod.Funcs() {
		L.SetField(tbl, entry.Name, L.NewFunction(bind(mod, entry.Name, errType)))
	}
	return tbl
}

func bind(mod *hostfunc.Module, fn string, errType *lua.LTable) lua.LGFunction {
	qualified := mod.Name() + "." + fn
	return func(L *lua.LState) int {
		top := L.GetTop()
		args := make(hostfunc.Args, top)
		for n := 1; n <= top; n++ {
			v, err := fromLua(L.Get(n), 0)
			if err != nil {
				raiseArgumentError(L, errType, &hostfunc.ArgumentError{
					Func:   qualified,
					Index:  n - 1,
					Reason: fmt.Sprintf("argument %d: %v", n, err),
				})
				return 0
			}
			args[n-1] = v
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result, err := mod.Call(ctx, fn, args)
		if err != nil {
			var argErr *hostfunc.ArgumentError
			if errors.As(err, &argErr) {
				raiseArgumentError(L, errType, argErr)
				return 0
			}
			L.RaiseError("%s: %v", qualified, err)
			return 0
		}

		L.Push(toLua(L, result))
		return 1
	}
}

func raiseArgumentError(L *lua.LState, errType *lua.LTable, argErr *hostfunc.ArgumentError) {
	ud := L.NewUserData()
	ud.Value = argErr
	L.SetMetatable(ud, errType)
	L.Error(ud, 1)
}

func errorToString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	if err, ok := ud.Value.(error); ok {
		L.Push(lua.LString(err.Error()))
	} else {
		L.Push(lua.LString("error"))
	}
	return 1
}

// errorIndex exposes message, func and index on a raised ArgumentError.
func errorIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)

	argErr, ok := ud.Value.(*hostfunc.ArgumentError)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}

	switch key {
	case "message":
		L.Push(lua.LString(argErr.Error()))
	case "func":
		L.Push(lua.LString(argErr.Func))
	case "index":
		if argErr.Index < 0 {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LNumber(argErr.Index + 1))
		}
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// unwrapError turns an escaped ArgumentError back into its Go value.
func unwrapError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if ud, ok := apiErr.Object.(*lua.LUserData); ok {
			if argErr, ok := ud.Value.(*hostfunc.ArgumentError); ok {
				return fmt.Errorf("uncaught %w", argErr)
			}
		}
	}
	return err
}
