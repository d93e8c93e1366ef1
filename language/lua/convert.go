package lua

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

const maxTableDepth = 32

var errTooDeep = errors.New("table nested too deeply")

// fromLua converts a Lua value into the plain Go values host functions
// accept. Integral numbers become int64.
func fromLua(v lua.LValue, depth int) (any, error) {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		if depth >= maxTableDepth {
			return nil, errTooDeep
		}
		return tableFromLua(v, depth+1)
	default:
		return nil, fmt.Errorf("unsupported %s value", v.Type())
	}
}

// tableFromLua returns a list for sequences 1..n and a map otherwise.
func tableFromLua(t *lua.LTable, depth int) (any, error) {
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n := t.MaxN(); n > 0 && n == count {
		list := make([]any, n)
		for i := 1; i <= n; i++ {
			v, err := fromLua(t.RawGetInt(i), depth)
			if err != nil {
				return nil, err
			}
			list[i-1] = v
		}
		return list, nil
	}

	m := make(map[string]any, count)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		gv, err := fromLua(v, depth)
		if err != nil {
			firstErr = err
			return
		}
		m[k.String()] = gv
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []string:
		tbl := L.CreateTable(len(v), 0)
		for i, s := range v {
			tbl.RawSetInt(i+1, lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for i, e := range v {
			tbl.RawSetInt(i+1, toLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for k, e := range v {
			tbl.RawSetString(k, toLua(L, e))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
