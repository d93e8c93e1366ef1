package hostfunc

import "fmt"

// Args holds positional arguments passed from script code. Values are one of
// nil, bool, int64, float64, string, []any or map[string]any.
type Args []any

// ArgumentError reports script-supplied arguments that do not match a host
// function's signature. Interpreter backends surface it to scripts as the
// calling module's own error type.
type ArgumentError struct {
	Func   string // qualified name, e.g. "Module.test"
	Index  int    // zero-based argument index, -1 for arity errors
	Want   string
	Got    string
	Reason string
}

func (e *ArgumentError) Error() string {
	prefix := e.Func
	if prefix == "" {
		prefix = "host function"
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Reason)
	}
	return fmt.Sprintf("%s: argument %d: expected %s, got %s", prefix, e.Index+1, e.Want, e.Got)
}

// Expect checks that exactly n arguments were passed.
func (a Args) Expect(n int) error {
	if len(a) != n {
		return &ArgumentError{Index: -1, Reason: fmt.Sprintf("expected %d argument(s), got %d", n, len(a))}
	}
	return nil
}

// Int returns argument i as an integer. Floats, strings and booleans are
// rejected; no coercion is applied.
func (a Args) Int(i int) (int64, error) {
	if i >= len(a) {
		return 0, &ArgumentError{Index: i, Want: "integer", Got: "nothing"}
	}
	switch v := a[i].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return 0, &ArgumentError{Index: i, Want: "integer", Got: TypeName(a[i])}
}

func (a Args) String(i int) (string, error) {
	if i >= len(a) {
		return "", &ArgumentError{Index: i, Want: "string", Got: "nothing"}
	}
	s, ok := a[i].(string)
	if !ok {
		return "", &ArgumentError{Index: i, Want: "string", Got: TypeName(a[i])}
	}
	return s, nil
}

// Optional returns argument i, or nil when it was not passed.
func (a Args) Optional(i int) any {
	if i >= len(a) {
		return nil
	}
	return a[i]
}

// TypeName names a script value's type for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		return "float"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "table"
	default:
		return fmt.Sprintf("%T", v)
	}
}
