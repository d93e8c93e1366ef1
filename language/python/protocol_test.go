package python

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, initial int64) (*protocolHandler, *bufio.Reader, *hostfunc.State) {
	t.Helper()
	state := hostfunc.NewState(initial)
	registry, err := hostfunc.NewRegistry(hostfunc.NewStateModule(state))
	require.NoError(t, err)

	pr, pw := io.Pipe()
	t.Cleanup(func() { pr.Close() })
	return newProtocolHandler(context.Background(), registry, pw), bufio.NewReader(pr), state
}

func readResponse(t *testing.T, r *bufio.Reader) callResponse {
	t.Helper()
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp callResponse
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestProtocolCall(t *testing.T) {
	h, stdin, state := newTestHandler(t, 3)

	_, err := h.Write([]byte("before\x00HOSTSCRIPT:{\"fn\":\"Module.test\",\"args\":[2]}\x00after"))
	require.NoError(t, err)

	resp := readResponse(t, stdin)
	assert.Empty(t, resp.Error)
	assert.EqualValues(t, 6, resp.Data)
	assert.Equal(t, int64(4), state.Get())
	assert.Equal(t, "beforeafter", h.Stderr())
}

func TestProtocolSplitFrame(t *testing.T) {
	h, stdin, state := newTestHandler(t, 1)

	frame := "\x00HOSTSCRIPT:{\"fn\":\"Module.test\",\"args\":[5]}\x00"
	for _, chunk := range []string{"x", frame[:4], frame[4:20], frame[20:]} {
		_, err := h.Write([]byte(chunk))
		require.NoError(t, err)
	}

	resp := readResponse(t, stdin)
	assert.EqualValues(t, 5, resp.Data)
	assert.Equal(t, int64(2), state.Get())
	assert.Equal(t, "x", h.Stderr())
}

func TestProtocolArgumentError(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"float", `[2.0]`},
		{"string", `["2"]`},
		{"missing", `[]`},
		{"extra", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, stdin, state := newTestHandler(t, 7)

			_, err := h.Write([]byte("\x00HOSTSCRIPT:{\"fn\":\"Module.test\",\"args\":" + tt.args + "}\x00"))
			require.NoError(t, err)

			resp := readResponse(t, stdin)
			assert.Equal(t, kindArgument, resp.Kind)
			assert.Contains(t, resp.Error, "Module.test")
			assert.Equal(t, int64(7), state.Get())
		})
	}
}

func TestProtocolUnknownFunction(t *testing.T) {
	h, stdin, _ := newTestHandler(t, 0)

	_, err := h.Write([]byte("\x00HOSTSCRIPT:{\"fn\":\"Module.nope\",\"args\":[]}\x00"))
	require.NoError(t, err)

	resp := readResponse(t, stdin)
	assert.Equal(t, kindRuntime, resp.Kind)
	assert.Contains(t, resp.Error, "unknown function")
}

func TestProtocolInvalidFrame(t *testing.T) {
	h, stdin, _ := newTestHandler(t, 0)

	_, err := h.Write([]byte("\x00HOSTSCRIPT:not json\x00"))
	require.NoError(t, err)

	resp := readResponse(t, stdin)
	assert.Equal(t, "invalid call format", resp.Error)
}

func TestPartialPrefixLen(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 0},
		{"hello\x00", 1},
		{"hello\x00HOST", 5},
		{"\x00HOSTSCRIPT", 11},
		{"hello\x00HOSTX", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partialPrefixLen(tt.in), "%q", tt.in)
	}
}

func TestDecodeRequestNumbers(t *testing.T) {
	req, err := decodeRequest([]byte(`{"fn":"kv.set","args":[1, 1.5, 2e3, [3, 4.25], {"n": 5}]}`))
	require.NoError(t, err)

	assert.Equal(t, "kv.set", req.Fn)
	assert.Equal(t, []any{
		int64(1),
		1.5,
		2000.0,
		[]any{int64(3), 4.25},
		map[string]any{"n": int64(5)},
	}, req.Args)
}

func TestDecodeRequestMissingFn(t *testing.T) {
	_, err := decodeRequest([]byte(`{"args":[]}`))
	assert.Error(t, err)
}
