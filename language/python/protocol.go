package python

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/hostscript/hostfunc"
)

// Protocol constants shared with the prelude. Format: \x00HOSTSCRIPT:{json}\x00
const (
	protocolPrefix = "\x00HOSTSCRIPT:"
	protocolSuffix = "\x00"
)

const (
	kindArgument = "argument"
	kindRuntime  = "runtime"
)

type callRequest struct {
	Fn   string `json:"fn"`
	Args []any  `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// protocolHandler intercepts stderr to handle host function calls.
// Regular stderr output passes through; protocol messages trigger host calls
// whose responses are written to the interpreter's stdin, one JSON per line.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter io.Writer
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	mu          sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter io.Writer) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		startIdx := strings.Index(content, protocolPrefix)
		if startIdx == -1 {
			// Keep a possible partial prefix for the next write.
			keep := partialPrefixLen(content)
			p.realStderr.WriteString(content[:len(content)-keep])
			p.buf.Reset()
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		p.realStderr.WriteString(content[:startIdx])

		payloadStart := startIdx + len(protocolPrefix)
		endIdx := strings.Index(content[payloadStart:], protocolSuffix)
		if endIdx == -1 {
			p.buf.Reset()
			p.buf.WriteString(content[startIdx:])
			break
		}

		payload := content[payloadStart : payloadStart+endIdx]
		p.buf.Reset()
		p.buf.WriteString(content[payloadStart+endIdx+len(protocolSuffix):])

		req, err := decodeRequest([]byte(payload))
		if err != nil {
			p.respond(callResponse{Error: "invalid call format", Kind: kindRuntime})
			continue
		}
		p.respond(p.handleCall(req))
	}

	return len(data), nil
}

// partialPrefixLen returns how many trailing bytes of s could begin a
// protocol prefix.
func partialPrefixLen(s string) int {
	for n := min(len(protocolPrefix)-1, len(s)); n > 0; n-- {
		if strings.HasPrefix(protocolPrefix, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(callResponse{Error: "unencodable result: " + err.Error(), Kind: kindRuntime})
	}
	// Asynchronous: the pipe blocks until the interpreter reads stdin.
	go p.stdinWriter.Write(append(data, '\n'))
}

func (p *protocolHandler) handleCall(req callRequest) callResponse {
	result, err := p.registry.Call(p.ctx, req.Fn, hostfunc.Args(req.Args))
	if err != nil {
		var argErr *hostfunc.ArgumentError
		if errors.As(err, &argErr) {
			return callResponse{Error: argErr.Error(), Kind: kindArgument}
		}
		return callResponse{Error: err.Error(), Kind: kindRuntime}
	}
	return callResponse{Data: result}
}

// Stderr returns stderr output that was not part of the protocol.
func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String() + p.buf.String()
}

// decodeRequest keeps JSON integers as int64 so argument checks can tell
// 2 from 2.0.
func decodeRequest(data []byte) (callRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var req callRequest
	if err := dec.Decode(&req); err != nil {
		return callRequest{}, err
	}
	if req.Fn == "" {
		return callRequest{}, errors.New("missing fn")
	}
	for i, a := range req.Args {
		req.Args[i] = normalizeNumbers(a)
	}
	return req, nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil && !strings.ContainsAny(v.String(), ".eE") {
			return i
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
		return v
	default:
		return v
	}
}
