package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/caffeineduck/hostscript/scripts"
	"github.com/google/uuid"
)

// State is the lifecycle state of an Engine.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine owns one interpreter and the scripts loaded for it.
type Engine struct {
	lang     Language
	registry *hostfunc.Registry
	cfg      config
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	interp  Interpreter
	records []scripts.Record
}

// New creates a disconnected Engine. The registry's modules are registered
// into every interpreter the engine starts.
func New(lang Language, registry *hostfunc.Registry, opts ...Option) (*Engine, error) {
	if lang == nil {
		return nil, errors.New("language required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.extensionSet {
		cfg.extension = lang.Extension()
	}
	if cfg.output == nil {
		cfg.output = io.Discard
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	if registry == nil {
		registry, _ = hostfunc.NewRegistry()
	}

	return &Engine{
		lang:     lang,
		registry: registry,
		cfg:      cfg,
		log:      logger.With("language", lang.Name()),
	}, nil
}

// Connect starts an interpreter, registers and imports the host modules,
// and loads the scripts directory. Calling it on a connected engine returns
// ErrAlreadyConnected without side effects.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Connected {
		return ErrAlreadyConnected
	}

	e.log.Info("connecting to interpreter")
	e.state = Connecting

	interp, err := e.start(ctx)
	if err != nil {
		e.state = Disconnected
		e.log.Error("connect failed", "error", err)
		return err
	}

	e.interp = interp
	e.records = e.load()
	e.state = Connected

	e.log.Info("connected", "scripts", len(e.records))
	return nil
}

func (e *Engine) start(ctx context.Context) (Interpreter, error) {
	interp, err := e.lang.NewInterpreter()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterpreterStart, err)
	}

	fail := func(err error) (Interpreter, error) {
		if cerr := interp.Close(); cerr != nil {
			e.log.Warn("close interpreter after failed start", "error", cerr)
		}
		return nil, err
	}

	modules := e.registry.Modules()
	for _, mod := range modules {
		if err := interp.Register(mod); err != nil {
			return fail(fmt.Errorf("%w %s: %w", ErrRegistration, mod.Name(), err))
		}
	}

	if err := interp.Start(ctx); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrInterpreterStart, err))
	}

	if e.cfg.autoImport {
		for _, mod := range modules {
			if err := interp.Import(ctx, mod.Name()); err != nil {
				return fail(fmt.Errorf("%w %s: %w", ErrImport, mod.Name(), err))
			}
		}
	}

	return interp, nil
}

// load never fails: a missing directory or unreadable file is logged and
// skipped.
func (e *Engine) load() []scripts.Record {
	paths, err := scripts.List(e.cfg.scriptsDir, e.cfg.extension)
	if err != nil {
		e.log.Warn("no scripts loaded", "dir", e.cfg.scriptsDir, "error", err)
		return nil
	}

	records, errs := scripts.LoadAll(paths)
	for _, err := range errs {
		e.log.Warn("skipping script", "error", err)
	}
	for _, rec := range records {
		e.log.Info("loaded script", "path", rec.Path, "bytes", len(rec.Source))
	}
	return records
}

// Disconnect closes the interpreter and drops the loaded scripts. Calling
// it on a disconnected engine returns ErrAlreadyDisconnected.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Connected {
		return ErrAlreadyDisconnected
	}

	e.log.Info("disconnecting from interpreter")

	err := e.interp.Close()
	e.interp = nil
	e.records = nil
	e.state = Disconnected

	if err != nil {
		return fmt.Errorf("close interpreter: %w", err)
	}
	return nil
}

// RunAll executes every loaded script once, in load order. A failing script
// is logged and recorded in its Result; the remaining scripts still run.
func (e *Engine) RunAll(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Connected {
		e.log.Warn("run requested while not connected")
		return Summary{}, ErrNotConnected
	}

	runID := uuid.Must(uuid.NewV7()).String()
	log := e.log.With("run_id", runID)

	summary := Summary{
		RunID:   runID,
		Results: make([]Result, 0, len(e.records)),
	}
	for _, rec := range e.records {
		res := e.exec(ctx, rec.Path, rec.Source)
		summary.Attempted++
		if res.Error != nil {
			summary.Failed++
			log.Error("script failed", "path", rec.Path, "status", res.Status, "error", res.Error)
		} else {
			log.Debug("script finished", "path", rec.Path, "duration", res.Duration)
		}
		summary.Results = append(summary.Results, res)
	}

	log.Info("ran scripts once", "attempted", summary.Attempted, "failed", summary.Failed)
	return summary, nil
}

// RunCode executes code once. On a disconnected engine it returns a Result
// with StatusNotConnected and ErrNotConnected.
func (e *Engine) RunCode(ctx context.Context, code string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Connected {
		return Result{Name: "<code>", Status: StatusNotConnected, Error: ErrNotConnected}
	}
	return e.exec(ctx, "<code>", code)
}

// exec must be called with e.mu held and the engine connected.
func (e *Engine) exec(ctx context.Context, name, source string) Result {
	start := time.Now()

	if e.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.timeout)
		defer cancel()
	}

	var captured bytes.Buffer
	out := io.MultiWriter(&captured, e.cfg.output)

	err := e.interp.Exec(ctx, name, source, out)

	res := Result{
		Name:     name,
		Status:   statusOf(err),
		Output:   captured.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && e.cfg.timeout > 0 {
			err = fmt.Errorf("timeout after %v: %w", e.cfg.timeout, err)
		}
		res.Error = &ScriptError{Path: name, Status: res.Status, Err: err}
	}
	return res
}

// Records returns the scripts loaded by the last Connect.
func (e *Engine) Records() []scripts.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]scripts.Record, len(e.records))
	copy(out, e.records)
	return out
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Connected() bool {
	return e.State() == Connected
}

// Language returns the engine's language.
func (e *Engine) Language() Language {
	return e.lang
}
