package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyConnected    = errors.New("engine already connected")
	ErrAlreadyDisconnected = errors.New("engine already disconnected")
	ErrNotConnected        = errors.New("engine not connected")
	ErrRegistration        = errors.New("register host module")
	ErrInterpreterStart    = errors.New("start interpreter")
	ErrImport              = errors.New("import host module")
)

// StatusNotConnected is the status reported by RunCode on a disconnected engine.
const StatusNotConnected = -1

// Result holds the output and metadata from one execution.
type Result struct {
	Name     string
	Status   int
	Output   string
	Duration time.Duration
	Error    error
}

// Summary describes one RunAll pass.
type Summary struct {
	RunID     string
	Attempted int
	Failed    int
	Results   []Result
}

// ScriptError reports a script whose top-level execution failed.
type ScriptError struct {
	Path   string
	Status int
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s failed (status %d): %v", e.Path, e.Status, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// statusOf maps an Exec error to an interpreter status code.
func statusOf(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if code := coded.ExitCode(); code != 0 {
			return code
		}
	}
	return 1
}
