package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLanguage records what the engine asks of its interpreters. Source
// text is a list of commands, one per line:
//
//	print <text>   write text to the output
//	fail <code>    fail with the given exit code
type fakeLanguage struct {
	registerErr error
	startErr    error
	importErr   error

	created []*fakeInterp
}

func (l *fakeLanguage) Name() string      { return "fake" }
func (l *fakeLanguage) Extension() string { return ".fake" }

func (l *fakeLanguage) NewInterpreter() (Interpreter, error) {
	i := &fakeInterp{lang: l}
	l.created = append(l.created, i)
	return i, nil
}

type fakeInterp struct {
	lang       *fakeLanguage
	registered []string
	imported   []string
	executed   []string
	started    bool
	closed     bool
}

func (i *fakeInterp) Register(mod *hostfunc.Module) error {
	if i.lang.registerErr != nil {
		return i.lang.registerErr
	}
	i.registered = append(i.registered, mod.Name())
	return nil
}

func (i *fakeInterp) Start(ctx context.Context) error {
	if i.lang.startErr != nil {
		return i.lang.startErr
	}
	i.started = true
	return nil
}

func (i *fakeInterp) Import(ctx context.Context, name string) error {
	if i.lang.importErr != nil {
		return i.lang.importErr
	}
	i.imported = append(i.imported, name)
	return nil
}

type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitError) ExitCode() int { return int(e) }

func (i *fakeInterp) Exec(ctx context.Context, chunk, source string, out io.Writer) error {
	i.executed = append(i.executed, chunk)
	for _, line := range strings.Split(strings.TrimSpace(source), "\n") {
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "print":
			fmt.Fprintln(out, arg)
		case "fail":
			var code int
			fmt.Sscan(arg, &code)
			return exitError(code)
		case "wait":
			<-ctx.Done()
			return ctx.Err()
		}
	}
	return nil
}

func (i *fakeInterp) Close() error {
	i.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeEngine(t *testing.T, lang *fakeLanguage, files map[string]string, opts ...Option) *Engine {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	registry, err := hostfunc.NewRegistry(
		hostfunc.NewStateModule(hostfunc.NewState(0)),
		hostfunc.NewKVModule(hostfunc.NewKVStore(hostfunc.DefaultKVConfig())),
	)
	require.NoError(t, err)

	opts = append([]Option{WithScriptsDir(dir), WithOutput(io.Discard), WithLogger(quietLogger())}, opts...)
	e, err := New(lang, registry, opts...)
	require.NoError(t, err)
	return e
}

func TestConnectRegistersAndImportsInOrder(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, nil)

	require.NoError(t, e.Connect(context.Background()))

	require.Len(t, lang.created, 1)
	interp := lang.created[0]
	assert.Equal(t, []string{"Module", "kv"}, interp.registered)
	assert.Equal(t, []string{"Module", "kv"}, interp.imported)
	assert.True(t, interp.started)
	assert.Equal(t, Connected, e.State())
}

func TestConnectWithoutAutoImport(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, nil, WithAutoImport(false))

	require.NoError(t, e.Connect(context.Background()))
	assert.Empty(t, lang.created[0].imported)
}

func TestConnectTwiceDoesNotReinitialize(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, nil)

	require.NoError(t, e.Connect(context.Background()))
	err := e.Connect(context.Background())

	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Len(t, lang.created, 1)
	assert.Equal(t, Connected, e.State())
}

func TestConnectFailuresLeaveEngineDisconnected(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		lang    *fakeLanguage
		wantErr error
	}{
		{"registration", &fakeLanguage{registerErr: boom}, ErrRegistration},
		{"start", &fakeLanguage{startErr: boom}, ErrInterpreterStart},
		{"import", &fakeLanguage{importErr: boom}, ErrImport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeEngine(t, tt.lang, map[string]string{"a.fake": "print a"})

			err := e.Connect(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, Disconnected, e.State())
			assert.Empty(t, e.Records())
			require.Len(t, tt.lang.created, 1)
			assert.True(t, tt.lang.created[0].closed)

			_, err = e.RunAll(context.Background())
			assert.ErrorIs(t, err, ErrNotConnected)
		})
	}
}

func TestRegistrationFailureSkipsStart(t *testing.T) {
	lang := &fakeLanguage{registerErr: errors.New("table full")}
	e := newFakeEngine(t, lang, nil)

	require.Error(t, e.Connect(context.Background()))
	assert.False(t, lang.created[0].started)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, map[string]string{
		"1.fake": "print one",
		"2.fake": "fail 3",
		"3.fake": "print three",
	})
	require.NoError(t, e.Connect(context.Background()))

	summary, err := e.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Results, 3)

	assert.Equal(t, "one\n", summary.Results[0].Output)
	assert.Equal(t, 0, summary.Results[0].Status)

	var scriptErr *ScriptError
	require.ErrorAs(t, summary.Results[1].Error, &scriptErr)
	assert.Equal(t, 3, scriptErr.Status)
	assert.Equal(t, 3, summary.Results[1].Status)

	assert.Equal(t, "three\n", summary.Results[2].Output)

	interp := lang.created[0]
	assert.Equal(t, []string{
		filepath.Join(e.cfg.scriptsDir, "1.fake"),
		filepath.Join(e.cfg.scriptsDir, "2.fake"),
		filepath.Join(e.cfg.scriptsDir, "3.fake"),
	}, interp.executed)
}

func TestRunAllUsesExtensionFilter(t *testing.T) {
	lang := &fakeLanguage{}
	files := map[string]string{"a.fake": "print a", "b.txt": "print b"}

	e := newFakeEngine(t, lang, files)
	require.NoError(t, e.Connect(context.Background()))
	assert.Len(t, e.Records(), 1)

	all := newFakeEngine(t, &fakeLanguage{}, files, WithExtension(""))
	require.NoError(t, all.Connect(context.Background()))
	assert.Len(t, all.Records(), 2)
}

func TestRunAllWhileDisconnected(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, map[string]string{"a.fake": "print a"})

	summary, err := e.RunAll(context.Background())

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, lang.created)
}

func TestRunCode(t *testing.T) {
	var out bytes.Buffer
	e := newFakeEngine(t, &fakeLanguage{}, nil, WithOutput(&out))

	res := e.RunCode(context.Background(), "print hi")
	assert.Equal(t, StatusNotConnected, res.Status)
	assert.ErrorIs(t, res.Error, ErrNotConnected)

	require.NoError(t, e.Connect(context.Background()))

	res = e.RunCode(context.Background(), "print hi")
	assert.NoError(t, res.Error)
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, "hi\n", res.Output)
	assert.Equal(t, "hi\n", out.String())

	res = e.RunCode(context.Background(), "fail 7")
	assert.Equal(t, 7, res.Status)
	assert.Error(t, res.Error)
}

func TestRunCodeTimeout(t *testing.T) {
	e := newFakeEngine(t, &fakeLanguage{}, nil, WithTimeout(10*time.Millisecond))
	require.NoError(t, e.Connect(context.Background()))

	res := e.RunCode(context.Background(), "wait")

	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "timeout")
	assert.Equal(t, 1, res.Status)
}

func TestDisconnect(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, map[string]string{"a.fake": "print a"})

	assert.ErrorIs(t, e.Disconnect(), ErrAlreadyDisconnected)

	require.NoError(t, e.Connect(context.Background()))
	require.NoError(t, e.Disconnect())

	assert.True(t, lang.created[0].closed)
	assert.Equal(t, Disconnected, e.State())
	assert.Empty(t, e.Records())
	assert.ErrorIs(t, e.Disconnect(), ErrAlreadyDisconnected)
}

func TestLifecycleIsRestartable(t *testing.T) {
	lang := &fakeLanguage{}
	e := newFakeEngine(t, lang, map[string]string{"a.fake": "print a"})
	ctx := context.Background()

	require.NoError(t, e.Connect(ctx))
	require.NoError(t, e.Disconnect())
	require.NoError(t, e.Connect(ctx))

	require.Len(t, lang.created, 2)
	assert.NotSame(t, lang.created[0], lang.created[1])
	assert.Len(t, e.Records(), 1)

	summary, err := e.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attempted)
}

func TestMissingScriptsDirectoryIsNotFatal(t *testing.T) {
	lang := &fakeLanguage{}
	e, err := New(lang, nil,
		WithScriptsDir(filepath.Join(t.TempDir(), "missing")),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	require.NoError(t, e.Connect(context.Background()))
	summary, err := e.RunAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)
}

func TestNewRequiresLanguage(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "State(9)", State(9).String())
}
