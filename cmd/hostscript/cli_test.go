package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCLIHelp(t *testing.T) {
	out, _, err := executeCommand(t, "", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"hostscript", "run", "exec", "list", "repl", "schema", "--lang", "--dir", "--initial-value"} {
		assert.Contains(t, out, phrase)
	}
}

func TestCLIRunGolden(t *testing.T) {
	out, stderr, err := executeCommand(t, "", "run", "--dir", "testdata/scripts")
	require.NoError(t, err)

	newGoldie(t).Assert(t, "run", []byte(out))
	assert.Contains(t, stderr, "c.lua")
	assert.Contains(t, stderr, "expected integer, got string")
}

func TestCLIRootDefaultsToRun(t *testing.T) {
	out, _, err := executeCommand(t, "", "--dir", "testdata/scripts", "--initial-value", "10", "--log-level", "error")
	require.NoError(t, err)

	assert.Equal(t, "30\n33\nran 3 script(s), 1 failed\nstate: 12\n", out)
}

func TestCLIListGolden(t *testing.T) {
	out, _, err := executeCommand(t, "", "list", "--dir", "testdata/scripts")
	require.NoError(t, err)

	newGoldie(t).Assert(t, "list", []byte(out))
}

func TestCLIListAllFiles(t *testing.T) {
	out, _, err := executeCommand(t, "", "list", "--dir", "testdata/scripts", "--all-files")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")

	out, _, err = executeCommand(t, "", "list", "--dir", "testdata/scripts", "--ext", ".txt")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.NotContains(t, out, "a.lua")
}

func TestCLIListMissingDir(t *testing.T) {
	_, _, err := executeCommand(t, "", "list", "--dir", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCLIExec(t *testing.T) {
	out, _, err := executeCommand(t, "", "exec", "--initial-value", "4", "-c", "print(Module.test(5))")
	require.NoError(t, err)
	assert.Equal(t, "20\n", out)
}

func TestCLIExecStdin(t *testing.T) {
	out, _, err := executeCommand(t, "print('from stdin')\n", "exec")
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", out)
}

func TestCLIExecFile(t *testing.T) {
	out, _, err := executeCommand(t, "", "exec", "testdata/scripts/a.lua")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestCLIExecFailure(t *testing.T) {
	_, _, err := executeCommand(t, "", "exec", "-c", "error('boom')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCLIExecNoCode(t *testing.T) {
	_, _, err := executeCommand(t, "", "exec")
	assert.ErrorIs(t, err, errNoCode)
}

func TestCLIKV(t *testing.T) {
	out, _, err := executeCommand(t, "", "exec", "--kv", "-c", "kv.set('a', 'b') print(kv.get('a'))")
	require.NoError(t, err)
	assert.Equal(t, "b\n", out)
}

func TestCLIConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostscript.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scripts_dir: testdata/scripts\ninitial_value: 1\nlog:\n  level: error\n"), 0o644))

	out, _, err := executeCommand(t, "", "run", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "3\n6\nran 3 script(s), 1 failed\nstate: 3\n", out)

	// Flags override the file.
	out, _, err = executeCommand(t, "", "run", "--config", path, "--initial-value", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "state: 2\n")
}

func TestCLIInvalidConfig(t *testing.T) {
	_, _, err := executeCommand(t, "", "run", "--lang", "ruby")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of lua python")

	_, _, err = executeCommand(t, "", "run", "--lang", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WASM")

	_, _, err = executeCommand(t, "", "run", "--lang", "python", "--python-wasm", filepath.Join(t.TempDir(), "python.wasm"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCLISchema(t *testing.T) {
	out, _, err := executeCommand(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"scripts_dir"`)
	assert.Contains(t, out, `"initial_value"`)
}
