package engine

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// DefaultScriptsDir is the directory scanned when none is configured.
const DefaultScriptsDir = "scripts_directory"

// Option configures an Engine.
type Option func(*config)

type config struct {
	scriptsDir   string
	extension    string
	extensionSet bool
	autoImport   bool
	timeout      time.Duration
	output       io.Writer
	logger       *slog.Logger
}

func defaultConfig() config {
	return config{
		scriptsDir: DefaultScriptsDir,
		autoImport: true,
		output:     os.Stdout,
	}
}

// WithScriptsDir sets the directory scanned for scripts on Connect.
func WithScriptsDir(dir string) Option {
	return func(c *config) {
		c.scriptsDir = dir
	}
}

// WithExtension sets the file extension scripts must have. An empty
// extension loads every regular file. The default is the language's own
// extension.
func WithExtension(ext string) Option {
	return func(c *config) {
		c.extension = ext
		c.extensionSet = true
	}
}

// WithAutoImport controls whether host modules are bound as globals on
// Connect. When disabled, scripts import them explicitly.
func WithAutoImport(enabled bool) Option {
	return func(c *config) {
		c.autoImport = enabled
	}
}

// WithTimeout bounds each script execution. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithOutput sets where script output is written in addition to being
// captured in each Result.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.output = w
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
