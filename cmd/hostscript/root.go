package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caffeineduck/hostscript/config"
	"github.com/caffeineduck/hostscript/engine"
	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/caffeineduck/hostscript/language/lua"
	"github.com/caffeineduck/hostscript/language/python"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hostscript",
		Short: "Run a directory of Lua or Python scripts against host functions",
		Long: `hostscript - Embed a Lua or Python interpreter and run every script in a
directory once, with host modules (Module, kv) available to the scripts.

Scripts are loaded from the scripts directory in lexical order. A failing
script is reported and the rest still run.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runRun,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (YAML)")
	flags.StringP("lang", "l", "", "Language: lua, python")
	flags.StringP("dir", "d", "", "Scripts directory (default: scripts_directory)")
	flags.String("ext", "", "Script file extension (default: language extension)")
	flags.Bool("all-files", false, "Load every regular file regardless of extension")
	flags.String("python-wasm", "", "Path to the Python interpreter WASM build")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")
	flags.Int64("initial-value", 0, "Initial host state value")
	flags.Bool("kv", false, "Enable the kv host module")
	flags.Duration("timeout", 0, "Per-script timeout (0 = none)")
	flags.Bool("no-auto-import", false, "Require scripts to import host modules")

	root.AddCommand(
		newRunCmd(),
		newExecCmd(),
		newListCmd(),
		newReplCmd(),
		newSchemaCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig reads --config (if given) and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("lang") {
		cfg.Language, _ = flags.GetString("lang")
		if cfg.Language == "py" {
			cfg.Language = "python"
		}
	}
	if flags.Changed("dir") {
		cfg.ScriptsDir, _ = flags.GetString("dir")
	}
	if flags.Changed("ext") {
		ext, _ := flags.GetString("ext")
		cfg.Extension = &ext
	}
	if all, _ := flags.GetBool("all-files"); all {
		empty := ""
		cfg.Extension = &empty
	}
	if flags.Changed("python-wasm") {
		cfg.Python.WASM, _ = flags.GetString("python-wasm")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("initial-value") {
		cfg.InitialValue, _ = flags.GetInt64("initial-value")
	}
	if flags.Changed("kv") {
		cfg.KV.Enabled, _ = flags.GetBool("kv")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Timeout = config.Duration(d)
	}
	if off, _ := flags.GetBool("no-auto-import"); off {
		cfg.AutoImport = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newLanguage(cfg config.Config) (engine.Language, error) {
	switch cfg.Language {
	case "lua":
		var opts []lua.Option
		if cfg.Lua.SafeLibs {
			opts = append(opts, lua.WithSafeLibs())
		}
		return lua.New(opts...), nil
	case "python":
		var opts []python.Option
		if cfg.Python.MemoryPages > 0 {
			opts = append(opts, python.WithMemoryLimit(cfg.Python.MemoryPages))
		}
		if cfg.Python.Cache {
			opts = append(opts, python.WithDiskCache(cfg.Python.CacheDir))
		}
		return python.FromFile(cfg.Python.WASM, opts...)
	default:
		return nil, fmt.Errorf("unknown language %q: use lua or python", cfg.Language)
	}
}

// session bundles an engine with the host state it shares with scripts.
type session struct {
	cfg    config.Config
	state  *hostfunc.State
	engine *engine.Engine
	log    *slog.Logger
}

// newSession builds an engine whose script output goes to out.
func newSession(cmd *cobra.Command, out io.Writer) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	lang, err := newLanguage(cfg)
	if err != nil {
		return nil, err
	}

	state := hostfunc.NewState(cfg.InitialValue)
	modules := []*hostfunc.Module{hostfunc.NewStateModule(state)}
	if cfg.KV.Enabled {
		modules = append(modules, hostfunc.NewKVModule(hostfunc.NewKVStore(cfg.KV.KVConfig)))
	}
	registry, err := hostfunc.NewRegistry(modules...)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithScriptsDir(cfg.ScriptsDir),
		engine.WithAutoImport(cfg.AutoImport),
		engine.WithTimeout(cfg.Timeout.Std()),
		engine.WithOutput(out),
		engine.WithLogger(logger),
	}
	if cfg.Extension != nil {
		opts = append(opts, engine.WithExtension(*cfg.Extension))
	}

	e, err := engine.New(lang, registry, opts...)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, state: state, engine: e, log: logger}, nil
}
