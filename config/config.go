// Package config loads and validates hostscript configuration files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/hostscript/engine"
	"github.com/caffeineduck/hostscript/hostfunc"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// validate is shared; validator caches struct metadata per instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateLanguage, Config{})
	return v
}

// Config is the on-disk configuration of the hostscript CLI.
type Config struct {
	Language     string   `yaml:"language" json:"language" validate:"required,oneof=lua python" jsonschema:"enum=lua,enum=python,default=lua"`
	ScriptsDir   string   `yaml:"scripts_dir" json:"scripts_dir" validate:"required" jsonschema:"default=scripts_directory"`
	Extension    *string  `yaml:"extension,omitempty" json:"extension,omitempty" jsonschema:"description=Script file suffix. Empty matches every regular file; absent uses the language default."`
	AutoImport   bool     `yaml:"auto_import" json:"auto_import" jsonschema:"default=true"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"gte=0"`
	InitialValue int64    `yaml:"initial_value" json:"initial_value"`
	KV           KV       `yaml:"kv" json:"kv"`
	Lua          Lua      `yaml:"lua" json:"lua"`
	Python       Python   `yaml:"python" json:"python"`
	Log          Log      `yaml:"log" json:"log"`
}

// KV enables the key-value bridge module.
type KV struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	hostfunc.KVConfig `yaml:",inline"`
}

type Lua struct {
	SafeLibs bool `yaml:"safe_libs" json:"safe_libs"`
}

type Python struct {
	WASM        string `yaml:"wasm" json:"wasm,omitempty" jsonschema:"description=Path to a WASI Python interpreter build."`
	MemoryPages uint32 `yaml:"memory_pages,omitempty" json:"memory_pages,omitempty"`
	Cache       bool   `yaml:"cache" json:"cache"`
	CacheDir    string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

type Log struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json" jsonschema:"enum=text,enum=json,default=text"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Language:   "lua",
		ScriptsDir: engine.DefaultScriptsDir,
		AutoImport: true,
		KV:         KV{KVConfig: hostfunc.DefaultKVConfig()},
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path, layered over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config validation failed: %s: %s", verrs[0].Namespace(), describe(verrs[0]))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func validateLanguage(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Language == "python" && c.Python.WASM == "" {
		sl.ReportError(c.Python.WASM, "Python.WASM", "WASM", "required", "")
	}
}

// Schema returns the JSON Schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(&Config{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Per-script timeout, e.g. 500ms or 5s. Zero disables it.",
	}
}
