package config

import (
	"context"
	_ "embed"
	"errors"
	iofs "io/fs"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"

	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/fs"
)

// DefaultEnvFile is loaded by LoadEnv when no file is named. Its absence is
// not an error.
const DefaultEnvFile = ".env"

//go:embed schema.cue
var schemaSource string

// LoadOptions configures Load.
type LoadOptions struct {
	// SkipValidation returns the decoded configuration without running
	// Validate. CUE schema constraints still apply.
	SkipValidation bool
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := Parse(nil, "")
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(err)
	}
	return cfg
}

// Load reads path from filesystem and parses it. An empty path returns the
// defaults.
func Load(ctx context.Context, filesystem fs.Filesystem, path string) (*Config, error) {
	return LoadWithOptions(ctx, filesystem, path, LoadOptions{})
}

// LoadWithOptions is Load with options.
func LoadWithOptions(ctx context.Context, filesystem fs.Filesystem, path string, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}

	data, err := filesystem.ReadFile(path)
	if err != nil {
		code := cberrors.CodeInvalidConfig
		if errors.Is(err, iofs.ErrNotExist) {
			code = cberrors.CodeNotFound
		}
		return nil, cberrors.WrapWithContext(err, code, "failed to read configuration",
			map[string]any{"path": path})
	}

	cfg, err := decode(data, path)
	if err != nil {
		return nil, err
	}
	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes and validates a CUE document. filename is used in error
// positions only.
func Parse(data []byte, filename string) (*Config, error) {
	cfg, err := decode(data, filename)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, filename string) (*Config, error) {
	if filename == "" {
		filename = "<defaults>"
	}
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cberrors.Wrap(err, cberrors.CodeInternal, "failed to compile configuration schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := cuectx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, cberrors.WrapWithContext(err, cberrors.CodeInvalidConfig, "failed to parse configuration",
			map[string]any{"path": filename, "details": cueerrors.Details(err, nil)})
	}

	v := def.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cberrors.WrapWithContext(err, cberrors.CodeSchemaFailed, "configuration does not match schema",
			map[string]any{"path": filename, "details": cueerrors.Details(err, nil)})
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, cberrors.WrapWithContext(err, cberrors.CodeSchemaFailed, "failed to decode configuration",
			map[string]any{"path": filename})
	}
	return &cfg, nil
}

// LoadEnv loads KEY=value files into the process environment without
// overriding variables that are already set. With no arguments it loads
// DefaultEnvFile if present; named files must exist.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return cberrors.WrapWithContext(err, cberrors.CodeInvalidConfig, "failed to load env file",
				map[string]any{"path": DefaultEnvFile})
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return cberrors.WrapWithContext(err, cberrors.CodeInvalidConfig, "failed to load env file",
			map[string]any{"files": files})
	}
	return nil
}
