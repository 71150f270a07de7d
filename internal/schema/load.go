package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// ErrNoFiles is returned for a schema directory without .cue files.
var ErrNoFiles = errors.New("no CUE files found")

// DirFiles lists the .cue files directly inside dir in name order.
func DirFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}

// BuildDir builds the .cue files directly inside dir as one instance and
// returns it with the files it read. Files may omit the package clause.
func BuildDir(ctx *cue.Context, dir string) (cue.Value, []string, error) {
	files, err := DirFiles(dir)
	if err != nil {
		return cue.Value{}, nil, err
	}
	if len(files) == 0 {
		return cue.Value{}, nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	args := make([]string, len(files))
	for i, f := range files {
		args[i] = filepath.Base(f)
	}
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, nil, fmt.Errorf("loading CUE files: %w", err)
	}
	return ctx.BuildInstance(instances[0]), files, nil
}

// LoadDir compiles the .cue files directly inside dir as one schema.
func LoadDir(dir string) (*Model, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	v, _, err := BuildDir(cuecontext.New(), dir)
	if err != nil {
		return nil, err
	}
	return compileModel(v)
}

// LoadFile compiles a single CUE file.
func LoadFile(path string) (*Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	v := cuecontext.New().CompileBytes(src, cue.Filename(filepath.Base(path)))
	return compileModel(v)
}

// Load compiles path, which may be a file or a directory.
func Load(path string) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadString compiles CUE source held in memory.
func LoadString(src string) (*Model, error) {
	return compileModel(cuecontext.New().CompileString(src))
}

func compileModel(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	m, err := Compile(v)
	if err != nil {
		return nil, err
	}
	return NewModel(m)
}
