package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/schema"
)

// LoadResult is a compiled but not yet validated schema.
type LoadResult struct {
	Model     *ir.SchemaModel
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema compiles a CUE schema file or directory without validating
// it, so that callers can report every validation error at once.
func LoadSchema(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	var (
		value cue.Value
		files = []string{path}
	)
	ctx := cuecontext.New()
	if info.IsDir() {
		value, files, err = schema.BuildDir(ctx, path)
		switch {
		case errors.Is(err, schema.ErrNoFiles):
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		case err != nil:
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
	} else {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading schema: %v", err)}
		}
		value = ctx.CompileBytes(src, cue.Filename(filepath.Base(path)))
	}

	model, err := schema.Compile(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Model: model, FileCount: len(files)}, nil
}

// convertCompileError converts a schema compile error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		code := ErrCodeBuildFailed
		if compileErr.Field != "cue" {
			code = ErrCodeInvalidClass
		}
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands. Schema
// validation codes (E100-E199) come from package schema.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeInvalidClass = "E008" // Class declaration does not compile
	ErrCodeStore        = "E010" // Database error
	ErrCodeTestFailed   = "E020" // One or more scenarios failed
)
