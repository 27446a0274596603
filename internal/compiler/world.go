package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/system"
)

// World is everything a directory of CUE files declares.
type World struct {
	Components []component.Definition
	Systems    []system.Definition
	Invariants []invariant.Invariant

	// FileCount is the number of .cue files the world was built from.
	FileCount int

	// positions holds the source position of each record, keyed
	// "component.Health", "system.healer" or "invariant.name".
	positions map[string]token.Pos
}

// Pos returns the source position of a record, if known.
func (w *World) Pos(kind, name string) token.Pos {
	if w.positions == nil {
		return token.NoPos
	}
	return w.positions[kind+"."+name]
}

func (w *World) setPos(kind, name string, pos token.Pos) {
	if w.positions == nil {
		w.positions = make(map[string]token.Pos)
	}
	w.positions[kind+"."+name] = pos
}

// Empty reports whether the world declares nothing.
func (w *World) Empty() bool {
	return len(w.Components) == 0 && len(w.Systems) == 0 && len(w.Invariants) == 0
}

// LoadMode controls how errors are handled during world loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
)

// LoadError represents an error that occurred while loading a world.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWorld loads and compiles the CUE files in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadWorld(dir string, mode LoadMode) (*World, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("world directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing world directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	// Err only reports a failed root; conflicts inside records surface here.
	if err := value.Validate(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	w, errs := CompileWorld(value, mode)
	w.FileCount = len(cueFiles)
	if w.Empty() && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no components, systems or invariants found in world"})
	}
	return w, errs
}

// CompileWorld compiles the component, system and invariant structs of
// an already built CUE value. Records are returned in source order.
func CompileWorld(value cue.Value, mode LoadMode) (*World, []error) {
	w := &World{}
	var errs []error

	each := func(kind string, compile func(cue.Value) error) bool {
		v := value.LookupPath(cue.ParsePath(kind))
		if !v.Exists() {
			return true
		}
		iter, err := v.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s: %v", kind, err)})
			return mode != LoadModeFailFast
		}
		for iter.Next() {
			if err := compile(iter.Value()); err != nil {
				errs = append(errs, convertCompileError(err, kind+"."+selectorName(iter.Selector())))
				if mode == LoadModeFailFast {
					return false
				}
				continue
			}
			w.setPos(kind, labelOf(iter.Value()), iter.Value().Pos())
		}
		return true
	}

	ok := each("component", func(v cue.Value) error {
		def, err := CompileComponent(v)
		if err == nil {
			w.Components = append(w.Components, *def)
		}
		return err
	})
	if ok {
		ok = each("system", func(v cue.Value) error {
			def, err := CompileSystem(v)
			if err == nil {
				w.Systems = append(w.Systems, *def)
			}
			return err
		})
	}
	if ok {
		each("invariant", func(v cue.Value) error {
			inv, err := CompileInvariant(v)
			if err == nil {
				w.Invariants = append(w.Invariants, *inv)
			}
			return err
		})
	}
	return w, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "name":
		return ErrComponentName
	case "schema":
		return ErrComponentSchema
	case "description":
		return ErrSystemDescription
	case "model":
		return ErrSystemModel
	case "color":
		return ErrSystemColor
	case "instructions":
		return ErrSystemInstructions
	case "component":
		return ErrSystemGrant
	case "bid":
		return ErrSystemRule
	case "asserts":
		return ErrInvariantAsserts
	default:
		return ErrCodeGeneric
	}
}
