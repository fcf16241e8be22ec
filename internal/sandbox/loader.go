// Package sandbox materializes candidate programs with the yaegi
// interpreter and scores them against benchmark tasks.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/longregen/archetype/internal/sandbox/rt"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const (
	// PackageName is the package clause every candidate must declare.
	PackageName = "candidate"
	// EntryPoint is the function the scorer calls.
	EntryPoint = "Forward"
)

// AllowedImports are the standard library packages a candidate may use.
var AllowedImports = []string{"context", "errors", "fmt", "math", "sort", "strconv", "strings", "sync", "time"}

// Forward is the compiled entrypoint of a candidate.
type Forward func(ctx context.Context, self *rt.Runtime, task string) (string, error)

var allowedSymbols = filterExports(stdlib.Symbols, AllowedImports)

// filterExports keeps the symbols of the allowed import paths. Keys are
// "importpath/pkgname"; keys without a slash are interpreter support
// entries (yaegi registers its interface wrappers under ".") and are kept.
func filterExports(symbols interp.Exports, paths []string) interp.Exports {
	allowed := make(map[string]bool, len(paths))
	for _, p := range paths {
		allowed[p] = true
	}
	out := make(interp.Exports)
	for key, syms := range symbols {
		slash := strings.LastIndex(key, "/")
		if slash < 0 || allowed[key[:slash]] {
			out[key] = syms
		}
	}
	return out
}

// Check parses code and verifies the package clause, the imports and the
// presence of Forward without running anything.
func Check(code string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", code, parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if file.Name.Name != PackageName {
		return fmt.Errorf("package must be %q, got %q", PackageName, file.Name.Name)
	}
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if path == rt.ImportPath || isAllowed(path) {
			continue
		}
		return fmt.Errorf("import %q is not available", path)
	}
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == EntryPoint {
			return nil
		}
	}
	return fmt.Errorf("no %s function", EntryPoint)
}

func isAllowed(path string) bool {
	for _, p := range AllowedImports {
		if p == path {
			return true
		}
	}
	return false
}

// Load compiles code in a fresh interpreter and returns its entrypoint.
func Load(ctx context.Context, code string) (fwd Forward, err error) {
	if err := Check(code); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compile panic: %v", r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(allowedSymbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(rt.Symbols); err != nil {
		return nil, fmt.Errorf("load runtime symbols: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	v, err := i.EvalWithContext(ctx, PackageName+"."+EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", EntryPoint, err)
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, errors.New("entrypoint is not a function")
	}
	fn, ok := v.Interface().(func(context.Context, *rt.Runtime, string) (string, error))
	if !ok {
		return nil, fmt.Errorf("%s must be func(context.Context, *rt.Runtime, string) (string, error), got %s", EntryPoint, v.Type())
	}
	return fn, nil
}

// Run calls fwd, turning a panic into an error.
func Run(ctx context.Context, fwd Forward, self *rt.Runtime, task string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", EntryPoint, r)
		}
	}()
	return fwd(ctx, self, task)
}
