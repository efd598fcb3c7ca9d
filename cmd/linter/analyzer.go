// Implements a static analysis tool that checks code meant to run inside a host process for:
// 1. Usage of built-in panic() function anywhere in the code
// 2. Usage of log.Fatal()/log.Fatalf()/log.Fatalln() or os.Exit() outside of main function in main package
// 3. Usage of runtime.GC(), which forces a collection on the host
package main

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

// Analyzer reports calls that terminate the host process or force it to collect garbage
var Analyzer = &analysis.Analyzer{
	Name: "hostsafe",
	Doc:  "reports panic, log.Fatal/os.Exit outside of main function in main package, and runtime.GC",
	Run:  run,
	Requires: []*analysis.Analyzer{
		inspect.Analyzer,
	},
}

// exits lists the functions that end the process, by package path
var exits = map[string][]string{
	"os":  {"Exit"},
	"log": {"Fatal", "Fatalf", "Fatalln"},
}

// run executes the analysis logic
func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	// Define which AST node types we want to inspect
	nodeFilter := []ast.Node{
		(*ast.File)(nil),     // Files, to skip tests
		(*ast.CallExpr)(nil), // Function calls
		(*ast.FuncDecl)(nil), // Function declarations
	}

	// Variable to track if we're currently inside the main function of main package
	inMain := false
	inTest := false

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.File:
			inTest = strings.HasSuffix(pass.Fset.Position(node.Pos()).Filename, "_test.go")
			inMain = false
		case *ast.FuncDecl:
			inMain = pass.Pkg.Name() == "main" && node.Recv == nil && node.Name.Name == "main"
		case *ast.CallExpr:
			if inTest {
				return
			}
			switch callee := typeutil.Callee(pass.TypesInfo, node).(type) {
			case *types.Builtin:
				if callee.Name() == "panic" {
					pass.Reportf(node.Pos(), "found usage of panic")
				}
			case *types.Func:
				if callee.Pkg() == nil || callee.Type().(*types.Signature).Recv() != nil {
					return
				}
				path, name := callee.Pkg().Path(), callee.Name()
				if path == "runtime" && name == "GC" {
					pass.Reportf(node.Pos(), "found usage of runtime.GC, the host owns collection")
					return
				}
				if inMain {
					return
				}
				for _, exit := range exits[path] {
					if name == exit {
						pass.Reportf(node.Pos(), "found usage of %s.%s outside of main function", path, name)
					}
				}
			}
		}
	})

	return nil, nil
}
