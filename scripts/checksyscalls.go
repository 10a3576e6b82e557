// Command checksyscalls statically verifies that the Sysno_t constant
// block in package defs is dense (0..N-1, no gaps, no duplicates), so
// every syscall number stays a stable integer per operation.
package main

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/types"
	"os"

	"golang.org/x/tools/go/packages"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "checksyscalls:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &packages.Config{
		Mode: packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, "envkernel/internal/defs")
	if err != nil {
		return err
	}
	if packages.PrintErrors(pkgs) > 0 {
		return fmt.Errorf("package load had errors")
	}
	if len(pkgs) != 1 {
		return fmt.Errorf("expected exactly one package, got %d", len(pkgs))
	}
	pkg := pkgs[0]

	seen := map[int64][]string{}
	var max int64 = -1

	for _, file := range pkg.Syntax {
		ast.Inspect(file, func(n ast.Node) bool {
			vs, ok := n.(*ast.ValueSpec)
			if !ok {
				return true
			}
			for _, name := range vs.Names {
				obj := pkg.TypesInfo.Defs[name]
				cnst, ok := obj.(*types.Const)
				if !ok || cnst.Type().String() != "envkernel/internal/defs.Sysno_t" {
					continue
				}
				if name.Name == "sysnoCount" || name.Name == "_" {
					continue
				}
				i, ok := constant.Int64Val(cnst.Val())
				if !ok {
					continue
				}
				seen[i] = append(seen[i], name.Name)
				if i > max {
					max = i
				}
			}
			return true
		})
	}

	for i := int64(0); i <= max; i++ {
		names, ok := seen[i]
		if !ok {
			return fmt.Errorf("syscall number %d has no assigned name: gap in Sysno_t block", i)
		}
		if len(names) > 1 {
			return fmt.Errorf("syscall number %d assigned to multiple names: %v", i, names)
		}
	}
	fmt.Printf("checksyscalls: %d syscall numbers, dense 0..%d\n", len(seen), max)
	return nil
}
