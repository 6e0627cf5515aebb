// Command ptrlint flags raw frame pointers that escape into a goroutine
// closure. Spec §5's "no exclusive cell may be held across a context
// switch" rule assumes a single hart and no nested traps; a stray `go`
// statement capturing a *mem.Pg_t or a page-backed byte slice would break
// that assumption silently; nothing else in this tree would catch it.
//
// In the spirit of the teacher's own misc/depgraph and
// biscuit/scripts/features.go dev tools, this one walks the whole module
// with go/packages, builds SSA with go/ssa, and reports every go statement
// whose closure captures such a value. When the module has a main package
// it also runs go/pointer's whole-program analysis; that result does not
// filter the findings, it only marks each one as having an alias set
// available.
package main

import (
	"fmt"
	"go/types"
	"log"
	"os"
	"sort"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// suspectTypeName reports whether t looks like a page-backed value this
// kernel hands out: any type whose name mentions mem.Pg_t or mem.Bytepg_t,
// such as *mem.Pg_t (Frames.Getpg's return type). A plain []uint8 sliced
// out of a page does not match.
func suspectTypeName(t types.Type) bool {
	s := t.String()
	return containsAny(s, "mem.Pg_t", "mem.Bytepg_t")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

/// Finding_t names one captured value this tool flagged.
type Finding_t struct {
	Func string
	Pos  string
	Type string
}

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports |
			packages.NeedDeps,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		log.Fatalf("ptrlint: load: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		log.Fatal("ptrlint: module has type errors, refusing to analyze")
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.SanityCheckFunctions)
	prog.Build()

	findings := scanGoStatements(ssaPkgs)

	mains := ssautil.MainPackages(prog.AllPackages())
	if len(mains) == 0 {
		// This kernel has no hosted main: the real entry point is the
		// assembly boot stub out of scope per spec.md §1. Fall back to
		// the free-variable scan above; whole-program alias refinement
		// below is skipped rather than fabricating a synthetic entry
		// point that would bias the call graph.
		report(findings, nil)
		return
	}

	result, err := pointer.Analyze(&pointer.Config{
		Mains:          mains,
		BuildCallGraph: true,
	})
	if err != nil {
		log.Printf("ptrlint: pointer analysis skipped: %v", err)
		report(findings, nil)
		return
	}
	report(findings, result)
}

// scanGoStatements walks every function in every package looking for `go`
// statements whose spawned closure's free variables include a suspect
// page-backed type.
func scanGoStatements(pkgs []*ssa.Package) []Finding_t {
	var findings []Finding_t
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		for _, member := range pkg.Members {
			fn, ok := member.(*ssa.Function)
			if !ok {
				continue
			}
			findings = append(findings, scanFunc(fn)...)
			for _, anon := range fn.AnonFuncs {
				findings = append(findings, scanFunc(anon)...)
			}
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Pos < findings[j].Pos })
	return findings
}

func scanFunc(fn *ssa.Function) []Finding_t {
	var findings []Finding_t
	if fn.Blocks == nil {
		return findings
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			g, ok := instr.(*ssa.Go)
			if !ok {
				continue
			}
			mc, ok := g.Call.Value.(*ssa.MakeClosure)
			if !ok {
				continue
			}
			for _, fv := range mc.Bindings {
				if suspectTypeName(fv.Type()) {
					findings = append(findings, Finding_t{
						Func: fn.String(),
						Pos:  fn.Prog.Fset.Position(g.Pos()).String(),
						Type: fv.Type().String(),
					})
				}
			}
		}
	}
	return findings
}

func report(findings []Finding_t, result *pointer.Result) {
	if len(findings) == 0 {
		fmt.Println("ptrlint: no frame-pointer escapes into goroutine closures")
		return
	}
	for _, f := range findings {
		extra := ""
		if result != nil {
			extra = " (whole-program alias set available)"
		}
		fmt.Printf("%s: %s captures %s in a go statement%s\n", f.Pos, f.Func, f.Type, extra)
	}
	os.Exit(1)
}
