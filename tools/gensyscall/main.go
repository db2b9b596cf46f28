// Command gensyscall checks that the numeric constants in package
// kora/syscall still match the fixed table in the §4.9 contract. It loads
// the package with go/packages (type information included, the same way a
// linter would) rather than parsing source text, so a rename or a changed
// value is caught even if it moves to a different file.
//
// In the tradition of the source kernel's own cmd/chentry build helper,
// this is a small standalone checker rather than a service: run it from
// the repository root after touching syscall/table.go.
package main

import (
	"fmt"
	"go/constant"
	"go/types"
	"log"
	"os"

	"golang.org/x/tools/go/packages"
)

// want is the syscall table from §4.9, the single source of truth this
// tool checks syscall/table.go against.
var want = []struct {
	name  string
	value int64
}{
	{"READ", 0},
	{"WRITE", 1},
	{"SEEK", 2},
	{"reserved3", 3},
	{"EXIT", 4},
	{"GET_PROCESS_ID", 5},
	{"CREATE_MESSAGE_QUEUE", 6},
	{"ACQUIRE_HANDLE", 7},
	{"RELEASE_HANDLE", 8},
	{"AVAILABLE_MESSAGES", 9},
	{"AVAILABLE_MESSAGE_SIZE", 10},
}

func main() {
	cfg := &packages.Config{Mode: packages.NeedTypes | packages.NeedTypesInfo | packages.NeedName}
	pkgs, err := packages.Load(cfg, "kora/syscall")
	if err != nil {
		log.Fatalf("load kora/syscall: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}
	if len(pkgs) != 1 {
		log.Fatalf("expected exactly one package, got %d", len(pkgs))
	}
	scope := pkgs[0].Types.Scope()

	var mismatches int
	for _, w := range want {
		obj := scope.Lookup(w.name)
		if obj == nil {
			fmt.Printf("missing constant %s (want %d)\n", w.name, w.value)
			mismatches++
			continue
		}
		c, ok := obj.(*types.Const)
		if !ok {
			fmt.Printf("%s is not a constant\n", w.name)
			mismatches++
			continue
		}
		got, ok := constant.Int64Val(c.Val())
		if !ok || got != w.value {
			fmt.Printf("%s = %v, want %d\n", w.name, c.Val(), w.value)
			mismatches++
		}
	}
	if mismatches > 0 {
		log.Fatalf("%d syscall table mismatch(es)", mismatches)
	}
	fmt.Println("syscall table OK")
}
