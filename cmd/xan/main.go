package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/xanlang/xan"
)

const (
	exitOK       = 0
	exitDataErr  = 65 // compile error
	exitSoftware = 70 // uncaught runtime exception
	exitUsageErr = 64
)

type args struct {
	disasm *bool
	path   string
}

func readArgs() *args {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	a := &args{
		disasm: flag.Bool("b", false, "disassemble instead of running"),
	}
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: xan [-b] [path]")
		flag.PrintDefaults()
	}
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(exitUsageErr)
	}

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(exitUsageErr)
	}
	if flag.NArg() == 1 {
		a.path = flag.Arg(0)
	}
	return a
}

func main() {
	a := readArgs()

	if a.path == "" {
		repl(a)
		return
	}

	source, err := os.ReadFile(a.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't open input file: %s\n", err)
		os.Exit(exitUsageErr)
	}

	os.Exit(runSource(a, string(source)))
}

// repl runs a persistent VM over stdin, one line at a time.
func repl(a *args) {
	reader := bufio.NewReader(os.Stdin)
	vm := xan.NewVM(xan.NewConfig(), os.Stdout, os.Stderr)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			fmt.Println()
			return
		}
		runLine(a, vm, line)
	}
}

func runLine(a *args, vm *xan.VM, source string) {
	if *a.disasm {
		disassembleSource(vm, source)
		return
	}
	if err := vm.Interpret(source); err != nil {
		reportError(err)
	}
}

// runSource compiles and, unless -b was given, runs source read from a
// file, returning the process exit code the CLI should report: 0 on
// success, 65 on a compile error, 70 on an uncaught exception.
func runSource(a *args, source string) int {
	vm := xan.NewVM(xan.NewConfig(), os.Stdout, os.Stderr)
	if *a.disasm {
		return disassembleSource(vm, source)
	}
	if err := vm.Interpret(source); err != nil {
		return reportError(err)
	}
	return exitOK
}

func disassembleSource(vm *xan.VM, source string) int {
	fn, errs := xan.NewCompiler(vm, source).Compile()
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return exitDataErr
	}
	fmt.Print(xan.Disassemble(fn, true))
	return exitOK
}

func reportError(err error) int {
	if re, ok := err.(*xan.RuntimeError); ok {
		fmt.Fprintln(os.Stderr, re.Message)
		for _, frame := range re.Trace {
			fmt.Fprintln(os.Stderr, frame)
		}
		return exitSoftware
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return exitDataErr
}
