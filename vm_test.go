package xan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run compiles and executes src against a fresh VM, returning what it
// wrote to stdout (plus, on an uncaught exception, the same rendered
// message+trace a CLI driving this program would print) and the exit
// code such a CLI would report (0 success, 65 compile error, 70
// uncaught exception).
func run(src string) (stdout string, exitCode int) {
	var out bytes.Buffer
	vm := NewVM(nil, &out, &out)
	err := vm.Interpret(src)
	switch e := err.(type) {
	case nil:
		return out.String(), 0
	case *RuntimeError:
		out.WriteString(e.Message + "\n")
		for _, frame := range e.Trace {
			out.WriteString(frame + "\n")
		}
		return out.String(), 70
	default:
		return out.String(), 65
	}
}

func TestVM_Arithmetic(t *testing.T) {
	out, code := run(`print(1 + 2 * 3);`)
	assert.Equal(t, "7\n", out)
	assert.Equal(t, 0, code)
}

func TestVM_OperatorPrecedenceAndGrouping(t *testing.T) {
	out, _ := run(`print((1 + 2) * 3);`)
	assert.Equal(t, "9\n", out)
}

func TestVM_StringConcatenation(t *testing.T) {
	out, _ := run(`print("foo" + "bar");`)
	assert.Equal(t, "foobar\n", out)
}

func TestVM_VariablesAndAssignment(t *testing.T) {
	out, _ := run(`var a = 1; a = a + 1; print(a);`)
	assert.Equal(t, "2\n", out)
}

func TestVM_IfElse(t *testing.T) {
	out, _ := run(`if (1 < 2) { print("yes"); } else { print("no"); }`)
	assert.Equal(t, "yes\n", out)
}

func TestVM_WhileLoop(t *testing.T) {
	out, _ := run(`var i = 0; while (i < 3) { print(i); i = i + 1; }`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestVM_ForLoop(t *testing.T) {
	out, _ := run(`for (var i = 0; i < 3; i = i + 1) { print(i); }`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestVM_AndOrShortCircuit(t *testing.T) {
	out, _ := run(`fun no() { print("no side effect"); return false; } print(false and no()); print(true or no());`)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestVM_FunctionsAndRecursion(t *testing.T) {
	out, _ := run(`fun fib(n){ if(n<2) return n; return fib(n-1)+fib(n-2); } print(fib(10));`)
	assert.Equal(t, "55\n", out)
}

func TestVM_ClosuresCaptureByReference(t *testing.T) {
	out, _ := run(`fun mk(){ var i=0; fun inc(){ i = i+1; return i; } return inc; } var f = mk(); print(f()); print(f()); print(f());`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestVM_ClassesAndInheritance(t *testing.T) {
	out, _ := run(`class A{ greet(){ print("A"); } } class B<A{ greet(){ super.greet(); print("B"); } } B().greet();`)
	assert.Equal(t, "A\nB\n", out)
}

func TestVM_ClassInitializerReturnsReceiver(t *testing.T) {
	out, _ := run(`class Point { init(x) { this.x = x; return; } } var p = Point(3); print(p.x);`)
	assert.Equal(t, "3\n", out)
}

func TestVM_ArraysAndSubscript(t *testing.T) {
	out, _ := run(`var a = [1,2,3]; print(a[0] + a[2]);`)
	assert.Equal(t, "4\n", out)
}

func TestVM_ArrayMethods(t *testing.T) {
	out, _ := run(`var a = [1,2]; a.push(3); print(a.len()); print(a.pop()); print(a.len());`)
	assert.Equal(t, "3\n3\n2\n", out)
}

func TestVM_TableLiteralAndMethods(t *testing.T) {
	out, _ := run(`var t = {"k": 1}; print(t.has("k")); t.remove("k"); print(t.has("k")); print(t.len());`)
	assert.Equal(t, "true\nfalse\n0\n", out)
}

func TestVM_TryCatchCaught(t *testing.T) {
	out, code := run(`try { throw Exception("boom"); } catch(Exception e) { print(e.msg); }`)
	assert.Equal(t, "boom\n", out)
	assert.Equal(t, 0, code)
}

func TestVM_UncaughtThrowExitsWithTrace(t *testing.T) {
	out, code := run(`throw Exception("boom");`)
	assert.Equal(t, 70, code)
	require.Contains(t, out, "boom")
}

func TestVM_CatchBySuperclassAcceptsSubclass(t *testing.T) {
	out, code := run(`class Oops < Exception {}
try { throw Oops("specific"); } catch(Exception e) { print(e.msg); }`)
	assert.Equal(t, "specific\n", out)
	assert.Equal(t, 0, code)
}

func TestVM_RuntimeErrorBecomesException(t *testing.T) {
	out, code := run(`try { print(1 + nil); } catch(Exception e) { print("caught"); }`)
	assert.Equal(t, "caught\n", out)
	assert.Equal(t, 0, code)
}

func TestVM_SubscriptOutOfBounds(t *testing.T) {
	out, code := run(`var a = [1]; print(a[5]);`)
	assert.Equal(t, 70, code)
	require.Contains(t, out, "Subscript out of bounds.")
}

func TestVM_CompileErrorReportsSyntaxProblem(t *testing.T) {
	_, code := run(`var a = ;`)
	assert.Equal(t, 65, code)
}
