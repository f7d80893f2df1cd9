package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2E_E1_Arithmetic(t *testing.T) {
	out, code := run(`print(1 + 2 * 3);`)
	assert.Equal(t, "7\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E2_ArraySubscript(t *testing.T) {
	out, code := run(`var a = [1,2,3]; print(a[0] + a[2]);`)
	assert.Equal(t, "4\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E3_Fibonacci(t *testing.T) {
	out, code := run(`fun fib(n){ if(n<2) return n; return fib(n-1)+fib(n-2);} print(fib(10));`)
	assert.Equal(t, "55\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E4_Closure(t *testing.T) {
	out, code := run(`fun mk(){ var i=0; fun inc(){ i = i+1; return i; } return inc; } var f = mk(); print(f()); print(f()); print(f());`)
	assert.Equal(t, "1\n2\n3\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E5_ClassAndSuper(t *testing.T) {
	out, code := run(`class A{ greet(){ print("A"); } } class B<A{ greet(){ super.greet(); print("B"); } } B().greet();`)
	assert.Equal(t, "A\nB\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E6_ExceptionCaught(t *testing.T) {
	out, code := run(`try { throw Exception("boom"); } catch(Exception e) { print(e.msg); }`)
	assert.Equal(t, "boom\n", out)
	assert.Equal(t, 0, code)
}

func TestE2E_E6_ExceptionUncaughtExitsWithTrace(t *testing.T) {
	out, code := run(`throw Exception("boom");`)
	assert.Equal(t, 70, code)
	lines := splitLines(out)
	require.Len(t, lines, 2, "expected the message plus exactly one stack-trace line")
	assert.Equal(t, "boom", lines[0])
	assert.Regexp(t, `^\[line \d+\] in <script>$`, lines[1])
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}

// Property 5: on successful completion, the VM has fully unwound: no
// pending try handlers, no open upvalues, no live call frames.
func TestProperty_CleanStateAfterSuccessfulCompletion(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	err := vm.Interpret(`fun mk() { var i = 0; fun inc() { i = i + 1; return i; } return inc; } var f = mk(); f();`)
	require.NoError(t, err)

	assert.Empty(t, vm.tryStack)
	assert.Nil(t, vm.openUpvalues)
	assert.Equal(t, 0, vm.frameCount)
}

// Property 8: declaring `var x = e;` then reading `x` back yields e's
// value.
func TestProperty_VariableDeclarationRoundTrips(t *testing.T) {
	out, _ := run(`var x = 2 + 3; print(x);`)
	assert.Equal(t, "5\n", out)
}

// Property 9: disassembling the same function twice yields identical
// text — the disassembler has no hidden mutable state that would make
// it order- or run-dependent.
func TestProperty_DisassemblyIsIdempotent(t *testing.T) {
	fn := compile(t, `fun add(a, b) { return a + b; } print(add(1, 2));`)
	first := Disassemble(fn, false)
	second := Disassemble(fn, false)
	assert.Equal(t, first, second)
}
