package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *ObjFunction {
	t.Helper()
	vm := NewVM(nil, nil, nil)
	fn, errs := NewCompiler(vm, src).Compile()
	require.Empty(t, errs)
	return fn
}

func TestCompiler_SimpleExpressionStatement(t *testing.T) {
	fn := compile(t, `1 + 2;`)
	require.NotEmpty(t, fn.Chunk.Code)
	assert.Equal(t, OpReturn, decodeOp(fn.Chunk.Code[len(fn.Chunk.Code)-1]))
}

func TestCompiler_ReportsSyntaxErrors(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	_, errs := NewCompiler(vm, `var a = ;`).Compile()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "Expect expression.")
}

func TestCompiler_SynchronizesAfterErrorAndCollectsMore(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	_, errs := NewCompiler(vm, `var a = ; var b = ;`).Compile()
	assert.GreaterOrEqual(t, len(errs), 2, "panic-mode recovery should let both errors surface")
}

func TestCompiler_FunctionEntryPointsPerArity(t *testing.T) {
	fn := compile(t, `fun greet(name, greeting = "hi") { print(greeting); }`)
	// The top-level script constant pool holds the compiled `greet`
	// closure; find it and check it has one entry point per allowed
	// arity: one when greeting is supplied, one when it's omitted.
	var greet *ObjFunction
	for _, k := range fn.Chunk.Constants {
		if f, ok := k.Obj.(*ObjFunction); ok {
			greet = f
		}
	}
	require.NotNil(t, greet)
	assert.Equal(t, 1, greet.MinArity)
	assert.Equal(t, 2, greet.MaxArity)
	assert.Len(t, greet.CodeOffsets, greet.MaxArity-greet.MinArity+1)
}

func TestCompiler_DefaultParameterCanReferenceEarlierParameter(t *testing.T) {
	// Default-value expressions are compiled like any other expression,
	// not restricted to literals, so a later parameter's default may
	// read an earlier one.
	out, code := run(`fun f(a, b = a + 1) { return b; } print(f(2));`)
	assert.Equal(t, "3\n", out)
	assert.Equal(t, 0, code)
}

func TestCompiler_InitializerReturnsReceiver(t *testing.T) {
	fn := compile(t, `class Point { init(x) { this.x = x; } }`)
	var initFn *ObjFunction
	for _, k := range fn.Chunk.Constants {
		if f, ok := k.Obj.(*ObjFunction); ok && f.Name != nil && f.Name.String() == "init" {
			initFn = f
		}
	}
	require.NotNil(t, initFn, "expected a compiled init method in the constant pool")

	last := initFn.Chunk.Code[len(initFn.Chunk.Code)-1]
	require.Equal(t, OpReturn, decodeOp(last))
	assert.Equal(t, uint8(0), decodeA(last), "an initializer must return register 0 (the receiver), not a synthesized nil")
}

func TestCompiler_TopLevelScriptHasSingleEntryPoint(t *testing.T) {
	fn := compile(t, `print(1);`)
	assert.Equal(t, []int{0}, fn.CodeOffsets)
}
