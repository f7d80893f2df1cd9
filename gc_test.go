package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGC_SweepReclaimsUnreachableObjects(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	_ = vm.newArrayObj() // unreferenced by anything the VM can trace as a root

	vm.collectGarbage()

	for o := vm.gc.objects; o != nil; o = o.header().Next {
		if _, ok := o.(*ObjArray); ok {
			t.Fatal("unreachable array survived a collection cycle")
		}
	}
}

func TestGC_RootsSurviveCollection(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	arr := vm.newArrayObj()
	vm.stack[0] = ObjValue(arr)
	vm.stackTop = 1

	vm.collectGarbage()

	found := false
	for o := vm.gc.objects; o != nil; o = o.header().Next {
		if o == Object(arr) {
			found = true
		}
	}
	assert.True(t, found, "an object referenced from the value stack must survive")
}

func TestGC_InternedStringsDropWhenUnreachable(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	vm.internString([]byte("ephemeral"))
	require.NotNil(t, vm.strings.FindInterned([]byte("ephemeral"), fnv1a([]byte("ephemeral"))))

	vm.collectGarbage()

	assert.Nil(t, vm.strings.FindInterned([]byte("ephemeral"), fnv1a([]byte("ephemeral"))),
		"an interned string with no other reference should be swept and removed from the intern table")
}

func TestGC_BuiltinClassSurvivesAsRoot(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	vm.collectGarbage()
	assert.NotNil(t, vm.exceptionClass, "the Exception class is a permanent root")

	_, ok := vm.globals.Get(vm.internString([]byte("Exception")))
	assert.True(t, ok)
}

func TestGC_StressModeSurvivesRepeatedAllocation(t *testing.T) {
	cfg := NewConfig()
	cfg.SetBool("gc.stress", true)
	vm := NewVM(cfg, nil, nil)

	held := vm.internString([]byte("kept"))
	vm.stack[0] = ObjValue(held)
	vm.stackTop = 1

	for i := 0; i < 50; i++ {
		vm.internString([]byte{byte(i)})
	}

	got := vm.strings.FindInterned([]byte("kept"), fnv1a([]byte("kept")))
	assert.Same(t, held, got, "a rooted string must survive repeated stress-mode collections")
}
