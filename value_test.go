package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Truthy(t *testing.T) {
	vm := NewVM(nil, nil, nil)

	tests := []struct {
		name     string
		value    Value
		expected bool
	}{
		{"nil is falsey", NilValue(), false},
		{"false is falsey", BoolValue(false), false},
		{"true is truthy", BoolValue(true), true},
		{"zero is truthy", NumberValue(0), true},
		{"empty string is truthy", ObjValue(vm.internString([]byte(""))), true},
		{"empty array is falsey", ObjValue(vm.newArrayObj()), false},
		{"empty table is falsey", ObjValue(vm.newTableObj()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.Truthy())
		})
	}

	t.Run("non-empty array is truthy", func(t *testing.T) {
		arr := vm.newArrayObj()
		arr.Push(NumberValue(1))
		assert.True(t, ObjValue(arr).Truthy())
	})
}

func TestValue_Equal(t *testing.T) {
	vm := NewVM(nil, nil, nil)

	assert.True(t, NilValue().Equal(NilValue()))
	assert.True(t, NumberValue(1).Equal(NumberValue(1)))
	assert.False(t, NumberValue(1).Equal(NumberValue(2)))
	assert.False(t, NumberValue(1).Equal(BoolValue(true)))

	a := vm.internString([]byte("hi"))
	b := vm.internString([]byte("hi"))
	assert.Same(t, a, b, "equal-bytes strings must intern to the same object")
	assert.True(t, ObjValue(a).Equal(ObjValue(b)))

	arr1 := vm.newArrayObj()
	arr2 := vm.newArrayObj()
	assert.False(t, ObjValue(arr1).Equal(ObjValue(arr2)), "arrays compare by identity, not contents")
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "nil", NilValue().String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "false", BoolValue(false).String())
	assert.Equal(t, "1", NumberValue(1).String())
	assert.Equal(t, "1.5", NumberValue(1.5).String())
}

func TestObjClass_IsOrInherits(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	base := vm.newClassObj(vm.internString([]byte("Base")))
	mid := vm.newClassObj(vm.internString([]byte("Mid")))
	mid.Superclass = base
	leaf := vm.newClassObj(vm.internString([]byte("Leaf")))
	leaf.Superclass = mid
	unrelated := vm.newClassObj(vm.internString([]byte("Unrelated")))

	assert.True(t, leaf.IsOrInherits(leaf))
	assert.True(t, leaf.IsOrInherits(mid))
	assert.True(t, leaf.IsOrInherits(base))
	assert.False(t, leaf.IsOrInherits(unrelated))
	assert.False(t, base.IsOrInherits(mid))
}

func TestObjArray_PushPopGetSet(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	arr := vm.newArrayObj()

	arr.Push(NumberValue(1))
	arr.Push(NumberValue(2))
	assert.Equal(t, 2, arr.Len())

	v, ok := arr.Get(0)
	assert.True(t, ok)
	assert.Equal(t, float64(1), v.Num)

	_, ok = arr.Get(5)
	assert.False(t, ok)

	assert.True(t, arr.Set(1, NumberValue(9)))
	v, _ = arr.Get(1)
	assert.Equal(t, float64(9), v.Num)

	v, ok = arr.Pop()
	assert.True(t, ok)
	assert.Equal(t, float64(9), v.Num)
	assert.Equal(t, 1, arr.Len())

	arr.Pop()
	_, ok = arr.Pop()
	assert.False(t, ok, "popping an empty array reports failure")
}
