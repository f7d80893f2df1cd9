package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjTable_SetGetDelete(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	tbl := newTable()

	key := vm.internString([]byte("name"))
	isNew := tbl.Set(key, NumberValue(42))
	assert.True(t, isNew)

	v, ok := tbl.Get(key)
	require.True(t, ok)
	assert.Equal(t, float64(42), v.Num)

	isNew = tbl.Set(key, NumberValue(43))
	assert.False(t, isNew, "re-setting an existing key is not a new entry")
	v, _ = tbl.Get(key)
	assert.Equal(t, float64(43), v.Num)

	assert.True(t, tbl.Delete(key))
	_, ok = tbl.Get(key)
	assert.False(t, ok)
	assert.False(t, tbl.Delete(key), "deleting twice reports no entry removed")
}

func TestObjTable_TombstoneKeepsProbeChainIntact(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	tbl := newTable()

	// Force enough entries into the same small table that at least two
	// keys collide, then delete one and confirm the other is still
	// reachable through the tombstone left behind.
	keys := make([]*ObjString, 0, 6)
	for i := 0; i < 6; i++ {
		k := vm.internString([]byte{byte('a' + i)})
		keys = append(keys, k)
		tbl.Set(k, NumberValue(float64(i)))
	}

	tbl.Delete(keys[0])
	for i := 1; i < len(keys); i++ {
		v, ok := tbl.Get(keys[i])
		require.True(t, ok, "key %d should survive an unrelated deletion", i)
		assert.Equal(t, float64(i), v.Num)
	}
}

func TestObjTable_AddAll(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	src := newTable()
	dst := newTable()

	a := vm.internString([]byte("a"))
	b := vm.internString([]byte("b"))
	src.Set(a, NumberValue(1))
	src.Set(b, NumberValue(2))

	dst.AddAll(src)

	va, ok := dst.Get(a)
	require.True(t, ok)
	assert.Equal(t, float64(1), va.Num)

	vb, ok := dst.Get(b)
	require.True(t, ok)
	assert.Equal(t, float64(2), vb.Num)
}

func TestObjTable_FindInterned(t *testing.T) {
	vm := NewVM(nil, nil, nil)
	s := vm.internString([]byte("hello"))

	found := vm.strings.FindInterned([]byte("hello"), fnv1a([]byte("hello")))
	assert.Same(t, s, found)

	notFound := vm.strings.FindInterned([]byte("goodbye"), fnv1a([]byte("goodbye")))
	assert.Nil(t, notFound)
}

func TestObjTable_Count(t *testing.T) {
	tbl := newTable()
	assert.Equal(t, 0, tbl.Count())

	vm := NewVM(nil, nil, nil)
	tbl.Set(vm.internString([]byte("x")), NilValue())
	assert.Equal(t, 1, tbl.Count())
}
