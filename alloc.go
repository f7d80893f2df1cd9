package xan

// alloc.go is the allocator: every heap object xan ever creates is
// built here, so trackObject is the single choke point gc.go's
// collectGarbage can trigger from. Grounded in original_source's
// object.c allocateObject()/copyString().

func (vm *VM) track(o Object, size int) Object {
	vm.trackObject(o, size)
	return o
}

// internString returns the canonical *ObjString for chars, creating
// and interning a new one only if an equal string isn't already
// known. Total interning is what makes Value.Equal compare xan
// strings by pointer identity.
func (vm *VM) internString(chars []byte) *ObjString {
	hash := fnv1a(chars)
	if vm.strings != nil {
		if existing := vm.strings.FindInterned(chars, hash); existing != nil {
			return existing
		}
	}
	owned := make([]byte, len(chars))
	copy(owned, chars)
	s := &ObjString{Obj: Obj{Kind: ObjKindString}, Chars: owned, Hash: hash}
	// s is reachable from nothing until it's in vm.strings below, but
	// track can itself trigger a collection; pin it first so that
	// collection can't sweep it out from under us.
	vm.pin(s)
	vm.track(s, len(owned)+24)
	vm.unpin()
	if vm.strings == nil {
		vm.strings = newTable()
	}
	vm.strings.Set(s, NilValue())
	return s
}

func (vm *VM) newFunction() *ObjFunction {
	f := &ObjFunction{Obj: Obj{Kind: ObjKindFunction}}
	vm.track(f, 64)
	return f
}

func (vm *VM) newClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Obj: Obj{Kind: ObjKindClosure}, Function: fn, Upvalues: make([]*ObjUpvalue, len(fn.Upvalues))}
	vm.track(c, 24+8*len(fn.Upvalues))
	return c
}

func (vm *VM) newOpenUpvalue(location int) *ObjUpvalue {
	u := &ObjUpvalue{Obj: Obj{Kind: ObjKindUpvalue}, Location: location, IsOpen: true}
	vm.track(u, 32)
	return u
}

func (vm *VM) newClassObj(name *ObjString) *ObjClass {
	c := &ObjClass{Obj: Obj{Kind: ObjKindClass}, Name: name, Methods: newTable()}
	vm.track(c, 32)
	return c
}

func (vm *VM) newInstanceObj(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Obj: Obj{Kind: ObjKindInstance}, Class: class, Fields: newTable()}
	vm.track(i, 32)
	return i
}

func (vm *VM) newBoundMethodObj(receiver Value, method Object) *ObjBoundMethod {
	b := &ObjBoundMethod{Obj: Obj{Kind: ObjKindBoundMethod}, Receiver: receiver, Method: method}
	vm.track(b, 32)
	return b
}

func (vm *VM) newNativeObj(name string, fn NativeFn) *ObjNative {
	n := &ObjNative{Obj: Obj{Kind: ObjKindNative}, Name: name, Fn: fn}
	vm.track(n, 32)
	return n
}

func (vm *VM) newArrayObj() *ObjArray {
	a := &ObjArray{Obj: Obj{Kind: ObjKindArray}}
	vm.track(a, 24)
	return a
}

func (vm *VM) newTableObj() *ObjTable {
	t := newTable()
	t.Obj = Obj{Kind: ObjKindTable}
	vm.track(t, 24)
	return t
}
