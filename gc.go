package xan

// gcInitialThreshold is the floor nextGC never drops below, and the
// starting budget before the first collection.
const gcInitialThreshold = 1 << 20 // 1 MiB

// gcHeapGrowFactor is how much nextGC grows relative to live bytes
// after each collection.
const gcHeapGrowFactor = 2

// gcState is the VM's garbage-collector bookkeeping: every heap object
// ever allocated is threaded onto objects via its Obj.Next field, so
// sweep can walk the whole heap without a separate allocation list.
// Grounded in original_source's memory.c reallocate()/collectGarbage().
type gcState struct {
	objects        Object
	bytesAllocated int64
	nextGC         int64
	grayStack      []Object
	pinned         []Object // objects rooted outside the stack/globals/etc, see pin
	stressMode     bool     // collect on every tracked allocation, for tests
}

// pin temporarily roots o against collection. It exists for the narrow
// window between an object's allocation and the moment it becomes
// reachable through its normal owner (a table, the value stack, a
// constant pool): allocating can itself trigger a collection, and
// until the object is linked into its owner nothing else would mark
// it. Callers must unpin in the same function once the object is
// reachable by ordinary means.
func (vm *VM) pin(o Object) {
	vm.gc.pinned = append(vm.gc.pinned, o)
}

func (vm *VM) unpin() {
	vm.gc.pinned = vm.gc.pinned[:len(vm.gc.pinned)-1]
}

func newGCState() gcState {
	return gcState{nextGC: gcInitialThreshold}
}

// trackObject registers a freshly allocated object with the collector
// and runs a collection if the allocation budget (or stress mode)
// calls for one. size is an approximate byte cost charged against
// bytesAllocated; it need not be exact, only monotonic with the
// object's real footprint.
func (vm *VM) trackObject(o Object, size int) {
	h := o.header()
	h.Next = vm.gc.objects
	h.Size = size
	vm.gc.objects = o
	vm.gc.bytesAllocated += int64(size)

	if vm.gc.stressMode || vm.gc.bytesAllocated > vm.gc.nextGC {
		vm.collectGarbage()
	}
}

// collectGarbage runs one full mark-sweep cycle: mark roots, trace the
// gray worklist to black, drop intern-table entries for strings that
// turned out unreachable, then sweep the all-objects list and grow the
// next threshold off of what's left.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	if vm.strings != nil {
		vm.strings.removeWhite()
	}
	vm.sweep()

	vm.gc.nextGC = vm.gc.bytesAllocated * gcHeapGrowFactor
	if vm.gc.nextGC < gcInitialThreshold {
		vm.gc.nextGC = gcInitialThreshold
	}
}

// markRoots marks every GC root: the value stack, each call frame's
// closure, the open-upvalue chain, the globals table, any in-progress
// compiler's function objects, and the interned "init" string.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		vm.markObject(uv)
	}
	vm.markTable(vm.globals)
	for _, fn := range vm.compilerRoots {
		vm.markObject(fn)
	}
	if vm.initString != nil {
		vm.markObject(vm.initString)
	}
	if vm.msgString != nil {
		vm.markObject(vm.msgString)
	}
	if vm.exceptionClass != nil {
		vm.markObject(vm.exceptionClass)
	}
	vm.markTable(vm.arrayMethods)
	vm.markTable(vm.tableMethods)
	vm.markValue(vm.exception)
	for _, o := range vm.gc.pinned {
		vm.markObject(o)
	}
}

func (vm *VM) markValue(v Value) {
	if v.Kind == ValObj && v.Obj != nil {
		vm.markObject(v.Obj)
	}
}

// markObject sets the object's mark bit and queues it for tracing.
// Already-marked objects are skipped, which is what keeps cyclic
// structures (an instance whose field points back to itself, etc.)
// from looping forever.
func (vm *VM) markObject(o Object) {
	if o == nil {
		return
	}
	h := o.header()
	if h.Marked {
		return
	}
	h.Marked = true
	vm.gc.grayStack = append(vm.gc.grayStack, o)
}

func (vm *VM) markTable(t *ObjTable) {
	if t == nil {
		return
	}
	vm.markObject(t)
	for _, e := range t.entries {
		if e.Key == nil {
			continue
		}
		vm.markObject(e.Key)
		vm.markValue(e.Value)
	}
}

// traceReferences drains the gray worklist, blackening each object by
// marking whatever it references in turn.
func (vm *VM) traceReferences() {
	for len(vm.gc.grayStack) > 0 {
		n := len(vm.gc.grayStack) - 1
		o := vm.gc.grayStack[n]
		vm.gc.grayStack = vm.gc.grayStack[:n]
		vm.blackenObject(o)
	}
}

// blackenObject marks every object reachable from o in one hop. The
// table case also covers Instance/Class, which each keep their state
// in a *ObjTable.
func (vm *VM) blackenObject(o Object) {
	switch obj := o.(type) {
	case *ObjString, *ObjNative:
		// no outgoing references
	case *ObjUpvalue:
		if !obj.IsOpen {
			vm.markValue(obj.Closed)
		}
	case *ObjFunction:
		vm.markObject(obj.Name)
		for _, c := range obj.Chunk.Constants {
			vm.markValue(c)
		}
	case *ObjClosure:
		vm.markObject(obj.Function)
		for _, uv := range obj.Upvalues {
			vm.markObject(uv)
		}
	case *ObjClass:
		vm.markObject(obj.Name)
		if obj.Superclass != nil {
			vm.markObject(obj.Superclass)
		}
		vm.markTable(obj.Methods)
	case *ObjInstance:
		vm.markObject(obj.Class)
		vm.markTable(obj.Fields)
	case *ObjBoundMethod:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	case *ObjArray:
		for _, v := range obj.Values {
			vm.markValue(v)
		}
	case *ObjTable:
		vm.markTable(obj)
	}
}

// sweep walks the all-objects list, reclaiming every object whose mark
// bit never got set this cycle and clearing the bit on everything
// that survives.
func (vm *VM) sweep() {
	var previous Object
	object := vm.gc.objects

	for object != nil {
		h := object.header()
		if h.Marked {
			h.Marked = false
			previous = object
			object = h.Next
			continue
		}

		unreached := object
		object = h.Next
		if previous != nil {
			previous.header().Next = object
		} else {
			vm.gc.objects = object
		}
		vm.gc.bytesAllocated -= int64(h.Size)
		_ = unreached // reclaimed; Go's own GC frees the backing memory
	}
}
