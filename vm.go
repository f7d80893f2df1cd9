package xan

import (
	"fmt"
	"io"
	"strings"
)

// VM is the register-based bytecode interpreter: a flat value stack
// shared by every call frame's register window, a call-frame stack,
// the open-upvalue chain, globals, the string intern table, and the
// garbage collector's bookkeeping. Grounded in original_source's vm.c
// run()/callValue(), reshaped from a stack machine onto the register
// windows chunk.go's encoding implies.
type VM struct {
	stack    []Value
	stackTop int

	frames     []CallFrame
	frameCount int

	openUpvalues *ObjUpvalue

	globals    *ObjTable
	strings    *ObjTable
	initString *ObjString
	msgString  *ObjString

	exceptionClass *ObjClass
	arrayMethods   *ObjTable
	tableMethods   *ObjTable

	compilerRoots []*ObjFunction
	gc            gcState

	tryStack  []tryHandler
	exception Value

	config *Config
	out    io.Writer
	errOut io.Writer
}

// NewVM returns a VM ready to Interpret source. cfg may be nil, in
// which case NewConfig's defaults apply.
func NewVM(cfg *Config, out, errOut io.Writer) *VM {
	if cfg == nil {
		cfg = NewConfig()
	}
	vm := &VM{
		globals: newTable(),
		config:  cfg,
		out:     out,
		errOut:  errOut,
		gc:      newGCState(),
	}
	vm.gc.stressMode = cfg.GetBool("gc.stress")
	vm.stack = make([]Value, cfg.GetInt("vm.stackMax"))
	vm.frames = make([]CallFrame, cfg.GetInt("vm.framesMax"))
	vm.initString = vm.internString([]byte("init"))
	vm.msgString = vm.internString([]byte("msg"))
	registerNatives(vm)
	return vm
}

// Interpret compiles and runs source to completion. A compile error
// is returned as-is (exit code 65 at the CLI layer); an uncaught
// exception comes back as a *RuntimeError (exit code 70).
func (vm *VM) Interpret(source string) error {
	compiler := NewCompiler(vm, source)
	fn, errs := compiler.Compile()
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("%s", strings.Join(msgs, "\n"))
	}
	closure := vm.newClosure(fn)
	vm.stack[0] = ObjValue(closure)
	vm.stackTop = 1
	if err := vm.callClosure(closure, 0, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) currentFrame() *CallFrame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) runtimeErrorf(format string, args ...any) error {
	return vm.throwRuntime(fmt.Sprintf(format, args...))
}

// throwRuntime builds an Exception instance for message and routes it
// through the same unwinding path a user `throw` would take.
func (vm *VM) throwRuntime(message string) error {
	vm.exception = ObjValue(vm.newExceptionInstance(message))
	return vm.unwind()
}

// unwind pops the innermost try handler and resumes execution there,
// or — if no handler is active — renders the uncaught exception and
// returns a *RuntimeError for the CLI to report and exit 70 on.
func (vm *VM) unwind() error {
	if len(vm.tryStack) == 0 {
		msg := vm.exceptionMessage(vm.exception)
		trace := vm.buildTrace()
		exc := vm.exception
		vm.exception = Value{}
		return &RuntimeError{Value: exc, Message: msg, Trace: trace}
	}
	h := vm.tryStack[len(vm.tryStack)-1]
	vm.tryStack = vm.tryStack[:len(vm.tryStack)-1]
	vm.frameCount = h.frameIndex + 1
	vm.stackTop = h.stackTop
	frame := &vm.frames[h.frameIndex]
	frame.ip = h.handlerPC
	vm.stack[frame.base+h.excReg] = vm.exception
	vm.exception = Value{}
	return nil
}

func (vm *VM) exceptionMessage(v Value) string {
	if v.IsObjKind(ObjKindInstance) {
		inst := v.Obj.(*ObjInstance)
		if msg, ok := inst.Fields.Get(vm.msgString); ok {
			return msg.String()
		}
	}
	return v.String()
}

func (vm *VM) buildTrace() []string {
	trace := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := vm.frames[i]
		line := 0
		if f.ip >= 0 && f.ip < len(f.closure.Function.Chunk.Lines) {
			line = f.closure.Function.Chunk.Lines[f.ip]
		}
		name := "<script>"
		if f.closure.Function.Name != nil {
			name = f.closure.Function.Name.String()
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	return trace
}

// run is the main dispatch loop: fetch, decode, execute, repeat until
// the outermost frame (the one Interpret pushed) returns, or an
// unhandled exception escapes it.
func (vm *VM) run() error {
	baseFrameCount := vm.frameCount - 1
	var frame *CallFrame

	for {
		// Re-read the frame every step: a caught runtime error may have
		// unwound to a handler in an outer frame.
		frame = vm.currentFrame()
		instr := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		op := decodeOp(instr)
		a := decodeA(instr)
		d := decodeD(instr)
		b := decodeB(instr)
		cc := decodeC(instr)
		base := frame.base

		// fail decides whether the loop goes on after an opcode error. A
		// runtime error that a try handler caught has already been routed
		// there by unwind and arrives here as nil; the loop then resumes
		// at the handler, in whichever frame unwind left current. An
		// uncaught *RuntimeError is handed back to the caller of run().
		fail := func(err error) (bool, error) {
			if err == nil {
				return true, nil
			}
			if _, ok := err.(*RuntimeError); ok {
				return false, err
			}
			if vm.frameCount <= baseFrameCount {
				return false, err
			}
			frame = vm.currentFrame()
			base = frame.base
			return true, nil
		}

		switch op {
		case OpConstNum:
			vm.stack[base+int(a)] = frame.closure.Function.Chunk.Constants[d]
		case OpPrimitive:
			switch primitive(d) {
			case PrimNil:
				vm.stack[base+int(a)] = NilValue()
			case PrimTrue:
				vm.stack[base+int(a)] = BoolValue(true)
			case PrimFalse:
				vm.stack[base+int(a)] = BoolValue(false)
			}
		case OpMov:
			vm.stack[base+int(a)] = vm.stack[base+int(d)]
		case OpNegate:
			v := vm.stack[base+int(d)]
			if !v.IsNumber() {
				if ok, err := fail(vm.runtimeErrorf("Operand(s) must be number(s).")); !ok {
					return err
				}
				continue
			}
			vm.stack[base+int(a)] = NumberValue(-v.Num)
		case OpNot:
			v := vm.stack[base+int(d)]
			vm.stack[base+int(a)] = BoolValue(!v.Truthy())

		case OpAddVV, OpSubVV, OpMulVV, OpDivVV, OpModVV:
			left := vm.stack[base+int(b)]
			right := vm.stack[base+int(cc)]
			res, err := vm.arith(op, left, right)
			if err != nil {
				if ok, err := fail(err); !ok {
					return err
				}
				continue
			}
			vm.stack[base+int(a)] = res

		case OpEqual, OpNeq:
			left := vm.stack[base+int(b)]
			right := vm.stack[base+int(cc)]
			eq := left.Equal(right)
			if op == OpNeq {
				eq = !eq
			}
			vm.stack[base+int(a)] = BoolValue(eq)

		case OpLess, OpGeq, OpGreater, OpLeq:
			left := vm.stack[base+int(b)]
			right := vm.stack[base+int(cc)]
			if !left.IsNumber() || !right.IsNumber() {
				if ok, err := fail(vm.runtimeErrorf("Operand(s) must be number(s).")); !ok {
					return err
				}
				continue
			}
			var r bool
			switch op {
			case OpLess:
				r = left.Num < right.Num
			case OpGeq:
				r = left.Num >= right.Num
			case OpGreater:
				r = left.Num > right.Num
			case OpLeq:
				r = left.Num <= right.Num
			}
			vm.stack[base+int(a)] = BoolValue(r)

		case OpJump:
			frame.ip += jumpDelta(d)

		// The four conditional forms are two-instruction idioms: this
		// instruction only tests a register (D holds the register, not
		// an offset); the following instruction is always a plain JUMP,
		// which fires when the tested condition holds and is otherwise
		// skipped over.
		case OpJumpIfTrue, OpJumpIfFalse, OpCopyJumpIfTrue, OpCopyJumpIfFalse:
			reg := int(d)
			val := vm.stack[base+reg]
			var fire bool
			switch op {
			case OpJumpIfTrue:
				fire = val.Truthy()
			case OpJumpIfFalse:
				fire = !val.Truthy()
			case OpCopyJumpIfTrue:
				fire = val.Truthy()
				if fire {
					vm.stack[base+int(a)] = val
				}
			case OpCopyJumpIfFalse:
				fire = !val.Truthy()
				if fire {
					vm.stack[base+int(a)] = val
				}
			}
			jumpInstr := frame.closure.Function.Chunk.Code[frame.ip]
			frame.ip++
			if fire {
				frame.ip += jumpDelta(decodeD(jumpInstr))
			}

		case OpGetGlobal:
			name := frame.closure.Function.Chunk.Constants[d].Obj.(*ObjString)
			v, ok := vm.globals.Get(name)
			if !ok {
				if ok, err := fail(vm.runtimeErrorf("Undefined variable '%s'.", name.String())); !ok {
					return err
				}
				continue
			}
			vm.stack[base+int(a)] = v
		case OpSetGlobal:
			name := frame.closure.Function.Chunk.Constants[d].Obj.(*ObjString)
			if _, ok := vm.globals.Get(name); !ok {
				if ok, err := fail(vm.runtimeErrorf("Undefined variable '%s'.", name.String())); !ok {
					return err
				}
				continue
			}
			vm.globals.Set(name, vm.stack[base+int(a)])
		case OpDefineGlobal:
			name := frame.closure.Function.Chunk.Constants[d].Obj.(*ObjString)
			vm.globals.Set(name, vm.stack[base+int(a)])

		case OpGetUpval:
			uv := frame.closure.Upvalues[d]
			vm.stack[base+int(a)] = vm.upvalueValue(uv)
		case OpSetUpval:
			uv := frame.closure.Upvalues[d]
			vm.setUpvalueValue(uv, vm.stack[base+int(a)])

		case OpGetProperty:
			obj := vm.stack[base+int(b)]
			name := vm.stack[base+int(cc)].Obj.(*ObjString)
			v, err := vm.getProperty(obj, name)
			if err != nil {
				if ok, err := fail(err); !ok {
					return err
				}
				continue
			}
			vm.stack[base+int(a)] = v
		case OpSetProperty:
			obj := vm.stack[base+int(b)]
			name := vm.stack[base+int(cc)].Obj.(*ObjString)
			if !obj.IsObjKind(ObjKindInstance) {
				if ok, err := fail(vm.runtimeErrorf("Only instances have fields/properties.")); !ok {
					return err
				}
				continue
			}
			obj.Obj.(*ObjInstance).Fields.Set(name, vm.stack[base+int(a)])

		case OpGetSubscript:
			obj := vm.stack[base+int(b)]
			key := vm.stack[base+int(cc)]
			v, err := vm.getSubscript(obj, key)
			if err != nil {
				if ok, err := fail(err); !ok {
					return err
				}
				continue
			}
			vm.stack[base+int(a)] = v
		case OpSetSubscript:
			obj := vm.stack[base+int(b)]
			key := vm.stack[base+int(cc)]
			if err := vm.setSubscript(obj, key, vm.stack[base+int(a)]); err != nil {
				if ok, err := fail(err); !ok {
					return err
				}
				continue
			}

		case OpNewArray:
			arr := vm.newArrayObj()
			for i := 0; i < int(cc); i++ {
				arr.Push(vm.stack[base+int(b)+i])
			}
			vm.stack[base+int(a)] = ObjValue(arr)
		case OpDuplicateArray:
			src := vm.stack[base+int(d)].Obj.(*ObjArray)
			dup := vm.newArrayObj()
			for _, v := range src.Values {
				dup.Push(v)
			}
			vm.stack[base+int(a)] = ObjValue(dup)
		case OpNewTable:
			tbl := vm.newTableObj()
			for i := 0; i < int(cc); i++ {
				key := vm.stack[base+int(b)+2*i]
				val := vm.stack[base+int(b)+2*i+1]
				tbl.Set(key.Obj.(*ObjString), val)
			}
			vm.stack[base+int(a)] = ObjValue(tbl)
		case OpDuplicateTable:
			src := vm.stack[base+int(d)].Obj.(*ObjTable)
			dup := vm.newTableObj()
			dup.AddAll(src)
			vm.stack[base+int(a)] = ObjValue(dup)

		case OpClosure:
			fn := frame.closure.Function.Chunk.Constants[d].Obj.(*ObjFunction)
			closure := vm.newClosure(fn)
			for i, uvd := range fn.Upvalues {
				if uvd.IsLocal {
					closure.Upvalues[i] = vm.captureUpvalue(base + uvd.Index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[uvd.Index]
				}
			}
			vm.stack[base+int(a)] = ObjValue(closure)
		case OpCloseUpvalues:
			vm.closeUpvalues(base + int(a))

		case OpCall:
			calleeReg := base + int(a)
			argc := int(cc)
			if err := vm.callValue(calleeReg, argc); err != nil {
				if ok, err := fail(err); !ok {
					return err
				}
				continue
			}
			frame = vm.currentFrame()

		case OpReturn:
			retVal := vm.stack[base+int(a)]
			vm.closeUpvalues(base)
			vm.frameCount--
			vm.stack[base] = retVal
			vm.stackTop = base + 1
			if vm.frameCount == baseFrameCount {
				return nil
			}
			frame = vm.currentFrame()

		case OpClass:
			name := frame.closure.Function.Chunk.Constants[d].Obj.(*ObjString)
			vm.stack[base+int(a)] = ObjValue(vm.newClassObj(name))
		case OpMethod:
			class := vm.stack[base+int(a)].Obj.(*ObjClass)
			name := vm.stack[base+int(b)].Obj.(*ObjString)
			method := vm.stack[base+int(cc)]
			class.Methods.Set(name, method)
		case OpInherit:
			sub := vm.stack[base+int(a)]
			super := vm.stack[base+int(d)]
			if !super.IsObjKind(ObjKindClass) {
				if ok, err := fail(vm.runtimeErrorf("Superclass must be a class.")); !ok {
					return err
				}
				continue
			}
			subClass := sub.Obj.(*ObjClass)
			superClass := super.Obj.(*ObjClass)
			subClass.Superclass = superClass
			subClass.Methods.AddAll(superClass.Methods)
		case OpGetSuper:
			super := vm.stack[base+int(b)].Obj.(*ObjClass)
			name := vm.stack[base+int(cc)].Obj.(*ObjString)
			method, found := super.Methods.Get(name)
			if !found {
				if ok, err := fail(vm.runtimeErrorf("Undefined property '%s'.", name.String())); !ok {
					return err
				}
				continue
			}
			receiver := vm.stack[base]
			vm.stack[base+int(a)] = ObjValue(vm.newBoundMethodObj(receiver, method.Obj))

		case OpBeginTry:
			handlerPC := frame.ip + jumpDelta(d)
			vm.tryStack = append(vm.tryStack, tryHandler{
				frameIndex: vm.frameCount - 1,
				handlerPC:  handlerPC,
				excReg:     int(a),
				stackTop:   vm.stackTop,
			})
		case OpEndTry:
			if len(vm.tryStack) > 0 {
				vm.tryStack = vm.tryStack[:len(vm.tryStack)-1]
			}
			frame.ip += jumpDelta(d)
		case OpThrow:
			thrown := vm.stack[base+int(a)]
			if !thrown.IsObjKind(ObjKindInstance) || !thrown.Obj.(*ObjInstance).Class.IsOrInherits(vm.exceptionClass) {
				vm.exception = ObjValue(vm.newExceptionInstance("Only exceptions can be thrown."))
			} else {
				vm.exception = thrown
			}
			if err := vm.unwind(); err != nil {
				return err
			}
			frame = vm.currentFrame()
		case OpJumpIfNotExc:
			inst := vm.stack[base+int(a)]
			class := vm.stack[base+int(b)]
			matches := false
			if inst.IsObjKind(ObjKindInstance) && class.IsObjKind(ObjKindClass) {
				matches = inst.Obj.(*ObjInstance).Class.IsOrInherits(class.Obj.(*ObjClass))
			}
			jumpInstr := frame.closure.Function.Chunk.Code[frame.ip]
			frame.ip++
			if !matches {
				frame.ip += jumpDelta(decodeD(jumpInstr))
			}

		case OpHalt:
			return nil

		default:
			return fmt.Errorf("unknown opcode %d", op)
		}
	}
}

// arith implements the five numeric binary opcodes, plus string
// concatenation for ADDVV.
func (vm *VM) arith(op Op, left, right Value) (Value, error) {
	if op == OpAddVV && left.IsObjKind(ObjKindString) && right.IsObjKind(ObjKindString) {
		ls := left.Obj.(*ObjString)
		rs := right.Obj.(*ObjString)
		joined := make([]byte, 0, len(ls.Chars)+len(rs.Chars))
		joined = append(joined, ls.Chars...)
		joined = append(joined, rs.Chars...)
		return ObjValue(vm.internString(joined)), nil
	}
	if !left.IsNumber() || !right.IsNumber() {
		return Value{}, vm.runtimeErrorf("Operand(s) must be number(s).")
	}
	switch op {
	case OpAddVV:
		return NumberValue(left.Num + right.Num), nil
	case OpSubVV:
		return NumberValue(left.Num - right.Num), nil
	case OpMulVV:
		return NumberValue(left.Num * right.Num), nil
	case OpDivVV:
		return NumberValue(left.Num / right.Num), nil
	case OpModVV:
		return NumberValue(mathMod(left.Num, right.Num)), nil
	}
	return Value{}, nil
}

func mathMod(a, b float64) float64 {
	return a - b*float64(int64(a/b))
}

// --- properties & subscripts -------------------------------------------

func (vm *VM) getProperty(obj Value, name *ObjString) (Value, error) {
	switch {
	case obj.IsObjKind(ObjKindInstance):
		inst := obj.Obj.(*ObjInstance)
		if v, ok := inst.Fields.Get(name); ok {
			return v, nil
		}
		if m, ok := inst.Class.Methods.Get(name); ok {
			return ObjValue(vm.newBoundMethodObj(obj, m.Obj)), nil
		}
		return Value{}, vm.runtimeErrorf("Undefined property '%s'.", name.String())
	case obj.IsObjKind(ObjKindArray):
		if m, ok := vm.arrayMethods.Get(name); ok {
			return ObjValue(vm.newBoundMethodObj(obj, m.Obj)), nil
		}
		return Value{}, vm.runtimeErrorf("Undefined property '%s'.", name.String())
	case obj.IsObjKind(ObjKindTable):
		if m, ok := vm.tableMethods.Get(name); ok {
			return ObjValue(vm.newBoundMethodObj(obj, m.Obj)), nil
		}
		return Value{}, vm.runtimeErrorf("Undefined property '%s'.", name.String())
	default:
		return Value{}, vm.runtimeErrorf("Only instances have fields/properties.")
	}
}

func (vm *VM) getSubscript(obj, key Value) (Value, error) {
	switch {
	case obj.IsObjKind(ObjKindArray):
		arr := obj.Obj.(*ObjArray)
		if !key.IsNumber() {
			return Value{}, vm.runtimeErrorf("Arrays can only be subscripted by numbers.")
		}
		idx, ok := intIndex(key.Num)
		if !ok {
			return Value{}, vm.runtimeErrorf("Subscript must be an integer.")
		}
		v, ok := arr.Get(idx)
		if !ok {
			return Value{}, vm.runtimeErrorf("Subscript out of bounds.")
		}
		return v, nil
	case obj.IsObjKind(ObjKindTable):
		tbl := obj.Obj.(*ObjTable)
		if !key.IsObjKind(ObjKindString) {
			return Value{}, vm.runtimeErrorf("Tables can only be subscripted by strings.")
		}
		v, ok := tbl.Get(key.Obj.(*ObjString))
		if !ok {
			return NilValue(), nil
		}
		return v, nil
	default:
		return Value{}, vm.runtimeErrorf("Only arrays and tables can be subscripted.")
	}
}

func (vm *VM) setSubscript(obj, key, value Value) error {
	switch {
	case obj.IsObjKind(ObjKindArray):
		arr := obj.Obj.(*ObjArray)
		if !key.IsNumber() {
			return vm.runtimeErrorf("Arrays can only be subscripted by numbers.")
		}
		idx, ok := intIndex(key.Num)
		if !ok {
			return vm.runtimeErrorf("Subscript must be an integer.")
		}
		if idx == arr.Len() {
			arr.Push(value)
			return nil
		}
		if !arr.Set(idx, value) {
			return vm.runtimeErrorf("Subscript out of bounds.")
		}
		return nil
	case obj.IsObjKind(ObjKindTable):
		tbl := obj.Obj.(*ObjTable)
		if !key.IsObjKind(ObjKindString) {
			return vm.runtimeErrorf("Tables can only be subscripted by strings.")
		}
		tbl.Set(key.Obj.(*ObjString), value)
		return nil
	default:
		return vm.runtimeErrorf("Only arrays and tables can be subscripted.")
	}
}

func intIndex(n float64) (int, bool) {
	i := int(n)
	if float64(i) != n {
		return 0, false
	}
	return i, true
}

// --- upvalues -----------------------------------------------------------

// captureUpvalue returns the open upvalue for absolute stack slot
// location, reusing one already open for that slot if one exists. The
// open list is kept sorted by descending Location, matching
// original_source's captureUpvalue/closeUpvalues.
func (vm *VM) captureUpvalue(location int) *ObjUpvalue {
	var prev *ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Location > location {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.Location == location {
		return cur
	}
	created := vm.newOpenUpvalue(location)
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above absolute slot
// from, copying the stack value into the upvalue itself and unlinking
// it from the open list.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Location >= from {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.Location]
		uv.IsOpen = false
		vm.openUpvalues = uv.NextOpen
		uv.NextOpen = nil
	}
}

func (vm *VM) upvalueValue(uv *ObjUpvalue) Value {
	if uv.IsOpen {
		return vm.stack[uv.Location]
	}
	return uv.Closed
}

func (vm *VM) setUpvalueValue(uv *ObjUpvalue, v Value) {
	if uv.IsOpen {
		vm.stack[uv.Location] = v
		return
	}
	uv.Closed = v
}

// --- calls ----------------------------------------------------------------

// callValue dispatches R[calleeReg](argc...) per the callable kind:
// a Closure pushes a frame; a BoundMethod rewrites the callee slot to
// hold the receiver (so it becomes R[0] of the callee) and recurses
// into the bound method; a Class allocates an instance and runs
// `init` if present; a Native runs synchronously.
func (vm *VM) callValue(calleeReg, argc int) error {
	callee := vm.stack[calleeReg]
	if !callee.IsObj() {
		return vm.runtimeErrorf("Can only call functions and classes.")
	}
	switch obj := callee.Obj.(type) {
	case *ObjClosure:
		return vm.callClosure(obj, calleeReg, argc)
	case *ObjBoundMethod:
		vm.stack[calleeReg] = obj.Receiver
		return vm.invokeMethod(obj.Method, calleeReg, argc)
	case *ObjClass:
		instance := vm.newInstanceObj(obj)
		if initMethod, ok := obj.Methods.Get(vm.initString); ok {
			vm.stack[calleeReg] = ObjValue(instance)
			return vm.invokeMethod(initMethod.Obj, calleeReg, argc)
		}
		if argc != 0 {
			return vm.runtimeErrorf("Expected %d arguments but got %d.", 0, argc)
		}
		vm.stack[calleeReg] = ObjValue(instance)
		return nil
	case *ObjNative:
		return vm.callNative(obj, calleeReg, argc)
	default:
		return vm.runtimeErrorf("Can only call functions and classes.")
	}
}

func (vm *VM) invokeMethod(method Object, calleeReg, argc int) error {
	switch m := method.(type) {
	case *ObjClosure:
		return vm.callClosure(m, calleeReg, argc)
	case *ObjNative:
		return vm.callNative(m, calleeReg, argc)
	default:
		return vm.runtimeErrorf("Can only call functions and classes.")
	}
}

func (vm *VM) callClosure(closure *ObjClosure, calleeReg, argc int) error {
	fn := closure.Function
	if argc < fn.MinArity || argc > fn.MaxArity {
		return vm.runtimeErrorf("Expected %d arguments but got %d.", fn.MinArity, argc)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeErrorf("Stack overflow.")
	}
	entry := fn.CodeOffsets[fn.MaxArity-argc]
	vm.frames[vm.frameCount] = CallFrame{closure: closure, ip: entry, base: calleeReg}
	vm.frameCount++
	top := calleeReg + fn.StackUsed
	if top > vm.stackTop {
		vm.stackTop = top
	}
	return nil
}

// callNative runs a native function. recv is whatever sits at the
// callee's own register slot: for bound native methods (Array/Table),
// callValue has already overwritten it with the receiver; for bare
// natives (clock/print) it's the native value itself and unused.
func (vm *VM) callNative(n *ObjNative, calleeReg, argc int) error {
	recv := vm.stack[calleeReg]
	args := vm.stack[calleeReg+1 : calleeReg+1+argc]
	result, err := n.Fn(vm, recv, argc, args)
	if err != nil {
		return vm.runtimeErrorf("%s", err.Error())
	}
	vm.stack[calleeReg] = result
	return nil
}
