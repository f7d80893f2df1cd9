package xan

import (
	"fmt"
	"time"
)

// natives.go wires the minimal standard library: clock/print as bare
// globals, Array/Table instance methods, and the built-in Exception
// class that throw/catch and runtime errors share.

func registerNatives(vm *VM) {
	vm.globals.Set(vm.internString([]byte("clock")), ObjValue(vm.newNativeObj("clock", nativeClock)))
	vm.globals.Set(vm.internString([]byte("print")), ObjValue(vm.newNativeObj("print", nativePrint)))

	vm.arrayMethods = newTable()
	registerMethod(vm, vm.arrayMethods, "push", nativeArrayPush)
	registerMethod(vm, vm.arrayMethods, "pop", nativeArrayPop)
	registerMethod(vm, vm.arrayMethods, "len", nativeArrayLen)

	vm.tableMethods = newTable()
	registerMethod(vm, vm.tableMethods, "has", nativeTableHas)
	registerMethod(vm, vm.tableMethods, "remove", nativeTableRemove)
	registerMethod(vm, vm.tableMethods, "len", nativeTableLen)

	vm.exceptionClass = newExceptionClass(vm)
	vm.globals.Set(vm.internString([]byte("Exception")), ObjValue(vm.exceptionClass))
}

func registerMethod(vm *VM, methods *ObjTable, name string, fn NativeFn) {
	methods.Set(vm.internString([]byte(name)), ObjValue(vm.newNativeObj(name, fn)))
}

// newExceptionClass builds the built-in Exception class: an `init`
// that stores its message argument under the `msg` field every
// runtime error and `throw`n value is expected to carry.
func newExceptionClass(vm *VM) *ObjClass {
	class := vm.newClassObj(vm.internString([]byte("Exception")))
	class.Methods.Set(vm.initString, ObjValue(vm.newNativeObj("init", nativeExceptionInit)))
	return class
}

func nativeExceptionInit(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	inst, ok := recv.Obj.(*ObjInstance)
	if !ok {
		return Value{}, fmt.Errorf("Expected an Exception instance.")
	}
	msg := NilValue()
	if argc > 0 {
		msg = args[0]
	}
	inst.Fields.Set(vm.msgString, msg)
	return recv, nil
}

// newExceptionInstance is how the VM itself raises a runtime error: it
// builds an Exception the same way user code constructing `Exception(s)`
// would, with msg set to a xan string holding s.
func (vm *VM) newExceptionInstance(msg string) *ObjInstance {
	inst := vm.newInstanceObj(vm.exceptionClass)
	inst.Fields.Set(vm.msgString, ObjValue(vm.internString([]byte(msg))))
	return inst
}

func nativeClock(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	return NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
}

func nativePrint(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(vm.out, " ")
		}
		fmt.Fprint(vm.out, a.String())
	}
	fmt.Fprintln(vm.out)
	return NilValue(), nil
}

func nativeArrayPush(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	arr, ok := recv.Obj.(*ObjArray)
	if !ok {
		return Value{}, fmt.Errorf("push expects an array receiver.")
	}
	if argc != 1 {
		return Value{}, fmt.Errorf("Expected 1 argument but got %d.", argc)
	}
	arr.Push(args[0])
	return NilValue(), nil
}

func nativeArrayPop(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	arr, ok := recv.Obj.(*ObjArray)
	if !ok {
		return Value{}, fmt.Errorf("pop expects an array receiver.")
	}
	v, ok := arr.Pop()
	if !ok {
		return Value{}, fmt.Errorf("Can't pop an empty array.")
	}
	return v, nil
}

func nativeArrayLen(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	arr, ok := recv.Obj.(*ObjArray)
	if !ok {
		return Value{}, fmt.Errorf("len expects an array receiver.")
	}
	return NumberValue(float64(arr.Len())), nil
}

func nativeTableHas(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	tbl, ok := recv.Obj.(*ObjTable)
	if !ok {
		return Value{}, fmt.Errorf("has expects a table receiver.")
	}
	if argc != 1 || !args[0].IsObjKind(ObjKindString) {
		return Value{}, fmt.Errorf("has expects a single string argument.")
	}
	_, found := tbl.Get(args[0].Obj.(*ObjString))
	return BoolValue(found), nil
}

func nativeTableRemove(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	tbl, ok := recv.Obj.(*ObjTable)
	if !ok {
		return Value{}, fmt.Errorf("remove expects a table receiver.")
	}
	if argc != 1 || !args[0].IsObjKind(ObjKindString) {
		return Value{}, fmt.Errorf("remove expects a single string argument.")
	}
	tbl.Delete(args[0].Obj.(*ObjString))
	return NilValue(), nil
}

func nativeTableLen(vm *VM, recv Value, argc int, args []Value) (Value, error) {
	tbl, ok := recv.Obj.(*ObjTable)
	if !ok {
		return Value{}, fmt.Errorf("len expects a table receiver.")
	}
	return NumberValue(float64(tbl.Count())), nil
}
