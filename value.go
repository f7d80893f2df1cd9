package xan

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValNil ValueKind = iota
	ValBool
	ValNumber
	ValObj
)

// Value is xan's tagged-union runtime value: Nil, Bool, Number (a
// double) or ObjRef (a heap object). It is a plain struct rather than
// an interface so that Nil/Bool/Number never need to be boxed onto
// the heap, mirroring the C union this is ported from more closely
// than a Go `any` would.
type Value struct {
	Kind ValueKind
	Bool bool
	Num  float64
	Obj  Object
}

func NilValue() Value             { return Value{Kind: ValNil} }
func BoolValue(b bool) Value      { return Value{Kind: ValBool, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: ValNumber, Num: n} }
func ObjValue(o Object) Value     { return Value{Kind: ValObj, Obj: o} }
func (v Value) IsNil() bool       { return v.Kind == ValNil }
func (v Value) IsBool() bool      { return v.Kind == ValBool }
func (v Value) IsNumber() bool    { return v.Kind == ValNumber }
func (v Value) IsObj() bool       { return v.Kind == ValObj }
func (v Value) IsObjKind(k ObjKind) bool {
	return v.Kind == ValObj && v.Obj.header().Kind == k
}

// Truthy implements xan's truthiness rule: nil, false, the empty
// array and the empty table are falsey; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValNil:
		return false
	case ValBool:
		return v.Bool
	case ValObj:
		switch o := v.Obj.(type) {
		case *ObjArray:
			return len(o.Values) != 0
		case *ObjTable:
			return o.Count() != 0
		}
		return true
	default:
		return true
	}
}

// Equal implements xan's `==`: by kind then payload, with ObjRef
// compared by identity — strings compare equal by identity too,
// because the intern table makes equal-bytes strings the same object.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValNil:
		return true
	case ValBool:
		return v.Bool == o.Bool
	case ValNumber:
		return v.Num == o.Num
	case ValObj:
		return v.Obj == o.Obj
	default:
		return false
	}
}

// String renders the display form used by print() and Exception
// messages. It never allocates a xan string; it is host-side only.
func (v Value) String() string {
	switch v.Kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValNumber:
		return formatNumber(v.Num)
	case ValObj:
		return v.Obj.String()
	default:
		return "<invalid>"
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// ObjKind tags the concrete kind of a heap Object.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
	ObjKindUpvalue
	ObjKindClass
	ObjKindInstance
	ObjKindBoundMethod
	ObjKindNative
	ObjKindArray
	ObjKindTable
)

var objKindNames = map[ObjKind]string{
	ObjKindString:      "string",
	ObjKindFunction:    "function",
	ObjKindClosure:     "function",
	ObjKindUpvalue:     "upvalue",
	ObjKindClass:       "class",
	ObjKindInstance:    "instance",
	ObjKindBoundMethod: "bound method",
	ObjKindNative:      "native",
	ObjKindArray:       "array",
	ObjKindTable:       "table",
}

func (k ObjKind) String() string { return objKindNames[k] }

// Obj is the header shared by every heap object: its kind, the GC
// mark bit, the next pointer threading every live allocation into the
// VM's all-objects list, and the approximate byte size charged against
// the collector's allocation budget when it was tracked (sweep credits
// this back on reclaim). Concrete object kinds embed Obj and implement
// Object by returning its address.
type Obj struct {
	Kind   ObjKind
	Marked bool
	Next   Object
	Size   int
}

// Object is implemented by every concrete heap-object kind. header
// gives the GC and allocator uniform access to the shared fields;
// String gives every kind a display form.
type Object interface {
	header() *Obj
	String() string
}

func (o *Obj) header() *Obj { return o }

// ObjString is an interned, immutable byte buffer with a precomputed
// FNV-1a hash used by the string table.
type ObjString struct {
	Obj
	Chars []byte
	Hash  uint32
}

func (s *ObjString) String() string { return string(s.Chars) }

func fnv1a(b []byte) uint32 {
	var h uint32 = 2166136261
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

// UpvalueDesc describes how a Function's closure captures one free
// variable: either the enclosing frame's local slot Index (when
// IsLocal), or the enclosing closure's own upvalue Index otherwise.
type UpvalueDesc struct {
	Index   int
	IsLocal bool
}

// ObjFunction is a compiled function: its Chunk, arity range (for
// default-valued parameters), upvalue descriptors, and the
// high-water-mark of registers it uses.
type ObjFunction struct {
	Obj
	Name        *ObjString
	MinArity    int
	MaxArity    int
	StackUsed   int
	Chunk       Chunk
	Upvalues    []UpvalueDesc
	CodeOffsets []int // entry point per arity, indexed by MaxArity-argc
}

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.String())
}

// ObjUpvalue is a capture cell. Open, it points at a live stack slot
// (Location indexes into the VM's stack); closed, it owns its Closed
// value. Every VM keeps its open upvalues threaded on a singly linked
// list ordered by descending stack address.
type ObjUpvalue struct {
	Obj
	Location int
	Closed   Value
	IsOpen   bool
	NextOpen *ObjUpvalue
}

func (u *ObjUpvalue) String() string { return "<upvalue>" }

// ObjClosure pairs a Function with the upvalues it captured.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) String() string { return c.Function.String() }

// ObjClass is a named method table; methods are either ObjClosure or
// ObjNative values.
type ObjClass struct {
	Obj
	Name       *ObjString
	Superclass *ObjClass // nil for a class with no `< Base` clause
	Methods    *ObjTable
}

// IsOrInherits reports whether c is class or a subclass of it (that
// is, class is c or one of c's ancestors), used by catch(Class e) to
// accept subclasses of the declared type.
func (c *ObjClass) IsOrInherits(class *ObjClass) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur == class {
			return true
		}
	}
	return false
}

func (c *ObjClass) String() string { return fmt.Sprintf("<class %s>", c.Name.String()) }

// ObjInstance is an instance of a Class with its own field table.
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields *ObjTable
}

func (i *ObjInstance) String() string { return fmt.Sprintf("<%s instance>", i.Class.Name.String()) }

// ObjBoundMethod pairs a receiver Value with the method it calls
// (either an ObjClosure or an ObjNative).
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   Object
}

func (b *ObjBoundMethod) String() string { return "<bound method>" }

// NativeFn is the host-callable ABI: recv is the receiver for a bound
// native method (meaningless for a bare native like clock/print), and
// args[0:argc] are the call's arguments.
type NativeFn func(vm *VM, recv Value, argc int, args []Value) (Value, error)

// ObjNative wraps a host function so it can live as a Value.
type ObjNative struct {
	Obj
	Name string
	Fn   NativeFn
}

func (n *ObjNative) String() string { return fmt.Sprintf("<native %s>", n.Name) }

// ObjArray is a growable sequence. Go's own append already amortizes
// growth; ObjArray keeps its own capacity doubling from a floor of 8
// instead, so its capacity is always a power of two, matching
// ObjTable's capacity management in table.go.
type ObjArray struct {
	Obj
	Values []Value
	cap    int
}

const arrayFloorCapacity = 8

func newArrayCapacity(want int) int {
	c := arrayFloorCapacity
	for c < want {
		c *= 2
	}
	return c
}

func (a *ObjArray) Len() int { return len(a.Values) }

func (a *ObjArray) Push(v Value) {
	if len(a.Values)+1 > a.cap {
		a.cap = newArrayCapacity(len(a.Values) + 1)
	}
	a.Values = append(a.Values, v)
}

func (a *ObjArray) Pop() (Value, bool) {
	if len(a.Values) == 0 {
		return NilValue(), false
	}
	v := a.Values[len(a.Values)-1]
	a.Values = a.Values[:len(a.Values)-1]
	return v, true
}

func (a *ObjArray) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a.Values) {
		return NilValue(), false
	}
	return a.Values[i], true
}

func (a *ObjArray) Set(i int, v Value) bool {
	if i < 0 || i >= len(a.Values) {
		return false
	}
	a.Values[i] = v
	return true
}

func (a *ObjArray) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range a.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		if v.IsObjKind(ObjKindString) {
			sb.WriteByte('"')
			sb.WriteString(v.String())
			sb.WriteByte('"')
		} else {
			sb.WriteString(v.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
