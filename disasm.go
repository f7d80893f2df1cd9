package xan

import (
	"fmt"
	"strings"

	"github.com/xanlang/xan/ascii"
)

// asmToken tags the pieces of a disassembled line for color-highlighting:
// opcode mnemonics, register operands, constant-pool operands, and
// trailing comments each get their own theme color.
type asmToken int

const (
	asmNone asmToken = iota
	asmComment
	asmOpcode
	asmReg
	asmConst
)

var asmTheme = map[asmToken]string{
	asmNone:    ascii.Reset,
	asmComment: ascii.DefaultTheme.Comment,
	asmOpcode:  ascii.DefaultTheme.Operator,
	asmReg:     ascii.DefaultTheme.Operand,
	asmConst:   ascii.DefaultTheme.Literal,
}

// Disassemble renders fn and every function reachable from its
// constant pool, one line per instruction, each line laid out as the
// instruction index, its source line, the mnemonic and its operands
// (a jump's target index among them), then, for most instructions
// with a constant operand, a trailing comment showing that constant.
func Disassemble(fn *ObjFunction, highlight bool) string {
	format := func(s string, t asmToken) string { return s }
	if highlight {
		format = func(s string, t asmToken) string {
			return asmTheme[t] + s + asmTheme[asmNone]
		}
	}
	var sb strings.Builder
	seen := map[*ObjFunction]bool{}
	disassembleFunction(&sb, fn, format, seen)
	return sb.String()
}

func disassembleFunction(sb *strings.Builder, fn *ObjFunction, format func(string, asmToken) string, seen map[*ObjFunction]bool) {
	if seen[fn] {
		return
	}
	seen[fn] = true

	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.String()
	}
	sb.WriteString(format(fmt.Sprintf(";; %s\n", name), asmComment))

	var nested []*ObjFunction
	for pc := 0; pc < len(fn.Chunk.Code); pc++ {
		instr := fn.Chunk.Code[pc]
		op := decodeOp(instr)
		line := disassembleInstruction(fn, pc, instr, format)
		sb.WriteString(line)
		sb.WriteString("\n")
		if op == OpClosure {
			d := decodeD(instr)
			if inner, ok := fn.Chunk.Constants[d].Obj.(*ObjFunction); ok {
				nested = append(nested, inner)
			}
		}
	}
	for _, inner := range nested {
		disassembleFunction(sb, inner, format, seen)
	}
}

func disassembleInstruction(fn *ObjFunction, pc int, instr uint32, format func(string, asmToken) string) string {
	op := decodeOp(instr)
	a := decodeA(instr)
	d := decodeD(instr)
	b := decodeB(instr)
	c := decodeC(instr)
	line := 0
	if pc < len(fn.Chunk.Lines) {
		line = fn.Chunk.Lines[pc]
	}

	head := format(fmt.Sprintf("%06d %4d  ", pc, line), asmComment)
	mnemonic := format(fmt.Sprintf("%-18s", op.String()), asmOpcode)

	switch op {
	case OpConstNum, OpClosure, OpClass, OpGetGlobal, OpSetGlobal, OpDefineGlobal:
		operand := format(fmt.Sprintf("R%d", a), asmReg) + format(fmt.Sprintf(" K%d", d), asmConst)
		if op != OpClass && int(d) < len(fn.Chunk.Constants) {
			operand += format(fmt.Sprintf(" ; %s", fn.Chunk.Constants[d].String()), asmComment)
		}
		return head + mnemonic + operand
	case OpPrimitive:
		return head + mnemonic + format(fmt.Sprintf("R%d", a), asmReg) + format(fmt.Sprintf(" %d", d), asmConst)
	case OpJump, OpEndTry:
		return head + mnemonic + format(fmt.Sprintf("-> %d", pc+1+jumpDelta(d)), asmConst)
	case OpBeginTry:
		return head + mnemonic + format(fmt.Sprintf("R%d", a), asmReg) + format(fmt.Sprintf(" -> %d", pc+1+jumpDelta(d)), asmConst)
	case OpJumpIfTrue, OpJumpIfFalse, OpCopyJumpIfTrue, OpCopyJumpIfFalse:
		return head + mnemonic + format(fmt.Sprintf("R%d R%d", a, d), asmReg)
	case OpMov, OpNegate, OpNot, OpGetUpval, OpSetUpval, OpReturn, OpDuplicateArray, OpDuplicateTable, OpInherit:
		return head + mnemonic + format(fmt.Sprintf("R%d", a), asmReg) + format(fmt.Sprintf(" R%d", d), asmReg)
	case OpCall:
		return head + mnemonic + format(fmt.Sprintf("R%d argc=%d", a, c), asmReg)
	case OpNewArray, OpNewTable:
		return head + mnemonic + format(fmt.Sprintf("R%d base=R%d n=%d", a, b, c), asmReg)
	case OpGetSuper:
		return head + mnemonic + format(fmt.Sprintf("R%d R%d R%d", a, b, c), asmReg)
	case OpHalt, OpThrow:
		return head + mnemonic + format(fmt.Sprintf("R%d", a), asmReg)
	default:
		return head + mnemonic + format(fmt.Sprintf("R%d R%d R%d", a, b, c), asmReg)
	}
}
