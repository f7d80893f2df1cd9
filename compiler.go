package xan

import (
	"fmt"
)

// noJumpList is the empty-jump-list sentinel at the compiler level (as
// opposed to NoJump, the sentinel stored in an instruction's D field).
const noJumpList = -1

// exprKind tags what an expression descriptor currently holds: either
// a value not yet emitted anywhere (NIL/TRUE/FALSE/CONST), a value
// already sitting in a known place (LOCAL/UPVAL/GLOBAL/INDEXED/
// SUBSCRIPT/NONRELOC), or a value whose destination register is still
// unfilled in an already-emitted instruction (RELOC/CALL).
type exprKind int

const (
	exprVoid exprKind = iota
	exprNilK
	exprTrueK
	exprFalseK
	exprConst
	exprLocal
	exprUpval
	exprGlobal
	exprIndexed
	exprSubscript
	exprReloc
	exprNonReloc
	exprCall
)

// exprDesc is the compiler's expression descriptor: a tagged sum
// (kept as a tagged struct, not a type-punned union) carrying enough
// information to either discharge its value into any register or test
// its truthiness as part of a larger boolean expression. TrueList and
// FalseList are jump lists, pending branch sites not yet patched to a
// target, threaded through the unused D field of already-emitted jump
// instructions and terminated by NoJump.
type exprDesc struct {
	kind      exprKind
	reg       int // LOCAL/INDEXED/SUBSCRIPT: object/local register; NONRELOC: register
	info      int // RELOC/CALL: pc of the instruction awaiting a dest register; CONST/GLOBAL: constant index; UPVAL: upvalue index; INDEXED/SUBSCRIPT: key register
	numVal    float64
	trueList  int
	falseList int
}

func voidExpr() exprDesc { return exprDesc{kind: exprVoid, trueList: noJumpList, falseList: noJumpList} }

// localVar is one entry of a function's compile-time local-variable
// table; depth is the lexical scope it was declared at, slot its
// assigned register.
type localVar struct {
	name     string
	depth    int
	slot     int
	captured bool
}

type loopContext struct {
	enclosing    *loopContext
	breakList    int
	continueList int
	scopeDepth   int
}

type classContext struct {
	enclosing *classContext
	hasSuper  bool
}

type funcKind int

const (
	funcKindScript funcKind = iota
	funcKindFunction
	funcKindMethod
	funcKindInitializer
)

// funcState is the per-function compile-time state; functions nest via
// enclosing, mirroring how closures nest at runtime.
type funcState struct {
	enclosing       *funcState
	fn              *ObjFunction
	kind            funcKind
	locals          []localVar
	scopeDepth      int
	nextReg         int
	pendingJumpList int
	loop            *loopContext
	class           *classContext
}

func (fs *funcState) actVar() int { return len(fs.locals) }

func (fs *funcState) reserveRegs(n int) int {
	base := fs.nextReg
	fs.nextReg += n
	if fs.nextReg > fs.fn.StackUsed {
		fs.fn.StackUsed = fs.nextReg
	}
	return base
}

func (fs *funcState) freeReg(reg int) {
	if reg >= fs.actVar() && reg == fs.nextReg-1 {
		fs.nextReg--
	}
}

func (fs *funcState) freeExpr(e *exprDesc) {
	if e.kind == exprNonReloc {
		fs.freeReg(e.reg)
	}
}

// jumpNext/setJumpNext read and write the "next pending jump" link
// threaded through an unpatched jump instruction's D field.
func (fs *funcState) jumpNext(pc int) int {
	d := decodeD(fs.fn.Chunk.Code[pc])
	if d == NoJump {
		return noJumpList
	}
	return int(d)
}

func (fs *funcState) setJumpNext(pc, next int) {
	if next == noJumpList {
		setD(&fs.fn.Chunk.Code[pc], NoJump)
	} else {
		setD(&fs.fn.Chunk.Code[pc], uint16(next))
	}
}

func (fs *funcState) mergeJumpList(l1, l2 int) int {
	if l1 == noJumpList {
		return l2
	}
	if l2 == noJumpList {
		return l1
	}
	p := l1
	for {
		next := fs.jumpNext(p)
		if next == noJumpList {
			break
		}
		p = next
	}
	fs.setJumpNext(p, l2)
	return l1
}

// patchListToTarget walks list, patching every pending jump site's D
// field to the signed, biased offset needed to reach target.
func (fs *funcState) patchListToTarget(list, target int) {
	for list != noJumpList {
		next := fs.jumpNext(list)
		offset := target - list - 1
		setD(&fs.fn.Chunk.Code[list], jumpOffset(offset))
		list = next
	}
}

// Compiler turns a token stream into a compiled ObjFunction. It holds
// the single active Parser state (current/previous token, panic mode)
// plus a stack of funcState frames, one per nested function
// declaration being compiled.
type Compiler struct {
	vm      *VM
	scanner *Scanner
	cur     Token
	prev    Token

	hadError  bool
	panicMode bool
	errs      []CompileError

	fs *funcState
}

// NewCompiler returns a Compiler ready to compile source as a
// top-level script against vm (used to intern strings, allocate
// functions, and register compiler roots with the GC).
func NewCompiler(vm *VM, source string) *Compiler {
	c := &Compiler{vm: vm, scanner: NewScanner(source)}
	c.pushFunc(funcKindScript, "")
	return c
}

func (c *Compiler) pushFunc(kind funcKind, name string) {
	fn := c.vm.newFunction()
	if name != "" {
		fn.Name = c.vm.internString([]byte(name))
	}
	fs := &funcState{enclosing: c.fs, fn: fn, kind: kind, pendingJumpList: noJumpList}
	if c.fs != nil {
		// methods (and functions nested in them) see the enclosing
		// class, so `this` and `super` resolve inside their bodies.
		fs.class = c.fs.class
	}
	// slot 0 is reserved for the receiver (methods) or the callee
	// itself (plain functions); giving it an empty name keeps it out
	// of reach of identifier resolution except via `this`.
	slotName := ""
	if kind == funcKindMethod || kind == funcKindInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, localVar{name: slotName, depth: 0, slot: 0})
	fs.reserveRegs(1)
	if kind == funcKindScript {
		fs.fn.CodeOffsets = []int{0}
	}
	c.fs = fs
	c.vm.compilerRoots = append(c.vm.compilerRoots, fn)
}

func (c *Compiler) popFunc() *ObjFunction {
	fn := c.fs.fn
	c.vm.compilerRoots = c.vm.compilerRoots[:len(c.vm.compilerRoots)-1]
	c.fs = c.fs.enclosing
	return fn
}

// Compile compiles the whole token stream as a script, returning the
// top-level function and any compile errors collected. The script
// itself is never executed if any error occurred.
func (c *Compiler) Compile() (*ObjFunction, []CompileError) {
	c.advance()
	for !c.match(TokenEOF) {
		c.declaration()
	}
	fn := c.endCompiler()
	return fn, c.errs
}

func (c *Compiler) endCompiler() *ObjFunction {
	c.emitReturnNil()
	return c.popFunc()
}

// --- token stream -------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.cur
	for {
		c.cur = c.scanner.Next()
		if c.cur.Kind != TokenError {
			break
		}
		c.errorAtCurrent(c.cur.Lexeme)
	}
}

func (c *Compiler) check(k TokenKind) bool { return c.cur.Kind == k }

func (c *Compiler) match(k TokenKind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k TokenKind, message string) {
	if c.cur.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.cur, message) }
func (c *Compiler) error(message string)          { c.errorAt(c.prev, message) }

func (c *Compiler) errorAt(tok Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	lexeme := tok.Lexeme
	if tok.Kind == TokenEOF {
		lexeme = ""
	}
	c.errs = append(c.errs, CompileError{Line: tok.Line, Lexeme: lexeme, Message: message})
}

// synchronize skips tokens until a likely statement boundary, to
// suppress cascading errors after the first one in a statement.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.cur.Kind != TokenEOF {
		if c.prev.Kind == TokenSemicolon {
			return
		}
		switch c.cur.Kind {
		case TokenClass, TokenFun, TokenVar, TokenFor, TokenIf, TokenWhile, TokenReturn, TokenTry:
			return
		}
		c.advance()
	}
}

// --- emission -------------------------------------------------------

func (c *Compiler) emit(instr uint32) int {
	if c.fs.pendingJumpList != noJumpList {
		c.fs.patchListToTarget(c.fs.pendingJumpList, len(c.fs.fn.Chunk.Code))
		c.fs.pendingJumpList = noJumpList
	}
	return c.fs.fn.Chunk.Write(instr, c.prev.Line)
}

func (c *Compiler) emitAD(op Op, a uint8, d uint16) int  { return c.emit(encodeAD(op, a, d)) }
func (c *Compiler) emitABC(op Op, a, b, cc uint8) int    { return c.emit(encodeABC(op, a, b, cc)) }
func (c *Compiler) emitJump(op Op) int                   { return c.emitAD(op, 0, NoJump) }

func (c *Compiler) emitJumpTo(op Op, target int) {
	pc := c.emitAD(op, 0, NoJump)
	offset := target - pc - 1
	setD(&c.fs.fn.Chunk.Code[pc], jumpOffset(offset))
}

// patchJumpListToHere defers patching list to "wherever the next
// instruction is emitted" by folding it into the function's pending
// jump list.
func (c *Compiler) patchJumpListToHere(list int) {
	c.fs.pendingJumpList = c.fs.mergeJumpList(c.fs.pendingJumpList, list)
}

func (c *Compiler) patchJumpHere(pc int) {
	c.fs.patchListToTarget(mergeSingleton(pc), len(c.fs.fn.Chunk.Code))
}

func mergeSingleton(pc int) int { return pc }

func (c *Compiler) currentPC() int { return len(c.fs.fn.Chunk.Code) }

// emitReturnNil compiles a bare `return;`, or the implicit return a
// function falls into at the end of its body. An initializer instead
// returns its receiver (register 0), so that `new`-calling a class
// always yields the instance regardless of what init's body computed.
func (c *Compiler) emitReturnNil() {
	if c.fs.kind == funcKindInitializer {
		c.emitAD(OpReturn, 0, 1)
		return
	}
	reg := c.fs.reserveRegs(1)
	c.emitAD(OpPrimitive, uint8(reg), uint16(PrimNil))
	c.emitAD(OpReturn, uint8(reg), 1)
	c.fs.freeReg(reg)
}

// --- registers & discharge -------------------------------------------

func (c *Compiler) exprToNextReg(e *exprDesc) int {
	c.fs.freeExpr(e)
	reg := c.fs.reserveRegs(1)
	c.dischargeToReg(e, reg)
	return reg
}

// exprToAnyReg returns a register holding e's value, reusing an
// already-allocated temporary register when possible instead of
// allocating a fresh one.
func (c *Compiler) exprToAnyReg(e *exprDesc) int {
	if e.kind == exprNonReloc {
		return e.reg
	}
	return c.exprToNextReg(e)
}

func (c *Compiler) dischargeToReg(e *exprDesc, reg int) {
	switch e.kind {
	case exprNilK:
		c.emitAD(OpPrimitive, uint8(reg), uint16(PrimNil))
	case exprTrueK:
		c.emitAD(OpPrimitive, uint8(reg), uint16(PrimTrue))
	case exprFalseK:
		c.emitAD(OpPrimitive, uint8(reg), uint16(PrimFalse))
	case exprConst:
		c.emitAD(OpConstNum, uint8(reg), uint16(e.info))
	case exprLocal:
		if e.reg != reg {
			c.emitAD(OpMov, uint8(reg), uint16(e.reg))
		}
	case exprUpval:
		c.emitAD(OpGetUpval, uint8(reg), uint16(e.info))
	case exprGlobal:
		c.emitAD(OpGetGlobal, uint8(reg), uint16(e.info))
	case exprIndexed:
		c.emitABC(OpGetProperty, uint8(reg), uint8(e.reg), uint8(e.info))
	case exprSubscript:
		c.emitABC(OpGetSubscript, uint8(reg), uint8(e.reg), uint8(e.info))
	case exprReloc, exprCall:
		setA(&c.fs.fn.Chunk.Code[e.info], uint8(reg))
	case exprNonReloc:
		if e.reg != reg {
			c.emitAD(OpMov, uint8(reg), uint16(e.reg))
		}
	case exprVoid:
		c.emitAD(OpPrimitive, uint8(reg), uint16(PrimNil))
	}
	e.kind = exprNonReloc
	e.reg = reg
}

// testTruthy puts e's value in a register and tests it for
// truthiness, always emitting a JUMP_IF_FALSE/JUMP pair, and returns the (possibly still-pending) true/false
// jump lists: true always falls through (so it is always noJumpList
// here), false collects every site that must branch away.
func (c *Compiler) testTruthy(e *exprDesc) (trueList, falseList int) {
	reg := c.exprToAnyReg(e)
	c.emitAD(OpJumpIfFalse, 0, uint16(reg))
	fj := c.emitJump(OpJump)
	return e.trueList, c.fs.mergeJumpList(e.falseList, fj)
}

// emitCondCopyJump emits a COPY_JUMP_IF_{TRUE,FALSE} A=D=reg test
// (a harmless self-copy, since the value already lives in reg) paired
// with the unconditional JUMP that follows it, per spec's and/or
// value-position idiom, and returns the JUMP's pc for chaining.
func (c *Compiler) emitCondCopyJump(op Op, reg int) int {
	c.emitAD(op, uint8(reg), uint16(reg))
	return c.emitJump(OpJump)
}

// --- expressions ------------------------------------------------------

// parseExpression compiles a full expression, including and/or and
// assignment. The returned descriptor is never a pending branch, but it
// may still need discharging into a register by the caller.
func (c *Compiler) parseExpression() exprDesc {
	return c.parseAssignment()
}

func (c *Compiler) parseAssignment() exprDesc {
	target := c.parseOrExpr()
	if c.match(TokenEqual) {
		value := c.parseAssignment()
		return c.emitAssign(&target, &value)
	}
	return target
}

func (c *Compiler) emitAssign(target, value *exprDesc) exprDesc {
	switch target.kind {
	case exprLocal:
		c.dischargeToReg(value, target.reg)
		return *value
	case exprUpval:
		reg := c.exprToAnyReg(value)
		c.emitAD(OpSetUpval, uint8(reg), uint16(target.info))
		return *value
	case exprGlobal:
		reg := c.exprToAnyReg(value)
		c.emitAD(OpSetGlobal, uint8(reg), uint16(target.info))
		return *value
	case exprIndexed:
		reg := c.exprToAnyReg(value)
		c.emitABC(OpSetProperty, uint8(reg), uint8(target.reg), uint8(target.info))
		return *value
	case exprSubscript:
		reg := c.exprToAnyReg(value)
		c.emitABC(OpSetSubscript, uint8(reg), uint8(target.reg), uint8(target.info))
		return *value
	default:
		c.error("Invalid assignment target.")
		return *value
	}
}

func (c *Compiler) parseOrExpr() exprDesc {
	e := c.parseAndExpr()
	if !c.check(TokenOr) {
		return e
	}
	reg := c.exprToNextReg(&e)
	exits := noJumpList
	for c.match(TokenOr) {
		exits = c.fs.mergeJumpList(exits, c.emitCondCopyJump(OpCopyJumpIfTrue, reg))
		right := c.parseAndExpr()
		c.dischargeToReg(&right, reg)
	}
	c.patchJumpListToHere(exits)
	return exprDesc{kind: exprNonReloc, reg: reg, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) parseAndExpr() exprDesc {
	e := c.parseEquality()
	if !c.check(TokenAnd) {
		return e
	}
	reg := c.exprToNextReg(&e)
	exits := noJumpList
	for c.match(TokenAnd) {
		exits = c.fs.mergeJumpList(exits, c.emitCondCopyJump(OpCopyJumpIfFalse, reg))
		right := c.parseEquality()
		c.dischargeToReg(&right, reg)
	}
	c.patchJumpListToHere(exits)
	return exprDesc{kind: exprNonReloc, reg: reg, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) parseEquality() exprDesc {
	e := c.parseComparison()
	for c.check(TokenEqualEqual) || c.check(TokenBangEqual) {
		op := OpEqual
		if c.cur.Kind == TokenBangEqual {
			op = OpNeq
		}
		c.advance()
		e = c.binary(op, e, c.parseComparison())
	}
	return e
}

func (c *Compiler) parseComparison() exprDesc {
	e := c.parseTerm()
	for {
		var op Op
		switch c.cur.Kind {
		case TokenLess:
			op = OpLess
		case TokenLessEqual:
			op = OpLeq
		case TokenGreater:
			op = OpGreater
		case TokenGreaterEqual:
			op = OpGeq
		default:
			return e
		}
		c.advance()
		e = c.binary(op, e, c.parseTerm())
	}
}

func (c *Compiler) parseTerm() exprDesc {
	e := c.parseFactor()
	for c.check(TokenPlus) || c.check(TokenMinus) {
		op := OpAddVV
		if c.cur.Kind == TokenMinus {
			op = OpSubVV
		}
		c.advance()
		e = c.binary(op, e, c.parseFactor())
	}
	return e
}

func (c *Compiler) parseFactor() exprDesc {
	e := c.parseUnary()
	for c.check(TokenStar) || c.check(TokenSlash) || c.check(TokenPercent) {
		var op Op
		switch c.cur.Kind {
		case TokenStar:
			op = OpMulVV
		case TokenSlash:
			op = OpDivVV
		case TokenPercent:
			op = OpModVV
		}
		c.advance()
		e = c.binary(op, e, c.parseUnary())
	}
	return e
}

// binary discharges both operands to registers and emits op with a
// placeholder destination, returning a RELOC descriptor the caller
// patches once the final register is known.
func (c *Compiler) binary(op Op, left, right exprDesc) exprDesc {
	lreg := c.exprToAnyReg(&left)
	rreg := c.exprToAnyReg(&right)
	c.fs.freeReg(rreg)
	c.fs.freeReg(lreg)
	pc := c.emitABC(op, NoReg, uint8(lreg), uint8(rreg))
	return exprDesc{kind: exprReloc, info: pc, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) parseUnary() exprDesc {
	switch c.cur.Kind {
	case TokenBang:
		c.advance()
		e := c.parseUnary()
		reg := c.exprToAnyReg(&e)
		c.fs.freeReg(reg)
		pc := c.emitAD(OpNot, NoReg, uint16(reg))
		return exprDesc{kind: exprReloc, info: pc, trueList: noJumpList, falseList: noJumpList}
	case TokenMinus:
		c.advance()
		e := c.parseUnary()
		reg := c.exprToAnyReg(&e)
		c.fs.freeReg(reg)
		pc := c.emitAD(OpNegate, NoReg, uint16(reg))
		return exprDesc{kind: exprReloc, info: pc, trueList: noJumpList, falseList: noJumpList}
	default:
		return c.parseCall()
	}
}

func (c *Compiler) parseCall() exprDesc {
	e := c.parsePrimary()
	for {
		switch c.cur.Kind {
		case TokenLeftParen:
			c.advance()
			e = c.finishCall(e)
		case TokenDot:
			c.advance()
			c.consume(TokenIdentifier, "Expect property name after '.'.")
			name := c.prev.Lexeme
			e = c.property(e, name)
		case TokenLeftBracket:
			c.advance()
			key := c.parseExpression()
			c.consume(TokenRightBracket, "Expect ']' after subscript.")
			e = c.subscript(e, key)
		default:
			return e
		}
	}
}

func (c *Compiler) property(obj exprDesc, name string) exprDesc {
	objReg := c.exprToAnyReg(&obj)
	nameReg := c.fs.reserveRegs(1)
	c.loadStringConst(nameReg, name)
	return exprDesc{kind: exprIndexed, reg: objReg, info: nameReg, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) subscript(obj, key exprDesc) exprDesc {
	objReg := c.exprToAnyReg(&obj)
	keyReg := c.exprToAnyReg(&key)
	return exprDesc{kind: exprSubscript, reg: objReg, info: keyReg, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) loadStringConst(reg int, s string) {
	idx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(s))))
	c.emitAD(OpConstNum, uint8(reg), uint16(idx))
}

// finishCall compiles a call's argument list into consecutive
// registers right after the callee's, then emits CALL.
func (c *Compiler) finishCall(callee exprDesc) exprDesc {
	base := c.exprToNextReg(&callee)
	argc := 0
	if !c.check(TokenRightParen) {
		for {
			arg := c.parseExpression()
			// the argument's own temporaries may sit above its slot;
			// place it at base+1+argc and drop them.
			reg := base + 1 + argc
			c.dischargeToReg(&arg, reg)
			c.fs.nextReg = reg
			c.fs.reserveRegs(1)
			argc++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after arguments.")
	pc := c.emitABC(OpCall, uint8(base), 1, uint8(argc))
	c.fs.nextReg = base + 1
	return exprDesc{kind: exprNonReloc, reg: base, info: pc, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) parsePrimary() exprDesc {
	switch c.cur.Kind {
	case TokenNil:
		c.advance()
		return exprDesc{kind: exprNilK, trueList: noJumpList, falseList: noJumpList}
	case TokenTrue:
		c.advance()
		return exprDesc{kind: exprTrueK, trueList: noJumpList, falseList: noJumpList}
	case TokenFalse:
		c.advance()
		return exprDesc{kind: exprFalseK, trueList: noJumpList, falseList: noJumpList}
	case TokenNumber:
		return c.number()
	case TokenString:
		return c.stringLiteral()
	case TokenIdentifier:
		c.advance()
		return c.resolveVariable(c.prev.Lexeme)
	case TokenThis:
		c.advance()
		if c.fs.class == nil {
			c.error("Can't use 'this' outside of a class.")
		}
		return c.resolveVariable("this")
	case TokenSuper:
		return c.superExpr()
	case TokenLeftParen:
		c.advance()
		e := c.parseExpression()
		c.consume(TokenRightParen, "Expect ')' after expression.")
		return e
	case TokenLeftBracket:
		return c.arrayLiteral()
	case TokenLeftBrace:
		return c.tableLiteral()
	default:
		c.errorAtCurrent("Expect expression.")
		c.advance()
		return voidExpr()
	}
}

func (c *Compiler) number() exprDesc {
	c.advance()
	var n float64
	fmt.Sscanf(c.prev.Lexeme, "%g", &n)
	idx := c.fs.fn.Chunk.AddConstant(NumberValue(n))
	return exprDesc{kind: exprConst, info: idx, numVal: n, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) stringLiteral() exprDesc {
	c.advance()
	raw := c.prev.Lexeme
	body := raw[1 : len(raw)-1] // strip the surrounding quotes
	idx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(body))))
	return exprDesc{kind: exprConst, info: idx, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) arrayLiteral() exprDesc {
	c.advance() // '['
	var elems []exprDesc
	if !c.check(TokenRightBracket) {
		for {
			elems = append(elems, c.parseExpression())
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightBracket, "Expect ']' after array literal.")
	base := c.fs.nextReg
	for i := range elems {
		c.exprToNextReg(&elems[i])
		_ = i
	}
	for range elems {
		c.fs.nextReg--
	}
	dest := c.fs.reserveRegs(1)
	pc := c.emitABC(OpNewArray, uint8(dest), uint8(base), uint8(len(elems)))
	_ = pc
	return exprDesc{kind: exprNonReloc, reg: dest, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) tableLiteral() exprDesc {
	c.advance() // '{'
	type kv struct{ key, value exprDesc }
	var pairs []kv
	if !c.check(TokenRightBrace) {
		for {
			var keyName string
			if c.check(TokenString) {
				c.advance()
				raw := c.prev.Lexeme
				keyName = raw[1 : len(raw)-1]
			} else {
				c.consume(TokenIdentifier, "Expect table key.")
				keyName = c.prev.Lexeme
			}
			c.consume(TokenColon, "Expect ':' after table key.")
			value := c.parseExpression()
			idx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(keyName))))
			pairs = append(pairs, kv{key: exprDesc{kind: exprConst, info: idx}, value: value})
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightBrace, "Expect '}' after table literal.")

	base := c.fs.nextReg
	for i := range pairs {
		c.exprToNextReg(&pairs[i].key)
		c.exprToNextReg(&pairs[i].value)
	}
	for range pairs {
		c.fs.nextReg -= 2
	}
	dest := c.fs.reserveRegs(1)
	c.emitABC(OpNewTable, uint8(dest), uint8(base), uint8(len(pairs)))
	return exprDesc{kind: exprNonReloc, reg: dest, trueList: noJumpList, falseList: noJumpList}
}

func (c *Compiler) superExpr() exprDesc {
	c.advance()
	if c.fs.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.fs.class.hasSuper {
		c.error("Can't use 'super' in a class with no superclass.")
	}
	c.consume(TokenDot, "Expect '.' after 'super'.")
	c.consume(TokenIdentifier, "Expect superclass method name.")
	name := c.prev.Lexeme

	// `this` is always register 0 of the current frame (see pushFunc),
	// so GET_SUPER only needs the superclass and the method name; it
	// binds R[0] as the receiver implicitly, the same trick clox uses.
	super := c.resolveVariable("super")
	superReg := c.exprToAnyReg(&super)
	nameReg := c.fs.reserveRegs(1)
	c.loadStringConst(nameReg, name)
	c.fs.freeReg(nameReg)
	c.fs.freeReg(superReg)
	pc := c.emitABC(OpGetSuper, NoReg, uint8(superReg), uint8(nameReg))
	return exprDesc{kind: exprReloc, info: pc, trueList: noJumpList, falseList: noJumpList}
}

// --- variable resolution --------------------------------------------

func (c *Compiler) resolveVariable(name string) exprDesc {
	if slot, ok := resolveLocal(c.fs, name); ok {
		return exprDesc{kind: exprLocal, reg: slot, trueList: noJumpList, falseList: noJumpList}
	}
	if idx, ok := resolveUpvalue(c.fs, name); ok {
		return exprDesc{kind: exprUpval, info: idx, trueList: noJumpList, falseList: noJumpList}
	}
	idx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(name))))
	return exprDesc{kind: exprGlobal, info: idx, trueList: noJumpList, falseList: noJumpList}
}

func resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].slot, true
		}
	}
	return 0, false
}

// resolveUpvalue walks the enclosing compiler chain: a name found as a
// local in some ancestor is captured at every level in between, each
// level recording a (isLocal, index) descriptor; repeat requests for
// the same name are deduped against already-recorded upvalues.
func resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := resolveLocal(fs.enclosing, name); ok {
		markCaptured(fs.enclosing, slot)
		return addUpvalue(fs, slot, true), true
	}
	if idx, ok := resolveUpvalue(fs.enclosing, name); ok {
		return addUpvalue(fs, idx, false), true
	}
	return 0, false
}

func markCaptured(fs *funcState, slot int) {
	for i := range fs.locals {
		if fs.locals[i].slot == slot {
			fs.locals[i].captured = true
		}
	}
}

func addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, uv := range fs.fn.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.fn.Upvalues = append(fs.fn.Upvalues, UpvalueDesc{Index: index, IsLocal: isLocal})
	return len(fs.fn.Upvalues) - 1
}

// --- scopes & statements ---------------------------------------------

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	lowestCaptured := -1
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		last := c.fs.locals[len(c.fs.locals)-1]
		if last.captured && (lowestCaptured == -1 || last.slot < lowestCaptured) {
			lowestCaptured = last.slot
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
		c.fs.freeReg(last.slot)
	}
	if lowestCaptured != -1 {
		c.emitAD(OpCloseUpvalues, uint8(lowestCaptured), 0)
	}
}

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenVar):
		c.varDeclaration()
	case c.match(TokenFun):
		c.funDeclaration()
	case c.match(TokenClass):
		c.classDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	c.consume(TokenIdentifier, "Expect variable name.")
	name := c.prev.Lexeme

	var value exprDesc
	if c.match(TokenEqual) {
		value = c.parseExpression()
	} else {
		value = exprDesc{kind: exprNilK, trueList: noJumpList, falseList: noJumpList}
	}
	c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(name, &value)
}

func (c *Compiler) defineVariable(name string, value *exprDesc) {
	if c.fs.scopeDepth == 0 {
		reg := c.exprToAnyReg(value)
		idx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(name))))
		c.emitAD(OpDefineGlobal, uint8(reg), uint16(idx))
		c.fs.freeReg(reg)
		return
	}
	reg := c.exprToNextReg(value)
	c.fs.locals = append(c.fs.locals, localVar{name: name, depth: c.fs.scopeDepth, slot: reg})
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenBreak):
		c.breakStatement()
	case c.match(TokenContinue):
		c.continueStatement()
	case c.match(TokenTry):
		c.tryStatement()
	case c.match(TokenThrow):
		c.throwStatement()
	case c.match(TokenSemicolon):
		// empty statement
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		c.declaration()
	}
	c.consume(TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	e := c.parseExpression()
	c.fs.freeExpr(&e)
	c.consume(TokenSemicolon, "Expect ';' after expression.")
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	cond := c.parseOrExpr()
	c.consume(TokenRightParen, "Expect ')' after condition.")
	_, falseList := c.testTruthy(&cond)

	c.statement()

	if c.match(TokenElse) {
		elseJump := c.emitJump(OpJump)
		c.patchJumpListToHere(falseList)
		c.statement()
		c.patchJumpListToHere(elseJump)
	} else {
		c.patchJumpListToHere(falseList)
	}
}

func (c *Compiler) beginLoop() *loopContext {
	lc := &loopContext{enclosing: c.fs.loop, breakList: noJumpList, continueList: noJumpList, scopeDepth: c.fs.scopeDepth}
	c.fs.loop = lc
	return lc
}

func (c *Compiler) endLoop() {
	lc := c.fs.loop
	c.patchJumpListToHere(lc.breakList)
	c.fs.loop = lc.enclosing
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentPC()
	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	cond := c.parseOrExpr()
	c.consume(TokenRightParen, "Expect ')' after condition.")
	_, falseList := c.testTruthy(&cond)

	lc := c.beginLoop()
	c.statement()
	c.patchListAt(lc.continueList, loopStart)
	c.emitJumpTo(OpJump, loopStart)
	c.patchJumpListToHere(falseList)
	c.endLoop()
}

func (c *Compiler) patchListAt(list, target int) {
	c.fs.patchListToTarget(list, target)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(TokenSemicolon):
	case c.check(TokenVar):
		c.advance()
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentPC()
	falseList := noJumpList
	if !c.check(TokenSemicolon) {
		cond := c.parseOrExpr()
		_, fl := c.testTruthy(&cond)
		falseList = fl
	}
	c.consume(TokenSemicolon, "Expect ';' after loop condition.")

	if !c.check(TokenRightParen) {
		bodyJump := c.emitJump(OpJump)
		incrementStart := c.currentPC()
		post := c.parseExpression()
		c.fs.freeExpr(&post)
		c.emitJumpTo(OpJump, loopStart)
		loopStart = incrementStart
		c.patchJumpListToHere(bodyJump)
	}
	c.consume(TokenRightParen, "Expect ')' after for clauses.")

	lc := c.beginLoop()
	c.statement()
	c.patchListAt(lc.continueList, loopStart)
	c.emitJumpTo(OpJump, loopStart)
	c.patchJumpListToHere(falseList)
	c.endLoop()
	c.endScope()
}

func (c *Compiler) breakStatement() {
	if c.fs.loop == nil {
		c.error("Can't use 'break' outside of a loop.")
	}
	c.consume(TokenSemicolon, "Expect ';' after 'break'.")
	j := c.emitJump(OpJump)
	if c.fs.loop != nil {
		c.fs.loop.breakList = c.fs.mergeJumpList(c.fs.loop.breakList, j)
	}
}

func (c *Compiler) continueStatement() {
	if c.fs.loop == nil {
		c.error("Can't use 'continue' outside of a loop.")
	}
	c.consume(TokenSemicolon, "Expect ';' after 'continue'.")
	j := c.emitJump(OpJump)
	if c.fs.loop != nil {
		c.fs.loop.continueList = c.fs.mergeJumpList(c.fs.loop.continueList, j)
	}
}

func (c *Compiler) returnStatement() {
	if c.fs.kind == funcKindScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(TokenSemicolon) {
		c.emitReturnNil()
		return
	}
	if c.fs.kind == funcKindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	e := c.parseExpression()
	reg := c.exprToAnyReg(&e)
	c.consume(TokenSemicolon, "Expect ';' after return value.")
	c.emitAD(OpReturn, uint8(reg), 1)
}

// tryStatement compiles `try { ... } catch (Class name) { ... } catch { ... }`.
func (c *Compiler) tryStatement() {
	excReg := c.fs.reserveRegs(1)
	beginPC := c.emitAD(OpBeginTry, uint8(excReg), NoJump)

	c.consume(TokenLeftBrace, "Expect '{' after 'try'.")
	c.beginScope()
	c.block()
	c.endScope()

	endPC := c.emitAD(OpEndTry, 0, NoJump)
	c.patchJumpHere(beginPC)

	doneList := noJumpList
	for c.match(TokenCatch) {
		var className string
		hasType := c.match(TokenLeftParen)
		if hasType {
			c.consume(TokenIdentifier, "Expect exception class name.")
			className = c.prev.Lexeme
			c.consume(TokenIdentifier, "Expect catch variable name.")
		}
		catchVar := c.prev.Lexeme
		if hasType {
			c.consume(TokenRightParen, "Expect ')' after catch clause.")
		}

		var mismatchJump int
		if hasType {
			classExpr := c.resolveVariable(className)
			classReg := c.exprToAnyReg(&classExpr)
			c.emitABC(OpJumpIfNotExc, uint8(excReg), uint8(classReg), 0)
			mismatchJump = c.emitJump(OpJump)
		} else {
			mismatchJump = noJumpList
		}

		c.beginScope()
		c.fs.locals = append(c.fs.locals, localVar{name: catchVar, depth: c.fs.scopeDepth, slot: excReg})
		c.consume(TokenLeftBrace, "Expect '{' after catch clause.")
		c.block()
		c.endScope()

		doneList = c.fs.mergeJumpList(doneList, c.emitJump(OpJump))
		c.patchJumpListToHere(mismatchJump)

		if !hasType {
			break
		}
	}
	c.patchJumpListToHere(doneList)
	c.patchJumpHere(endPC)
	c.fs.freeReg(excReg)
}

func (c *Compiler) throwStatement() {
	e := c.parseExpression()
	reg := c.exprToAnyReg(&e)
	c.consume(TokenSemicolon, "Expect ';' after thrown value.")
	c.emitAD(OpThrow, uint8(reg), 0)
}

// --- functions --------------------------------------------------------

func (c *Compiler) funDeclaration() {
	c.consume(TokenIdentifier, "Expect function name.")
	name := c.prev.Lexeme
	fn := c.function(funcKindFunction, name)
	value := exprDesc{kind: exprConst, trueList: noJumpList, falseList: noJumpList}
	c.emitClosureExpr(fn, &value)
	c.defineVariable(name, &value)
}

func (c *Compiler) emitClosureExpr(fn *ObjFunction, e *exprDesc) {
	idx := c.fs.fn.Chunk.AddConstant(ObjValue(fn))
	reg := c.fs.reserveRegs(1)
	c.emitAD(OpClosure, uint8(reg), uint16(idx))
	e.kind = exprNonReloc
	e.reg = reg
}

// function compiles a function body (parameters through closing
// brace) in a fresh funcState and returns the finished ObjFunction.
// Default-valued parameters get one entry point per omitted-argument
// count, recorded in CodeOffsets. Each parameter is declared as a
// local before its own default (if any) is parsed, so a later
// parameter's default may reference an earlier one, e.g.
// `fun f(a, b = a + 1)`; the default's code is emitted inline, right
// where it will run, rather than parsed once and discharged later.
func (c *Compiler) function(kind funcKind, name string) *ObjFunction {
	c.pushFunc(kind, name)
	fs := c.fs
	c.beginScope()

	c.consume(TokenLeftParen, "Expect '(' after function name.")
	type param struct {
		name    string
		hasDflt bool
	}
	type entryPoint struct {
		index  int
		offset int
	}
	var params []param
	var entries []entryPoint
	if !c.check(TokenRightParen) {
		for {
			c.consume(TokenIdentifier, "Expect parameter name.")
			name := c.prev.Lexeme
			slot := fs.reserveRegs(1)
			fs.locals = append(fs.locals, localVar{name: name, depth: fs.scopeDepth, slot: slot})

			p := param{name: name}
			if c.match(TokenEqual) {
				p.hasDflt = true
				// entry point for "this parameter and everything after
				// it was omitted": where to start filling in defaults
				// for the remaining arity.
				entries = append(entries, entryPoint{index: len(params), offset: c.currentPC()})
				e := c.parseExpression()
				c.dischargeToReg(&e, slot)
			}
			params = append(params, p)
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after parameters.")

	minArity := 0
	for _, p := range params {
		if !p.hasDflt {
			minArity++
		}
	}
	maxArity := len(params)
	fs.fn.MinArity = minArity
	fs.fn.MaxArity = maxArity
	fs.fn.CodeOffsets = make([]int, maxArity-minArity+1)
	for _, e := range entries {
		fs.fn.CodeOffsets[maxArity-e.index] = e.offset
	}
	fs.fn.CodeOffsets[0] = c.currentPC()

	c.consume(TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	fn := c.endCompiler()
	return fn
}

// --- classes ------------------------------------------------------------

func (c *Compiler) classDeclaration() {
	c.consume(TokenIdentifier, "Expect class name.")
	name := c.prev.Lexeme
	nameIdx := c.fs.fn.Chunk.AddConstant(ObjValue(c.vm.internString([]byte(name))))

	reg := c.fs.reserveRegs(1)
	c.emitAD(OpClass, uint8(reg), uint16(nameIdx))
	classValue := exprDesc{kind: exprNonReloc, reg: reg, trueList: noJumpList, falseList: noJumpList}
	c.defineVariable(name, &classValue)

	cc := &classContext{enclosing: c.fs.class}
	c.fs.class = cc

	if c.match(TokenLess) {
		c.consume(TokenIdentifier, "Expect superclass name.")
		superName := c.prev.Lexeme
		if superName == name {
			c.error("A class can't inherit from itself.")
		}
		super := c.resolveVariable(superName)
		superReg := c.exprToAnyReg(&super)

		c.beginScope()
		c.fs.locals = append(c.fs.locals, localVar{name: "super", depth: c.fs.scopeDepth, slot: superReg})

		classVar := c.resolveVariable(name)
		classReg := c.exprToAnyReg(&classVar)
		c.emitAD(OpInherit, uint8(classReg), uint16(superReg))
		cc.hasSuper = true
	}

	classVar := c.resolveVariable(name)
	classReg := c.exprToAnyReg(&classVar)

	c.consume(TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		c.method(classReg)
	}
	c.consume(TokenRightBrace, "Expect '}' after class body.")

	if cc.hasSuper {
		c.endScope()
	}
	c.fs.class = cc.enclosing
}

func (c *Compiler) method(classReg int) {
	c.consume(TokenIdentifier, "Expect method name.")
	name := c.prev.Lexeme
	kind := funcKindMethod
	if name == "init" {
		kind = funcKindInitializer
	}
	fn := c.function(kind, name)

	nameReg := c.fs.reserveRegs(1)
	c.loadStringConst(nameReg, name)
	closureReg := c.fs.reserveRegs(1)
	idx := c.fs.fn.Chunk.AddConstant(ObjValue(fn))
	c.emitAD(OpClosure, uint8(closureReg), uint16(idx))
	c.emitABC(OpMethod, uint8(classReg), uint8(nameReg), uint8(closureReg))
	c.fs.freeReg(closureReg)
	c.fs.freeReg(nameReg)
}
