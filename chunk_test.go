package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeAD_RoundTrip(t *testing.T) {
	instr := encodeAD(OpGetGlobal, 7, 1000)
	assert.Equal(t, OpGetGlobal, decodeOp(instr))
	assert.Equal(t, uint8(7), decodeA(instr))
	assert.Equal(t, uint16(1000), decodeD(instr))
}

func TestEncodeABC_RoundTrip(t *testing.T) {
	instr := encodeABC(OpAddVV, 3, 4, 5)
	assert.Equal(t, OpAddVV, decodeOp(instr))
	assert.Equal(t, uint8(3), decodeA(instr))
	assert.Equal(t, uint8(4), decodeB(instr))
	assert.Equal(t, uint8(5), decodeC(instr))
}

func TestSetA_SetD_PatchInPlace(t *testing.T) {
	instr := encodeAD(OpJump, 0, NoJump)
	setA(&instr, 9)
	setD(&instr, jumpOffset(12))

	assert.Equal(t, OpJump, decodeOp(instr), "patching A/D must not disturb the opcode")
	assert.Equal(t, uint8(9), decodeA(instr))
	assert.Equal(t, 12, jumpDelta(decodeD(instr)))
}

func TestSetOp_PreservesOperands(t *testing.T) {
	instr := encodeAD(OpJumpIfFalse, 2, 200)
	setOp(&instr, OpJumpIfTrue)
	assert.Equal(t, OpJumpIfTrue, decodeOp(instr))
	assert.Equal(t, uint8(2), decodeA(instr))
	assert.Equal(t, uint16(200), decodeD(instr))
}

func TestJumpOffsetDelta_RoundTrip(t *testing.T) {
	for _, delta := range []int{-100, -1, 0, 1, 100, 32000} {
		d := jumpOffset(delta)
		assert.Equal(t, delta, jumpDelta(d))
	}
}

func TestComparisonOpcodePairs_DifferByLowBit(t *testing.T) {
	// Flipping the sense of a pending comparison is a XOR 1 on the
	// opcode, which only works if each pair is laid out as adjacent
	// (even, odd) values.
	assert.Equal(t, OpEqual^1, OpNeq)
	assert.Equal(t, OpLess^1, OpGeq)
	assert.Equal(t, OpGreater^1, OpLeq)
}

func TestChunk_WriteAndAddConstant(t *testing.T) {
	var c Chunk
	pc := c.Write(encodeAD(OpHalt, 0, 0), 3)
	assert.Equal(t, 0, pc)
	assert.Equal(t, 3, c.Lines[0])

	idx := c.AddConstant(NumberValue(42))
	assert.Equal(t, 0, idx)
	assert.Equal(t, float64(42), c.Constants[idx].Num)
}
