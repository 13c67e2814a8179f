// Command gen emits the AVX2 delay-queue advance kernel via avo.
package main

import (
	. "github.com/mmcloughlin/avo/build"
	. "github.com/mmcloughlin/avo/operand"
	reg "github.com/mmcloughlin/avo/reg"
)

func main() {
	TEXT("AdvanceQueueBlockAVX2", NOSPLIT, "func(queue []uint32, idx []int32, qlen int32)")
	Pragma("noescape")
	Doc("AdvanceQueueBlockAVX2 clears the current-slot bit of each packed delay-queue word and advances each cursor modulo qlen, eight edges per iteration.")
	generateAdvanceQueueBlock()
	Generate()
}

func generateAdvanceQueueBlock() {
	queuePtr := Load(Param("queue").Base(), GP64())
	idxPtr := Load(Param("idx").Base(), GP64())
	n := Load(Param("queue").Len(), GP64())
	qlen := Load(Param("qlen"), GP32())

	ones := YMM()
	oneScalar := GP32()
	MOVL(U32(1), oneScalar)
	tmpX := XMM()
	VMOVD(oneScalar, tmpX)
	VPBROADCASTD(tmpX, ones)

	qlenVec := YMM()
	VMOVD(qlen, tmpX)
	VPBROADCASTD(tmpX, qlenVec)

	Label("loop_advance")
	CMPQ(n, Imm(8))
	JL(LabelRef("remainder_advance"))

	queueVec := YMM()
	idxVec := YMM()
	VMOVDQU(Mem{Base: queuePtr}, queueVec)
	VMOVDQU(Mem{Base: idxPtr}, idxVec)

	// queue &^= 1 << idx
	bitVec := YMM()
	VPSLLVD(idxVec, ones, bitVec)
	VPANDN(queueVec, bitVec, queueVec)
	VMOVDQU(queueVec, Mem{Base: queuePtr})

	// idx = idx+1; idx == qlen -> 0
	VPADDD(ones, idxVec, idxVec)
	wrapMask := YMM()
	VPCMPEQD(qlenVec, idxVec, wrapMask)
	VPANDN(idxVec, wrapMask, idxVec)
	VMOVDQU(idxVec, Mem{Base: idxPtr})

	ADDQ(Imm(32), queuePtr)
	ADDQ(Imm(32), idxPtr)
	SUBQ(Imm(8), n)
	JMP(LabelRef("loop_advance"))

	Label("remainder_advance")
	CMPQ(n, Imm(0))
	JE(LabelRef("done_advance"))

	word := GP32()
	cursor := GP32()
	bit := GP32()
	MOVL(Mem{Base: queuePtr}, word)
	MOVL(Mem{Base: idxPtr}, cursor)
	MOVL(cursor, reg.ECX)
	MOVL(U32(1), bit)
	SHLL(reg.CL, bit)
	NOTL(bit)
	ANDL(bit, word)
	MOVL(word, Mem{Base: queuePtr})

	INCL(cursor)
	CMPL(cursor, qlen)
	JNE(LabelRef("store_cursor"))
	XORL(cursor, cursor)
	Label("store_cursor")
	MOVL(cursor, Mem{Base: idxPtr})

	ADDQ(Imm(4), queuePtr)
	ADDQ(Imm(4), idxPtr)
	SUBQ(Imm(1), n)
	JMP(LabelRef("remainder_advance"))

	Label("done_advance")
	RET()
}
