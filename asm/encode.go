package asm

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeBinary serializes the stream into its wire form: one opcode byte
// per instruction followed by big-endian 32-bit operand words, matching
// the widths reported by Instruction.Width. Addresses must be current.
// The encoding is deterministic and is what the result cache stores.
func (p *Program) EncodeBinary() []byte {
	var buf bytes.Buffer
	for _, ins := range p.Instructions {
		buf.WriteByte(byte(ins.Kind))
		switch ins.Kind {
		case Push, JumpIndirect, Return:
			writeWord(&buf, ins.Operand.ID)
		case Copy:
			writeWord(&buf, ins.Source.ID)
			writeWord(&buf, ins.Target.ID)
		case Jump:
			writeWord(&buf, ins.TargetAddress)
		case JumpIfFalse:
			writeWord(&buf, ins.Condition.ID)
			writeWord(&buf, ins.TargetAddress)
		case Extern:
			writeWord(&buf, hashSymbol(ins.Symbol))
			for _, a := range ins.Args {
				writeWord(&buf, a.ID)
			}
		case Export:
			writeWord(&buf, hashSymbol(ins.Symbol))
		}
	}
	return buf.Bytes()
}

// Hash returns the Keccak digest of the encoded stream, the key under
// which optimization results are cached.
func (p *Program) Hash() common.Hash {
	return crypto.Keccak256Hash(p.EncodeBinary())
}

func writeWord(buf *bytes.Buffer, w uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], w)
	buf.Write(b[:])
}

// hashSymbol folds a symbol name into the single operand word the wire
// form has room for. FNV-1a, 32 bit.
func hashSymbol(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
