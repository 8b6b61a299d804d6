package inst

import "testing"

// TestCatalogCompleteness verifies every Opcode has a catalog entry.
func TestCatalogCompleteness(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		info := &Catalog[op]
		if info.Mnemonic == "" {
			t.Errorf("Opcode %d has no mnemonic", op)
		}
	}
}

// Spot checks against known encoded byte sequences and their expected
// decoded fields.
func TestDecodeKnownSequences(t *testing.T) {
	t.Run("call immediate", func(t *testing.T) {
		data := []byte{0xb0, 0x12, 0x58, 0x45}
		in, err := Decode(0x4400, data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if in.Opcode != CALL || in.Family != FamilySingleOperand {
			t.Fatalf("got opcode %v family %v, want CALL single-operand", in.Opcode, in.Family)
		}
		if in.Mode != Immediate || !in.HasOperand || in.Operand != 0x4558 {
			t.Errorf("got mode=%v operand=0x%x, want Immediate 0x4558", in.Mode, in.Operand)
		}
		if in.Len() != 4 {
			t.Errorf("got len %d, want 4", in.Len())
		}
	})

	t.Run("reti", func(t *testing.T) {
		data := []byte{0x00, 0x13}
		in, err := Decode(0x4500, data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if in.Opcode != RETI || in.Len() != 2 {
			t.Errorf("got opcode %v len %d, want RETI len 2", in.Opcode, in.Len())
		}
		if !in.IsReturnLike() {
			t.Errorf("RETI should be return-like")
		}
	})

	t.Run("mov register to register", func(t *testing.T) {
		data := []byte{0x0b, 0x4f}
		in, err := Decode(0x4600, data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if in.Opcode != MOV || in.Family != FamilyDoubleOperand {
			t.Fatalf("got opcode %v family %v, want MOV double-operand", in.Opcode, in.Family)
		}
		if in.SrcReg != R15 || in.SrcMode != Direct {
			t.Errorf("got src reg=%v mode=%v, want R15 Direct", in.SrcReg, in.SrcMode)
		}
		if in.DstReg != R11 || in.DstMode != Direct {
			t.Errorf("got dst reg=%v mode=%v, want R11 Direct", in.DstReg, in.DstMode)
		}
		if in.Len() != 2 {
			t.Errorf("got len %d, want 2", in.Len())
		}
	})
}

func TestRetPseudoInstructionIsReturnLike(t *testing.T) {
	// MOV @SP+, PC is the RET pseudo-instruction: src R1 autoincrement,
	// dst R0 direct.
	in := Instruction{
		Opcode: MOV,
		Family: FamilyDoubleOperand,
		SrcMode: Autoincrement, SrcReg: SP,
		DstMode: Direct, DstReg: PC,
	}
	if !in.IsReturnLike() {
		t.Errorf("MOV @SP+, PC should be return-like")
	}
}

func TestDecodeJumpOffsetSign(t *testing.T) {
	// word 0x27FF: top 3 bits 001 (jump family), opcode bits 001 (JZ),
	// sign bit set, magnitude 0x1FF -- offset = 511*2-1024 = -2, so the
	// jump targets its own address: "jz $" (infinite loop on itself).
	data := []byte{0xff, 0x27}
	in, err := Decode(0x4400, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Opcode != JZ || in.Family != FamilyJump {
		t.Fatalf("got opcode %v family %v, want JZ jump", in.Opcode, in.Family)
	}
	if in.Target != 0x4400 {
		t.Errorf("got target 0x%04x, want 0x4400 (self-loop)", in.Target)
	}
}
