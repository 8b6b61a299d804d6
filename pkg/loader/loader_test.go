package loader

import (
	"strings"
	"testing"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
)

func TestParseMemoryDumpReadsDataRow(t *testing.T) {
	dump := "4400 31 40 00 40 35 40 ef be\n4408 *\n"
	mem, err := ParseMemoryDump(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("ParseMemoryDump: %v", err)
	}

	want := []byte{0x31, 0x40, 0x00, 0x40, 0x35, 0x40, 0xef, 0xbe}
	for i, b := range want {
		v, ok := bitvec.Simplify(mem.ReadByteAt(0x4400 + uint16(i))).IsConst()
		if !ok || byte(v) != b {
			t.Errorf("byte at 0x%04x = %v, want 0x%02x", 0x4400+i, v, b)
		}
	}

	// the "*" row should leave memory zeroed, not error
	v, ok := bitvec.Simplify(mem.ReadByteAt(0x4408)).IsConst()
	if !ok || v != 0 {
		t.Errorf("byte at 0x4408 = %v, want 0", v)
	}
}

func TestParseMemoryDumpSkipsNonDataLines(t *testing.T) {
	dump := "Microcorruption dump\n\n4400 aa bb\n"
	mem, err := ParseMemoryDump(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("ParseMemoryDump: %v", err)
	}
	v, ok := bitvec.Simplify(mem.ReadByteAt(0x4400)).IsConst()
	if !ok || byte(v) != 0xaa {
		t.Errorf("byte at 0x4400 = %v, want 0xaa", v)
	}
}

func TestLoadFlatImagePadsToFullAddressSpace(t *testing.T) {
	img := []byte{0xde, 0xad, 0xbe, 0xef}
	mem, err := LoadFlatImage(img)
	if err != nil {
		t.Fatalf("LoadFlatImage: %v", err)
	}
	v, ok := bitvec.Simplify(mem.ReadByteAt(0)).IsConst()
	if !ok || byte(v) != 0xde {
		t.Errorf("byte 0 = %v, want 0xde", v)
	}
	v, ok = bitvec.Simplify(mem.ReadByteAt(0xffff)).IsConst()
	if !ok || v != 0 {
		t.Errorf("byte 0xffff = %v, want 0 (padding)", v)
	}
}
