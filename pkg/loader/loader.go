// Package loader builds a pkg/memory.Memory from a Microcorruption-style
// memory dump or a raw flat binary image. It is a thin package the CLI
// depends on to turn a file on disk into the engine's initial memory
// state.
package loader

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/memory"
)

// ParseMemoryDump reads a Microcorruption text memory dump: one line per
// 8-byte row, "ADDR b0 b1 ... b7" with ADDR a 4-hex-digit address and
// each b a 2-hex-digit byte, or "ADDR *" for an all-zero (already
// zeroed) row that the dump omits. Lines that don't start with 4 hex
// digits (headers, blank lines, comments) are skipped.
func ParseMemoryDump(r io.Reader) (*memory.Memory, error) {
	mem := memory.New()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 4 {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		addr, err := parseAddress(fields[0])
		if err != nil {
			continue // not an address line
		}

		rest := fields[1:]
		if len(rest) > 8 {
			rest = rest[:8]
		}
		if rest[0] == "*" {
			continue // unset row, memory is already zeroed
		}

		data, err := hex.DecodeString(strings.Join(rest, ""))
		if err != nil {
			return nil, fmt.Errorf("loader: line %q: %w", line, err)
		}
		for i, b := range data {
			mem.WriteByteAt(addr+uint16(i), bitvec.Const(uint64(b), 8))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: reading memory dump: %w", err)
	}
	return mem, nil
}

func parseAddress(s string) (uint16, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("loader: %q is not a 4-digit address", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 2 {
		return 0, fmt.Errorf("loader: %q is not a valid hex address", s)
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// LoadFlatImage builds memory directly from a raw 0x10000-byte binary
// image, for scripted use where a caller already has bytes rather than
// the Microcorruption dump text format.
func LoadFlatImage(img []byte) (*memory.Memory, error) {
	if len(img) > memory.Size {
		return nil, fmt.Errorf("loader: image is %d bytes, exceeds %d-byte address space", len(img), memory.Size)
	}
	padded := make([]byte, memory.Size)
	copy(padded, img)
	return memory.FromBytes(padded)
}
