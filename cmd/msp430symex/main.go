// Command msp430symex loads an MSP430 memory image and drives the
// symbolic exploration engine to either an unlocked state or a
// symbolic instruction pointer: one cobra.Command root with flag-bound
// subcommands, progress reported on stderr, exit code 1 on error.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/cpu"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
	"github.com/Hypersonic/msp430-symex/pkg/loader"
	"github.com/Hypersonic/msp430-symex/pkg/memory"
	"github.com/Hypersonic/msp430-symex/pkg/pathgroup"
	"github.com/Hypersonic/msp430-symex/pkg/witness"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "msp430symex",
		Short: "Symbolic execution engine for MSP430 CTF memory images",
	}

	rootCmd.AddCommand(newSolveCmd(), newExploreCmd(), newDisasmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadFlags are the --image/--flat/--entry/--avoid/
// --no-unsound-optimizations/--format/--seed flags shared by solve and
// explore.
type loadFlags struct {
	image   string
	flat    bool
	entry   string
	avoid   []string
	unsound bool
	format  string
	seed    int64
}

func addLoadFlags(cmd *cobra.Command, lf *loadFlags) {
	cmd.Flags().StringVar(&lf.image, "image", "", "path to a Microcorruption memory dump (or --flat binary)")
	cmd.Flags().BoolVar(&lf.flat, "flat", false, "treat --image as a raw flat binary instead of a Microcorruption dump")
	cmd.Flags().StringVar(&lf.entry, "entry", "0x4400", "entry point address (hex, e.g. 0x4400)")
	cmd.Flags().StringSliceVar(&lf.avoid, "avoid", nil, "absolute addresses to avoid (hex), repeatable or comma-separated")
	cmd.Flags().BoolVar(&lf.unsound, "no-unsound-optimizations", false, "disable the flag-relevance lookahead (slower, sound)")
	cmd.Flags().StringVar(&lf.format, "format", "text", "witness output format: text or json")
	cmd.Flags().Int64Var(&lf.seed, "seed", 1, "RNG seed for the worklist's tie-break heuristic")
	_ = cmd.MarkFlagRequired("image")
}

func parseHexAddr(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid hex address: %w", s, err)
	}
	return uint16(v), nil
}

func loadMemory(lf *loadFlags) (*memory.Memory, error) {
	if lf.flat {
		data, err := os.ReadFile(lf.image)
		if err != nil {
			return nil, fmt.Errorf("reading flat image: %w", err)
		}
		return loader.LoadFlatImage(data)
	}

	f, err := os.Open(lf.image)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return loader.ParseMemoryDump(f)
}

// buildPathGroup loads memory, parses --entry/--avoid, and constructs the
// initial single-state PathGroup that solve and explore step.
func buildPathGroup(lf *loadFlags) (*pathgroup.PathGroup, error) {
	mem, err := loadMemory(lf)
	if err != nil {
		return nil, err
	}

	entry, err := parseHexAddr(lf.entry)
	if err != nil {
		return nil, fmt.Errorf("--entry: %w", err)
	}

	avoid := make([]uint16, 0, len(lf.avoid))
	for _, a := range lf.avoid {
		addr, err := parseHexAddr(a)
		if err != nil {
			return nil, fmt.Errorf("--avoid: %w", err)
		}
		avoid = append(avoid, addr)
	}

	solver := bitvec.NewZ3Solver()
	initial := cpu.NewState(mem, entry, solver)
	return pathgroup.New(initial, !lf.unsound, avoid, lf.seed), nil
}

func writeWitness(format string, w *witness.Witness) error {
	switch format {
	case "json":
		return witness.WriteJSON(os.Stdout, w)
	case "text", "":
		return witness.WriteText(os.Stdout, w)
	default:
		return fmt.Errorf("unknown --format %q (want text or json)", format)
	}
}

func newSolveCmd() *cobra.Command {
	lf := &loadFlags{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Explore until a path reaches the unlocked state and print its witness",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := buildPathGroup(lf)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "solving: entry=%s avoid=%v unsound=%v\n", lf.entry, lf.avoid, !lf.unsound)
			if err := pg.StepUntilUnlocked(); err != nil {
				return fmt.Errorf("exploration failed: %w", err)
			}

			if len(pg.Unlocked) == 0 {
				fmt.Println("no solution found")
				return nil
			}

			w, err := witness.FromState(pg.Unlocked[0])
			if err != nil {
				return err
			}
			return writeWitness(lf.format, w)
		},
	}
	addLoadFlags(cmd, lf)
	return cmd
}

func newExploreCmd() *cobra.Command {
	lf := &loadFlags{}
	var targetPC string
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explore until some path's instruction pointer goes symbolic",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := buildPathGroup(lf)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "exploring: entry=%s avoid=%v unsound=%v\n", lf.entry, lf.avoid, !lf.unsound)
			if err := pg.StepUntilSymbolicIP(); err != nil {
				return fmt.Errorf("exploration failed: %w", err)
			}

			if len(pg.Symbolic) == 0 {
				fmt.Println("no symbolic instruction pointer reached")
				return nil
			}
			fmt.Printf("%d state(s) reached a symbolic instruction pointer\n", len(pg.Symbolic))

			if targetPC == "" {
				return nil
			}
			target, err := parseHexAddr(targetPC)
			if err != nil {
				return fmt.Errorf("--target-pc: %w", err)
			}

			// Constrain the first symbolic state's PC to the requested
			// gadget address and solve for the input that reaches it.
			s := pg.Symbolic[0]
			pc := s.CPU.Regs.Get(inst.PC)
			s.Path.Add(bitvec.Eq(pc, bitvec.Const(uint64(target), 16)))

			sat, err := s.Path.IsSat()
			if err != nil {
				return fmt.Errorf("solving for target PC: %w", err)
			}
			if !sat {
				fmt.Printf("target 0x%04x is unreachable along this path\n", target)
				return nil
			}

			w, err := witness.FromState(s)
			if err != nil {
				return err
			}
			return writeWitness(lf.format, w)
		},
	}
	addLoadFlags(cmd, lf)
	cmd.Flags().StringVar(&targetPC, "target-pc", "", "after finding a symbolic IP, constrain it to this address (hex) and solve")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	var image string
	var flat bool
	var start string
	var count int
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Linearly disassemble instructions starting at an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			lf := &loadFlags{image: image, flat: flat}
			mem, err := loadMemory(lf)
			if err != nil {
				return err
			}
			addr, err := parseHexAddr(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}

			for i := 0; i < count; i++ {
				var buf [6]byte
				for j := range buf {
					buf[j] = byte(mustConst(mem.ReadByte(bitvec.Const(uint64(addr)+uint64(j), 16))))
				}
				in, err := inst.Decode(addr, buf[:])
				if err != nil {
					return fmt.Errorf("decoding at 0x%04x: %w", addr, err)
				}
				fmt.Printf("0x%04x: %s\n", addr, inst.Disassemble(in))
				addr += uint16(in.Len())
				if in.IsReturnLike() {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "path to a Microcorruption memory dump (or --flat binary)")
	cmd.Flags().BoolVar(&flat, "flat", false, "treat --image as a raw flat binary instead of a Microcorruption dump")
	cmd.Flags().StringVar(&start, "start", "0x4400", "address to start disassembling from (hex)")
	cmd.Flags().IntVar(&count, "count", 32, "maximum number of instructions to print")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// mustConst concretizes a memory read known to be concrete at load time
// (disasm only ever runs against freshly loaded, unexplored memory).
func mustConst(e *bitvec.Expr, err error) uint64 {
	if err != nil {
		return 0
	}
	v, _ := bitvec.Simplify(e).IsConst()
	return v
}
