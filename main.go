// Package main assembles 8080 programs and runs them under a minimal CP/M
// console host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/asm"
	"go8080/pkg/cpu"
	"go8080/pkg/machine"
	"go8080/pkg/peripherals"
	"go8080/pkg/utils"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type optionFlags struct {
	in        string
	out       string
	runBin    string
	logFile   string
	load      string
	entry     string
	maxCycles uint64
	run       bool
	disasm    bool
	bare      bool
	debug     bool
	trace     bool
}

func main() {
	opts := readArguments()
	logger := utils.CreateLogger(opts.debug || opts.trace, false)
	ctx := app.Context()

	if err := execute(ctx, opts, logger, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		logger.Fatal("failed", log.Err(err))
	}
}

func readArguments() optionFlags {
	var opts optionFlags
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags.StringVar(&opts.in, "in", "", "input assembly file path")
	flags.StringVar(&opts.out, "out", "", "output binary file path (default: input with .bin extension)")
	flags.BoolVar(&opts.run, "run", false, "run the assembled binary")
	flags.StringVar(&opts.runBin, "run-bin", "", "run an existing binary file")
	flags.BoolVar(&opts.disasm, "disasm", false, "print a disassembly of the binary")
	flags.StringVar(&opts.load, "load", "0", "address the binary is loaded at")
	flags.StringVar(&opts.entry, "entry", "0x100", "address execution starts at")
	flags.BoolVar(&opts.bare, "bare", false, "run without the BDOS console stub")
	flags.Uint64Var(&opts.maxCycles, "max-cycles", 0, "stop after this many cycles (0 = no limit)")
	flags.StringVar(&opts.logFile, "log", "", "write diagnostic dumps to this file instead of stderr")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.trace, "trace", false, "log every executed instruction")
	showVersion := flags.Bool("version", false, "print the version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("go8080 asm %s\n", buildinfo.Version(version, commit, date))
		os.Exit(0)
	}
	return opts
}

var errUsage = errors.New("nothing to do: provide -in to assemble, -run to run assembled output, or -run-bin <file> to run an existing binary")

func execute(ctx context.Context, opts optionFlags, logger *log.Logger, stdout io.Writer) error {
	if opts.run && opts.runBin != "" {
		return fmt.Errorf("%w: use either -run or -run-bin, not both", errUsage)
	}
	if opts.in == "" && opts.runBin == "" {
		return errUsage
	}
	if opts.run && opts.in == "" {
		return fmt.Errorf("%w: -run requires -in", errUsage)
	}

	var image []byte
	if opts.in != "" {
		output := opts.out
		if output == "" {
			output = defaultOutputPath(opts.in)
		}
		code, err := assembleFile(opts.in, output)
		if err != nil {
			return err
		}
		logger.Info("assembled", log.Int("bytes", len(code)), log.String("output", output))
		image = code
	}
	if opts.runBin != "" {
		code, err := os.ReadFile(opts.runBin)
		if err != nil {
			return fmt.Errorf("reading binary: %w", err)
		}
		image = code
	}

	load, err := parseAddress(opts.load)
	if err != nil {
		return fmt.Errorf("invalid -load: %w", err)
	}
	if opts.disasm {
		fmt.Fprintf(stdout, "; %d bytes at %04X\n", len(image), load)
		listing := make([]byte, int(load)+len(image))
		copy(listing[load:], image)
		cpu.DisassembleRange(stdout, listing, int(load), len(listing))
	}
	if !opts.run && opts.runBin == "" {
		return nil
	}

	entry, err := parseAddress(opts.entry)
	if err != nil {
		return fmt.Errorf("invalid -entry: %w", err)
	}

	dump, closeDump, err := openDump(opts.logFile)
	if err != nil {
		return err
	}
	defer closeDump()

	m, err := runProgram(ctx, program{
		image:     image,
		load:      load,
		entry:     entry,
		bare:      opts.bare,
		maxCycles: opts.maxCycles,
		trace:     opts.trace,
	}, stdout, dump, logger)
	if m != nil {
		fmt.Fprintln(stdout)
		printSummary(stdout, m.CPU)
	}
	return err
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".bin"
	}
	return strings.TrimSuffix(inPath, ext) + ".bin"
}

// parseAddress accepts decimal, 0x-prefixed or h-suffixed hex.
func parseAddress(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	base := 0
	if strings.HasSuffix(lower, "h") {
		s, base = s[:len(s)-1], 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func assembleFile(inPath, outPath string) ([]byte, error) {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	code, _, err := asm.Assemble(string(source))
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}
	if err := os.WriteFile(outPath, code, 0o644); err != nil {
		return nil, fmt.Errorf("writing binary: %w", err)
	}
	return code, nil
}

func openDump(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

type program struct {
	image     []byte
	load      uint16
	entry     uint16
	bare      bool
	maxCycles uint64
	trace     bool
}

// runProgram executes p on a 64 KiB machine. Console output goes to out and
// diagnostic dumps to dump. The machine is returned even when the run fails
// so its state can be reported.
func runProgram(ctx context.Context, p program, out, dump io.Writer, logger *log.Logger) (*machine.Machine, error) {
	profile := machine.CPM()
	profile.Entry = p.entry
	profile.BDOS = !p.bare

	segments := []machine.Segment{{Name: "program", Offset: p.load, Data: p.image}}
	m, err := machine.New(profile, segments, peripherals.NewConsole(out), logger)
	if err != nil {
		return nil, err
	}
	m.CPU.Output = dump
	m.CPU.Trace = p.trace

	return m, m.RunHeadless(ctx, p.maxCycles)
}

func printSummary(w io.Writer, c *cpu.CPU) {
	fmt.Fprintf(w, "run complete: PC=%04X SP=%04X A=%02X BC=%04X DE=%04X HL=%04X flags=%s cycles=%d\n",
		c.PC, c.SP, c.A, c.BC(), c.DE(), c.HL(), c.Flags, c.Cycles)
}
