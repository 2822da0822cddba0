// Package main runs the emulator in a terminal, drawing the screen with
// braille characters.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/machine"
	"go8080/pkg/peripherals"
	"go8080/pkg/utils"
	"go8080/pkg/video"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// tapTicks is how long a key press holds its button, in interrupts. Two
// interrupts make one frame.
const tapTicks = 12

type optionFlags struct {
	game      string
	roms      string
	logFile   string
	lives     int
	fps       int
	maxCycles uint64
	test      bool
	debug     bool
}

func main() {
	opts := readArguments()
	logger := utils.CreateLogger(opts.debug, !opts.debug)
	ctx := app.Context()

	dump, closeDump, err := openDump(opts.logFile)
	if err != nil {
		logger.Fatal("opening log file failed", log.Err(err))
	}
	defer closeDump()

	if opts.test {
		err = runDiagnostic(ctx, opts, logger, os.Stdout, dump)
	} else {
		err = runGame(ctx, opts, logger, dump)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		closeDump()
		logger.Fatal("emulation failed", log.Err(err))
	}
}

func readArguments() optionFlags {
	var opts optionFlags
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags.StringVar(&opts.game, "game", "invaders", "name or id of a profile with video (cpudiag runs with -test)")
	flags.StringVar(&opts.roms, "roms", "", "directory holding the program images")
	flags.StringVar(&opts.logFile, "log", "", "write diagnostic dumps to this file instead of stderr")
	flags.IntVar(&opts.lives, "lives", 3, "lives per game (3-6)")
	flags.IntVar(&opts.fps, "fps", 30, "terminal refresh rate")
	flags.Uint64Var(&opts.maxCycles, "max-cycles", 0, "stop the diagnostic after this many cycles (0 = no limit)")
	flags.BoolVar(&opts.test, "test", false, "run the cpudiag exerciser and print its output")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print the version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("go8080 console %s\n", buildinfo.Version(version, commit, date))
		os.Exit(0)
	}
	return opts
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

func loadImages(profile machine.Profile, roms string) ([]machine.Segment, error) {
	dir, err := utils.ResolveDir(append([]string{roms}, utils.DefaultROMDirs...)...)
	if err != nil {
		return nil, err
	}
	return machine.LoadImages(os.DirFS(dir), profile)
}

func runDiagnostic(ctx context.Context, opts optionFlags, logger *log.Logger, out, dump io.Writer) error {
	profile := machine.CPUDiag()
	segments, err := loadImages(profile, opts.roms)
	if err != nil {
		return err
	}
	m, err := machine.New(profile, segments, peripherals.NewConsole(out), logger)
	if err != nil {
		return err
	}
	m.CPU.Output = dump

	err = m.RunHeadless(ctx, opts.maxCycles)
	fmt.Fprintln(out)
	logger.Info("diagnostic finished", log.Int("cycles", int(m.CPU.Cycles)))
	return err
}

func runGame(ctx context.Context, opts optionFlags, logger *log.Logger, dump io.Writer) error {
	profile, err := machine.LookupGame(opts.game)
	if err != nil {
		return err
	}
	segments, err := loadImages(profile, opts.roms)
	if err != nil {
		return err
	}

	screen := video.NewScreen(false)
	dip := peripherals.DefaultDIPSettings()
	dip.Lives = opts.lives
	board := peripherals.NewInvaders(dip, nil, screen, logger)

	m, err := machine.New(profile, segments, board, logger)
	if err != nil {
		return err
	}
	m.CPU.Output = dump

	keys := make(chan byte, 64)
	tty := newTerminal(keys)
	if err := tty.Start(); err != nil {
		return err
	}
	defer tty.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(ctx)
	}()

	fps := opts.fps
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var decoder keyDecoder
	fmt.Print("\x1b[2J\x1b[?25l")
	defer fmt.Print("\x1b[?25h\r\n")

	for {
		select {
		case err := <-runErr:
			return err
		case b := <-keys:
			k := decoder.feed(b)
			switch k.action {
			case actionQuit:
				cancel()
				return <-runErr
			case actionButton:
				board.Tap(k.button, tapTicks)
			}
		case <-ticker.C:
			frame := video.Braille(screen.Snapshot())
			fmt.Print("\x1b[H" + strings.ReplaceAll(frame, "\n", "\r\n"))
		}
	}
}
