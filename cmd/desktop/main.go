// Package main runs the emulator in a desktop window with sound.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/machine"
	"go8080/pkg/peripherals"
	"go8080/pkg/savestore"
	"go8080/pkg/sound"
	"go8080/pkg/utils"
	"go8080/pkg/video"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const syncInterval = 3 * time.Second

type optionFlags struct {
	game    string
	roms    string
	samples string
	state   string
	logFile string
	scale   int
	lives   int
	overlay bool
	debug   bool
	trace   bool
	test    bool
}

func main() {
	opts := readArguments()
	logger := utils.CreateLogger(opts.debug || opts.trace, false)
	ctx := app.Context()

	dump, closeDump, err := openDump(opts.logFile)
	if err != nil {
		logger.Fatal("opening log file failed", log.Err(err))
	}
	defer closeDump()

	if opts.test {
		err = runDiagnostic(ctx, opts, logger, dump)
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
	flags.StringVar(&opts.samples, "samples", "", "directory holding 0.wav to 9.wav (defaults to the ROM directory)")
	flags.StringVar(&opts.state, "state", "go8080_saves", "directory for save slots, the high score and screenshots")
	flags.StringVar(&opts.logFile, "log", "", "write diagnostic dumps to this file instead of stderr")
	flags.IntVar(&opts.scale, "scale", 3, "window scale factor")
	flags.IntVar(&opts.lives, "lives", 3, "lives per game (3-6)")
	flags.BoolVar(&opts.overlay, "overlay", false, "tint the picture like the cabinet's colour gels")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.trace, "trace", false, "log every executed instruction")
	flags.BoolVar(&opts.test, "test", false, "run the cpudiag exerciser and print its output")
	showVersion := flags.Bool("version", false, "print the version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("go8080 %s\n", buildinfo.Version(version, commit, date))
		os.Exit(0)
	}
	if opts.scale < 1 {
		opts.scale = 1
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

// loadImages reads the profile's program images from the ROM directory and
// returns the directory used.
func loadImages(profile machine.Profile, roms string) ([]machine.Segment, string, error) {
	dir, err := utils.ResolveDir(append([]string{roms}, utils.DefaultROMDirs...)...)
	if err != nil {
		return nil, "", err
	}
	segments, err := machine.LoadImages(os.DirFS(dir), profile)
	return segments, dir, err
}

func runDiagnostic(ctx context.Context, opts optionFlags, logger *log.Logger, dump io.Writer) error {
	profile := machine.CPUDiag()
	segments, _, err := loadImages(profile, opts.roms)
	if err != nil {
		return err
	}
	m, err := machine.New(profile, segments, peripherals.NewConsole(os.Stdout), logger)
	if err != nil {
		return err
	}
	m.CPU.Output = dump
	m.CPU.Trace = opts.trace

	err = m.RunHeadless(ctx, 0)
	fmt.Println()
	return err
}

// openAudio loads the samples and starts playback. Without samples or an
// audio device the game runs silent.
func openAudio(dir string, logger *log.Logger) (*sound.Mixer, func()) {
	set := sound.LoadSampleSet(dir, logger)
	if set.Loaded() == 0 {
		logger.Warn("no sound samples found, running silent", log.String("dir", dir))
		return nil, func() {}
	}
	mixer := sound.NewMixer(set)
	out, err := sound.NewOutput(mixer)
	if err != nil {
		logger.Warn("opening audio output failed, running silent", log.Err(err))
		return nil, func() {}
	}
	out.Start()
	return mixer, func() { _ = out.Close() }
}

func runGame(ctx context.Context, opts optionFlags, logger *log.Logger, dump io.Writer) error {
	profile, err := machine.LookupGame(opts.game)
	if err != nil {
		return err
	}
	segments, romDir, err := loadImages(profile, opts.roms)
	if err != nil {
		return err
	}

	sampleDir := opts.samples
	if sampleDir == "" {
		sampleDir = romDir
	}
	mixer, closeAudio := openAudio(sampleDir, logger)
	defer closeAudio()

	screen := video.NewScreen(opts.overlay)
	dip := peripherals.DefaultDIPSettings()
	dip.Lives = opts.lives
	var player peripherals.SoundPlayer
	if mixer != nil {
		player = mixer
	}
	board := peripherals.NewInvaders(dip, player, screen, logger)

	m, err := machine.New(profile, segments, board, logger)
	if err != nil {
		return err
	}
	m.CPU.Output = dump
	m.CPU.Trace = opts.trace

	store := savestore.New(0)
	if err := store.LoadFrom(opts.state); err != nil {
		logger.Warn("loading save directory failed", log.String("dir", opts.state), log.Err(err))
	}
	if score := store.HighScore(); score != 0 {
		m.QueueHighScore(score)
	}

	syncCtx, stopSync := context.WithCancel(ctx)
	synced := make(chan struct{})
	go func() {
		store.Sync(syncCtx, opts.state, syncInterval, logger)
		close(synced)
	}()

	game := newGame(m, board, screen, mixer, store, logger)
	game.overlay = opts.overlay
	game.shotDir = opts.state
	game.done = ctx.Done()

	ebiten.SetWindowSize(video.Width*opts.scale, video.Height*opts.scale)
	ebiten.SetWindowTitle(fmt.Sprintf("go8080 - %s", profile.Description))
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if profile.FrameRate > 0 {
		ebiten.SetTPS(profile.FrameRate)
	}

	runErr := ebiten.RunGame(game)
	if errors.Is(runErr, ebiten.Termination) {
		runErr = nil
	}

	if score, ok := m.HighScore(); ok {
		if err := store.SetHighScore(score); err != nil {
			logger.Warn("storing high score failed", log.Err(err))
		}
	}
	stopSync()
	<-synced
	return runErr
}
