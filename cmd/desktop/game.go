package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/font/basicfont"

	"go8080/pkg/machine"
	"go8080/pkg/peripherals"
	"go8080/pkg/savestore"
	"go8080/pkg/sound"
	"go8080/pkg/video"
)

const (
	statusDuration  = 2 * time.Second
	screenshotScale = 2
)

var errNoAudio = errors.New("no audio output")

// Game drives one machine per ebiten tick and draws the published frame.
type Game struct {
	m      *machine.Machine
	board  *peripherals.Invaders
	screen *video.Screen
	mixer  *sound.Mixer // nil without audio
	store  *savestore.Store
	logger *log.Logger

	canvas *ebiten.Image

	paused  bool
	overlay bool
	slot    int
	shotDir string
	done    <-chan struct{}

	status      string
	statusUntil time.Time
}

func newGame(m *machine.Machine, board *peripherals.Invaders, screen *video.Screen,
	mixer *sound.Mixer, store *savestore.Store, logger *log.Logger) *Game {
	return &Game{
		m:      m,
		board:  board,
		screen: screen,
		mixer:  mixer,
		store:  store,
		logger: logger,
	}
}

func (g *Game) Update() error {
	select {
	case <-g.done:
		return ebiten.Termination
	default:
	}

	for _, cmd := range commandsTriggered(inpututil.IsKeyJustPressed) {
		if err := g.handle(cmd); err != nil {
			if errors.Is(err, ebiten.Termination) {
				return err
			}
			g.setStatus(err.Error())
			g.logger.Warn("command failed", log.Err(err))
		}
	}

	for b, down := range buttonsPressed(ebiten.IsKeyPressed) {
		g.board.SetButton(b, down)
	}

	if g.paused {
		return nil
	}
	if err := g.m.RunFrame(); err != nil {
		return err
	}
	if g.m.CPU.Halted {
		return ebiten.Termination
	}
	return nil
}

// handle executes a front-end command. It returns ebiten.Termination to quit.
func (g *Game) handle(cmd command) error {
	switch cmd {
	case cmdPause:
		g.paused = !g.paused
		g.setStatus("")

	case cmdSave:
		name, err := savestore.SlotName(g.slot)
		if err != nil {
			return err
		}
		data, err := g.m.Save()
		if err != nil {
			return fmt.Errorf("saving state: %w", err)
		}
		if err := g.store.Write(name, data); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}
		g.setStatus(fmt.Sprintf("SAVED SLOT %d", g.slot))

	case cmdLoad:
		name, err := savestore.SlotName(g.slot)
		if err != nil {
			return err
		}
		data, err := g.store.Read(name)
		if err != nil {
			return fmt.Errorf("loading slot %d: %w", g.slot, err)
		}
		if err := g.m.Restore(data); err != nil {
			return fmt.Errorf("loading slot %d: %w", g.slot, err)
		}
		g.setStatus(fmt.Sprintf("LOADED SLOT %d", g.slot))

	case cmdNextSlot:
		g.slot = (g.slot + 1) % savestore.Slots
		g.setStatus(fmt.Sprintf("SLOT %d", g.slot))

	case cmdScreenshot:
		name := filepath.Join(g.shotDir, "screenshot-"+time.Now().Format("20060102-150405")+".png")
		if err := video.SavePNG(name, g.screen.Snapshot(), screenshotScale); err != nil {
			return fmt.Errorf("writing screenshot: %w", err)
		}
		g.logger.Info("screenshot written", log.String("file", name))
		g.setStatus("SCREENSHOT")

	case cmdMute, cmdVolumeUp, cmdVolumeDown:
		if g.mixer == nil {
			return errNoAudio
		}
		switch cmd {
		case cmdMute:
			g.mixer.ToggleMute()
		case cmdVolumeUp:
			g.mixer.VolumeUp()
		case cmdVolumeDown:
			g.mixer.VolumeDown()
		}
		g.setStatus(fmt.Sprintf("VOLUME %d", g.mixer.Volume()))

	case cmdOverlay:
		g.overlay = !g.overlay
		g.screen.SetOverlay(g.overlay)

	case cmdQuit:
		return ebiten.Termination
	}
	return nil
}

func (g *Game) setStatus(msg string) {
	g.status = msg
	g.statusUntil = time.Now().Add(statusDuration)
}

// statusLine returns the text drawn over the picture, if any.
func (g *Game) statusLine(now time.Time) string {
	if g.status != "" && now.Before(g.statusUntil) {
		return g.status
	}
	if g.paused {
		return "PAUSED"
	}
	return ""
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.canvas == nil {
		g.canvas = ebiten.NewImage(video.Width, video.Height)
	}
	g.screen.View(func(img *image.RGBA) {
		g.canvas.WritePixels(img.Pix)
	})
	screen.DrawImage(g.canvas, nil)

	if msg := g.statusLine(time.Now()); msg != "" {
		text.Draw(screen, msg, basicfont.Face7x13, 4, 14, color.White)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return video.Width, video.Height
}
