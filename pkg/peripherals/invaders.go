package peripherals

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/video"
)

const InvadersType = "Invaders"

// Button is a cabinet control.
type Button int

const (
	ButtonCoin Button = iota
	ButtonP1Start
	ButtonP2Start
	ButtonP1Fire
	ButtonP1Left
	ButtonP1Right
	ButtonP2Fire
	ButtonP2Left
	ButtonP2Right
	ButtonTilt

	buttonCount
)

// buttonBits maps each control to its input port and bit.
var buttonBits = [buttonCount]struct {
	port byte
	mask byte
}{
	ButtonCoin:    {1, 0x01},
	ButtonP2Start: {1, 0x02},
	ButtonP1Start: {1, 0x04},
	ButtonP1Fire:  {1, 0x10},
	ButtonP1Left:  {1, 0x20},
	ButtonP1Right: {1, 0x40},
	ButtonTilt:    {2, 0x04},
	ButtonP2Fire:  {2, 0x10},
	ButtonP2Left:  {2, 0x20},
	ButtonP2Right: {2, 0x40},
}

// Sound identifies one of the board's discrete sound circuits. The numbering
// matches the conventional 0.wav to 9.wav sample set.
type Sound int

const (
	SoundUFO Sound = iota
	SoundShot
	SoundPlayerDeath
	SoundInvaderDeath
	SoundFleet1
	SoundFleet2
	SoundFleet3
	SoundFleet4
	SoundUFOHit
	SoundExtraLife

	SoundCount
)

func (s Sound) String() string {
	names := [...]string{"ufo", "shot", "player-death", "invader-death",
		"fleet1", "fleet2", "fleet3", "fleet4", "ufo-hit", "extra-life"}
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("sound(%d)", int(s))
	}
	return names[s]
}

// soundBits lists the trigger bits of output ports 3 and 5, indexed by bank.
var soundBits = [2][]struct {
	mask  byte
	sound Sound
}{
	{
		{0x01, SoundUFO},
		{0x02, SoundShot},
		{0x04, SoundPlayerDeath},
		{0x08, SoundInvaderDeath},
		{0x10, SoundExtraLife},
	},
	{
		{0x01, SoundFleet1},
		{0x02, SoundFleet2},
		{0x04, SoundFleet3},
		{0x08, SoundFleet4},
		{0x10, SoundUFOHit},
	},
}

// SoundPlayer receives sound triggers. Looping sounds repeat until stopped.
type SoundPlayer interface {
	Play(s Sound, loop bool)
	Stop(s Sound)
}

// ShiftRegister is the board's 16-bit barrel shifter. Data written enters at
// the top; reads return an 8-bit window selected by Amount.
type ShiftRegister struct {
	Value  uint16 `json:"value"`
	Amount byte   `json:"amount"`
}

func (s *ShiftRegister) Write(data byte) {
	s.Value = s.Value>>8 | uint16(data)<<8
}

func (s *ShiftRegister) SetAmount(amount byte) {
	s.Amount = amount & 0x07
}

func (s ShiftRegister) Read() byte {
	return byte(s.Value >> (8 - s.Amount))
}

// DIPSettings are the operator switches read through port 2.
type DIPSettings struct {
	// Lives per game, 3 to 6.
	Lives int
	// BonusAt1000 awards the extra base at 1000 points instead of 1500.
	BonusAt1000 bool
	// HideCoinInfo removes the coin text from the attract screen.
	HideCoinInfo bool
}

func DefaultDIPSettings() DIPSettings {
	return DIPSettings{Lives: 3}
}

func (d DIPSettings) bits() byte {
	lives := d.Lives
	if lives < 3 {
		lives = 3
	}
	if lives > 6 {
		lives = 6
	}
	b := byte(lives - 3)
	if d.BonusAt1000 {
		b |= 0x08
	}
	if d.HideCoinInfo {
		b |= 0x80
	}
	return b
}

// InvadersState is everything the board remembers between port accesses.
type InvadersState struct {
	Inputs [3]byte           `json:"inputs"`
	Shift  ShiftRegister     `json:"shift"`
	Sound  [2]byte           `json:"sound"`
	Holds  [buttonCount]int  `json:"holds"`
	Held   [buttonCount]bool `json:"held"`
}

// Invaders is the I/O board of the Space Invaders cabinet.
type Invaders struct {
	mu     sync.Mutex
	state  InvadersState
	dip    DIPSettings
	sound  SoundPlayer
	screen *video.Screen
	logger *log.Logger
}

// NewInvaders creates a board with the given switches. sound and screen may
// be nil.
func NewInvaders(dip DIPSettings, sound SoundPlayer, screen *video.Screen, logger *log.Logger) *Invaders {
	inv := &Invaders{
		dip:    dip,
		sound:  sound,
		screen: screen,
		logger: logger,
	}
	inv.refreshInputs()
	return inv
}

func (inv *Invaders) Type() string { return InvadersType }

// refreshInputs rebuilds the input ports from the held controls and switches.
// Callers hold mu.
func (inv *Invaders) refreshInputs() {
	in := [3]byte{0x0E, 0x08, inv.dip.bits()}
	for b := Button(0); b < buttonCount; b++ {
		if inv.state.Held[b] || inv.state.Holds[b] > 0 {
			bit := buttonBits[b]
			in[bit.port] |= bit.mask
		}
	}
	inv.state.Inputs = in
}

func (inv *Invaders) In(port byte) byte {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch port {
	case 0, 1, 2:
		return inv.state.Inputs[port]
	case 3:
		return inv.state.Shift.Read()
	default:
		return 0
	}
}

func (inv *Invaders) Out(port, value byte) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch port {
	case 2:
		inv.state.Shift.SetAmount(value)
	case 3:
		inv.soundBank(0, value)
	case 4:
		inv.state.Shift.Write(value)
	case 5:
		inv.soundBank(1, value)
	case 6:
		// watchdog
	default:
		if inv.logger != nil {
			inv.logger.Debug("write to unmapped port", log.Int("port", int(port)), log.Hex("value", value))
		}
	}
}

// soundBank fires sounds on rising edges. The UFO is the only looping sound
// and stops on its falling edge.
func (inv *Invaders) soundBank(bank int, value byte) {
	prev := inv.state.Sound[bank]
	inv.state.Sound[bank] = value
	if inv.sound == nil {
		return
	}

	rising := value &^ prev
	falling := prev &^ value
	for _, sb := range soundBits[bank] {
		loop := sb.sound == SoundUFO
		switch {
		case rising&sb.mask != 0:
			inv.sound.Play(sb.sound, loop)
		case loop && falling&sb.mask != 0:
			inv.sound.Stop(sb.sound)
		}
	}
}

// SetButton presses or releases a control.
func (inv *Invaders) SetButton(b Button, pressed bool) {
	if b < 0 || b >= buttonCount {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.state.Held[b] = pressed
	inv.refreshInputs()
}

// Tap holds a control for the given number of interrupt ticks. Terminals
// report key presses without releases, so this stands in for key-up.
func (inv *Invaders) Tap(b Button, ticks int) {
	if b < 0 || b >= buttonCount {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if ticks > inv.state.Holds[b] {
		inv.state.Holds[b] = ticks
	}
	inv.refreshInputs()
}

// SetDIP changes the operator switches.
func (inv *Invaders) SetDIP(dip DIPSettings) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.dip = dip
	inv.refreshInputs()
}

// Interrupt counts down tapped controls once per interrupt.
func (inv *Invaders) Interrupt(vector byte) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	changed := false
	for b := range inv.state.Holds {
		if inv.state.Holds[b] > 0 {
			inv.state.Holds[b]--
			changed = true
		}
	}
	if changed {
		inv.refreshInputs()
	}
}

// Render publishes a completed frame.
func (inv *Invaders) Render(vram []byte) {
	if inv.screen != nil {
		inv.screen.Publish(vram)
	}
}

// State returns a copy of the board state.
func (inv *Invaders) State() InvadersState {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

func (inv *Invaders) SaveState() []byte {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	data, _ := json.Marshal(inv.state)
	return data
}

func (inv *Invaders) LoadState(data []byte) error {
	var state InvadersState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode invaders state: %w", err)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.state = state
	inv.state.Shift.Amount &= 0x07
	inv.refreshInputs()
	return nil
}
