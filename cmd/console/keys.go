package main

import "go8080/pkg/peripherals"

type keyAction int

const (
	actionNone keyAction = iota
	actionButton
	actionQuit
)

type key struct {
	action keyAction
	button peripherals.Button
}

var keyMap = map[byte]peripherals.Button{
	'c': peripherals.ButtonCoin,
	'5': peripherals.ButtonCoin,
	'1': peripherals.ButtonP1Start,
	'2': peripherals.ButtonP2Start,
	' ': peripherals.ButtonP1Fire,
	'a': peripherals.ButtonP1Left,
	'd': peripherals.ButtonP1Right,
	'j': peripherals.ButtonP2Left,
	'l': peripherals.ButtonP2Right,
	'k': peripherals.ButtonP2Fire,
	't': peripherals.ButtonTilt,
}

// keyDecoder turns raw terminal bytes into actions, including the
// ESC [ C / ESC [ D arrow sequences.
type keyDecoder struct {
	state int
}

func (d *keyDecoder) feed(b byte) key {
	switch d.state {
	case 1:
		if b == '[' {
			d.state = 2
			return key{}
		}
		d.state = 0
		// a lone ESC quits
		return key{action: actionQuit}
	case 2:
		d.state = 0
		switch b {
		case 'D':
			return key{action: actionButton, button: peripherals.ButtonP1Left}
		case 'C':
			return key{action: actionButton, button: peripherals.ButtonP1Right}
		case 'A':
			return key{action: actionButton, button: peripherals.ButtonP1Fire}
		}
		return key{}
	}

	switch b {
	case 0x1B:
		d.state = 1
		return key{}
	case 0x03, 'q':
		return key{action: actionQuit}
	}
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	if btn, ok := keyMap[b]; ok {
		return key{action: actionButton, button: btn}
	}
	return key{}
}
