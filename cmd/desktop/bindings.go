package main

import (
	"github.com/hajimehoshi/ebiten/v2"

	"go8080/pkg/peripherals"
)

// buttonKeys lists the keys held for each cabinet control. Any of them
// presses the button.
var buttonKeys = map[peripherals.Button][]ebiten.Key{
	peripherals.ButtonCoin:    {ebiten.KeyC, ebiten.KeyDigit5},
	peripherals.ButtonP1Start: {ebiten.KeyDigit1},
	peripherals.ButtonP2Start: {ebiten.KeyDigit2},
	peripherals.ButtonP1Fire:  {ebiten.KeySpace, ebiten.KeyArrowUp},
	peripherals.ButtonP1Left:  {ebiten.KeyArrowLeft},
	peripherals.ButtonP1Right: {ebiten.KeyArrowRight},
	peripherals.ButtonP2Fire:  {ebiten.KeyK},
	peripherals.ButtonP2Left:  {ebiten.KeyJ},
	peripherals.ButtonP2Right: {ebiten.KeyL},
	peripherals.ButtonTilt:    {ebiten.KeyT},
}

type command int

const (
	cmdNone command = iota
	cmdPause
	cmdSave
	cmdLoad
	cmdNextSlot
	cmdScreenshot
	cmdMute
	cmdVolumeUp
	cmdVolumeDown
	cmdOverlay
	cmdQuit
)

// commandKeys trigger once per press.
var commandKeys = []struct {
	key ebiten.Key
	cmd command
}{
	{ebiten.KeyP, cmdPause},
	{ebiten.KeyF5, cmdSave},
	{ebiten.KeyF9, cmdLoad},
	{ebiten.KeyF6, cmdNextSlot},
	{ebiten.KeyF12, cmdScreenshot},
	{ebiten.KeyM, cmdMute},
	{ebiten.KeyEqual, cmdVolumeUp},
	{ebiten.KeyNumpadAdd, cmdVolumeUp},
	{ebiten.KeyMinus, cmdVolumeDown},
	{ebiten.KeyNumpadSubtract, cmdVolumeDown},
	{ebiten.KeyO, cmdOverlay},
	{ebiten.KeyEscape, cmdQuit},
}

// buttonsPressed reports the state of every control given a key query.
func buttonsPressed(pressed func(ebiten.Key) bool) map[peripherals.Button]bool {
	state := make(map[peripherals.Button]bool, len(buttonKeys))
	for b, keys := range buttonKeys {
		down := false
		for _, k := range keys {
			if pressed(k) {
				down = true
				break
			}
		}
		state[b] = down
	}
	return state
}

// commandsTriggered returns the commands whose key was just pressed, in
// table order without duplicates.
func commandsTriggered(justPressed func(ebiten.Key) bool) []command {
	var cmds []command
	seen := map[command]bool{}
	for _, ck := range commandKeys {
		if seen[ck.cmd] || !justPressed(ck.key) {
			continue
		}
		seen[ck.cmd] = true
		cmds = append(cmds, ck.cmd)
	}
	return cmds
}
