package main

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"go8080/pkg/peripherals"
)

func TestKeyDecoder(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []key
	}{
		{"coin", "c", []key{{action: actionButton, button: peripherals.ButtonCoin}}},
		{"upper case", "C", []key{{action: actionButton, button: peripherals.ButtonCoin}}},
		{"fire", " ", []key{{action: actionButton, button: peripherals.ButtonP1Fire}}},
		{"quit", "q", []key{{action: actionQuit}}},
		{"ctrl-c", "\x03", []key{{action: actionQuit}}},
		{"unmapped", "z", []key{{}}},
		{"left arrow", "\x1b[D", []key{{}, {}, {action: actionButton, button: peripherals.ButtonP1Left}}},
		{"right arrow", "\x1b[C", []key{{}, {}, {action: actionButton, button: peripherals.ButtonP1Right}}},
		{"unknown sequence", "\x1b[Z1", []key{{}, {}, {}, {action: actionButton, button: peripherals.ButtonP1Start}}},
		{"escape", "\x1bx", []key{{}, {action: actionQuit}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d keyDecoder
			got := make([]key, 0, len(tt.input))
			for i := 0; i < len(tt.input); i++ {
				got = append(got, d.feed(tt.input[i]))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
