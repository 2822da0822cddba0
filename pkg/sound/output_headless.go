//go:build headless

package sound

import (
	"errors"
	"io"
)

var errNoAudio = errors.New("audio output not built in headless mode")

type Output struct{}

func NewOutput(src io.Reader) (*Output, error) {
	return nil, errNoAudio
}

func (o *Output) Start() {}

func (o *Output) Close() error { return nil }
