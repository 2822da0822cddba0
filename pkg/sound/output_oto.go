//go:build !headless

package sound

import (
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Output drives the host audio device from a stream of float32 mono frames.
type Output struct {
	ctx     *oto.Context
	player  *oto.Player
	started bool
	mutex   sync.Mutex
}

// NewOutput opens the audio device. Only one Output may exist per process.
func NewOutput(src io.Reader) (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	return &Output{
		ctx:    ctx,
		player: ctx.NewPlayer(src),
	}, nil
}

func (o *Output) Start() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.started && o.player != nil {
		o.player.Play()
		o.started = true
	}
}

func (o *Output) Close() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	o.started = false
	return err
}
