package sound

import (
	"encoding/binary"
	"math"
	"sync"

	"go8080/pkg/peripherals"
)

const (
	// Voices is the number of sounds that can play at once.
	Voices = 8

	MaxVolume     = 128
	DefaultVolume = 26
)

type voice struct {
	sound  peripherals.Sound
	sample *Sample
	pos    int
	loop   bool
}

// Mixer sums the playing samples into a mono float32 little-endian stream.
// It is the io.Reader handed to the audio device and the sound player of the
// I/O board.
type Mixer struct {
	mu      sync.Mutex
	samples *SampleSet
	voices  []voice
	volume  int
	muted   int
	buf     []float32
}

func NewMixer(samples *SampleSet) *Mixer {
	if samples == nil {
		samples = &SampleSet{}
	}
	return &Mixer{
		samples: samples,
		voices:  make([]voice, 0, Voices),
		volume:  DefaultVolume,
	}
}

// Play starts a sound. A sound already playing restarts, and a new sound is
// dropped when every voice is busy.
func (m *Mixer) Play(s peripherals.Sound, loop bool) {
	if s < 0 || s >= peripherals.SoundCount {
		return
	}
	sample := m.samples[s]
	if sample == nil || len(sample.Data) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.voices {
		if m.voices[i].sound == s {
			m.voices[i].pos = 0
			m.voices[i].loop = loop
			return
		}
	}
	if len(m.voices) == Voices {
		return
	}
	m.voices = append(m.voices, voice{sound: s, sample: sample, loop: loop})
}

// Stop silences every voice playing s.
func (m *Mixer) Stop(s peripherals.Sound) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.sound != s {
			kept = append(kept, v)
		}
	}
	m.voices = kept
}

// Playing reports how many voices are busy.
func (m *Mixer) Playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// SetVolume clamps v to 0..MaxVolume.
func (m *Mixer) SetVolume(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = min(max(v, 0), MaxVolume)
}

func (m *Mixer) VolumeUp()   { m.SetVolume(m.Volume() + 1) }
func (m *Mixer) VolumeDown() { m.SetVolume(m.Volume() - 1) }

// ToggleMute switches between silence and the volume before muting.
func (m *Mixer) ToggleMute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.volume > 0 {
		m.muted = m.volume
		m.volume = 0
		return
	}
	m.volume = m.muted
	if m.volume == 0 {
		m.volume = DefaultVolume
	}
}

// Read fills p with whole float32 frames. It never blocks and pads silence.
func (m *Mixer) Read(p []byte) (int, error) {
	n := len(p) / 4
	if cap(m.buf) < n {
		m.buf = make([]float32, n)
	}
	frames := m.buf[:n]
	m.mix(frames)

	for i, f := range frames {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(f))
	}
	return n * 4, nil
}

func (m *Mixer) mix(out []float32) {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gain := float32(m.volume) / MaxVolume
	kept := m.voices[:0]
	for _, v := range m.voices {
		data := v.sample.Data
		for i := range out {
			if v.pos >= len(data) {
				if !v.loop {
					break
				}
				v.pos = 0
			}
			out[i] += data[v.pos] * gain
			v.pos++
		}
		if v.loop || v.pos < len(data) {
			kept = append(kept, v)
		}
	}
	m.voices = kept

	for i, f := range out {
		out[i] = min(max(f, -1), 1)
	}
}
