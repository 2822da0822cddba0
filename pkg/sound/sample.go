// Package sound plays the cabinet's sound effects from recorded samples.
package sound

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/peripherals"
)

// SampleRate is the output rate of the mixer. Samples are converted to it on
// load.
const SampleRate = 44100

var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Sample is a mono recording at SampleRate, in the range -1 to 1.
type Sample struct {
	Name string
	Data []float32
}

// LoadSample decodes a .wav or .mp3 file. Stereo sources keep the left
// channel.
func LoadSample(path string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		data []float32
		rate int
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		data, rate, err = decodeWAV(f)
	case ".mp3":
		data, rate, err = decodeMP3(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return &Sample{
		Name: filepath.Base(path),
		Data: resample(data, rate, SampleRate),
	}, nil
}

func decodeWAV(rs io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("wav: not a valid wav file")
	}

	var buf *audio.IntBuffer
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav: %w", err)
	}

	chans := int(dec.NumChans)
	if chans < 1 {
		chans = 1
	}
	depth := int(dec.BitDepth)
	if depth < 8 || depth > 32 {
		return nil, 0, fmt.Errorf("wav: unsupported bit depth %d", depth)
	}

	// 8-bit PCM is unsigned.
	offset, scale := 0, float32(int(1)<<(depth-1))
	if depth == 8 {
		offset = 128
	}

	data := make([]float32, 0, len(buf.Data)/chans)
	for i := 0; i < len(buf.Data); i += chans {
		data = append(data, float32(buf.Data[i]-offset)/scale)
	}
	return data, int(dec.SampleRate), nil
}

// decodeMP3 reads the left channel of the decoder's 16-bit stereo stream.
func decodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: %w", err)
	}

	data := make([]float32, 0, len(raw)/4)
	for i := 0; i+1 < len(raw); i += 4 {
		v := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		data = append(data, float32(v)/32768)
	}
	return data, dec.SampleRate(), nil
}

// resample converts data between rates with linear interpolation.
func resample(data []float32, from, to int) []float32 {
	if from <= 0 || from == to || len(data) == 0 {
		return data
	}

	n := int(int64(len(data)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		a := data[j]
		b := a
		if j+1 < len(data) {
			b = data[j+1]
		}
		out[i] = a + (b-a)*frac
	}
	return out
}

// SampleSet holds one sample per board sound. Missing entries are nil.
type SampleSet [peripherals.SoundCount]*Sample

// LoadSampleSet reads 0.wav to 9.wav from dir, falling back to .mp3 with the
// same stem. Sounds with no usable file are logged and left silent.
func LoadSampleSet(dir string, logger *log.Logger) *SampleSet {
	var set SampleSet
	for i := range set {
		s := peripherals.Sound(i)
		var lastErr error
		for _, ext := range []string{".wav", ".mp3"} {
			sample, err := LoadSample(filepath.Join(dir, fmt.Sprintf("%d%s", i, ext)))
			if err == nil {
				set[i] = sample
				break
			}
			lastErr = err
		}
		if set[i] == nil && logger != nil {
			logger.Warn("sound sample unavailable",
				log.Stringer("sound", s),
				log.Err(lastErr))
		}
	}
	return &set
}

// Loaded counts the sounds that have a sample.
func (set *SampleSet) Loaded() int {
	n := 0
	for _, s := range set {
		if s != nil {
			n++
		}
	}
	return n
}
