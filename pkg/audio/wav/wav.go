// Package wav reads and writes PCM WAV files as mono float64 waveforms.
//
// Multi-channel input is averaged to mono on read. Output is always mono
// integer PCM at the requested bit depth (16 by default).
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/voiceshield/pkg/audio/pcm"
	"github.com/haivivi/voiceshield/pkg/perturb"
)

// DefaultDepth is the bit depth used by Encode when none is given.
const DefaultDepth = 16

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Common errors.
var (
	ErrInvalid     = errors.New("wav: not a valid WAV file")
	ErrUnsupported = errors.New("wav: unsupported encoding")
	ErrEmpty       = errors.New("wav: no samples")
)

// Decode reads a WAV stream and returns its mono waveform along with the
// source format.
func Decode(r io.ReadSeeker) (perturb.Waveform, pcm.Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return perturb.Waveform{}, pcm.Format{}, ErrInvalid
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return perturb.Waveform{}, pcm.Format{}, fmt.Errorf("%w: audio format %d", ErrUnsupported, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return perturb.Waveform{}, pcm.Format{}, fmt.Errorf("wav: read samples: %w", err)
	}
	f := pcm.Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Depth:      int(d.BitDepth),
	}
	switch f.Depth {
	case 16, 24, 32:
	default:
		return perturb.Waveform{}, f, fmt.Errorf("%w: %d-bit samples", ErrUnsupported, f.Depth)
	}
	if len(buf.Data) < f.Channels || f.Channels == 0 {
		return perturb.Waveform{}, f, ErrEmpty
	}

	return perturb.Waveform{
		Samples:    pcm.Downmix(pcm.IntsToFloats(buf.Data, f.Depth), f.Channels),
		SampleRate: f.SampleRate,
	}, f, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (perturb.Waveform, pcm.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return perturb.Waveform{}, pcm.Format{}, err
	}
	w, f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return w, f, fmt.Errorf("%s: %w", path, err)
	}
	return w, f, nil
}

// Encode renders w as a mono PCM WAV file of the given bit depth.
// Depth 0 selects DefaultDepth.
func Encode(w perturb.Waveform, depth int) ([]byte, error) {
	if depth == 0 {
		depth = DefaultDepth
	}
	switch depth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit output", ErrUnsupported, depth)
	}
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: sample rate must be positive, got %d", w.SampleRate)
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, w.SampleRate, depth, 1, formatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           pcm.FloatsToInts(w.Samples, depth),
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: finalize: %w", err)
	}
	return ws.Bytes(), nil
}

// WriteFile encodes w and writes it to path.
func WriteFile(path string, w perturb.Waveform, depth int) error {
	data, err := Encode(w, depth)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
