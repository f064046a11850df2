// Package audio groups the audio glue around the perturbation engine:
//
//   - pcm: integer PCM to normalized float conversion and channel downmix
//   - resampler: sample rate conversion to an oracle's input rate
//   - wav: WAV file decoding and encoding
//
// Example usage:
//
//	import (
//	    "github.com/haivivi/voiceshield/pkg/audio/resampler"
//	    "github.com/haivivi/voiceshield/pkg/audio/wav"
//	)
//
//	w, _, err := wav.ReadFile("speech.wav")
//	if err != nil {
//	    return err
//	}
//	samples, err := resampler.Resample(w.Samples, w.SampleRate, 16000)
package audio
