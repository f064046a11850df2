// Package pcm converts between integer PCM samples and the normalized
// float64 samples the perturbation engine works on.
//
// Integer samples of depth d map to floats by dividing by 2^(d-1), so
// 16-bit audio spans [-1, 1). The reverse direction rounds, scales by
// 2^(d-1)-1 and saturates, so a float in [-1, 1] always fits.
//
// Example usage:
//
//	f := pcm.Format{SampleRate: 44100, Channels: 2, Depth: 16}
//	mono := pcm.Downmix(pcm.IntsToFloats(data, f.Depth), f.Channels)
//	d := f.Duration(len(mono))
package pcm
