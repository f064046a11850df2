package pcm

import (
	"fmt"
	"math"
	"time"
)

// Format represents an audio format configuration.
type Format struct {
	SampleRate int
	Channels   int
	Depth      int // bits per sample
}

// Duration returns the duration of the given number of frames.
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("audio/L%d; rate=%d; channels=%d", f.Depth, f.SampleRate, f.Channels)
}

// fullScale returns 2^(depth-1).
func fullScale(depth int) float64 {
	return math.Ldexp(1, depth-1)
}

// IntsToFloats converts integer samples of the given bit depth to floats
// in [-1, 1).
func IntsToFloats(data []int, depth int) []float64 {
	scale := 1 / fullScale(depth)
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v) * scale
	}
	return out
}

// FloatsToInts converts float samples to integers of the given bit depth,
// saturating values outside [-1, 1].
func FloatsToInts(samples []float64, depth int) []int {
	full := fullScale(depth)
	hi := full - 1
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(s * hi)
		switch {
		case v > hi:
			v = hi
		case v < -full:
			v = -full
		case math.IsNaN(v):
			v = 0
		}
		out[i] = int(v)
	}
	return out
}

// Downmix averages interleaved channels into a mono signal. Trailing
// samples that do not form a full frame are dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return append([]float64(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	inv := 1 / float64(channels)
	for i := range out {
		var sum float64
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum * inv
	}
	return out
}
