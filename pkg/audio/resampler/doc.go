// Package resampler converts mono float64 waveforms between sample rates
// using a pure Go polyphase resampler (no CGO dependencies).
//
// Oracles expect a fixed input rate; recordings are converted once before
// optimization and the protected output keeps the oracle's rate.
//
// Example usage:
//
//	out, err := resampler.Resample(samples, 44100, 16000)
//	if err != nil {
//	    return err
//	}
package resampler
