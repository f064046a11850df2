package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats d as milliseconds, seconds, or minutes and seconds.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatBytes formats a byte count with binary units, e.g. "1.50 KB".
func FormatBytes(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	for _, unit := range []string{"KB", "MB"} {
		if v < 1024 {
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2f GB", v)
}

// FormatSimilarity formats a cosine similarity with four decimals.
func FormatSimilarity(s float64) string {
	return fmt.Sprintf("%+.4f", s)
}

// FormatAudio formats a sample count as its duration at rate.
func FormatAudio(samples, rate int) string {
	if rate <= 0 {
		return fmt.Sprintf("%d samples", samples)
	}
	d := time.Duration(float64(samples) / float64(rate) * float64(time.Second))
	return fmt.Sprintf("%s (%d Hz)", FormatDuration(d), rate)
}
