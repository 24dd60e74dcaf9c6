// Package audio measures synthesized speech, joins it into one track and
// derives the per-frame loudness envelope that drives the mouths.
package audio

import "math"

// Clip is mono audio with samples in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Silence returns a clip of round(seconds*rate) zero samples.
func Silence(seconds float64, rate int) *Clip {
	n := int(math.Round(seconds * float64(rate)))
	if n < 0 {
		n = 0
	}
	return &Clip{Samples: make([]float32, n), SampleRate: rate}
}

// Resample converts the clip to another rate by linear interpolation.
func (c *Clip) Resample(rate int) *Clip {
	if rate == c.SampleRate || c.SampleRate == 0 || len(c.Samples) == 0 {
		return &Clip{Samples: c.Samples, SampleRate: rate}
	}

	ratio := float64(c.SampleRate) / float64(rate)
	n := int(math.Round(float64(len(c.Samples)) / ratio))
	out := make([]float32, n)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return &Clip{Samples: out, SampleRate: rate}
}

// Track is the whole dialogue: scene clips joined end to end.
type Track struct {
	Clip
	// Starts holds the first sample of every scene.
	Starts []int
}

// Concat joins clips that already share the track rate.
func Concat(rate int, clips []*Clip) *Track {
	total := 0
	for _, c := range clips {
		total += len(c.Samples)
	}
	t := &Track{
		Clip:   Clip{Samples: make([]float32, 0, total), SampleRate: rate},
		Starts: make([]int, len(clips)),
	}
	for i, c := range clips {
		t.Starts[i] = len(t.Samples)
		t.Samples = append(t.Samples, c.Samples...)
	}
	return t
}
