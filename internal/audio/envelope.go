package audio

import "math"

// Envelope holds one loudness value in [0,1] per video frame.
type Envelope []float64

// ComputeEnvelope splits the samples into windows of rate/fps samples and
// takes the mean absolute amplitude of each, after normalizing the whole
// track so its loudest sample is 1.
func ComputeEnvelope(samples []float32, rate, fps int) Envelope {
	if len(samples) == 0 || rate <= 0 || fps <= 0 {
		return Envelope{}
	}

	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}

	n64 := (int64(len(samples))*int64(fps) + int64(rate) - 1) / int64(rate)
	env := make(Envelope, int(n64))
	if peak == 0 {
		return env
	}

	for k := range env {
		lo := int(int64(k) * int64(rate) / int64(fps))
		hi := int(int64(k+1) * int64(rate) / int64(fps))
		if hi > len(samples) {
			hi = len(samples)
		}
		if hi <= lo {
			continue
		}
		sum := 0.0
		for _, s := range samples[lo:hi] {
			sum += math.Abs(float64(s))
		}
		v := sum / float64(hi-lo) / peak
		if v > 1 {
			v = 1
		}
		env[k] = v
	}
	return env
}

// At returns the value for a frame. Frames past either end are clamped to
// the nearest window; an empty envelope is silent.
func (e Envelope) At(frame int) float64 {
	if len(e) == 0 {
		return 0
	}
	if frame < 0 {
		frame = 0
	}
	if frame >= len(e) {
		frame = len(e) - 1
	}
	return e[frame]
}
