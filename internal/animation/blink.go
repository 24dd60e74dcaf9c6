package animation

import "math/rand"

type BlinkConfig struct {
	// MinInterval and MaxInterval bound the gap between blinks, in seconds.
	MinInterval float64
	MaxInterval float64
	// Frames is how long the eyes stay closed.
	Frames int
	// FirstDelay bounds the wait before the first blink, in seconds.
	FirstDelayMin float64
	FirstDelayMax float64
}

func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		MinInterval:   1.75,
		MaxInterval:   5.25,
		Frames:        3,
		FirstDelayMin: 0.5,
		FirstDelayMax: 3.5,
	}
}

// BlinkSchedule decides, frame by frame, whether a character's eyes are
// closed. Frames must be queried in non-decreasing order.
type BlinkSchedule struct {
	rng      *rand.Rand
	minGap   int
	maxGap   int
	duration int
	next     int
	history  []int
}

func NewBlinkSchedule(rng *rand.Rand, fps int, cfg BlinkConfig) *BlinkSchedule {
	toFrames := func(sec float64) int {
		n := int(sec * float64(fps))
		if n < 1 {
			n = 1
		}
		return n
	}
	s := &BlinkSchedule{
		rng:      rng,
		minGap:   toFrames(cfg.MinInterval),
		maxGap:   toFrames(cfg.MaxInterval),
		duration: cfg.Frames,
	}
	if s.maxGap < s.minGap {
		s.maxGap = s.minGap
	}
	if s.duration < 1 {
		s.duration = 1
	}
	// the gap must leave at least one open frame between blinks
	if s.minGap <= s.duration {
		s.minGap = s.duration + 1
		if s.maxGap < s.minGap {
			s.maxGap = s.minGap
		}
	}

	lo, hi := toFrames(cfg.FirstDelayMin), toFrames(cfg.FirstDelayMax)
	if hi < lo {
		hi = lo
	}
	s.next = lo + rng.Intn(hi-lo+1)
	s.history = append(s.history, s.next)
	return s
}

// Closed reports whether the eyes are closed at frame. Once a blink is
// over the next one is drawn relative to the current frame, so it always
// lies in the future.
func (s *BlinkSchedule) Closed(frame int) bool {
	if frame >= s.next+s.duration {
		gap := s.minGap + s.rng.Intn(s.maxGap-s.minGap+1)
		s.next = frame + gap
		s.history = append(s.history, s.next)
	}
	return frame >= s.next
}

// History returns every blink start scheduled so far.
func (s *BlinkSchedule) History() []int {
	return append([]int(nil), s.history...)
}
