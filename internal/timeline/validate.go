package timeline

import (
	"fmt"
	"math"
	"strings"
)

type Stage int

const (
	// StageStructural runs before any audio exists.
	StageStructural Stage = iota
	// StagePostSynthesis runs after durations were measured.
	StagePostSynthesis
)

func (s Stage) String() string {
	if s == StagePostSynthesis {
		return "post-synthesis"
	}
	return "structural"
}

type ValidationError struct {
	Stage   Stage
	Scene   int // -1 for timeline level problems
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Scene < 0 {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: scene %d: %s: %s", e.Stage, e.Scene+1, e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "timeline is invalid:\n  " + strings.Join(parts, "\n  ")
}

// Scenes returns the 0-based indexes of scenes with at least one problem.
func (v ValidationErrors) Scenes() []int {
	seen := make(map[int]bool)
	var out []int
	for _, e := range v {
		if e.Scene >= 0 && !seen[e.Scene] {
			seen[e.Scene] = true
			out = append(out, e.Scene)
		}
	}
	return out
}

// DurationBounds limits speech scene durations after synthesis.
// A zero bound is not enforced.
type DurationBounds struct {
	Min float64
	Max float64
}

// Validate checks the timeline for the given stage and returns every
// problem found, or nil.
func Validate(tl *Timeline, stage Stage, bounds DurationBounds) error {
	var errs ValidationErrors
	add := func(scene int, field, format string, args ...any) {
		errs = append(errs, ValidationError{
			Stage:   stage,
			Scene:   scene,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if tl.Width <= 0 || tl.Height <= 0 {
		add(-1, "resolution", "must be positive, got %dx%d", tl.Width, tl.Height)
	} else if tl.Width%2 != 0 || tl.Height%2 != 0 {
		add(-1, "resolution", "must be even for yuv420p, got %dx%d", tl.Width, tl.Height)
	}
	if tl.FPS <= 0 {
		add(-1, "fps", "is required and must be positive")
	}
	if len(tl.Scenes) == 0 {
		add(-1, "scenes", "timeline has no scenes")
	}

	ids := make(map[string]bool, len(tl.Characters))
	for _, c := range tl.Characters {
		if c == nil || c.ID == "" {
			add(-1, "characters", "character without id")
			continue
		}
		if ids[c.ID] {
			add(-1, "characters", "duplicate character %q", c.ID)
		}
		ids[c.ID] = true
		if x, ok := tl.Positions[c.ID]; ok && tl.Width > 0 && (x < 0 || x >= tl.Width) {
			add(-1, "positions", "%s is placed at x=%d outside the frame", c.ID, x)
		}
	}

	for i, s := range tl.Scenes {
		if s.Speaker != "" && !ids[s.Speaker] {
			add(i, "speaker", "unknown character %q", s.Speaker)
		}
		if !s.Pause {
			if s.Speaker == "" {
				add(i, "speaker", "speech scene without speaker")
			}
			if strings.TrimSpace(s.Text) == "" {
				add(i, "text", "speech scene without text")
			}
		}
		if !s.Emotion.Valid() {
			add(i, "emotion", "invalid emotion %q", s.Emotion)
		}
		if !s.Gesture.Valid() {
			add(i, "gesture", "invalid gesture %q", s.Gesture)
		}
		if math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) || s.Duration < 0 {
			add(i, "duration", "invalid duration %v", s.Duration)
			continue
		}

		if stage != StagePostSynthesis {
			continue
		}
		if s.Speaks() && !s.Measured {
			add(i, "duration", "speech scene was not synthesized")
		}
		if s.Duration == 0 {
			add(i, "duration", "scene has zero duration")
			continue
		}
		if tl.FPS > 0 && FrameCount(s.Duration, tl.FPS) == 0 {
			add(i, "duration", "%.3fs is shorter than one frame at %d fps", s.Duration, tl.FPS)
		}
		if s.Speaks() {
			if bounds.Min > 0 && s.Duration < bounds.Min {
				add(i, "duration", "%.2fs is below the minimum %.2fs", s.Duration, bounds.Min)
			}
			if bounds.Max > 0 && s.Duration > bounds.Max {
				add(i, "duration", "%.2fs exceeds the maximum %.2fs", s.Duration, bounds.Max)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
