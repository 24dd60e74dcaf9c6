package animation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ivlev/talkinghead/internal/timeline"
)

type env []float64

func (e env) At(i int) float64 {
	if len(e) == 0 {
		return 0
	}
	if i >= len(e) {
		i = len(e) - 1
	}
	if i < 0 {
		i = 0
	}
	return e[i]
}

func TestBlinkScheduleMonotonic(t *testing.T) {
	fps := 24
	cfg := DefaultBlinkConfig()
	s := NewBlinkSchedule(rand.New(rand.NewSource(7)), fps, cfg)

	closedRun := 0
	for frame := 0; frame < fps*60; frame++ {
		if s.Closed(frame) {
			closedRun++
			if closedRun > cfg.Frames {
				t.Fatalf("Eyes closed for more than %d frames at frame %d", cfg.Frames, frame)
			}
		} else {
			closedRun = 0
		}
	}

	history := s.History()
	t.Logf("blinks in one minute: %d", len(history))
	if len(history) < 10 {
		t.Errorf("Expected at least 10 blinks per minute, got %d", len(history))
	}
	if first := history[0]; first < int(0.5*float64(fps)) || first > int(3.5*float64(fps)) {
		t.Errorf("Expected first blink within [0.5s, 3.5s], got frame %d", first)
	}
	minGap := int(cfg.MinInterval * float64(fps))
	for i := 1; i < len(history); i++ {
		if history[i] <= history[i-1] {
			t.Fatalf("Blink history not strictly increasing: %v", history)
		}
		if history[i]-history[i-1] < minGap {
			t.Errorf("Expected gap >= %d frames, got %d", minGap, history[i]-history[i-1])
		}
	}
}

func TestEngineDeterministic(t *testing.T) {
	cast := []*timeline.Character{{ID: "Kakek"}, {ID: "Nenek"}}
	sc := &timeline.Scene{Speaker: "Kakek", Text: "Halo", Emotion: timeline.Happy}
	loud := env{0.2, 0.8, 1.0}

	run := func() []PoseKey {
		e := NewEngine(24, 42, DefaultBlinkConfig())
		e.Prepare(cast)
		var keys []PoseKey
		for f := 0; f < 200; f++ {
			for _, c := range cast {
				keys = append(keys, e.Pose(c, sc, f, f, loud).Key())
			}
		}
		return keys
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Pose %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestMouth(t *testing.T) {
	e := NewEngine(24, 1, DefaultBlinkConfig())
	kakek := &timeline.Character{ID: "Kakek"}
	nenek := &timeline.Character{ID: "Nenek"}
	sc := &timeline.Scene{Speaker: "Kakek", Text: "Halo", Emotion: timeline.Happy}
	short := env{0.25, 0.64}

	p := e.Pose(kakek, sc, 0, 0, short)
	if math.Abs(p.Mouth-0.5) > 1e-9 {
		t.Errorf("Expected sqrt easing 0.5, got %v", p.Mouth)
	}
	if !p.Speaking || p.Emotion != timeline.Happy {
		t.Errorf("Expected speaking happy pose, got %+v", p)
	}

	// envelope shorter than the video reuses its last value
	p = e.Pose(kakek, sc, 10, 10, short)
	if math.Abs(p.Mouth-0.8) > 1e-9 {
		t.Errorf("Expected clamped 0.8, got %v", p.Mouth)
	}

	p = e.Pose(kakek, sc, 11, 11, env{})
	if p.Mouth != 0 {
		t.Errorf("Expected closed mouth on empty envelope, got %v", p.Mouth)
	}

	p = e.Pose(nenek, sc, 12, 12, short)
	if p.Mouth != 0 || p.Speaking || p.Emotion != timeline.Neutral {
		t.Errorf("Expected silent neutral listener, got %+v", p)
	}

	pause := &timeline.Scene{Speaker: "Kakek", Pause: true, Emotion: timeline.Sad}
	p = e.Pose(kakek, pause, 13, 13, short)
	if p.Mouth != 0 || p.Emotion != timeline.Sad {
		t.Errorf("Expected closed sad mouth during pause, got %+v", p)
	}
}

func TestGestureLimbs(t *testing.T) {
	if l := GestureLimbs(timeline.GestureNone, 1); l != (Limbs{}) {
		t.Errorf("Expected rest pose, got %+v", l)
	}

	start := GestureLimbs(timeline.GestureRaiseHand, 0)
	held := GestureLimbs(timeline.GestureRaiseHand, 2)
	if start.ArmRight != 0 || held.ArmRight != -60 {
		t.Errorf("Expected raise_hand to ease from 0 to -60, got %v -> %v", start.ArmRight, held.ArmRight)
	}

	quarter := GestureLimbs(timeline.GestureWalk, 0.25/walkHz)
	if quarter.ArmLeft != -quarter.ArmRight || quarter.LegLeft != -quarter.LegRight {
		t.Errorf("Expected alternating limbs, got %+v", quarter)
	}
	if quarter.Bob >= 0 {
		t.Errorf("Expected upward bob mid stride, got %v", quarter.Bob)
	}
}

func TestPoseKeyQuantization(t *testing.T) {
	a := Pose{Character: "Kakek", Mouth: 0.51, HeadAngle: 3.1, Scale: 1}
	b := Pose{Character: "Kakek", Mouth: 0.54, HeadAngle: 3.2, Scale: 1}
	if a.Key() != b.Key() {
		t.Errorf("Expected close poses to share a key: %+v vs %+v", a.Key(), b.Key())
	}

	c := Pose{Character: "Kakek", Mouth: 0.7, HeadAngle: 3.1, Scale: 1}
	if a.Key() == c.Key() {
		t.Error("Expected different mouth buckets to differ")
	}

	back := a.Key().Pose()
	if back.Mouth != 0.5 || back.HeadAngle != 3.0 {
		t.Errorf("Expected quantized pose 0.5/3.0, got %v/%v", back.Mouth, back.HeadAngle)
	}
	if back.Key() != a.Key() {
		t.Error("Expected key round trip to be stable")
	}
}

func TestHeadMotion(t *testing.T) {
	thinking := MotionFor(timeline.Thinking)
	if thinking.HeadAngle(0) != -4 {
		t.Errorf("Expected thinking bias -4, got %v", thinking.HeadAngle(0))
	}
	if MotionFor("bored") != MotionFor(timeline.Neutral) {
		t.Error("Expected unknown emotion to move like neutral")
	}
	happy := MotionFor(timeline.Happy)
	peak := happy.HeadAngle(1 / (4 * happy.Frequency))
	if math.Abs(peak-6) > 1e-9 {
		t.Errorf("Expected happy peak 6, got %v", peak)
	}
}
