// Package animation computes character poses frame by frame: lip-sync from
// the audio envelope, blinking, emotion driven head motion and gestures.
package animation

import (
	"hash/fnv"
	"math/rand"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// Amplitude yields the loudness for a global frame index.
type Amplitude interface {
	At(frame int) float64
}

// Engine holds the per-job animation state. It is not safe for concurrent
// use; one render loop owns it.
type Engine struct {
	fps    int
	rng    *rand.Rand
	blink  BlinkConfig
	blinks map[string]*BlinkSchedule
}

func NewEngine(fps int, seed int64, cfg BlinkConfig) *Engine {
	return &Engine{
		fps:    fps,
		rng:    rand.New(rand.NewSource(seed)),
		blink:  cfg,
		blinks: make(map[string]*BlinkSchedule),
	}
}

// Prepare creates blink schedules for the cast in order, so the random
// sequence does not depend on which character is drawn first.
func (e *Engine) Prepare(cast []*timeline.Character) {
	for _, c := range cast {
		e.schedule(c.ID)
	}
}

func (e *Engine) schedule(id string) *BlinkSchedule {
	s, ok := e.blinks[id]
	if !ok {
		s = NewBlinkSchedule(e.rng, e.fps, e.blink)
		e.blinks[id] = s
	}
	return s
}

// BlinkHistory returns the scheduled blink starts of a character.
func (e *Engine) BlinkHistory(id string) []int {
	if s, ok := e.blinks[id]; ok {
		return s.History()
	}
	return nil
}

// Pose computes the pose of c during scene sc. local counts frames from the
// scene start, global from the video start.
func (e *Engine) Pose(c *timeline.Character, sc *timeline.Scene, local, global int, env Amplitude) Pose {
	speaking := sc.Speaks() && sc.Speaker == c.ID

	emotion := timeline.Neutral
	gesture := timeline.GestureNone
	if sc.Speaker == c.ID {
		emotion = sc.Emotion
		gesture = sc.Gesture
	}
	if !emotion.Valid() {
		emotion = timeline.Neutral
	}

	t := float64(local) / float64(e.fps)
	m := MotionFor(emotion)

	mouth := 0.0
	if speaking && env != nil {
		mouth = easeMouth(env.At(global))
	}

	limbs := GestureLimbs(gesture, t)
	return Pose{
		Character:  c.ID,
		Emotion:    emotion,
		Gesture:    gesture,
		Speaking:   speaking,
		Mouth:      mouth,
		EyesClosed: e.schedule(c.ID).Closed(global),
		HeadAngle:  m.HeadAngle(t + phaseOffset(c.ID)),
		BodyY:      m.BodyY + limbs.Bob,
		Scale:      m.Scale,
		Limbs:      limbs,
	}
}

// phaseOffset keeps idle sway of different characters out of step.
func phaseOffset(id string) float64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return float64(h.Sum32()%1000) / 1000 * 5
}
