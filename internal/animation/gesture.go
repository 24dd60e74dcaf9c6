package animation

import (
	"math"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// Limbs holds rotations in degrees around each limb's pivot plus a vertical
// bob as a fraction of sprite height.
type Limbs struct {
	ArmLeft  float64
	ArmRight float64
	LegLeft  float64
	LegRight float64
	Bob      float64
}

const (
	// gestureRamp is how long a held gesture takes to reach its pose.
	gestureRamp = 0.35
	walkHz      = 1.6
	walkArm     = 18.0
	walkLeg     = 14.0
	walkBob     = 0.012
)

// held gesture targets
var holds = map[timeline.Gesture]Limbs{
	timeline.GestureRaiseHand: {ArmRight: -60},
	timeline.GesturePoint:     {ArmRight: -20},
	timeline.GestureThinking:  {ArmLeft: 20},
}

// GestureLimbs returns the limb pose t seconds into a scene. Held gestures
// ease in; walking cycles on a phase shared by arms, legs and bob.
func GestureLimbs(g timeline.Gesture, t float64) Limbs {
	if g == timeline.GestureWalk {
		phase := WalkPhase(t)
		s := math.Sin(phase)
		return Limbs{
			ArmLeft:  walkArm * s,
			ArmRight: -walkArm * s,
			LegLeft:  -walkLeg * s,
			LegRight: walkLeg * s,
			Bob:      -walkBob * math.Abs(s),
		}
	}

	target, ok := holds[g]
	if !ok {
		return Limbs{}
	}
	k := easeInOutCubic(clamp01(t / gestureRamp))
	return Limbs{
		ArmLeft:  lerp(0, target.ArmLeft, k),
		ArmRight: lerp(0, target.ArmRight, k),
	}
}

// WalkPhase is the walk cycle angle in radians, wrapped to [0, 2*pi).
func WalkPhase(t float64) float64 {
	return math.Mod(2*math.Pi*walkHz*t, 2*math.Pi)
}
