package animation

import (
	"math"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// Pose is everything needed to draw one character in one frame.
type Pose struct {
	Character  string
	Emotion    timeline.Emotion
	Gesture    timeline.Gesture
	Speaking   bool
	Mouth      float64 // openness in [0,1]
	EyesClosed bool
	HeadAngle  float64 // degrees
	BodyY      float64 // fraction of sprite height, down is positive
	Scale      float64
	Limbs      Limbs
}

// PoseKey is a quantized pose. Poses with equal keys render identically,
// which is what makes the sprite cache safe.
type PoseKey struct {
	Character  string
	Emotion    timeline.Emotion
	Gesture    timeline.Gesture
	Speaking   bool
	Mouth      int8 // tenths
	EyesClosed bool
	Head       int16 // half degrees
	BodyY      int16 // thousandths
	Scale      int16 // thousandths
	ArmLeft    int16 // degrees
	ArmRight   int16
	LegLeft    int16
	LegRight   int16
	Bob        int16 // thousandths
}

func q(v, step float64) int16 {
	return int16(math.Round(v / step))
}

func (p Pose) Key() PoseKey {
	return PoseKey{
		Character:  p.Character,
		Emotion:    p.Emotion,
		Gesture:    p.Gesture,
		Speaking:   p.Speaking,
		Mouth:      int8(math.Round(clamp01(p.Mouth) * 10)),
		EyesClosed: p.EyesClosed,
		Head:       q(p.HeadAngle, 0.5),
		BodyY:      q(p.BodyY, 0.001),
		Scale:      q(p.Scale, 0.001),
		ArmLeft:    q(p.Limbs.ArmLeft, 1),
		ArmRight:   q(p.Limbs.ArmRight, 1),
		LegLeft:    q(p.Limbs.LegLeft, 1),
		LegRight:   q(p.Limbs.LegRight, 1),
		Bob:        q(p.Limbs.Bob, 0.001),
	}
}

// Pose rebuilds the pose a key stands for.
func (k PoseKey) Pose() Pose {
	return Pose{
		Character:  k.Character,
		Emotion:    k.Emotion,
		Gesture:    k.Gesture,
		Speaking:   k.Speaking,
		Mouth:      float64(k.Mouth) / 10,
		EyesClosed: k.EyesClosed,
		HeadAngle:  float64(k.Head) * 0.5,
		BodyY:      float64(k.BodyY) * 0.001,
		Scale:      float64(k.Scale) * 0.001,
		Limbs: Limbs{
			ArmLeft:  float64(k.ArmLeft),
			ArmRight: float64(k.ArmRight),
			LegLeft:  float64(k.LegLeft),
			LegRight: float64(k.LegRight),
			Bob:      float64(k.Bob) * 0.001,
		},
	}
}
