package animation

import (
	"math"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// Motion is the idle body language of an emotion.
type Motion struct {
	// Head sway: Bias + Amplitude*sin(2*pi*Frequency*t), degrees.
	Amplitude float64
	Frequency float64
	Bias      float64
	// BodyY shifts the body as a fraction of sprite height, down is positive.
	BodyY float64
	Scale float64
}

var motions = map[timeline.Emotion]Motion{
	timeline.Neutral:   {Amplitude: 0.5, Frequency: 0.2, Scale: 1.0},
	timeline.Happy:     {Amplitude: 6, Frequency: 1.2, BodyY: -0.03, Scale: 1.02},
	timeline.Thinking:  {Amplitude: 3, Frequency: 0.3, Bias: -4, Scale: 1.0},
	timeline.Sad:       {Amplitude: 1, Frequency: 0.4, Bias: -5, BodyY: 0.04, Scale: 0.98},
	timeline.Angry:     {Amplitude: 2, Frequency: 3, Scale: 1.0},
	timeline.Surprised: {Amplitude: 1, Frequency: 0.8, Bias: 4, BodyY: -0.01, Scale: 1.03},
}

func MotionFor(e timeline.Emotion) Motion {
	if m, ok := motions[e]; ok {
		return m
	}
	return motions[timeline.Neutral]
}

// HeadAngle returns the head rotation at t seconds into the scene.
func (m Motion) HeadAngle(t float64) float64 {
	return m.Bias + m.Amplitude*math.Sin(2*math.Pi*m.Frequency*t)
}
