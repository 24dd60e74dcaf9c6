// Package timeline holds the structured representation of a dialogue video:
// the cast, the ordered scenes and the render parameters they share.
package timeline

import (
	"math"
	"strings"
)

// Version of the persisted timeline document.
const Version = "1"

type Emotion string

const (
	Neutral   Emotion = "neutral"
	Sad       Emotion = "sad"
	Happy     Emotion = "happy"
	Thinking  Emotion = "thinking"
	Angry     Emotion = "angry"
	Surprised Emotion = "surprised"
)

// Emotions lists the closed emotion set in a stable order.
var Emotions = []Emotion{Neutral, Sad, Happy, Thinking, Angry, Surprised}

func (e Emotion) Valid() bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// NormalizeEmotion maps an internal emotion name to the closed set.
// Anything unrecognized becomes Neutral.
func NormalizeEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if e.Valid() {
		return e
	}
	return Neutral
}

type Gesture string

const (
	GestureNone      Gesture = ""
	GestureRaiseHand Gesture = "raise_hand"
	GesturePoint     Gesture = "point"
	GestureThinking  Gesture = "thinking"
	GestureWalk      Gesture = "walk"
)

var Gestures = []Gesture{GestureRaiseHand, GesturePoint, GestureThinking, GestureWalk}

func (g Gesture) Valid() bool {
	if g == GestureNone {
		return true
	}
	for _, known := range Gestures {
		if g == known {
			return true
		}
	}
	return false
}

// NormalizeGesture returns GestureNone for unknown names.
func NormalizeGesture(s string) Gesture {
	g := Gesture(strings.ToLower(strings.TrimSpace(s)))
	if g.Valid() {
		return g
	}
	return GestureNone
}

type Voice struct {
	ID       string  `yaml:"id"`
	Language string  `yaml:"language,omitempty"`
	Speed    float64 `yaml:"speed,omitempty"`
}

// Anchor is a point relative to a sprite's bounds, both axes in [0,1].
type Anchor struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Visual struct {
	Default     string             `yaml:"default"`
	Emotions    map[Emotion]string `yaml:"emotions,omitempty"`
	MouthAnchor *Anchor            `yaml:"mouth_anchor,omitempty"`
}

// Asset returns the asset path for an emotion. The second value reports
// whether the default asset was used because the emotion has no own asset.
func (v Visual) Asset(e Emotion) (string, bool) {
	if p, ok := v.Emotions[e]; ok && p != "" {
		return p, false
	}
	return v.Default, e != Neutral
}

type Character struct {
	ID         string   `yaml:"id"`
	Type       string   `yaml:"type,omitempty"`
	Aliases    []string `yaml:"aliases,omitempty"`
	Voice      Voice    `yaml:"voice"`
	Pitch      float64  `yaml:"pitch"`
	Visual     Visual   `yaml:"visual"`
	Color      string   `yaml:"color,omitempty"`
	ScreenSlot int      `yaml:"screen_slot"`
	X          *int     `yaml:"x,omitempty"`
}

type Scene struct {
	Speaker  string  `yaml:"speaker,omitempty"`
	Text     string  `yaml:"text"`
	Emotion  Emotion `yaml:"emotion"`
	Gesture  Gesture `yaml:"gesture,omitempty"`
	Duration float64 `yaml:"duration"`
	// Pause marks a filler scene produced from an empty dialogue line.
	Pause bool `yaml:"pause,omitempty"`
	// Measured is set once Duration comes from synthesized audio.
	Measured bool `yaml:"measured,omitempty"`
}

// Speaks reports whether the scene produces speech audio.
func (s Scene) Speaks() bool {
	return !s.Pause && s.Speaker != "" && strings.TrimSpace(s.Text) != ""
}

type Timeline struct {
	Version    string         `yaml:"version"`
	Width      int            `yaml:"width"`
	Height     int            `yaml:"height"`
	FPS        int            `yaml:"fps"`
	Background string         `yaml:"background,omitempty"`
	Characters []*Character   `yaml:"characters"`
	Positions  map[string]int `yaml:"positions,omitempty"`
	Scenes     []Scene        `yaml:"scenes"`
}

// Character returns the cast member with the given id or nil.
func (t *Timeline) Character(id string) *Character {
	for _, c := range t.Characters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (t *Timeline) TotalDuration() float64 {
	total := 0.0
	for _, s := range t.Scenes {
		total += s.Duration
	}
	return total
}

// FrameCount is the number of frames a scene of the given duration occupies.
func FrameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Round(duration * float64(fps)))
}

// Window is the time and frame span of one scene inside the whole video.
// Frames are [StartFrame, EndFrame), seconds are [Start, End).
type Window struct {
	Scene      int
	StartFrame int
	EndFrame   int
	Start      float64
	End        float64
}

func (w Window) Frames() int { return w.EndFrame - w.StartFrame }

// Windows returns the cumulative window of every scene. Subtitles and the
// frame loop both read from here so their spans agree. Frame edges are taken
// from the cumulative time, so per-scene rounding never accumulates.
func (t *Timeline) Windows() []Window {
	windows := make([]Window, len(t.Scenes))
	frame := 0
	sec := 0.0
	for i, s := range t.Scenes {
		end := sec
		if s.Duration > 0 {
			end += s.Duration
		}
		endFrame := frame
		if t.FPS > 0 {
			endFrame = int(math.Round(end * float64(t.FPS)))
		}
		if endFrame < frame {
			endFrame = frame
		}
		windows[i] = Window{
			Scene:      i,
			StartFrame: frame,
			EndFrame:   endFrame,
			Start:      sec,
			End:        end,
		}
		frame = endFrame
		sec = end
	}
	return windows
}

func (t *Timeline) TotalFrames() int {
	windows := t.Windows()
	if len(windows) == 0 {
		return 0
	}
	return windows[len(windows)-1].EndFrame
}
