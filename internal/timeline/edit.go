package timeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Editable scene fields.
const (
	FieldDuration = "duration"
	FieldText     = "text"
	FieldEmotion  = "emotion"
	FieldGesture  = "gesture"
	FieldSpeaker  = "speaker"
)

// Edit changes one field of the scene at index (1-based). Text and speaker
// changes invalidate the measured duration, since the audio must be
// synthesized again. Only pause scenes accept a duration: speech lasts as
// long as its audio.
func Edit(tl *Timeline, index int, field, value string) error {
	if index < 1 || index > len(tl.Scenes) {
		return fmt.Errorf("scene index %d out of range 1..%d", index, len(tl.Scenes))
	}
	s := &tl.Scenes[index-1]

	switch strings.ToLower(field) {
	case FieldDuration:
		if s.Speaks() {
			return fmt.Errorf("scene %d is speech, its duration comes from the audio; edit the text instead", index)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid duration %q", value)
		}
		s.Duration = d
	case FieldText:
		text := strings.TrimSpace(value)
		s.Text = text
		s.Pause = text == ""
		s.Measured = false
	case FieldEmotion:
		e := Emotion(strings.ToLower(strings.TrimSpace(value)))
		if !e.Valid() {
			return fmt.Errorf("invalid emotion %q, allowed: %v", value, Emotions)
		}
		s.Emotion = e
	case FieldGesture:
		g := Gesture(strings.ToLower(strings.TrimSpace(value)))
		if g == "none" {
			g = GestureNone
		}
		if !g.Valid() {
			return fmt.Errorf("invalid gesture %q, allowed: %v", value, Gestures)
		}
		s.Gesture = g
	case FieldSpeaker:
		id := strings.TrimSpace(value)
		if tl.Character(id) == nil {
			return fmt.Errorf("unknown speaker %q", value)
		}
		s.Speaker = id
		s.Measured = false
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}
