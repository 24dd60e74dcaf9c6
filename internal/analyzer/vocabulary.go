package analyzer

import (
	"strings"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// emotionWords maps script emotion markers to the closed emotion set.
// Both Indonesian markers and the internal English names are accepted.
var emotionWords = map[string]timeline.Emotion{
	"senang":    timeline.Happy,
	"gembira":   timeline.Happy,
	"bahagia":   timeline.Happy,
	"tertawa":   timeline.Happy,
	"sedih":     timeline.Sad,
	"menangis":  timeline.Sad,
	"berpikir":  timeline.Thinking,
	"mikir":     timeline.Thinking,
	"bingung":   timeline.Thinking,
	"marah":     timeline.Angry,
	"kesal":     timeline.Angry,
	"terkejut":  timeline.Surprised,
	"kaget":     timeline.Surprised,
	"netral":    timeline.Neutral,
	"biasa":     timeline.Neutral,
	"neutral":   timeline.Neutral,
	"happy":     timeline.Happy,
	"sad":       timeline.Sad,
	"thinking":  timeline.Thinking,
	"angry":     timeline.Angry,
	"surprised": timeline.Surprised,
}

// mapEmotion resolves a marker. The second value is false for unknown
// markers, which map to neutral.
func mapEmotion(marker string) (timeline.Emotion, bool) {
	e, ok := emotionWords[strings.ToLower(strings.TrimSpace(marker))]
	if !ok {
		return timeline.Neutral, false
	}
	return e, true
}

var gestureWords = map[string]timeline.Gesture{
	"raise_hand":    timeline.GestureRaiseHand,
	"angkat_tangan": timeline.GestureRaiseHand,
	"point":         timeline.GesturePoint,
	"tunjuk":        timeline.GesturePoint,
	"thinking":      timeline.GestureThinking,
	"berpikir":      timeline.GestureThinking,
	"walk":          timeline.GestureWalk,
	"jalan":         timeline.GestureWalk,
}

func mapGesture(tag string) timeline.Gesture {
	return gestureWords[strings.ToLower(strings.TrimSpace(tag))]
}
