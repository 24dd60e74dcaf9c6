// Package subtitles turns a timeline into caption tracks.
package subtitles

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/talkinghead/internal/timeline"
)

// Cue is one caption. Start and End are offsets from the start of the video.
type Cue struct {
	Index   int
	Scene   int
	Start   time.Duration
	End     time.Duration
	Speaker string
	Text    string
}

// Build returns one cue per scene with text. Silent scenes produce no cue but
// still shift every later cue.
func Build(tl *timeline.Timeline) []Cue {
	var cues []Cue
	for _, w := range tl.Windows() {
		s := tl.Scenes[w.Scene]
		text := strings.TrimSpace(s.Text)
		if text == "" || s.Pause {
			continue
		}
		cues = append(cues, Cue{
			Index:   len(cues) + 1,
			Scene:   w.Scene,
			Start:   dur(w.Start),
			End:     dur(w.End),
			Speaker: s.Speaker,
			Text:    text,
		})
	}
	return cues
}

// At returns the cue visible at offset t, or false.
func At(cues []Cue, t time.Duration) (Cue, bool) {
	for _, c := range cues {
		if t >= c.Start && t < c.End {
			return c, true
		}
	}
	return Cue{}, false
}

// Write stores both caption formats next to each other and returns their paths.
func Write(dir string, tl *timeline.Timeline, cues []Cue) (srtPath, assPath string, err error) {
	srtPath = filepath.Join(dir, "subtitles.srt")
	assPath = filepath.Join(dir, "subtitles.ass")
	if err := os.WriteFile(srtPath, []byte(RenderSRT(cues)), 0644); err != nil {
		return "", "", fmt.Errorf("write srt: %w", err)
	}
	if err := os.WriteFile(assPath, []byte(RenderASS(tl, cues)), 0644); err != nil {
		return "", "", fmt.Errorf("write ass: %w", err)
	}
	return srtPath, assPath, nil
}

func dur(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
