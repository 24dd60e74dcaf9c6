package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/timeline"
)

var (
	// "Speaker: rest" with a speaker token of reasonable length.
	speakerLine = regexp.MustCompile(`^([^:]{1,60}?)\s*:\s*(.*)$`)
	// Emotion marker at the start of the dialogue: "(Senang) ..." or "[sedih] ...".
	leadingMarker = regexp.MustCompile(`^[\(\[]\s*([^\)\]]*?)\s*[\)\]]\s*`)
	// Emotion marker glued to the speaker token: "Kakek (Senang)".
	trailingMarker = regexp.MustCompile(`^(.*?)\s*[\(\[]\s*([^\)\]]*?)\s*[\)\]]$`)
	gestureTag     = regexp.MustCompile(`\{\s*([A-Za-z_]+)\s*\}`)
)

// RuleParser recognizes "Speaker: (Emotion) text" lines. Lines without a
// colon continue the previous line of the same paragraph; a "Name:" line with
// an unregistered name is dropped together with its continuation.
type RuleParser struct {
	opts Options
}

func NewRuleParser(opts Options) *RuleParser {
	return &RuleParser{opts: opts.withDefaults()}
}

type unit struct {
	speaker string
	marker  string
	body    string
}

func (p *RuleParser) Analyze(ctx context.Context, text string, reg *registry.Registry) ([]timeline.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyScript
	}

	var units []unit
	var unresolved []string
	seen := make(map[string]bool)
	current := -1

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			current = -1
			continue
		}

		if m := speakerLine.FindStringSubmatch(line); m != nil {
			token, marker := splitSpeakerToken(m[1])
			if c, ok := reg.Lookup(token); ok {
				units = append(units, unit{speaker: c.ID, marker: marker, body: m[2]})
				current = len(units) - 1
				continue
			}
			// the line and its continuation belong to nobody we can voice
			if !seen[token] {
				seen[token] = true
				unresolved = append(unresolved, token)
			}
			p.opts.Logger.Warn().Str("speaker", token).Str("line", line).Msg("[!] Неизвестный персонаж, реплика пропущена")
			current = -1
			continue
		}

		if current >= 0 {
			units[current].body += " " + line
		}
	}

	if len(units) == 0 {
		return nil, &UnknownSpeakerError{Tokens: unresolved}
	}

	scenes := make([]timeline.Scene, 0, len(units))
	for _, u := range units {
		scenes = append(scenes, p.buildScene(u))
	}

	if p.opts.MaxScenes > 0 && len(scenes) > p.opts.MaxScenes {
		return nil, &ScriptTooLongError{Scenes: len(scenes), Max: p.opts.MaxScenes}
	}
	return scenes, nil
}

func (p *RuleParser) buildScene(u unit) timeline.Scene {
	body := strings.TrimSpace(u.body)
	marker := u.marker
	if m := leadingMarker.FindStringSubmatch(body); m != nil {
		if marker == "" {
			marker = m[1]
		}
		body = body[len(m[0]):]
	}

	gesture := timeline.GestureNone
	for _, m := range gestureTag.FindAllStringSubmatch(body, -1) {
		if g := mapGesture(m[1]); g != timeline.GestureNone && gesture == timeline.GestureNone {
			gesture = g
		}
	}
	body = gestureTag.ReplaceAllString(body, " ")
	body = strings.Join(strings.Fields(body), " ")

	emotion, _ := mapEmotion(marker)
	scene := timeline.Scene{
		Speaker: u.speaker,
		Text:    body,
		Emotion: emotion,
		Gesture: gesture,
	}
	if body == "" {
		scene.Pause = true
		scene.Duration = p.opts.PauseDuration
		return scene
	}
	scene.Duration = estimateDuration(body, p.opts.WordsPerSecond)
	return scene
}

func splitSpeakerToken(token string) (string, string) {
	token = strings.TrimSpace(token)
	if m := trailingMarker.FindStringSubmatch(token); m != nil && m[1] != "" {
		return m[1], m[2]
	}
	return token, ""
}
