package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivlev/talkinghead/internal/timeline"
)

const (
	defaultStyle  = "Default"
	defaultColour = "&H00FFFFFF"
)

// RenderASS formats cues as Advanced SubStation Alpha with one style per
// character, coloured after the registry entry.
func RenderASS(tl *timeline.Timeline, cues []Cue) string {
	var b strings.Builder
	b.WriteString(assHeader(tl.Width, tl.Height))

	fontSize := assFontSize(tl.Width, tl.Height)
	marginV := tl.Height / 24
	styles := map[string]bool{}
	b.WriteString(assStyle(defaultStyle, defaultColour, fontSize, marginV))
	for _, c := range tl.Characters {
		name := styleName(c.ID)
		if styles[name] || name == defaultStyle {
			continue
		}
		styles[name] = true
		b.WriteString(assStyle(name, assColour(c.Color), fontSize, marginV))
	}

	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		style := styleName(c.Speaker)
		if !styles[style] {
			style = defaultStyle
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,%s,%s,0,0,0,,%s\n",
			assTime(c.Start), assTime(c.End), style, sanitizeASS(c.Speaker), sanitizeASS(c.Text))
	}
	return b.String()
}

func assHeader(w, h int) string {
	return fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
PlayResX: %d
PlayResY: %d

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
`, w, h)
}

func assStyle(name, colour string, size, marginV int) string {
	return fmt.Sprintf("Style: %s,Arial,%d,%s,&H00FFFFFF,&H00000000,&H64000000,-1,0,0,0,100,100,0,0,1,3,0,2,60,60,%d,1\n",
		name, size, colour, marginV)
}

// assFontSize scales with the shorter side so portrait and landscape
// captions look the same.
func assFontSize(w, h int) int {
	short := w
	if h < short {
		short = h
	}
	size := short / 22
	if size < 16 {
		size = 16
	}
	return size
}

// assColour converts #RRGGBB into the ASS &HAABBGGRR form.
func assColour(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return defaultColour
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return defaultColour
		}
	}
	hex = strings.ToUpper(hex)
	return "&H00" + hex[4:6] + hex[2:4] + hex[0:2]
}

func styleName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return defaultStyle
	}
	return strings.NewReplacer(",", "_", "\n", " ").Replace(id)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Round(10*time.Millisecond).Milliseconds() / 10
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return strings.TrimSpace(s)
}
