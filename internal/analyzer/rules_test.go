package analyzer

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/timeline"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		timeline.Character{ID: "Kakek", Type: "Kakek", Visual: timeline.Visual{Default: "kakek.svg"}},
		timeline.Character{ID: "Nenek", Type: "Nenek", Aliases: []string{"Nek"}, Visual: timeline.Visual{Default: "nenek.svg"}},
	)
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	return reg
}

func TestRuleParserEmotionMarker(t *testing.T) {
	p := NewRuleParser(Options{})
	scenes, err := p.Analyze(context.Background(), "Kakek: (Senang) Halo, Nek.", testRegistry(t))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("Expected 1 scene, got %d", len(scenes))
	}

	s := scenes[0]
	if s.Speaker != "Kakek" || s.Emotion != timeline.Happy || s.Text != "Halo, Nek." {
		t.Errorf("Expected Kakek/happy/\"Halo, Nek.\", got %s/%s/%q", s.Speaker, s.Emotion, s.Text)
	}
	if s.Measured {
		t.Error("Expected placeholder duration to be unmeasured")
	}
}

func TestRuleParserScript(t *testing.T) {
	script := "Judul: Pagi di desa\n\n" +
		"Kakek (sedih): Aku lupa\n" +
		"di mana kacamataku.\n\n" +
		"nek: [bingung] {point} Itu di kepalamu!\n" +
		"Kakek:\n" +
		"Nenek: (bosan) Ayo sarapan.\n"

	scenes, err := NewRuleParser(Options{PauseDuration: 1.5}).Analyze(context.Background(), script, testRegistry(t))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	expected := []timeline.Scene{
		{Speaker: "Kakek", Text: "Aku lupa di mana kacamataku.", Emotion: timeline.Sad},
		{Speaker: "Nenek", Text: "Itu di kepalamu!", Emotion: timeline.Thinking, Gesture: timeline.GesturePoint},
		{Speaker: "Kakek", Emotion: timeline.Neutral, Pause: true, Duration: 1.5},
		{Speaker: "Nenek", Text: "Ayo sarapan.", Emotion: timeline.Neutral},
	}
	if len(scenes) != len(expected) {
		t.Fatalf("Expected %d scenes, got %d: %+v", len(expected), len(scenes), scenes)
	}
	for i, want := range expected {
		got := scenes[i]
		if got.Speaker != want.Speaker || got.Text != want.Text || got.Emotion != want.Emotion ||
			got.Gesture != want.Gesture || got.Pause != want.Pause {
			t.Errorf("Scene %d: expected %+v, got %+v", i, want, got)
		}
		if want.Pause && got.Duration != want.Duration {
			t.Errorf("Scene %d: expected pause duration %v, got %v", i, want.Duration, got.Duration)
		}
		if !want.Pause && got.Duration <= 0 {
			t.Errorf("Scene %d: expected a positive placeholder duration", i)
		}
	}
}

func TestRuleParserUnknownSpeakerLines(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"same paragraph", "Kakek: Halo.\nCucu: Hai kakek!\nNenek: Pagi."},
		{"after blank line", "Kakek: Halo.\n\nCucu: Hai kakek!\nNenek: Pagi."},
		{"continuation of unknown", "Kakek: Halo.\nCucu: Hai\nkakek!\nNenek: Pagi."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewRuleParser(Options{Logger: zerolog.New(&buf)})
			scenes, err := p.Analyze(context.Background(), tt.script, testRegistry(t))
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			if len(scenes) != 2 {
				t.Fatalf("Expected 2 scenes, got %d: %+v", len(scenes), scenes)
			}
			if scenes[0].Speaker != "Kakek" || scenes[0].Text != "Halo." {
				t.Errorf("Expected Kakek: \"Halo.\", got %s: %q", scenes[0].Speaker, scenes[0].Text)
			}
			if scenes[1].Speaker != "Nenek" || scenes[1].Text != "Pagi." {
				t.Errorf("Expected Nenek: \"Pagi.\", got %s: %q", scenes[1].Speaker, scenes[1].Text)
			}
			if !strings.Contains(buf.String(), `"speaker":"Cucu"`) {
				t.Errorf("Expected a warning naming Cucu, got %q", buf.String())
			}
		})
	}
}

func TestRuleParserDeterministic(t *testing.T) {
	script := "Kakek (senang): {raise_hand} Selamat pagi!\n" +
		"Nenek: [bingung] Kacamatamu\ndi mana? {point}\n\n" +
		"Kakek:\n" +
		"Nenek: (marah) {walk} Ayo sarapan."
	reg := testRegistry(t)
	p := NewRuleParser(Options{PauseDuration: 1.5})

	first, err := p.Analyze(context.Background(), script, reg)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := NewRuleParser(Options{PauseDuration: 1.5}).Analyze(context.Background(), script, reg)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical scenes, got\n%+v\n%+v", first, second)
	}

	if len(first) != 4 || first[0].Gesture != timeline.GestureRaiseHand || !first[2].Pause ||
		first[3].Emotion != timeline.Angry {
		t.Errorf("Unexpected scenes: %+v", first)
	}
}

func TestRuleParserErrors(t *testing.T) {
	reg := testRegistry(t)

	_, err := NewRuleParser(Options{}).Analyze(context.Background(), "  \n\t\n", reg)
	if !errors.Is(err, ErrEmptyScript) {
		t.Errorf("Expected ErrEmptyScript, got %v", err)
	}

	_, err = NewRuleParser(Options{}).Analyze(context.Background(), "Cucu: Hai\nPaman: Halo", reg)
	var unknown *UnknownSpeakerError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownSpeakerError, got %v", err)
	}
	if len(unknown.Tokens) != 2 || unknown.Tokens[0] != "Cucu" {
		t.Errorf("Expected tokens [Cucu Paman], got %v", unknown.Tokens)
	}

	_, err = NewRuleParser(Options{MaxScenes: 2}).Analyze(context.Background(), "Kakek: a\nNenek: b\nKakek: c", reg)
	var tooLong *ScriptTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("Expected ScriptTooLongError, got %v", err)
	}
	if tooLong.Scenes != 3 || tooLong.Max != 2 {
		t.Errorf("Expected 3 > 2, got %d > %d", tooLong.Scenes, tooLong.Max)
	}
}

func TestNewAnalyzer(t *testing.T) {
	if _, err := NewAnalyzer("", Options{}); err != nil {
		t.Errorf("Expected default variant, got %v", err)
	}
	if _, err := NewAnalyzer("llm", Options{}); err == nil {
		t.Error("Expected llm variant without key to fail")
	}
	if _, err := NewAnalyzer("ocr", Options{}); err == nil {
		t.Error("Expected unknown variant to fail")
	}
}
