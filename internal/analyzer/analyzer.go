// Package analyzer turns a raw dialogue script into ordered scenes.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/timeline"
)

// Analyzer is the interface for script analysis strategies.
type Analyzer interface {
	Analyze(ctx context.Context, text string, reg *registry.Registry) ([]timeline.Scene, error)
}

var ErrEmptyScript = errors.New("script contains no dialogue")

// UnknownSpeakerError is returned when no line of the script names a
// registered character.
type UnknownSpeakerError struct {
	Tokens []string
}

func (e *UnknownSpeakerError) Error() string {
	if len(e.Tokens) == 0 {
		return "no line of the script names a registered character"
	}
	return fmt.Sprintf("no registered character among speakers: %s", strings.Join(e.Tokens, ", "))
}

type ScriptTooLongError struct {
	Scenes int
	Max    int
}

func (e *ScriptTooLongError) Error() string {
	return fmt.Sprintf("script has %d scenes, maximum is %d", e.Scenes, e.Max)
}

type Options struct {
	// MaxScenes caps the number of scenes a script may produce. Zero disables the cap.
	MaxScenes int
	// PauseDuration is the length of filler scenes for empty lines, in seconds.
	PauseDuration float64
	// WordsPerSecond drives the duration placeholder of speech scenes.
	WordsPerSecond float64

	LLM LLMOptions

	// Logger receives warnings about dropped lines. The zero value discards them.
	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.PauseDuration <= 0 {
		o.PauseDuration = 1.0
	}
	if o.WordsPerSecond <= 0 {
		o.WordsPerSecond = 2.5
	}
	return o
}

// estimateDuration is the placeholder used until audio is synthesized.
func estimateDuration(text string, wordsPerSecond float64) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	d := float64(words) / wordsPerSecond
	if d < 1.0 {
		d = 1.0
	}
	return d
}
