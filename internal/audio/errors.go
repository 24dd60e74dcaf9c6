package audio

import (
	"errors"
	"fmt"

	"github.com/ivlev/talkinghead/internal/tts"
)

type ErrorKind int

const (
	KindEngine ErrorKind = iota
	KindEmptyAudio
	KindCorruptAudio
	KindUnreachable
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindEmptyAudio:
		return "empty audio"
	case KindCorruptAudio:
		return "corrupt audio"
	case KindUnreachable:
		return "engine unreachable"
	case KindTimeout:
		return "timeout"
	default:
		return "engine error"
	}
}

// SynthesisError names the scene whose speech could not be produced.
type SynthesisError struct {
	Scene   int
	Speaker string
	Kind    ErrorKind
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("scene %d (%s): %s: %v", e.Scene+1, e.Speaker, e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Retryable reports whether running the synthesis again may succeed.
func (e *SynthesisError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnreachable
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrEmptyAudio):
		return KindEmptyAudio
	case errors.Is(err, ErrCorruptAudio):
		return KindCorruptAudio
	case errors.Is(err, tts.ErrTimeout):
		return KindTimeout
	case errors.Is(err, tts.ErrUnreachable):
		return KindUnreachable
	default:
		return KindEngine
	}
}
