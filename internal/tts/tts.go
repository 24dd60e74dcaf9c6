// Package tts wraps speech engines. Every engine returns WAV bytes; decoding
// and measuring happen in the audio package.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

var (
	ErrUnreachable = errors.New("speech engine unreachable")
	ErrTimeout     = errors.New("speech synthesis timeout")
	ErrEmptyText   = errors.New("empty text")
)

type Request struct {
	Text     string
	VoiceID  string
	Language string
	// Speed is a rate multiplier, 1.0 is normal.
	Speed float64
	// Pitch is a multiplier, 1.0 is the voice's natural pitch.
	Pitch float64
}

// Engine synthesizes one utterance to a WAV file in memory.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

type Config struct {
	Provider string

	PiperBinary    string
	PiperModelsDir string

	GoogleAPIKey  string
	GoogleBaseURL string

	SampleRate int
}

// NewEngine creates an engine for the configured provider.
func NewEngine(cfg Config, logger zerolog.Logger) (Engine, error) {
	switch cfg.Provider {
	case "piper", "":
		return NewPiperEngine(logger, PiperConfig{
			BinaryPath: cfg.PiperBinary,
			ModelsDir:  cfg.PiperModelsDir,
		}), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("google tts requires an API key")
		}
		return NewGoogleEngine(logger, cfg.GoogleAPIKey, cfg.GoogleBaseURL, cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown tts provider: %s", cfg.Provider)
	}
}

// classify maps transport failures onto the package sentinels.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}
