package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/audio"
)

// Retryable reports whether a failed job is worth running again: synthesis
// timeouts and unreachable engines, or an encode that ran out of time while
// the caller's context is still alive.
func Retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var serr *audio.SynthesisError
	if errors.As(err, &serr) {
		return serr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RunWithRetry runs fn and, when it fails with a retryable error, runs it
// exactly once more.
func RunWithRetry(ctx context.Context, log zerolog.Logger, fn func(context.Context) error) error {
	err := fn(ctx)
	if !Retryable(ctx, err) {
		return err
	}
	log.Warn().Err(err).Msg("[!] Временная ошибка, повторяем задание")
	return fn(ctx)
}
