package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/talkinghead/internal/timeline"
	"github.com/ivlev/talkinghead/internal/tts"
)

// Cast resolves speaker ids to characters.
type Cast interface {
	Character(id string) *timeline.Character
}

type Synthesizer struct {
	Engine     tts.Engine
	SampleRate int
	FPS        int
	// Parallelism bounds concurrent engine calls. Values below 1 mean 1.
	Parallelism int
	// Timeout bounds a single scene. Zero disables it.
	Timeout time.Duration
	// PauseDuration is used for filler scenes that carry no duration.
	PauseDuration float64
	Logger        zerolog.Logger
}

type Result struct {
	// Scenes are copies of the input with measured durations.
	Scenes   []timeline.Scene
	Track    *Track
	Envelope Envelope
}

// Synthesize produces speech for every scene, measures each clip and joins
// them in scene order. The first failure cancels the remaining work.
func (s *Synthesizer) Synthesize(ctx context.Context, scenes []timeline.Scene, cast Cast) (*Result, error) {
	if s.SampleRate <= 0 || s.FPS <= 0 {
		return nil, fmt.Errorf("synthesizer needs sample rate and fps, got %d/%d", s.SampleRate, s.FPS)
	}

	clips := make([]*Clip, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range scenes {
		sc := scenes[i]
		if !sc.Speaks() {
			d := sc.Duration
			if d <= 0 {
				d = s.PauseDuration
			}
			clips[i] = Silence(d, s.SampleRate)
			continue
		}

		g.Go(func() error {
			clip, err := s.synthesizeScene(gctx, sc, cast)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() == nil {
					// another scene failed first
					return err
				}
				return &SynthesisError{Scene: i, Speaker: sc.Speaker, Kind: kindOf(err), Err: err}
			}
			clips[i] = clip.Resample(s.SampleRate)
			s.Logger.Debug().
				Int("scene", i+1).
				Str("speaker", sc.Speaker).
				Float64("duration", clips[i].Duration()).
				Msg("scene synthesized")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]timeline.Scene, len(scenes))
	frames, pos := 0, 0
	for i, sc := range scenes {
		var n int
		clips[i], n = padToFrame(clips[i], pos, frames, s.FPS)
		pos += len(clips[i].Samples)
		frames += n
		sc.Duration = float64(n) / float64(s.FPS)
		sc.Measured = true
		out[i] = sc
	}

	track := Concat(s.SampleRate, clips)
	return &Result{
		Scenes:   out,
		Track:    track,
		Envelope: ComputeEnvelope(track.Samples, s.SampleRate, s.FPS),
	}, nil
}

// padToFrame extends a clip that starts at sample pos (the first sample of
// frame `frame`) with silence up to the next frame boundary and returns the
// number of frames it now spans. Boundaries are floor(k*rate/fps), the same
// windows ComputeEnvelope uses, so track, envelope and frames share one clock.
func padToFrame(c *Clip, pos, frame, fps int) (*Clip, int) {
	rate := int64(c.SampleRate)
	end := int64(pos + len(c.Samples))
	last := int((end*int64(fps) + rate - 1) / rate)
	if last < frame {
		last = frame
	}
	boundary := int(int64(last) * rate / int64(fps))
	if pad := boundary - pos - len(c.Samples); pad > 0 {
		samples := make([]float32, len(c.Samples), len(c.Samples)+pad)
		copy(samples, c.Samples)
		c = &Clip{Samples: append(samples, make([]float32, pad)...), SampleRate: c.SampleRate}
	}
	return c, last - frame
}

func (s *Synthesizer) synthesizeScene(ctx context.Context, sc timeline.Scene, cast Cast) (*Clip, error) {
	c := cast.Character(sc.Speaker)
	if c == nil {
		return nil, fmt.Errorf("unknown speaker %q", sc.Speaker)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	data, err := s.Engine.Synthesize(ctx, tts.Request{
		Text:     sc.Text,
		VoiceID:  c.Voice.ID,
		Language: c.Voice.Language,
		Speed:    c.Voice.Speed,
		Pitch:    c.Pitch,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, tts.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", tts.ErrTimeout, err)
		}
		return nil, err
	}
	return DecodeWAV(data)
}
