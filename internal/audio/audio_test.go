package audio

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/talkinghead/internal/timeline"
	"github.com/ivlev/talkinghead/internal/tts"
)

func tone(seconds float64, rate int) *Clip {
	n := int(math.Round(seconds * float64(rate)))
	c := &Clip{Samples: make([]float32, n), SampleRate: rate}
	for i := range c.Samples {
		c.Samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return c
}

// fakeEngine answers with a tone whose length depends on the text.
type fakeEngine struct {
	rate   int
	calls  atomic.Int32
	reply  func(req tts.Request) ([]byte, error)
	delays map[string]time.Duration
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	f.calls.Add(1)
	if d := f.delays[req.Text]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.reply != nil {
		return f.reply(req)
	}
	return EncodeWAV(tone(0.1*float64(len(req.Text)), f.rate))
}

type castMap map[string]*timeline.Character

func (m castMap) Character(id string) *timeline.Character { return m[id] }

func testCast() castMap {
	return castMap{
		"Kakek": {ID: "Kakek", Pitch: 0.9, Voice: timeline.Voice{ID: "id-ID-Wavenet-B", Speed: 1}},
		"Nenek": {ID: "Nenek", Pitch: 1.1, Voice: timeline.Voice{ID: "id-ID-Wavenet-A", Speed: 1}},
	}
}

func TestWAVRoundTrip(t *testing.T) {
	in := tone(0.25, 22050)
	data, err := EncodeWAV(in)
	require.NoError(t, err)

	out, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 22050, out.SampleRate)
	require.Len(t, out.Samples, len(in.Samples))
	assert.InDelta(t, in.Samples[100], out.Samples[100], 1e-3)
}

func TestDecodeWAVErrors(t *testing.T) {
	_, err := DecodeWAV(nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = DecodeWAV([]byte("definitely not a wav file"))
	assert.ErrorIs(t, err, ErrCorruptAudio)

	empty, err := EncodeWAV(&Clip{SampleRate: 24000})
	require.NoError(t, err)
	_, err = DecodeWAV(empty)
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	c := tone(1.0, 16000).Resample(24000)
	assert.Equal(t, 24000, c.SampleRate)
	assert.Len(t, c.Samples, 24000)
	assert.InDelta(t, 1.0, c.Duration(), 1e-9)
}

func TestEnvelope(t *testing.T) {
	rate, fps := 24000, 24
	samples := make([]float32, rate) // one second
	for i := rate / 2; i < rate; i++ {
		samples[i] = 0.25
	}
	samples[rate-1] = -0.5

	env := ComputeEnvelope(samples, rate, fps)
	require.Len(t, env, fps)
	assert.Equal(t, 0.0, env[0])
	assert.InDelta(t, 0.5, env[12], 1e-9)
	for _, v := range env {
		assert.True(t, v >= 0 && v <= 1, "value out of range: %v", v)
	}

	// past the end reuses the last window
	assert.Equal(t, env[fps-1], env.At(1000))
	assert.Equal(t, env[0], env.At(-3))
	assert.Equal(t, 0.0, Envelope{}.At(5))

	assert.Len(t, ComputeEnvelope(make([]float32, 1001), 24000, 24), 2)
}

func TestSynthesizeDurations(t *testing.T) {
	engine := &fakeEngine{
		rate: 16000,
		// the first scene finishes last
		delays: map[string]time.Duration{"Halo, Nek.": 50 * time.Millisecond},
	}
	s := &Synthesizer{Engine: engine, SampleRate: 24000, FPS: 24, Parallelism: 3, Logger: zerolog.Nop()}

	scenes := []timeline.Scene{
		{Speaker: "Kakek", Text: "Halo, Nek.", Emotion: timeline.Happy, Duration: 3},
		{Speaker: "Nenek", Text: "Halo.", Emotion: timeline.Neutral},
		{Speaker: "Kakek", Pause: true, Duration: 1.0},
		{Speaker: "Nenek", Text: "Ayo sarapan.", Emotion: timeline.Neutral},
	}

	res, err := s.Synthesize(context.Background(), scenes, testCast())
	require.NoError(t, err)
	assert.Equal(t, int32(3), engine.calls.Load())

	// 1.2s is 28.8 frames and is padded to 29
	expected := []float64{1.0, 0.5, 1.0, 29.0 / 24}
	sum := 0.0
	for i, sc := range res.Scenes {
		assert.InDelta(t, expected[i], sc.Duration, 1e-6, "scene %d", i)
		assert.True(t, sc.Measured)
		sum += sc.Duration
	}
	assert.InDelta(t, res.Track.Duration(), sum, 1e-9)

	assert.Equal(t, []int{0, 24000, 36000, 60000}, res.Track.Starts)
	assert.Len(t, res.Envelope, 24+12+24+29)

	// the input is left untouched
	assert.Equal(t, 3.0, scenes[0].Duration)
}

func TestSynthesizePadsScenesToFrames(t *testing.T) {
	// 0.55s at 10 fps and 8000 Hz: every scene ends mid-frame
	engine := &fakeEngine{rate: 8000, reply: func(req tts.Request) ([]byte, error) {
		return EncodeWAV(tone(0.55, 8000))
	}}
	s := &Synthesizer{Engine: engine, SampleRate: 8000, FPS: 10, Parallelism: 4, Logger: zerolog.Nop()}

	scenes := make([]timeline.Scene, 10)
	for i := range scenes {
		scenes[i] = timeline.Scene{Speaker: "Kakek", Text: "Halo, cucu!"}
	}
	res, err := s.Synthesize(context.Background(), scenes, testCast())
	require.NoError(t, err)

	frames := 0
	for i, sc := range res.Scenes {
		assert.InDelta(t, 0.6, sc.Duration, 1e-9, "scene %d", i)
		assert.Equal(t, frames*800, res.Track.Starts[i], "scene %d starts off a frame boundary", i)
		frames += timeline.FrameCount(sc.Duration, 10)
	}
	assert.Equal(t, 60, frames)
	assert.Len(t, res.Track.Samples, frames*800)
	assert.Len(t, res.Envelope, frames)

	tl := &timeline.Timeline{FPS: 10, Scenes: res.Scenes}
	last := tl.Windows()[9]
	assert.Equal(t, 54, last.StartFrame)
	assert.Equal(t, 60, last.EndFrame)
	assert.InDelta(t, 5.4, last.Start, 1e-9)
	assert.InDelta(t, res.Track.Duration(), last.End, 1e-9)
}

func TestSynthesizePadsWithUnevenFrameLength(t *testing.T) {
	// 22050/24 is not a whole number of samples per frame
	engine := &fakeEngine{rate: 22050, reply: func(req tts.Request) ([]byte, error) {
		return EncodeWAV(tone(0.3, 22050))
	}}
	s := &Synthesizer{Engine: engine, SampleRate: 22050, FPS: 24, Parallelism: 2, Logger: zerolog.Nop()}

	scenes := []timeline.Scene{
		{Speaker: "Kakek", Text: "a"},
		{Speaker: "Nenek", Text: "b"},
		{Speaker: "Kakek", Text: "c"},
	}
	res, err := s.Synthesize(context.Background(), scenes, testCast())
	require.NoError(t, err)

	frames := 0
	for i := range res.Scenes {
		assert.Equal(t, frames*22050/24, res.Track.Starts[i], "scene %d", i)
		frames += timeline.FrameCount(res.Scenes[i].Duration, 24)
	}
	assert.Equal(t, frames*22050/24, len(res.Track.Samples))
	assert.Len(t, res.Envelope, frames)
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	engine := &fakeEngine{rate: 24000, reply: func(req tts.Request) ([]byte, error) {
		if req.Text == "Halo." {
			return []byte{}, nil
		}
		return EncodeWAV(tone(0.5, 24000))
	}}
	s := &Synthesizer{Engine: engine, SampleRate: 24000, FPS: 24, Parallelism: 1, Logger: zerolog.Nop()}

	scenes := []timeline.Scene{
		{Speaker: "Kakek", Text: "Halo, Nek."},
		{Speaker: "Nenek", Text: "Halo."},
	}
	_, err := s.Synthesize(context.Background(), scenes, testCast())

	var serr *SynthesisError
	require.True(t, errors.As(err, &serr), "expected SynthesisError, got %v", err)
	assert.Equal(t, 1, serr.Scene)
	assert.Equal(t, "Nenek", serr.Speaker)
	assert.Equal(t, KindEmptyAudio, serr.Kind)
	assert.False(t, serr.Retryable())
}

func TestSynthesizeTimeout(t *testing.T) {
	engine := &fakeEngine{rate: 24000, delays: map[string]time.Duration{"Halo.": time.Second}}
	s := &Synthesizer{Engine: engine, SampleRate: 24000, FPS: 24, Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()}

	_, err := s.Synthesize(context.Background(), []timeline.Scene{{Speaker: "Nenek", Text: "Halo."}}, testCast())

	var serr *SynthesisError
	require.True(t, errors.As(err, &serr), "expected SynthesisError, got %v", err)
	assert.Equal(t, KindTimeout, serr.Kind)
	assert.True(t, serr.Retryable())
}
