package engine

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/analyzer"
	"github.com/ivlev/talkinghead/internal/audio"
	"github.com/ivlev/talkinghead/internal/config"
	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/subtitles"
	"github.com/ivlev/talkinghead/internal/timeline"
	"github.com/ivlev/talkinghead/internal/tts"
	"github.com/ivlev/talkinghead/internal/video"
)

const characterSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 200">
<g id="head_group"><circle cx="50" cy="50" r="30" fill="#f0c090"/>
<circle id="eye_left" cx="40" cy="45" r="4" fill="#000"/>
<circle id="eye_right" cx="60" cy="45" r="4" fill="#000"/>
<ellipse id="mouth" cx="50" cy="65" rx="8" ry="3" fill="#800"/></g>
<rect x="25" y="80" width="50" height="100" fill="#36c"/>
</svg>`

type toneEngine struct {
	rate   int
	calls  atomic.Int32
	fail   error
	hold   time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (e *toneEngine) Name() string { return "tone" }

func (e *toneEngine) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	e.calls.Add(1)
	inFlight := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		p := e.peak.Load()
		if inFlight <= p || e.peak.CompareAndSwap(p, inFlight) {
			break
		}
	}
	if e.hold > 0 {
		time.Sleep(e.hold)
	}
	if e.fail != nil {
		return nil, e.fail
	}
	n := int(math.Round(0.05 * float64(len(req.Text)) * float64(e.rate)))
	clip := &audio.Clip{Samples: make([]float32, n), SampleRate: e.rate}
	for i := range clip.Samples {
		clip.Samples[i] = float32(0.4 * math.Sin(2*math.Pi*200*float64(i)/float64(e.rate)))
	}
	return audio.EncodeWAV(clip)
}

// fakeEncoder records frames instead of running ffmpeg.
type fakeEncoder struct {
	mu      sync.Mutex
	params  video.Params
	frames  int
	closed  bool
	aborted bool
	onFrame func(n int) error
}

func (f *fakeEncoder) Start(ctx context.Context, p video.Params) (video.Stream, error) {
	f.params = p
	return f, nil
}

func (f *fakeEncoder) WriteFrame(img image.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := img.Bounds(); b.Dx() != f.params.Width || b.Dy() != f.params.Height {
		return errors.New("wrong frame size")
	}
	f.frames++
	if f.onFrame != nil {
		return f.onFrame(f.frames)
	}
	return nil
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	return os.WriteFile(f.params.Output, []byte("mp4"), 0644)
}

func (f *fakeEncoder) Abort() error {
	f.aborted = true
	return nil
}

type countingAnalyzer struct {
	inner analyzer.Analyzer
	calls int
}

func (c *countingAnalyzer) Analyze(ctx context.Context, text string, reg *registry.Registry) ([]timeline.Scene, error) {
	c.calls++
	return c.inner.Analyze(ctx, text, reg)
}

func newTestProject(t *testing.T) (*Project, *fakeEncoder, *toneEngine) {
	t.Helper()
	dir := t.TempDir()
	var chars []timeline.Character
	for _, name := range []string{"Kakek", "Nenek"} {
		path := filepath.Join(dir, strings.ToLower(name)+".svg")
		if err := os.WriteFile(path, []byte(characterSVG), 0644); err != nil {
			t.Fatal(err)
		}
		chars = append(chars, timeline.Character{ID: name, Type: name, Color: "#FFCC00", Visual: timeline.Visual{Default: path}})
	}
	reg, err := registry.New(chars...)
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}

	cfg := config.Default()
	cfg.Render.Width, cfg.Render.Height, cfg.Render.FPS = 64, 96, 10
	cfg.Audio.SampleRate = 8000
	cfg.Animation.Seed = 7
	cfg.Paths.Cache = filepath.Join(dir, "cache")
	cfg.Paths.Temp = dir

	enc := &fakeEncoder{}
	te := &toneEngine{rate: 8000}
	an := &countingAnalyzer{inner: analyzer.NewRuleParser(AnalyzerOptions(cfg))}
	return NewProject(cfg, reg, an, te, enc, zerolog.Nop()), enc, te
}

const script = "Kakek (senang): Halo, cucuku sayang!\n\nNenek: Sudah makan belum?\n\nKakek:\n\nNenek: (sedih) Nasinya habis."

func TestAnalyzeUsesCache(t *testing.T) {
	p, _, _ := newTestProject(t)
	ctx := context.Background()

	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(tl.Scenes) != 4 || len(tl.Characters) != 2 {
		t.Fatalf("Expected 4 scenes and 2 characters, got %d and %d", len(tl.Scenes), len(tl.Characters))
	}
	if tl.Positions["Kakek"] >= tl.Positions["Nenek"] {
		t.Errorf("Expected Kakek left of Nenek, got %v", tl.Positions)
	}

	if _, err := p.Analyze(ctx, script); err != nil {
		t.Fatal(err)
	}
	if calls := p.Analyzer.(*countingAnalyzer).calls; calls != 1 {
		t.Errorf("Expected the analyzer to run once, ran %d times", calls)
	}
}

func TestAnalyzeCacheHonoursSceneCap(t *testing.T) {
	p, _, _ := newTestProject(t)
	ctx := context.Background()

	if _, err := p.Analyze(ctx, script); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	p.Config.Policy.MaxScenes = 2
	_, err := p.Analyze(ctx, script)
	var tooLong *analyzer.ScriptTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("Expected ScriptTooLongError, got %v", err)
	}
	if tooLong.Scenes != 4 || tooLong.Max != 2 {
		t.Errorf("Expected 4 scenes over a cap of 2, got %+v", tooLong)
	}

	// a setting change is a different cache entry
	p.Config.Policy.MaxScenes = 12
	before := p.fingerprint()
	p.Config.Policy.PauseDuration = 2.5
	if p.fingerprint() == before {
		t.Error("Expected pause duration to change the cache fingerprint")
	}
}

func TestAnalyzeEmptyScript(t *testing.T) {
	p, _, _ := newTestProject(t)
	if _, err := p.Analyze(context.Background(), "  \n"); !errors.Is(err, analyzer.ErrEmptyScript) {
		t.Errorf("Expected ErrEmptyScript, got %v", err)
	}
}

func TestRenderWritesOutputs(t *testing.T) {
	p, enc, te := newTestProject(t)
	ctx := context.Background()
	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	res, err := p.Render(ctx, tl, out)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if te.calls.Load() != 3 {
		t.Errorf("Expected 3 synthesis calls, got %d", te.calls.Load())
	}
	if !enc.closed || enc.aborted {
		t.Errorf("Expected a closed stream, closed=%v aborted=%v", enc.closed, enc.aborted)
	}
	if enc.frames != res.Frames || res.Frames != res.Rendered.TotalFrames() {
		t.Errorf("Expected %d frames, encoder got %d", res.Rendered.TotalFrames(), enc.frames)
	}
	for _, path := range []string{res.Video, res.Audio, res.SRT, res.ASS, res.Timeline, res.Poster} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected output %s: %v", path, err)
		}
	}
	if enc.params.AudioPath != res.Audio || enc.params.Subtitles != video.SubtitlesBurned {
		t.Errorf("Unexpected encoder params %+v", enc.params)
	}

	// input timeline keeps placeholders, rendered copy is measured
	if tl.Scenes[0].Measured {
		t.Errorf("Expected the input timeline to stay untouched")
	}
	for i, sc := range res.Rendered.Scenes {
		if !sc.Measured {
			t.Errorf("Scene %d is not measured", i)
		}
	}
	wantFirst := 0.05 * float64(len("Halo, cucuku sayang!"))
	if math.Abs(res.Rendered.Scenes[0].Duration-wantFirst) > 1e-3 {
		t.Errorf("Expected first scene %.3fs, got %.3fs", wantFirst, res.Rendered.Scenes[0].Duration)
	}

	saved, err := timeline.Read(res.Timeline)
	if err != nil {
		t.Fatalf("Read rendered timeline: %v", err)
	}
	cues := subtitles.Build(saved)
	if len(cues) != 3 {
		t.Fatalf("Expected 3 cues, got %d", len(cues))
	}
	windows := saved.Windows()
	if cues[2].Scene != 3 || cues[2].Start != windowStart(windows[3]) {
		t.Errorf("Last cue does not start with its scene window: %+v vs %+v", cues[2], windows[3])
	}
}

func windowStart(w timeline.Window) time.Duration {
	return time.Duration(math.Round(w.Start * float64(time.Second)))
}

func TestRenderFramesFollowAudioClock(t *testing.T) {
	p, enc, _ := newTestProject(t)
	ctx := context.Background()

	// "Halo, cucu!" lasts 0.55s, half a frame past a 10 fps boundary
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "Kakek: Halo, cucu!"
	}
	tl, err := p.Analyze(ctx, strings.Join(lines, "\n"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Render(ctx, tl, t.TempDir())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	data, err := os.ReadFile(res.Audio)
	if err != nil {
		t.Fatal(err)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}
	if enc.frames != 60 || len(clip.Samples) != enc.frames*800 {
		t.Errorf("Expected 60 frames over 48000 samples, got %d frames over %d samples", enc.frames, len(clip.Samples))
	}

	windows := res.Rendered.Windows()
	last := windows[len(windows)-1]
	cues := subtitles.Build(res.Rendered)
	cue := cues[len(cues)-1]
	if last.StartFrame != 54 || last.EndFrame != enc.frames {
		t.Errorf("Expected last scene on frames [54,%d), got [%d,%d)", enc.frames, last.StartFrame, last.EndFrame)
	}
	if cue.Start != windowStart(last) || cue.End != 6*time.Second {
		t.Errorf("Expected last cue [5.4s,6s), got [%v,%v)", cue.Start, cue.End)
	}
}

func TestRenderWorkersCapSynthesis(t *testing.T) {
	p, _, te := newTestProject(t)
	ctx := context.Background()
	p.Config.Audio.Parallelism = 0
	p.Config.Render.Workers = 1
	te.hold = 20 * time.Millisecond

	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Render(ctx, tl, t.TempDir()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if te.calls.Load() != 3 || te.peak.Load() != 1 {
		t.Errorf("Expected 3 sequential calls, got %d calls with %d in flight", te.calls.Load(), te.peak.Load())
	}
}

func TestRenderMissingBackgroundPolicy(t *testing.T) {
	p, _, _ := newTestProject(t)
	ctx := context.Background()
	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	tl.Background = filepath.Join(t.TempDir(), "missing.png")

	p.Config.Policy.MissingBackground = config.BackgroundFail
	if _, err := p.Render(ctx, tl, t.TempDir()); !errors.Is(err, ErrMissingBackground) {
		t.Errorf("Expected ErrMissingBackground, got %v", err)
	}

	p.Config.Policy.MissingBackground = config.BackgroundBlack
	if _, err := p.Render(ctx, tl, t.TempDir()); err != nil {
		t.Errorf("Expected a black background render, got %v", err)
	}
}

func TestRenderCancelAbortsEncoder(t *testing.T) {
	p, enc, _ := newTestProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	enc.onFrame = func(n int) error {
		if n == 2 {
			cancel()
		}
		return nil
	}

	_, err = p.Render(ctx, tl, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !enc.aborted || enc.closed {
		t.Errorf("Expected the stream to be aborted, aborted=%v closed=%v", enc.aborted, enc.closed)
	}
}

func TestRenderEncoderClosedEarly(t *testing.T) {
	p, enc, _ := newTestProject(t)
	ctx := context.Background()
	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	enc.onFrame = func(int) error {
		return &video.EncoderError{Output: "Invalid frame size", Err: video.ErrEncoderClosedEarly}
	}

	out := t.TempDir()
	_, err = p.Render(ctx, tl, out)
	if !errors.Is(err, video.ErrEncoderClosedEarly) {
		t.Fatalf("Expected ErrEncoderClosedEarly, got %v", err)
	}
	if !enc.aborted {
		t.Errorf("Expected the stream to be aborted")
	}
	if _, err := os.Stat(filepath.Join(out, "video.mp4")); !os.IsNotExist(err) {
		t.Errorf("Expected no partial video in the output dir")
	}
}

func TestRenderSynthesisFailure(t *testing.T) {
	p, enc, te := newTestProject(t)
	ctx := context.Background()
	tl, err := p.Analyze(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	te.fail = tts.ErrUnreachable

	_, err = p.Render(ctx, tl, t.TempDir())
	var serr *audio.SynthesisError
	if !errors.As(err, &serr) || serr.Kind != audio.KindUnreachable {
		t.Fatalf("Expected an unreachable SynthesisError, got %v", err)
	}
	if enc.frames != 0 {
		t.Errorf("Expected no frames after a synthesis failure")
	}
}

func TestRunWithRetry(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := RunWithRetry(ctx, zerolog.Nop(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &audio.SynthesisError{Kind: audio.KindTimeout, Err: tts.ErrTimeout}
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Expected success on the second run, got %v after %d calls", err, calls)
	}

	calls = 0
	err = RunWithRetry(ctx, zerolog.Nop(), func(context.Context) error {
		calls++
		return &audio.SynthesisError{Kind: audio.KindEmptyAudio, Err: audio.ErrEmptyAudio}
	})
	if err == nil || calls != 1 {
		t.Errorf("Expected no retry for empty audio, got %d calls", calls)
	}

	calls = 0
	err = RunWithRetry(ctx, zerolog.Nop(), func(context.Context) error {
		calls++
		return &audio.SynthesisError{Kind: audio.KindTimeout, Err: tts.ErrTimeout}
	})
	if err == nil || calls != 2 {
		t.Errorf("Expected exactly one retry, got %d calls", calls)
	}
}

func TestNewJobIsolation(t *testing.T) {
	base := t.TempDir()
	a, err := NewJob(base, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewJob(base, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || a.TempDir == b.TempDir {
		t.Errorf("Expected distinct jobs, got %s and %s", a.TempDir, b.TempDir)
	}
	a.Close()
	if _, err := os.Stat(a.TempDir); !os.IsNotExist(err) {
		t.Errorf("Expected job dir to be removed")
	}
	if _, err := os.Stat(b.TempDir); err != nil {
		t.Errorf("Expected the other job dir to survive: %v", err)
	}
	b.Close()
}
