// Package engine runs the pipeline: script analysis into a timeline, then
// synthesis, validation, captions, frame composition and encoding.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/analyzer"
	"github.com/ivlev/talkinghead/internal/animation"
	"github.com/ivlev/talkinghead/internal/audio"
	"github.com/ivlev/talkinghead/internal/compositor"
	"github.com/ivlev/talkinghead/internal/config"
	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/source"
	"github.com/ivlev/talkinghead/internal/subtitles"
	"github.com/ivlev/talkinghead/internal/system"
	"github.com/ivlev/talkinghead/internal/timeline"
	"github.com/ivlev/talkinghead/internal/tts"
	"github.com/ivlev/talkinghead/internal/video"
)

// ErrMissingBackground is returned under the fail policy when the timeline
// background cannot be loaded.
var ErrMissingBackground = errors.New("background not available")

type Project struct {
	Config   *config.Config
	Registry *registry.Registry
	Analyzer analyzer.Analyzer
	TTS      tts.Engine
	Encoder  video.Encoder
	Cache    *timeline.Cache
	Log      zerolog.Logger
}

func NewProject(cfg *config.Config, reg *registry.Registry, an analyzer.Analyzer, te tts.Engine, enc video.Encoder, log zerolog.Logger) *Project {
	return &Project{
		Config:   cfg,
		Registry: reg,
		Analyzer: an,
		TTS:      te,
		Encoder:  enc,
		Cache:    &timeline.Cache{Dir: cfg.Paths.Cache},
		Log:      log,
	}
}

// Result lists what a render wrote.
type Result struct {
	JobID    string
	Video    string
	Audio    string
	SRT      string
	ASS      string
	Timeline string
	Poster   string
	Frames   int
	Duration float64
	Rendered *timeline.Timeline
	Stats    Stats
}

// Analyze turns a script into a validated timeline. Unchanged scripts are
// served from the cache.
func (p *Project) Analyze(ctx context.Context, script string) (*timeline.Timeline, error) {
	if strings.TrimSpace(script) == "" {
		return nil, analyzer.ErrEmptyScript
	}
	cfg := p.Config
	key := p.Cache.Key(script, p.fingerprint(), cfg.Resolution(), cfg.Render.FPS)
	if tl, ok, err := p.Cache.Load(key); err != nil {
		p.Log.Warn().Err(err).Msg("[!] Кэш таймлайна недоступен")
	} else if ok {
		if err := p.checkSceneCap(len(tl.Scenes)); err != nil {
			return nil, err
		}
		p.Log.Info().Str("key", key[:12]).Msg("[*] Таймлайн взят из кэша")
		return tl, nil
	}

	actx := ctx
	if cfg.Timeouts.Analyze > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Analyze)
		defer cancel()
	}
	scenes, err := p.Analyzer.Analyze(actx, script, p.Registry)
	if err != nil {
		return nil, err
	}
	if err := p.checkSceneCap(len(scenes)); err != nil {
		return nil, err
	}

	tl, err := timeline.Assemble(scenes, p.Registry.Characters(), cfg.Resolution(), cfg.Render.FPS, cfg.Render.Background, cfg.Policy.MinSlotDistance)
	if err != nil {
		return nil, err
	}
	if err := timeline.Validate(tl, timeline.StageStructural, cfg.DurationBounds()); err != nil {
		return nil, err
	}
	if err := p.Cache.Save(key, tl); err != nil {
		p.Log.Warn().Err(err).Msg("[!] Не удалось сохранить таймлайн в кэш")
	}
	p.Log.Info().Int("scenes", len(tl.Scenes)).Int("characters", len(tl.Characters)).Msg("[*] Сценарий разобран")
	return tl, nil
}

// fingerprint covers every setting that shapes an analyzed timeline.
func (p *Project) fingerprint() string {
	cfg := p.Config
	return strings.Join([]string{
		p.Registry.Fingerprint(),
		cfg.Analyzer.Variant,
		cfg.Analyzer.LLMModel,
		cfg.Render.Background,
		fmt.Sprintf("scenes=%d pause=%g wps=%g slot=%g",
			cfg.Policy.MaxScenes, cfg.Policy.PauseDuration, cfg.Analyzer.WordsPerSecond, cfg.Policy.MinSlotDistance),
	}, "|")
}

// checkSceneCap applies the configured cap even when the analyzer was built
// with another one, or the timeline comes from the cache.
func (p *Project) checkSceneCap(n int) error {
	if limit := p.Config.Policy.MaxScenes; limit > 0 && n > limit {
		return &analyzer.ScriptTooLongError{Scenes: n, Max: limit}
	}
	return nil
}

// Render produces every output of a timeline into outDir. The input timeline
// is not modified; the rendered copy with measured durations is returned.
func (p *Project) Render(ctx context.Context, tl *timeline.Timeline, outDir string) (*Result, error) {
	cfg := p.Config
	bounds := cfg.DurationBounds()
	if err := timeline.Validate(tl, timeline.StageStructural, bounds); err != nil {
		return nil, err
	}

	job, err := NewJob(cfg.Paths.Temp, cfg.Animation.Seed, p.Log)
	if err != nil {
		return nil, err
	}
	defer job.Close()
	log := job.Log

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	log.Info().Msg("--- [PROJECT: TALKING HEAD] ---")
	log.Info().Msgf("[*] Сцен: %d | Персонажей: %d", len(tl.Scenes), len(tl.Characters))
	log.Info().Msgf("[*] Разрешение: %dx%d @ %d FPS", tl.Width, tl.Height, tl.FPS)

	var stats Stats
	phase := time.Now()

	// 1. Синтез речи
	parallel := cfg.Audio.Parallelism
	if parallel <= 0 {
		parallel = system.Workers(cfg.Render.Workers)
	}
	synth := &audio.Synthesizer{
		Engine:        p.TTS,
		SampleRate:    cfg.Audio.SampleRate,
		FPS:           tl.FPS,
		Parallelism:   parallel,
		Timeout:       cfg.Timeouts.Synthesis,
		PauseDuration: cfg.Policy.PauseDuration,
		Logger:        log,
	}
	synthesized, err := synth.Synthesize(ctx, tl.Scenes, tl)
	if err != nil {
		return nil, err
	}
	stats.Synthesis = time.Since(phase)

	rendered := *tl
	rendered.Scenes = synthesized.Scenes
	if err := timeline.Validate(&rendered, timeline.StagePostSynthesis, bounds); err != nil {
		return nil, err
	}

	res := &Result{
		JobID:    job.ID,
		Video:    filepath.Join(outDir, "video.mp4"),
		Audio:    filepath.Join(outDir, "audio.wav"),
		Timeline: filepath.Join(outDir, "timeline.yaml"),
		Frames:   rendered.TotalFrames(),
		Duration: rendered.TotalDuration(),
		Rendered: &rendered,
	}
	log.Info().Msgf("[*] Озвучено: %.2fs, кадров: %d", res.Duration, res.Frames)

	if err := writeAudio(res.Audio, &synthesized.Track.Clip); err != nil {
		return nil, err
	}
	if err := timeline.Write(&rendered, res.Timeline); err != nil {
		return nil, err
	}

	// 2. Субтитры
	cues := subtitles.Build(&rendered)
	res.SRT, res.ASS, err = subtitles.Write(outDir, &rendered, cues)
	if err != nil {
		return nil, err
	}

	// 3. Кадры и кодирование
	bg, err := p.background(&rendered, log)
	if err != nil {
		return nil, err
	}

	comp := compositor.New(compositor.Options{
		Width:       rendered.Width,
		Height:      rendered.Height,
		Cast:        len(rendered.Characters),
		Layout:      compositor.Layout(cfg.Layout),
		SpriteCache: 1024,
		Pool:        system.NewImagePool(),
		Logger:      log.With().Str("component", "compositor").Logger(),
	})
	if err := comp.Preload(rendered.Characters); err != nil {
		return nil, err
	}

	anim := animation.NewEngine(rendered.FPS, job.Seed, animation.BlinkConfig{
		MinInterval:   cfg.Animation.BlinkMinInterval,
		MaxInterval:   cfg.Animation.BlinkMaxInterval,
		Frames:        cfg.Animation.BlinkFrames,
		FirstDelayMin: animation.DefaultBlinkConfig().FirstDelayMin,
		FirstDelayMax: animation.DefaultBlinkConfig().FirstDelayMax,
	})
	anim.Prepare(rendered.Characters)

	mode, err := video.ParseSubtitleMode(cfg.Render.Subtitles)
	if err != nil {
		return nil, err
	}
	encoder := cfg.Render.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	quality := cfg.Render.Quality
	if quality == 0 {
		quality = system.DefaultQuality(encoder)
	}

	ectx := ctx
	if cfg.Timeouts.Encode > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Encode)
		defer cancel()
	}

	partial := filepath.Join(job.TempDir, "video.mp4")
	stream, err := p.Encoder.Start(ectx, video.Params{
		FFmpeg:           cfg.Paths.FFmpeg,
		Width:            rendered.Width,
		Height:           rendered.Height,
		FPS:              rendered.FPS,
		Encoder:          encoder,
		Quality:          quality,
		AudioPath:        res.Audio,
		Subtitles:        mode,
		ASSPath:          res.ASS,
		SRTPath:          res.SRT,
		BackgroundAudio:  cfg.Render.Music,
		BackgroundVolume: cfg.Render.MusicVolume,
		Duration:         res.Duration,
		Output:           partial,
	})
	if err != nil {
		return nil, err
	}

	phase = time.Now()
	fr := &frameRenderer{
		tl:     &rendered,
		comp:   comp,
		anim:   anim,
		env:    synthesized.Envelope,
		bg:     bg,
		log:    log,
		poster: cfg.Render.Poster,
	}
	written, poster, err := fr.run(ectx, stream)
	if err != nil {
		stream.Abort()
		return nil, err
	}
	if err := stream.Close(); err != nil {
		return nil, err
	}
	stats.Render = time.Since(phase)
	stats.Frames = written

	if err := moveFile(partial, res.Video); err != nil {
		return nil, err
	}

	if poster != nil {
		res.Poster = filepath.Join(outDir, "poster.webp")
		if err := compositor.WritePoster(res.Poster, poster); err != nil {
			log.Warn().Err(err).Msg("[!] Не удалось сохранить постер")
			res.Poster = ""
		}
	}

	stats.Total = time.Since(job.Started)
	stats.SpriteHits, stats.SpriteMisses = comp.SpriteStats()
	res.Stats = stats
	if cfg.Render.ShowStats {
		p.report(ctx, res, outDir, log)
	}

	log.Info().Str("video", res.Video).Msg("[+++] Успех! Видео сохранено")
	return res, nil
}

// background applies the missing background policy. A nil image means black.
func (p *Project) background(tl *timeline.Timeline, log zerolog.Logger) (*image.RGBA, error) {
	if tl.Background == "" {
		return nil, nil
	}
	bg, err := source.LoadBackground(tl.Background, tl.Width, tl.Height)
	if err == nil {
		return bg, nil
	}
	if p.Config.Policy.MissingBackground == config.BackgroundFail {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingBackground, tl.Background, err)
	}
	log.Warn().Err(err).Str("background", tl.Background).Msg("[!] Фон недоступен, используется чёрный")
	return nil, nil
}

func writeAudio(path string, clip *audio.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio: %w", err)
	}
	if err := audio.WriteWAV(f, clip); err != nil {
		f.Close()
		return fmt.Errorf("write audio: %w", err)
	}
	return f.Close()
}
