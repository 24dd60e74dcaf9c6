package engine

import (
	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/analyzer"
	"github.com/ivlev/talkinghead/internal/config"
	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/tts"
	"github.com/ivlev/talkinghead/internal/video"
)

// Build wires a project from configuration: registry file, analyzer variant,
// TTS provider and the ffmpeg encoder.
func Build(cfg *config.Config, log zerolog.Logger) (*Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := registry.Load(cfg.Paths.Registry)
	if err != nil {
		return nil, err
	}
	opts := AnalyzerOptions(cfg)
	opts.Logger = log.With().Str("component", "analyzer").Logger()
	an, err := analyzer.NewAnalyzer(cfg.Analyzer.Variant, opts)
	if err != nil {
		return nil, err
	}
	te, err := tts.NewEngine(TTSConfig(cfg), log.With().Str("component", "tts").Logger())
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("analyzer", cfg.Analyzer.Variant).
		Str("tts", te.Name()).
		Int("characters", len(reg.Characters())).
		Msg("project ready")
	return NewProject(cfg, reg, an, te, &video.FFmpegEncoder{}, log), nil
}

func AnalyzerOptions(cfg *config.Config) analyzer.Options {
	return analyzer.Options{
		MaxScenes:      cfg.Policy.MaxScenes,
		PauseDuration:  cfg.Policy.PauseDuration,
		WordsPerSecond: cfg.Analyzer.WordsPerSecond,
		LLM: analyzer.LLMOptions{
			BaseURL: cfg.Analyzer.LLMBaseURL,
			APIKey:  cfg.Analyzer.LLMAPIKey,
			Model:   cfg.Analyzer.LLMModel,
			Timeout: cfg.Timeouts.Analyze,
		},
	}
}

func TTSConfig(cfg *config.Config) tts.Config {
	return tts.Config{
		Provider:       cfg.TTS.Provider,
		PiperBinary:    cfg.TTS.PiperBinary,
		PiperModelsDir: cfg.TTS.PiperModelsDir,
		GoogleAPIKey:   cfg.TTS.GoogleAPIKey,
		GoogleBaseURL:  cfg.TTS.GoogleBaseURL,
		SampleRate:     cfg.Audio.SampleRate,
	}
}
