// Package config loads render settings from defaults, an optional
// talkinghead.yaml, .env and TALKINGHEAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ivlev/talkinghead/internal/timeline"
)

const EnvPrefix = "TALKINGHEAD"

type Config struct {
	Render    RenderConfig    `mapstructure:"render"`
	Audio     AudioConfig     `mapstructure:"audio"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Layout    LayoutConfig    `mapstructure:"layout"`
	Animation AnimationConfig `mapstructure:"animation"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Log       LogConfig       `mapstructure:"log"`

	BuildVersion string `mapstructure:"-"`
}

type RenderConfig struct {
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	FPS        int    `mapstructure:"fps"`
	Preset     string `mapstructure:"preset"`
	Encoder    string `mapstructure:"encoder"` // пусто - автоопределение
	Quality    int    `mapstructure:"quality"` // 0 - авто
	Subtitles  string `mapstructure:"subtitles"`
	Workers    int    `mapstructure:"workers"` // потолок параллельных задач, 0 - по числу CPU
	Background string `mapstructure:"background"`
	// Music is an optional bed mixed under the dialogue.
	Music       string  `mapstructure:"music"`
	MusicVolume float64 `mapstructure:"music_volume"`
	Poster      bool    `mapstructure:"poster"`
	ShowStats   bool    `mapstructure:"show_stats"`
}

type AudioConfig struct {
	SampleRate  int `mapstructure:"sample_rate"`
	Parallelism int `mapstructure:"parallelism"` // 0 - render.workers
}

type TTSConfig struct {
	Provider       string `mapstructure:"provider"` // piper, google
	PiperBinary    string `mapstructure:"piper_binary"`
	PiperModelsDir string `mapstructure:"piper_models_dir"`
	GoogleAPIKey   string `mapstructure:"google_api_key"`
	GoogleBaseURL  string `mapstructure:"google_base_url"`
}

type AnalyzerConfig struct {
	Variant        string  `mapstructure:"variant"` // rules, llm
	WordsPerSecond float64 `mapstructure:"words_per_second"`
	LLMBaseURL     string  `mapstructure:"llm_base_url"`
	LLMAPIKey      string  `mapstructure:"llm_api_key"`
	LLMModel       string  `mapstructure:"llm_model"`
}

type PolicyConfig struct {
	MaxScenes     int     `mapstructure:"max_scenes"`
	PauseDuration float64 `mapstructure:"pause_duration"`
	// MinDuration and MaxDuration bound measured scene durations; 0 disables.
	MinDuration       float64 `mapstructure:"min_duration"`
	MaxDuration       float64 `mapstructure:"max_duration"`
	MissingBackground string  `mapstructure:"missing_background"` // black, fail
	MinSlotDistance   float64 `mapstructure:"min_slot_distance"`
}

type LayoutConfig struct {
	CharacterHeight float64 `mapstructure:"character_height"`
	Shrink          float64 `mapstructure:"shrink"`
	BottomMargin    float64 `mapstructure:"bottom_margin"`
}

type AnimationConfig struct {
	BlinkMinInterval float64 `mapstructure:"blink_min_interval"`
	BlinkMaxInterval float64 `mapstructure:"blink_max_interval"`
	BlinkFrames      int     `mapstructure:"blink_frames"`
	// Seed fixes blink timing; 0 picks a seed per job.
	Seed int64 `mapstructure:"seed"`
}

type TimeoutConfig struct {
	Analyze   time.Duration `mapstructure:"analyze"`
	Synthesis time.Duration `mapstructure:"synthesis"`
	Encode    time.Duration `mapstructure:"encode"`
}

type PathsConfig struct {
	Registry string `mapstructure:"registry"`
	Output   string `mapstructure:"output"`
	Cache    string `mapstructure:"cache"`
	Temp     string `mapstructure:"temp"`
	FFmpeg   string `mapstructure:"ffmpeg"`
	FFprobe  string `mapstructure:"ffprobe"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// FrameParams describes the frames of one scene handed to the compositor.
type FrameParams struct {
	Width, Height int
	FPS           int
	SceneIndex    int
	StartFrame    int
	Frames        int
	Duration      float64
}

const (
	BackgroundBlack = "black"
	BackgroundFail  = "fail"
)

func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Width:       1080,
			Height:      1920,
			FPS:         24,
			Subtitles:   "burn",
			MusicVolume: 0.15,
			Poster:      true,
			Workers:     8,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
		},
		TTS: TTSConfig{
			Provider:    "piper",
			PiperBinary: "piper",
		},
		Analyzer: AnalyzerConfig{
			Variant:        "rules",
			WordsPerSecond: 2.5,
		},
		Policy: PolicyConfig{
			MaxScenes:         12,
			PauseDuration:     1.0,
			MissingBackground: BackgroundBlack,
			MinSlotDistance:   0.2,
		},
		Layout: LayoutConfig{
			CharacterHeight: 0.55,
			Shrink:          0.25,
			BottomMargin:    0.05,
		},
		Animation: AnimationConfig{
			BlinkMinInterval: 1.75,
			BlinkMaxInterval: 5.25,
			BlinkFrames:      3,
		},
		Timeouts: TimeoutConfig{
			Analyze:   2 * time.Minute,
			Synthesis: time.Minute,
			Encode:    30 * time.Minute,
		},
		Paths: PathsConfig{
			Registry: "characters.yaml",
			Output:   "output",
			Cache:    "cache",
			FFmpeg:   "ffmpeg",
			FFprobe:  "ffprobe",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads .env, then the config file (path, or talkinghead.yaml in the
// working directory when path is empty), then the environment. A missing
// default file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("talkinghead")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Ключи API принимаются и без префикса.
	v.BindEnv("tts.google_api_key", EnvPrefix+"_TTS_GOOGLE_API_KEY", "GOOGLE_TTS_API_KEY", "GOOGLE_API_KEY")
	v.BindEnv("analyzer.llm_api_key", EnvPrefix+"_ANALYZER_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Render.Preset != "" {
		if err := cfg.ApplyPreset(cfg.Render.Preset); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	defaults := map[string]any{
		"render.width":        c.Render.Width,
		"render.height":       c.Render.Height,
		"render.fps":          c.Render.FPS,
		"render.preset":       c.Render.Preset,
		"render.encoder":      c.Render.Encoder,
		"render.quality":      c.Render.Quality,
		"render.subtitles":    c.Render.Subtitles,
		"render.workers":      c.Render.Workers,
		"render.background":   c.Render.Background,
		"render.music":        c.Render.Music,
		"render.music_volume": c.Render.MusicVolume,
		"render.poster":       c.Render.Poster,
		"render.show_stats":   c.Render.ShowStats,

		"audio.sample_rate": c.Audio.SampleRate,
		"audio.parallelism": c.Audio.Parallelism,

		"tts.provider":         c.TTS.Provider,
		"tts.piper_binary":     c.TTS.PiperBinary,
		"tts.piper_models_dir": c.TTS.PiperModelsDir,
		"tts.google_api_key":   c.TTS.GoogleAPIKey,
		"tts.google_base_url":  c.TTS.GoogleBaseURL,

		"analyzer.variant":          c.Analyzer.Variant,
		"analyzer.words_per_second": c.Analyzer.WordsPerSecond,
		"analyzer.llm_base_url":     c.Analyzer.LLMBaseURL,
		"analyzer.llm_api_key":      c.Analyzer.LLMAPIKey,
		"analyzer.llm_model":        c.Analyzer.LLMModel,

		"policy.max_scenes":         c.Policy.MaxScenes,
		"policy.pause_duration":     c.Policy.PauseDuration,
		"policy.min_duration":       c.Policy.MinDuration,
		"policy.max_duration":       c.Policy.MaxDuration,
		"policy.missing_background": c.Policy.MissingBackground,
		"policy.min_slot_distance":  c.Policy.MinSlotDistance,

		"layout.character_height": c.Layout.CharacterHeight,
		"layout.shrink":           c.Layout.Shrink,
		"layout.bottom_margin":    c.Layout.BottomMargin,

		"animation.blink_min_interval": c.Animation.BlinkMinInterval,
		"animation.blink_max_interval": c.Animation.BlinkMaxInterval,
		"animation.blink_frames":       c.Animation.BlinkFrames,
		"animation.seed":               c.Animation.Seed,

		"timeouts.analyze":   c.Timeouts.Analyze,
		"timeouts.synthesis": c.Timeouts.Synthesis,
		"timeouts.encode":    c.Timeouts.Encode,

		"paths.registry": c.Paths.Registry,
		"paths.output":   c.Paths.Output,
		"paths.cache":    c.Paths.Cache,
		"paths.temp":     c.Paths.Temp,
		"paths.ffmpeg":   c.Paths.FFmpeg,
		"paths.ffprobe":  c.Paths.FFprobe,

		"log.level": c.Log.Level,
		"log.json":  c.Log.JSON,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// ApplyPreset overrides the resolution with a named format.
func (c *Config) ApplyPreset(name string) error {
	res, ok := timeline.Presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q (known: 9:16, 16:9, 4:5, 1:1)", name)
	}
	c.Render.Preset = name
	c.Render.Width, c.Render.Height = res.Width, res.Height
	return nil
}

func (c *Config) Resolution() timeline.Resolution {
	return timeline.Resolution{Width: c.Render.Width, Height: c.Render.Height}
}

func (c *Config) DurationBounds() timeline.DurationBounds {
	return timeline.DurationBounds{Min: c.Policy.MinDuration, Max: c.Policy.MaxDuration}
}

// Validate reports settings that would fail only deep inside a render.
func (c *Config) Validate() error {
	var problems []string
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		problems = append(problems, fmt.Sprintf("resolution %dx%d must be positive and even", c.Render.Width, c.Render.Height))
	}
	if c.Render.FPS <= 0 {
		problems = append(problems, fmt.Sprintf("fps %d must be positive", c.Render.FPS))
	}
	if c.Audio.SampleRate <= 0 {
		problems = append(problems, fmt.Sprintf("sample rate %d must be positive", c.Audio.SampleRate))
	}
	switch c.Policy.MissingBackground {
	case BackgroundBlack, BackgroundFail:
	default:
		problems = append(problems, fmt.Sprintf("missing_background must be %q or %q, got %q", BackgroundBlack, BackgroundFail, c.Policy.MissingBackground))
	}
	if c.Policy.MaxDuration > 0 && c.Policy.MinDuration > c.Policy.MaxDuration {
		problems = append(problems, fmt.Sprintf("min_duration %.2f exceeds max_duration %.2f", c.Policy.MinDuration, c.Policy.MaxDuration))
	}
	if c.Animation.BlinkMinInterval <= 0 || c.Animation.BlinkMaxInterval < c.Animation.BlinkMinInterval {
		problems = append(problems, "blink intervals must be positive and ordered")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
