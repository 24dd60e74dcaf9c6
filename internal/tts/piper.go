package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

type PiperConfig struct {
	BinaryPath string
	ModelsDir  string
}

// PiperEngine runs the local piper binary, one process per utterance.
// The voice id names an .onnx model inside ModelsDir.
type PiperEngine struct {
	logger zerolog.Logger
	config PiperConfig
}

func NewPiperEngine(logger zerolog.Logger, config PiperConfig) *PiperEngine {
	if config.BinaryPath == "" {
		config.BinaryPath = "piper"
	}
	return &PiperEngine{
		logger: logger.With().Str("engine", "piper").Logger(),
		config: config,
	}
}

func (p *PiperEngine) Name() string {
	return "piper"
}

func (p *PiperEngine) modelPath(voice string) string {
	if filepath.IsAbs(voice) || strings.HasSuffix(voice, ".onnx") {
		return voice
	}
	return filepath.Join(p.config.ModelsDir, voice+".onnx")
}

func (p *PiperEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	text := strings.Join(strings.Fields(req.Text), " ")
	if text == "" {
		return nil, ErrEmptyText
	}

	model := p.modelPath(req.VoiceID)
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("piper model not found: %s", model)
	}

	tmp, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := piperArgs(model, tmpPath, req.Speed, pitchFactor(req.Pitch))
	cmd := exec.CommandContext(ctx, p.config.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.logger.Debug().Str("model", model).Int("textLen", len(text)).Msg("synthesizing")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, classify(ctx, ctx.Err())
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		p.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("piper failed")
		return nil, fmt.Errorf("piper command failed: %w", err)
	}

	if f := pitchFactor(req.Pitch); f != 1 {
		if err := retagRate(tmpPath, f); err != nil {
			return nil, fmt.Errorf("piper pitch: %w", err)
		}
	}
	return os.ReadFile(tmpPath)
}

// pitchFactor returns 1 for "no change", so callers can skip the pitch pass.
func pitchFactor(pitch float64) float64 {
	if pitch <= 0 || math.Abs(pitch-1) < 1e-3 {
		return 1
	}
	return pitch
}

// piperArgs builds the command line. Piper has no pitch control, so speech is
// stretched by the pitch factor here and sped back up by retagRate.
func piperArgs(model, out string, speed, pitch float64) []string {
	args := []string{"--model", model, "-f", out}
	scale := 1.0
	if speed > 0 {
		// length_scale > 1 is slower speech
		scale = 1 / speed
	}
	scale *= pitch
	if math.Abs(scale-1) > 1e-3 {
		args = append(args, "--length_scale", strconv.FormatFloat(scale, 'f', 3, 64))
	}
	return args
}

// retagRate rewrites the WAV at path with its sample rate multiplied by
// factor. Samples are untouched: played at the track rate the clip is factor
// times shorter and higher.
func retagRate(path string, factor float64) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	in.Close()
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	if dec.SampleRate == 0 {
		return errors.New("decode wav: no pcm data")
	}

	rate := int(math.Round(float64(dec.SampleRate) * factor))
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(out, rate, int(dec.BitDepth), int(dec.NumChans), 1)
	if err := enc.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	return out.Close()
}
