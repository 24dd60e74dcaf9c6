// Package video streams composed frames into an ffmpeg process and muxes them
// with the dialogue audio and captions.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// ErrEncoderClosedEarly is returned when ffmpeg stops reading frames before
// the stream was closed.
var ErrEncoderClosedEarly = errors.New("encoder exited early, probably rejected the stream parameters")

// EncoderError carries the tail of the ffmpeg output next to the failure.
type EncoderError struct {
	Output string
	Err    error
}

func (e *EncoderError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("ffmpeg: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v\n%s", e.Err, e.Output)
}

func (e *EncoderError) Unwrap() error {
	return e.Err
}

type SubtitleMode string

const (
	SubtitlesNone   SubtitleMode = "none"
	SubtitlesBurned SubtitleMode = "burn"
	SubtitlesSoft   SubtitleMode = "soft"
)

// ParseSubtitleMode accepts the config spelling of a mode; empty means burn.
func ParseSubtitleMode(s string) (SubtitleMode, error) {
	switch SubtitleMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SubtitlesBurned, "burned":
		return SubtitlesBurned, nil
	case SubtitlesSoft:
		return SubtitlesSoft, nil
	case SubtitlesNone, "off":
		return SubtitlesNone, nil
	}
	return "", fmt.Errorf("unknown subtitle mode %q", s)
}

type Params struct {
	FFmpeg  string
	Width   int
	Height  int
	FPS     int
	Encoder string
	Quality int

	AudioPath string
	Subtitles SubtitleMode
	ASSPath   string
	SRTPath   string

	// Optional music bed mixed under the dialogue.
	BackgroundAudio  string
	BackgroundVolume float64
	Duration         float64

	Output string
}

// Stream accepts frames in presentation order.
type Stream interface {
	WriteFrame(img image.Image) error
	// Close finishes the file and waits for the encoder.
	Close() error
	// Abort kills the encoder; the output is left incomplete.
	Abort() error
}

type Encoder interface {
	Start(ctx context.Context, params Params) (Stream, error)
}

type FFmpegEncoder struct{}

func (e *FFmpegEncoder) Start(ctx context.Context, params Params) (Stream, error) {
	if params.Width <= 0 || params.Height <= 0 || params.FPS <= 0 {
		return nil, fmt.Errorf("invalid stream parameters %dx%d@%d", params.Width, params.Height, params.FPS)
	}
	bin := params.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, buildArgs(params)...)
	tail := &tailBuffer{max: 4096}
	cmd.Stdout = tail
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &ffmpegStream{
		cmd:    cmd,
		stdin:  stdin,
		tail:   tail,
		width:  params.Width,
		height: params.Height,
	}, nil
}

func buildArgs(p Params) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
	}

	next := 1
	audioIndex, bgIndex, subIndex := -1, -1, -1
	if p.AudioPath != "" {
		audioIndex = next
		next++
		args = append(args, "-i", p.AudioPath)
	}
	if p.BackgroundAudio != "" && audioIndex != -1 {
		bgIndex = next
		next++
		args = append(args, "-stream_loop", "-1", "-i", p.BackgroundAudio)
	}
	if p.Subtitles == SubtitlesSoft && p.SRTPath != "" {
		subIndex = next
		args = append(args, "-i", p.SRTPath)
	}

	var filters []string
	videoOut := "0:v"
	if p.Subtitles == SubtitlesBurned && p.ASSPath != "" {
		filters = append(filters, fmt.Sprintf("[0:v]subtitles=filename=%s[vsub]", escapeFilterPath(p.ASSPath)))
		videoOut = "[vsub]"
	}

	audioOut := ""
	if audioIndex != -1 {
		audioOut = fmt.Sprintf("%d:a", audioIndex)
		if bgIndex != -1 {
			filters = append(filters, fmt.Sprintf("[%d:a]%s[bg_a];[%d:a]volume=1.0[main_a];[main_a][bg_a]amix=inputs=2:duration=first:dropout_transition=3[aout]",
				bgIndex, musicVolume(p.BackgroundVolume, p.Duration), audioIndex))
			audioOut = "[aout]"
		}
	}

	if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
	}
	args = append(args, "-map", videoOut)
	if audioOut != "" {
		args = append(args, "-map", audioOut, "-c:a", "aac", "-b:a", "192k")
	}
	if subIndex != -1 {
		args = append(args, "-map", fmt.Sprintf("%d:s", subIndex), "-c:s", "mov_text")
	}

	args = append(args, "-c:v", encoderName(p.Encoder), "-pix_fmt", "yuv420p")
	args = append(args, QualityArgs(encoderName(p.Encoder), p.Quality)...)
	if audioOut != "" {
		args = append(args, "-shortest")
	}
	args = append(args, "-movflags", "+faststart", p.Output)
	return args
}

// QualityArgs maps the single quality knob onto each encoder's own setting.
func QualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox часто не поддерживает -q:v напрямую. Используем битрейт.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func encoderName(name string) string {
	if name == "" {
		return "libx264"
	}
	return name
}

// musicVolume fades the bed in and out over five seconds, or a tenth of a
// short video.
func musicVolume(volume, total float64) string {
	if volume <= 0 {
		volume = 0.15
	}
	if total <= 0 {
		return fmt.Sprintf("volume=%f", volume)
	}
	fadeIn, fadeOut := 5.0, 5.0
	if total < fadeIn+fadeOut {
		fadeIn = total * 0.1
		fadeOut = total * 0.1
	}
	return fmt.Sprintf("volume='%f*(if(lte(t,%f), 0.1 + 0.9*(t/%f), if(gte(t, %f), (%f-t)/%f, 1.0)))':eval=frame",
		volume, fadeIn, fadeIn, total-fadeOut, total, fadeOut)
}

// escapeFilterPath escapes a path twice: once for the filter option and once
// for the filtergraph around it.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`)
	option := strings.NewReplacer(`'`, `\'`, `:`, `\:`).Replace(p)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(option)
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tail   *tailBuffer
	width  int
	height int
	frames int

	once sync.Once
	err  error
}

func (s *ffmpegStream) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("frame %d is %dx%d, stream is %dx%d", s.frames, b.Dx(), b.Dy(), s.width, s.height)
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			s.finish(false)
			return &EncoderError{Output: s.tail.String(), Err: ErrEncoderClosedEarly}
		}
		return fmt.Errorf("write raw error: %w", err)
	}
	s.frames++
	return nil
}

func (s *ffmpegStream) Close() error {
	if err := s.finish(false); err != nil {
		return &EncoderError{Output: s.tail.String(), Err: err}
	}
	return nil
}

func (s *ffmpegStream) Abort() error {
	s.finish(true)
	return nil
}

func (s *ffmpegStream) finish(kill bool) error {
	s.once.Do(func() {
		s.stdin.Close()
		if kill && s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.err = s.cmd.Wait()
	})
	return s.err
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
