package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrEmptyAudio   = errors.New("audio is empty")
	ErrCorruptAudio = errors.New("audio is not a readable WAV stream")
)

// DecodeWAV reads a PCM WAV file and downmixes it to mono.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrCorruptAudio
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptAudio, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	chans := int(d.NumChans)
	depth := int(d.BitDepth)
	if chans <= 0 || depth <= 0 || d.SampleRate == 0 {
		return nil, ErrCorruptAudio
	}

	scale := float64(int64(1) << (depth - 1))
	offset := 0
	if depth == 8 {
		// 8-bit PCM is unsigned
		offset = 128
		scale = 128
	}

	frames := len(buf.Data) / chans
	if frames == 0 {
		return nil, ErrEmptyAudio
	}
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < chans; ch++ {
			sum += buf.Data[i*chans+ch] - offset
		}
		samples[i] = float32(float64(sum) / float64(chans) / scale)
	}
	return &Clip{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// EncodeWAV writes a clip as 16-bit mono PCM.
func EncodeWAV(c *Clip) ([]byte, error) {
	out := &memFile{}
	if err := WriteWAV(out, c); err != nil {
		return nil, err
	}
	return out.buf, nil
}

func WriteWAV(w io.WriteSeeker, c *Clip) error {
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(math.Max(-32768, math.Min(32767, v)))
	}

	enc := wav.NewEncoder(w, c.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// memFile is an in-memory io.WriteSeeker for the WAV encoder, which
// rewrites the header sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
