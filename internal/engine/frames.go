package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/animation"
	"github.com/ivlev/talkinghead/internal/compositor"
	"github.com/ivlev/talkinghead/internal/config"
	"github.com/ivlev/talkinghead/internal/timeline"
	"github.com/ivlev/talkinghead/internal/video"
)

// frameRenderer composes frames in one goroutine and hands them to the
// stream in order. The animation engine is owned by the producer.
type frameRenderer struct {
	tl     *timeline.Timeline
	comp   *compositor.Compositor
	anim   *animation.Engine
	env    animation.Amplitude
	bg     *image.RGBA
	log    zerolog.Logger
	poster bool
}

// run returns the number of frames written and, when requested, a copy of
// the first frame.
func (fr *frameRenderer) run(ctx context.Context, stream video.Stream) (int, *image.RGBA, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan *image.RGBA, 4)
	errc := make(chan error, 1)
	go func() {
		defer close(frames)
		errc <- fr.produce(rctx, frames)
	}()

	var poster *image.RGBA
	written := 0
	for img := range frames {
		if fr.poster && poster == nil {
			poster = image.NewRGBA(img.Rect)
			copy(poster.Pix, img.Pix)
		}
		err := stream.WriteFrame(img)
		fr.comp.Release(img)
		if err != nil {
			cancel()
			for rest := range frames {
				fr.comp.Release(rest)
			}
			<-errc
			return written, nil, err
		}
		written++
	}
	if err := <-errc; err != nil {
		return written, nil, err
	}
	return written, poster, nil
}

func (fr *frameRenderer) produce(ctx context.Context, out chan<- *image.RGBA) error {
	windows := fr.tl.Windows()
	for _, w := range windows {
		// отмена проверяется перед каждой сценой
		if err := ctx.Err(); err != nil {
			return err
		}
		params := config.FrameParams{
			Width:      fr.tl.Width,
			Height:     fr.tl.Height,
			FPS:        fr.tl.FPS,
			SceneIndex: w.Scene,
			StartFrame: w.StartFrame,
			Frames:     w.Frames(),
			Duration:   w.End - w.Start,
		}
		if err := fr.renderScene(ctx, params, out); err != nil {
			return err
		}
		fr.log.Info().Msgf("[>] Готово: %d/%d", w.Scene+1, len(windows))
	}
	return nil
}

func (fr *frameRenderer) renderScene(ctx context.Context, params config.FrameParams, out chan<- *image.RGBA) error {
	sc := &fr.tl.Scenes[params.SceneIndex]
	items := make([]compositor.Item, len(fr.tl.Characters))
	for local := 0; local < params.Frames; local++ {
		global := params.StartFrame + local
		for i, c := range fr.tl.Characters {
			items[i] = compositor.Item{
				Character: c,
				Pose:      fr.anim.Pose(c, sc, local, global, fr.env),
				X:         fr.tl.Positions[c.ID],
			}
		}
		frame, err := fr.comp.Compose(fr.bg, items)
		if err != nil {
			var rerr *compositor.RenderError
			if errors.As(err, &rerr) {
				rerr.Scene = params.SceneIndex + 1
			}
			return err
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			fr.comp.Release(frame)
			return ctx.Err()
		}
	}
	return nil
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
