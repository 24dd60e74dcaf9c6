// Package compositor draws frames: background first, then every character
// sprite in its pose at its screen position.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/ivlev/talkinghead/internal/animation"
	"github.com/ivlev/talkinghead/internal/system"
	"github.com/ivlev/talkinghead/internal/timeline"
)

// Item is one character to draw in a frame.
type Item struct {
	Character *timeline.Character
	Pose      animation.Pose
	X         int
}

type Compositor struct {
	width, height int
	cast          int
	layout        Layout
	assets        *Assets
	sprites       *SpriteCache
	pool          *system.ImagePool
	log           zerolog.Logger

	warnMu sync.Mutex
	warned map[string]bool
}

type Options struct {
	Width, Height int
	// Cast is the number of characters sharing the frame.
	Cast        int
	Layout      Layout
	SpriteCache int
	Pool        *system.ImagePool
	Logger      zerolog.Logger
}

func New(opts Options) *Compositor {
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}
	if opts.Layout == (Layout{}) {
		opts.Layout = DefaultLayout()
	}
	return &Compositor{
		width:   opts.Width,
		height:  opts.Height,
		cast:    opts.Cast,
		layout:  opts.Layout,
		assets:  NewAssets(),
		sprites: NewSpriteCache(opts.SpriteCache),
		pool:    opts.Pool,
		log:     opts.Logger,
		warned:  make(map[string]bool),
	}
}

func (c *Compositor) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// Compose draws one frame into a pooled image. Release it once written.
func (c *Compositor) Compose(bg *image.RGBA, items []Item) (*image.RGBA, error) {
	frame := c.pool.Get(c.Bounds())
	if bg != nil && bg.Rect == frame.Rect {
		copy(frame.Pix, bg.Pix)
	} else {
		draw.Draw(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		if bg != nil {
			draw.Draw(frame, frame.Bounds(), bg, bg.Bounds().Min, draw.Src)
		}
	}

	// left to right, speaker on top
	ordered := append([]Item(nil), items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Pose.Speaking != ordered[j].Pose.Speaking {
			return !ordered[i].Pose.Speaking
		}
		return ordered[i].X < ordered[j].X
	})

	for _, it := range ordered {
		if err := c.drawItem(frame, it); err != nil {
			c.pool.Put(frame)
			return nil, err
		}
	}
	return frame, nil
}

func (c *Compositor) Release(frame *image.RGBA) {
	c.pool.Put(frame)
}

func (c *Compositor) drawItem(frame *image.RGBA, it Item) error {
	asset, err := c.asset(it.Character, it.Pose.Emotion)
	if err != nil {
		return err
	}

	pose := it.Pose.Key().Pose()
	n := max(c.cast, 1)
	w, h := c.layout.SpriteSize(c.width, c.height, n, asset.Aspect(), pose.Scale)

	key := spriteKey{pose: pose.Key(), asset: asset.Path, w: w, h: h}
	sprite, ok := c.sprites.get(key)
	if !ok {
		sprite, err = renderSprite(asset, it.Character, pose, w, h)
		if err != nil {
			return &RenderError{Character: it.Character.ID, Asset: asset.Path, Err: err}
		}
		c.sprites.put(key, sprite)
	}

	dst := c.layout.Place(c.width, c.height, it.X, w, h, pose.BodyY)
	draw.Draw(frame, dst, sprite, image.Point{}, draw.Over)
	return nil
}

// asset resolves the drawing for an emotion, falling back to the default
// when the emotion has none or it fails to load.
func (c *Compositor) asset(ch *timeline.Character, e timeline.Emotion) (*Asset, error) {
	path, fallback := ch.Visual.Asset(e)
	if !fallback {
		a, err := c.assets.Load(path)
		if err == nil {
			return a, nil
		}
		c.warnOnce(ch.ID+"/"+string(e), func(ev *zerolog.Event) {
			ev.Err(err).Str("asset", path)
		})
		path = ch.Visual.Default
	} else if e != timeline.Neutral {
		c.warnOnce(ch.ID+"/"+string(e), func(ev *zerolog.Event) {})
	}

	a, err := c.assets.Load(path)
	if err != nil {
		return nil, &RenderError{Character: ch.ID, Asset: path, Err: err}
	}
	return a, nil
}

func (c *Compositor) warnOnce(key string, fields func(*zerolog.Event)) {
	c.warnMu.Lock()
	seen := c.warned[key]
	c.warned[key] = true
	c.warnMu.Unlock()
	if seen {
		return
	}
	ev := c.log.Warn().Str("key", key)
	fields(ev)
	ev.Msg("emotion asset unavailable, using default")
}

// SpriteStats reports sprite cache hits and misses.
func (c *Compositor) SpriteStats() (hits, misses int) {
	return c.sprites.Stats()
}

// Preload loads every asset of the cast so missing defaults fail before
// encoding starts.
func (c *Compositor) Preload(cast []*timeline.Character) error {
	for _, ch := range cast {
		if _, err := c.assets.Load(ch.Visual.Default); err != nil {
			return &RenderError{Character: ch.ID, Asset: ch.Visual.Default, Err: fmt.Errorf("default asset: %w", err)}
		}
	}
	return nil
}
