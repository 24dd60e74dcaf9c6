package compositor

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/talkinghead/internal/animation"
	"github.com/ivlev/talkinghead/internal/scenegraph"
	"github.com/ivlev/talkinghead/internal/timeline"
)

// renderSprite draws asset in pose p at w by h.
func renderSprite(a *Asset, c *timeline.Character, p animation.Pose, w, h int) (*image.RGBA, error) {
	if a.SVG != nil {
		doc := a.SVG.Clone()
		scenegraph.ApplyPose(doc, p)
		return scenegraph.Rasterize(doc, w, h)
	}
	return renderRaster(a.Raster, c.Visual.MouthAnchor, p, w, h), nil
}

// renderRaster scales a flat image, sways it about its bottom center by the
// head angle and paints a mouth at the anchor when one is configured.
func renderRaster(src image.Image, mouth *timeline.Anchor, p animation.Pose, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	sx := float64(w) / float64(b.Dx())
	sy := float64(h) / float64(b.Dy())

	// Sway is a fraction of the head angle so the feet stay planted.
	theta := p.HeadAngle * 0.3 * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	px, py := float64(w)/2, float64(h)

	// dst = T(p) * R * T(-p) * S * T(-min)
	m := f64.Aff3{
		sx * cos, -sy * sin, 0,
		sx * sin, sy * cos, 0,
	}
	m[2] = px - cos*px + sin*py - (m[0]*float64(b.Min.X) + m[1]*float64(b.Min.Y))
	m[5] = py - sin*px - cos*py - (m[3]*float64(b.Min.X) + m[4]*float64(b.Min.Y))
	draw.BiLinear.Transform(dst, m, src, b, draw.Over, nil)

	if mouth != nil && p.Mouth > 0.05 {
		cx := mouth.X * float64(w)
		cy := mouth.Y * float64(h)
		rx := float64(w) * 0.045
		ry := float64(h) * 0.025 * p.Mouth
		// follow the sway
		dx, dy := cx-px, cy-py
		cx, cy = px+dx*cos-dy*sin, py+dx*sin+dy*cos
		fillEllipse(dst, cx, cy, rx, ry, color.RGBA{R: 60, G: 20, B: 20, A: 255})
	}
	return dst
}

func fillEllipse(img *image.RGBA, cx, cy, rx, ry float64, c color.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	b := img.Bounds()
	y0 := max(b.Min.Y, int(math.Floor(cy-ry)))
	y1 := min(b.Max.Y-1, int(math.Ceil(cy+ry)))
	x0 := max(b.Min.X, int(math.Floor(cx-rx)))
	x1 := min(b.Max.X-1, int(math.Ceil(cx+rx)))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

type spriteKey struct {
	pose  animation.PoseKey
	asset string
	w, h  int
}

// SpriteCache keeps posed sprites. When full it starts over, which is
// enough for the small number of distinct poses in one video.
type SpriteCache struct {
	mu     sync.Mutex
	max    int
	items  map[spriteKey]*image.RGBA
	hits   int
	misses int
}

func NewSpriteCache(max int) *SpriteCache {
	return &SpriteCache{max: max, items: make(map[spriteKey]*image.RGBA)}
}

func (c *SpriteCache) get(k spriteKey) (*image.RGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.items[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return img, ok
}

func (c *SpriteCache) put(k spriteKey, img *image.RGBA) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.max {
		clear(c.items)
	}
	c.items[k] = img
}

// Stats returns cache hits and misses.
func (c *SpriteCache) Stats() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
