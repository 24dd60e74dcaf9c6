package compositor

import (
	"image"
	"math"
)

type Layout struct {
	// CharacterHeight is the sprite height of a lone character as a
	// fraction of the frame height.
	CharacterHeight float64
	// Shrink reduces the height by 1/(1+Shrink*(n-1)) for n characters.
	Shrink float64
	// BottomMargin lifts sprite bottoms off the frame edge, fraction of height.
	BottomMargin float64
}

func DefaultLayout() Layout {
	return Layout{CharacterHeight: 0.55, Shrink: 0.25, BottomMargin: 0.05}
}

// SpriteSize returns the sprite size for a character with the given aspect
// (width/height) when n characters share the frame. The result always fits
// inside the frame.
func (l Layout) SpriteSize(frameW, frameH, n int, aspect, scale float64) (int, int) {
	if n < 1 {
		n = 1
	}
	if aspect <= 0 {
		aspect = 1
	}
	if scale <= 0 {
		scale = 1
	}
	h := float64(frameH) * l.CharacterHeight / (1 + l.Shrink*float64(n-1)) * scale
	w := h * aspect

	if w > float64(frameW) {
		h *= float64(frameW) / w
		w = float64(frameW)
	}
	if h > float64(frameH) {
		w *= float64(frameH) / h
		h = float64(frameH)
	}

	iw := max(1, int(math.Round(w)))
	ih := max(1, int(math.Round(h)))
	return min(iw, frameW), min(ih, frameH)
}

// Place returns where a w by h sprite goes: horizontally centered on x,
// bottom anchored above the margin, shifted by bodyY*h and clamped so the
// whole sprite stays in the frame.
func (l Layout) Place(frameW, frameH, x, w, h int, bodyY float64) image.Rectangle {
	bottom := float64(frameH) - float64(frameH)*l.BottomMargin + bodyY*float64(h)
	x0 := x - w/2
	y0 := int(math.Round(bottom)) - h

	x0 = clampInt(x0, 0, frameW-w)
	y0 = clampInt(y0, 0, frameH-h)
	return image.Rect(x0, y0, x0+w, y0+h)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
