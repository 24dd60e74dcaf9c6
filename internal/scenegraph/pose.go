package scenegraph

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ivlev/talkinghead/internal/animation"
)

// Default pivots match the stock character template.
var defaultPivots = map[string][2]float64{
	"head_group": {256, 180},
	"arm_right":  {327, 270},
	"arm_left":   {185, 270},
	"leg_right":  {280, 400},
	"leg_left":   {232, 400},
	"mouth":      {256, 205},
	"eyes":       {256, 150},
}

var number = regexp.MustCompile(`-?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// ApplyPose writes a pose into the document.
func ApplyPose(d *Document, p animation.Pose) {
	applyMouth(d, p.Mouth)
	applyEyes(d, p.EyesClosed)

	rotate(d, "head_group", p.HeadAngle)
	rotate(d, "arm_left", p.Limbs.ArmLeft)
	rotate(d, "arm_right", p.Limbs.ArmRight)
	rotate(d, "leg_left", p.Limbs.LegLeft)
	rotate(d, "leg_right", p.Limbs.LegRight)
}

// applyMouth morphs between data-closed and data-open path shapes when the
// asset provides them, and otherwise stretches the mouth vertically.
func applyMouth(d *Document, open float64) {
	closed, okClosed := d.Attr("mouth", "data-closed")
	opened, okOpen := d.Attr("mouth", "data-open")
	if okClosed && okOpen {
		if path, ok := morph(closed, opened, open); ok {
			d.SetAttr("mouth", "d", path)
			return
		}
	}
	if !d.Has("mouth") {
		return
	}
	px, py := pivot(d, "mouth")
	d.SetTransform("mouth", around(px, py, 0, 1, 0.1+0.9*open))
}

func applyEyes(d *Document, closed bool) {
	ids := []string{"eye_left", "eye_right"}
	if !d.Has("eye_left") && !d.Has("eye_right") {
		ids = []string{"eyes"}
	}
	for _, id := range ids {
		if !d.Has(id) {
			continue
		}
		if r, ok := d.Attr(id, "data-r"); ok || d.hasNumeric(id, "r") {
			if !ok {
				r, _ = d.Attr(id, "r")
				d.SetAttr(id, "data-r", r)
			}
			if closed {
				d.SetAttr(id, "r", "1")
			} else {
				d.SetAttr(id, "r", r)
			}
			continue
		}
		if !closed {
			continue
		}
		px, py := pivot(d, id)
		d.SetTransform(id, around(px, py, 0, 1, 0.08))
	}
}

func (d *Document) hasNumeric(id, attr string) bool {
	v, ok := d.Attr(id, attr)
	if !ok {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}

func rotate(d *Document, id string, deg float64) {
	if !d.Has(id) {
		return
	}
	if deg == 0 {
		if base := d.base[id]; base != "" {
			d.SetAttr(id, "transform", base)
		}
		return
	}
	px, py := pivot(d, id)
	d.SetTransform(id, around(px, py, deg, 1, 1))
}

// pivot reads data-pivot="x y", then cx/cy, then the template default.
func pivot(d *Document, id string) (float64, float64) {
	if v, ok := d.Attr(id, "data-pivot"); ok {
		f := strings.Fields(strings.ReplaceAll(v, ",", " "))
		if len(f) == 2 {
			x, errX := strconv.ParseFloat(f[0], 64)
			y, errY := strconv.ParseFloat(f[1], 64)
			if errX == nil && errY == nil {
				return x, y
			}
		}
	}
	if cx, ok := d.Attr(id, "cx"); ok {
		if cy, ok := d.Attr(id, "cy"); ok {
			x, errX := strconv.ParseFloat(cx, 64)
			y, errY := strconv.ParseFloat(cy, 64)
			if errX == nil && errY == nil {
				return x, y
			}
		}
	}
	p := defaultPivots[id]
	return p[0], p[1]
}

// around builds a transform that rotates and scales about (px, py).
func around(px, py, deg, sx, sy float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "translate(%s %s)", num(px), num(py))
	if deg != 0 {
		fmt.Fprintf(&b, " rotate(%s)", num(deg))
	}
	if sx != 1 || sy != 1 {
		fmt.Fprintf(&b, " scale(%s %s)", num(sx), num(sy))
	}
	fmt.Fprintf(&b, " translate(%s %s)", num(-px), num(-py))
	return b.String()
}

func num(v float64) string {
	if math.Abs(v) < 1e-9 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// morph interpolates the numbers of two paths with the same command layout.
func morph(from, to string, t float64) (string, bool) {
	a := number.FindAllStringIndex(from, -1)
	b := number.FindAllString(to, -1)
	if len(a) != len(b) || len(a) == 0 {
		return "", false
	}

	var out strings.Builder
	last := 0
	for i, loc := range a {
		va, errA := strconv.ParseFloat(from[loc[0]:loc[1]], 64)
		vb, errB := strconv.ParseFloat(b[i], 64)
		if errA != nil || errB != nil {
			return "", false
		}
		out.WriteString(from[last:loc[0]])
		out.WriteString(num(math.Round((va+(vb-va)*t)*100) / 100))
		last = loc[1]
	}
	out.WriteString(from[last:])
	return out.String(), true
}
