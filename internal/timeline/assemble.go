package timeline

import (
	"fmt"
	"math"
	"sort"
)

type Resolution struct {
	Width, Height int
}

// Presets are the named output formats.
var Presets = map[string]Resolution{
	"9:16": {Width: 1080, Height: 1920},
	"16:9": {Width: 1920, Height: 1080},
	"4:5":  {Width: 1080, Height: 1350},
	"1:1":  {Width: 1080, Height: 1080},
}

// Assemble builds a timeline from analyzed scenes. Only characters that
// speak in at least one scene join the cast; their order and screen
// positions come from the registry.
func Assemble(scenes []Scene, registered []*Character, res Resolution, fps int, background string, minSlotDistance float64) (*Timeline, error) {
	if res.Width <= 0 || res.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", res.Width, res.Height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps %d", fps)
	}

	used := make(map[string]bool)
	for _, s := range scenes {
		if s.Speaker != "" {
			used[s.Speaker] = true
		}
	}

	var cast []*Character
	for _, c := range registered {
		if used[c.ID] {
			cast = append(cast, c)
			delete(used, c.ID)
		}
	}
	if len(used) > 0 {
		missing := make([]string, 0, len(used))
		for id := range used {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("scenes reference unregistered characters: %v", missing)
	}

	tl := &Timeline{
		Version:    Version,
		Width:      res.Width,
		Height:     res.Height,
		FPS:        fps,
		Background: background,
		Characters: cast,
		Scenes:     append([]Scene(nil), scenes...),
	}
	tl.Positions = ResolvePositions(cast, res.Width, minSlotDistance)
	return tl, nil
}

// ResolvePositions computes the horizontal center of every character.
// Characters are ordered by screen slot and spread evenly around the
// frame center; an explicit x always wins. minDistance is a fraction of
// the frame width.
func ResolvePositions(cast []*Character, width int, minDistance float64) map[string]int {
	positions := make(map[string]int, len(cast))
	if len(cast) == 0 {
		return positions
	}

	ordered := append([]*Character(nil), cast...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ScreenSlot < ordered[j].ScreenSlot
	})

	n := float64(len(ordered))
	w := float64(width)
	step := w / (n + 1)
	if minStep := minDistance * w; step < minStep {
		step = minStep
		if n > 1 && step*(n-1) > w {
			step = w / n
		}
	}

	mid := w / 2
	for i, c := range ordered {
		if c.X != nil {
			positions[c.ID] = *c.X
			continue
		}
		offset := (float64(i) - (n-1)/2) * step
		positions[c.ID] = int(math.Round(mid + offset))
	}
	return positions
}
