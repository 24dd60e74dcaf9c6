package compositor

import "fmt"

// RenderError reports an asset that could not be drawn. Scene is 1-based and
// zero when the failure happened outside the frame loop.
type RenderError struct {
	Scene     int
	Character string
	Asset     string
	Err       error
}

func (e *RenderError) Error() string {
	where := e.Asset
	if e.Character != "" {
		where = fmt.Sprintf("%s (%s)", e.Character, e.Asset)
	}
	if e.Scene > 0 {
		return fmt.Sprintf("render scene %d, %s: %v", e.Scene, where, e.Err)
	}
	return fmt.Sprintf("render %s: %v", where, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
