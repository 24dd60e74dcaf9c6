package compositor

import (
	"fmt"
	"image"
	"os"

	"github.com/HugoSmits86/nativewebp"
)

// WritePoster saves a frame as a lossless WebP still.
func WritePoster(path string, frame image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create poster: %w", err)
	}
	if err := nativewebp.Encode(f, frame, nil); err != nil {
		f.Close()
		return fmt.Errorf("encode poster: %w", err)
	}
	return f.Close()
}
