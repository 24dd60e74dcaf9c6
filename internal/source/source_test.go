package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestImageSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4, 2, color.White)
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2, color.Black)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	src, err := NewImageSource(dir)
	if err != nil {
		t.Fatalf("NewImageSource failed: %v", err)
	}
	if src.PageCount() != 2 {
		t.Fatalf("Expected 2 images, got %d", src.PageCount())
	}
	w, h, err := src.GetPageDimensions(1)
	if err != nil || w != 4 || h != 2 {
		t.Errorf("Expected 4x2 for b.png, got %vx%v (%v)", w, h, err)
	}
	if _, err := src.RenderPage(5, 0); err == nil {
		t.Error("Expected out of range error")
	}
}

func TestLoadBackgroundCover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.png")
	writePNG(t, path, 40, 10, color.RGBA{R: 200, A: 255})

	bg, err := LoadBackground(path, 20, 30)
	if err != nil {
		t.Fatalf("LoadBackground failed: %v", err)
	}
	if bg.Bounds().Dx() != 20 || bg.Bounds().Dy() != 30 {
		t.Fatalf("Expected 20x30, got %v", bg.Bounds())
	}
	r, _, _, a := bg.At(10, 15).RGBA()
	if r>>8 < 190 || a>>8 != 255 {
		t.Errorf("Expected opaque red center, got r=%d a=%d", r>>8, a>>8)
	}
}

func TestLoadBackgroundSVG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.svg")
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect x="0" y="0" width="100" height="100" fill="#00ff00"/></svg>`
	if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
		t.Fatal(err)
	}

	bg, err := LoadBackground(path, 32, 64)
	if err != nil {
		t.Fatalf("LoadBackground failed: %v", err)
	}
	_, g, _, _ := bg.At(16, 32).RGBA()
	if g>>8 < 200 {
		t.Errorf("Expected green fill, got g=%d", g>>8)
	}
}

func TestLoadBackgroundErrors(t *testing.T) {
	if _, err := LoadBackground(filepath.Join(t.TempDir(), "missing.png"), 10, 10); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := LoadBackground("scene.gif", 10, 10); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestLoadBackgroundDirectoryPage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "01.png"), 8, 8, color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "02.png"), 8, 8, color.RGBA{B: 255, A: 255})

	bg, err := LoadBackground(dir+"#2", 4, 4)
	if err != nil {
		t.Fatalf("LoadBackground failed: %v", err)
	}
	r, _, b, _ := bg.At(2, 2).RGBA()
	if b>>8 < 200 || r>>8 > 50 {
		t.Errorf("Expected the second image (blue), got r=%d b=%d", r>>8, b>>8)
	}

	if _, err := LoadBackground(dir+"#3", 4, 4); err == nil {
		t.Error("Expected an error for a page past the end")
	}
}

func TestSplitPage(t *testing.T) {
	tests := []struct {
		in   string
		path string
		page int
	}{
		{"slides.pdf", "slides.pdf", 0},
		{"slides.pdf#3", "slides.pdf", 2},
		{"slides.pdf#0", "slides.pdf#0", 0},
		{"a#b.png", "a#b.png", 0},
	}
	for _, tt := range tests {
		path, page := splitPage(tt.in)
		if path != tt.path || page != tt.page {
			t.Errorf("splitPage(%q) = %q, %d; expected %q, %d", tt.in, path, page, tt.path, tt.page)
		}
	}
}
