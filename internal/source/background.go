package source

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ivlev/talkinghead/internal/scenegraph"
)

const pdfDPI = 150

// LoadBackground opens a background of any supported kind and fits it to
// cover a w by h frame, cropping the overflow around the center.
func LoadBackground(path string, w, h int) (*image.RGBA, error) {
	img, err := decodeAny(path, w, h)
	if err != nil {
		return nil, err
	}
	return Cover(img, w, h), nil
}

func decodeAny(path string, w, h int) (image.Image, error) {
	path, page := splitPage(path)
	if strings.ToLower(filepath.Ext(path)) == ".svg" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := scenegraph.Parse(data)
		if err != nil {
			return nil, err
		}
		sw, sh := doc.Size()
		// rasterize at a size that covers the frame without upscaling
		scale := max(float64(w)/sw, float64(h)/sh)
		return scenegraph.Rasterize(doc, int(sw*scale+0.5), int(sh*scale+0.5))
	}

	src, err := open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if page >= src.PageCount() {
		return nil, fmt.Errorf("%s has %d pages, page %d requested", path, src.PageCount(), page+1)
	}
	return src.RenderPage(page, coverDPI(src, page, w, h))
}

// open picks the source for a PDF, a raster file or a directory of images.
func open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case fi.IsDir():
		return NewImageSource(path)
	case strings.ToLower(filepath.Ext(path)) == ".pdf":
		return NewFitzPDFSource(path)
	case IsImage(path):
		return NewImageSource(path)
	}
	return nil, fmt.Errorf("unsupported background format: %s", path)
}

// splitPage understands "slides.pdf#3" (1-based); without a suffix the
// first page is used.
func splitPage(path string) (string, int) {
	i := strings.LastIndex(path, "#")
	if i < 0 {
		return path, 0
	}
	n, err := strconv.Atoi(path[i+1:])
	if err != nil || n < 1 {
		return path, 0
	}
	return path[:i], n - 1
}

// coverDPI renders vector pages just large enough to cover the frame.
func coverDPI(src Source, page, w, h int) int {
	pw, ph, err := src.GetPageDimensions(page)
	if err != nil || pw <= 0 || ph <= 0 {
		return pdfDPI
	}
	dpi := int(math.Ceil(max(float64(w)/pw, float64(h)/ph) * 72))
	return max(dpi, pdfDPI)
}

// Cover scales img so it fills w by h and crops the rest evenly.
func Cover(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	scale := max(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	sw := int(float64(b.Dx())*scale + 0.5)
	sh := int(float64(b.Dy())*scale + 0.5)

	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	offset := image.Pt((sw-w)/2, (sh-h)/2)
	draw.Draw(out, out.Bounds(), scaled, offset, draw.Src)
	return out
}
