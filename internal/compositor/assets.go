package compositor

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ivlev/talkinghead/internal/scenegraph"
	"github.com/ivlev/talkinghead/internal/source"
)

// Asset is a loaded character drawing: either an SVG scene graph or a
// raster image.
type Asset struct {
	Path   string
	SVG    *scenegraph.Document
	Raster image.Image
}

// Aspect is width over height.
func (a *Asset) Aspect() float64 {
	if a.SVG != nil {
		w, h := a.SVG.Size()
		return w / h
	}
	b := a.Raster.Bounds()
	return float64(b.Dx()) / float64(b.Dy())
}

// Assets is a concurrency-safe cache of loaded character assets.
type Assets struct {
	mu    sync.RWMutex
	items map[string]*assetEntry
}

type assetEntry struct {
	asset *Asset
	err   error
}

func NewAssets() *Assets {
	return &Assets{items: make(map[string]*assetEntry)}
}

// Load returns the asset at path, loading it on first use. Failures are
// cached too.
func (c *Assets) Load(path string) (*Asset, error) {
	// Fast path: read lock
	c.mu.RLock()
	if entry, exists := c.items[path]; exists {
		c.mu.RUnlock()
		return entry.asset, entry.err
	}
	c.mu.RUnlock()

	// Slow path: load from disk
	asset, err := loadAsset(path)

	// Write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.items[path]; exists {
		return entry.asset, entry.err
	}
	c.items[path] = &assetEntry{asset: asset, err: err}
	return asset, err
}

func loadAsset(path string) (*Asset, error) {
	if path == "" {
		return nil, fmt.Errorf("no asset path")
	}
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := scenegraph.Parse(data)
		if err != nil {
			return nil, err
		}
		return &Asset{Path: path, SVG: doc}, nil
	}

	img, err := source.DecodeImage(path)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%s: empty image", path)
	}
	return &Asset{Path: path, Raster: img}, nil
}
