package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// Cache keeps analyzed timelines keyed by script content, so re-running
// analysis on an unchanged script skips the analyzer.
type Cache struct {
	Dir string
}

// Key derives the cache key. fingerprint identifies the character registry
// and anything else that changes the analysis result.
func (c *Cache) Key(script, fingerprint string, res Resolution, fps int) string {
	h := sha256.New()
	h.Write([]byte(script))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	fmt.Fprintf(h, "\x00%dx%d@%d", res.Width, res.Height, fps)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key+".yaml")
}

// Load returns the cached timeline for key. A miss is not an error.
func (c *Cache) Load(key string) (*Timeline, bool, error) {
	if c == nil || c.Dir == "" {
		return nil, false, nil
	}
	tl, err := Read(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tl, true, nil
}

func (c *Cache) Save(key string, tl *Timeline) error {
	if c == nil || c.Dir == "" {
		return nil
	}
	return Write(tl, c.path(key))
}
