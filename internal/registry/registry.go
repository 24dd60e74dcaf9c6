// Package registry loads the character registry: who can speak, with what
// voice, and which assets draw them.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/talkinghead/internal/timeline"
)

var ErrMalformed = errors.New("malformed character registry")

// DefaultVoices maps a character type to the voice used when the registry
// entry does not name one.
var DefaultVoices = map[string]timeline.Voice{
	"Pria":        {ID: "id-ID-Standard-B", Language: "id-ID"},
	"Wanita":      {ID: "id-ID-Standard-A", Language: "id-ID"},
	"Kakek":       {ID: "id-ID-Wavenet-B", Language: "id-ID"},
	"Nenek":       {ID: "id-ID-Wavenet-A", Language: "id-ID"},
	"Anak Pria":   {ID: "id-ID-Standard-C", Language: "id-ID"},
	"Anak Wanita": {ID: "id-ID-Standard-D", Language: "id-ID"},
}

type file struct {
	Characters []timeline.Character `yaml:"characters"`
}

type Registry struct {
	chars       []*timeline.Character
	byKey       map[string]*timeline.Character
	fingerprint string
}

// Load reads a registry file. Relative asset paths are resolved against the
// directory of the file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

func Parse(data []byte, baseDir string) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range f.Characters {
		resolveAssets(&f.Characters[i].Visual, baseDir)
	}
	r, err := New(f.Characters...)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	r.fingerprint = hex.EncodeToString(sum[:])
	return r, nil
}

// New builds a registry from in-memory characters.
func New(chars ...timeline.Character) (*Registry, error) {
	if len(chars) == 0 {
		return nil, fmt.Errorf("%w: no characters", ErrMalformed)
	}

	r := &Registry{byKey: make(map[string]*timeline.Character)}
	for i := range chars {
		c := chars[i]
		if err := normalize(&c); err != nil {
			return nil, fmt.Errorf("%w: character %d: %v", ErrMalformed, i+1, err)
		}
		for _, key := range append([]string{c.ID}, c.Aliases...) {
			k := foldKey(key)
			if _, dup := r.byKey[k]; dup {
				return nil, fmt.Errorf("%w: duplicate name %q", ErrMalformed, key)
			}
			r.byKey[k] = &c
		}
		r.chars = append(r.chars, &c)
	}

	h := sha256.New()
	for _, c := range r.chars {
		data, _ := yaml.Marshal(c)
		h.Write(data)
	}
	r.fingerprint = hex.EncodeToString(h.Sum(nil))
	return r, nil
}

func normalize(c *timeline.Character) error {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return errors.New("missing id")
	}
	if c.Pitch == 0 {
		c.Pitch = 1.0
	}
	if c.Pitch < 0 {
		return fmt.Errorf("%s: pitch must be positive", c.ID)
	}
	if c.Voice.ID == "" {
		v, ok := DefaultVoices[c.Type]
		if !ok {
			v, ok = DefaultVoices[c.ID]
		}
		if !ok {
			return fmt.Errorf("%s: no voice and no default for type %q", c.ID, c.Type)
		}
		speed := c.Voice.Speed
		c.Voice = v
		c.Voice.Speed = speed
	}
	if c.Voice.Speed == 0 {
		c.Voice.Speed = 1.0
	}
	if c.Visual.Default == "" {
		return fmt.Errorf("%s: visual.default is required", c.ID)
	}
	for e := range c.Visual.Emotions {
		if !e.Valid() {
			return fmt.Errorf("%s: unknown emotion %q in visual", c.ID, e)
		}
	}
	return nil
}

func resolveAssets(v *timeline.Visual, baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || baseDir == "" {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	v.Default = abs(v.Default)
	for e, p := range v.Emotions {
		v.Emotions[e] = abs(p)
	}
}

// foldKey makes speaker lookup case- and whitespace-insensitive.
func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Lookup resolves a speaker token from a script, by id or alias.
func (r *Registry) Lookup(token string) (*timeline.Character, bool) {
	c, ok := r.byKey[foldKey(token)]
	return c, ok
}

// Character returns the character with exactly this id, or nil.
func (r *Registry) Character(id string) *timeline.Character {
	if c, ok := r.byKey[foldKey(id)]; ok && c.ID == id {
		return c
	}
	return nil
}

// Characters returns all characters in registry order.
func (r *Registry) Characters() []*timeline.Character {
	return append([]*timeline.Character(nil), r.chars...)
}

// Fingerprint identifies the registry content for timeline caching.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}
