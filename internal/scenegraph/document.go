// Package scenegraph poses SVG characters. Parts are addressed by element id
// (mouth, eyes, eye_left, eye_right, head_group, arm_left, arm_right,
// leg_left, leg_right) and mutated through typed setters before rasterizing.
package scenegraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Document is a parsed SVG with an id index. Mutations go to a Clone; the
// parsed original stays pristine.
type Document struct {
	doc  *etree.Document
	byID map[string]*etree.Element
	// transforms present in the source, kept under the pose transform
	base map[string]string
}

func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, errors.New("parse svg: no <svg> root element")
	}
	return index(doc), nil
}

func index(doc *etree.Document) *Document {
	d := &Document{
		doc:  doc,
		byID: make(map[string]*etree.Element),
		base: make(map[string]string),
	}
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if id := el.SelectAttrValue("id", ""); id != "" {
			if _, dup := d.byID[id]; !dup {
				d.byID[id] = el
				d.base[id] = el.SelectAttrValue("transform", "")
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(doc.Root())
	return d
}

func (d *Document) Clone() *Document {
	return index(d.doc.Copy())
}

// Has reports whether an element with the id exists.
func (d *Document) Has(id string) bool {
	_, ok := d.byID[id]
	return ok
}

func (d *Document) Attr(id, name string) (string, bool) {
	el, ok := d.byID[id]
	if !ok {
		return "", false
	}
	a := el.SelectAttr(name)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// SetAttr sets an attribute on the element with the id. It returns false
// when no such element exists.
func (d *Document) SetAttr(id, name, value string) bool {
	el, ok := d.byID[id]
	if !ok {
		return false
	}
	el.CreateAttr(name, value)
	return true
}

// SetTransform applies a pose transform on top of the element's own.
func (d *Document) SetTransform(id, transform string) bool {
	if base := d.base[id]; base != "" {
		transform = transform + " " + base
	}
	return d.SetAttr(id, "transform", transform)
}

func (d *Document) Bytes() ([]byte, error) {
	return d.doc.WriteToBytes()
}

// Size returns the intrinsic size from the viewBox, or width and height.
func (d *Document) Size() (float64, float64) {
	root := d.doc.Root()
	if vb := strings.Fields(strings.ReplaceAll(root.SelectAttrValue("viewBox", ""), ",", " ")); len(vb) == 4 {
		w, errW := strconv.ParseFloat(vb[2], 64)
		h, errH := strconv.ParseFloat(vb[3], 64)
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	w := parseLength(root.SelectAttrValue("width", ""))
	h := parseLength(root.SelectAttrValue("height", ""))
	if w <= 0 || h <= 0 {
		return 512, 512
	}
	return w, h
}

func parseLength(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
