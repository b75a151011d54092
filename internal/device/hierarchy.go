package device

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Selector identifies a UI element by its visible label or semantic role.
// Empty fields are not compared.
type Selector struct {
	Text       string
	Desc       string
	ResourceID string
}

// Text is shorthand for a selector matching on visible text.
func Text(label string) Selector {
	return Selector{Text: label}
}

func (s Selector) String() string {
	var parts []string
	if s.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", s.Text))
	}
	if s.Desc != "" {
		parts = append(parts, fmt.Sprintf("desc=%q", s.Desc))
	}
	if s.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("id=%q", s.ResourceID))
	}
	return strings.Join(parts, ",")
}

// Node is one element of a uiautomator hierarchy dump.
type Node struct {
	Text       string `xml:"text,attr"`
	Desc       string `xml:"content-desc,attr"`
	ResourceID string `xml:"resource-id,attr"`
	Class      string `xml:"class,attr"`
	Package    string `xml:"package,attr"`
	Clickable  bool   `xml:"clickable,attr"`
	Enabled    bool   `xml:"enabled,attr"`
	BoundsRaw  string `xml:"bounds,attr"`
	Children   []Node `xml:"node"`
}

type hierarchy struct {
	Nodes []Node `xml:"node"`
}

// ParseHierarchy decodes a uiautomator XML dump into a root node whose
// children are the top-level windows.
func ParseHierarchy(dump string) (*Node, error) {
	var h hierarchy
	if err := xml.Unmarshal([]byte(dump), &h); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	return &Node{Children: h.Nodes}, nil
}

// Matches reports whether n satisfies every non-empty field of sel.
func (n *Node) Matches(sel Selector) bool {
	if sel.Text == "" && sel.Desc == "" && sel.ResourceID == "" {
		return false
	}
	if sel.Text != "" && strings.TrimSpace(n.Text) != sel.Text {
		return false
	}
	if sel.Desc != "" && strings.TrimSpace(n.Desc) != sel.Desc {
		return false
	}
	if sel.ResourceID != "" && n.ResourceID != sel.ResourceID {
		return false
	}
	return true
}

// Find returns the first node in depth-first order that matches sel.
func (n *Node) Find(sel Selector) *Node {
	if n.Matches(sel) {
		return n
	}
	for i := range n.Children {
		if found := n.Children[i].Find(sel); found != nil {
			return found
		}
	}
	return nil
}

// Bounds is a screen rectangle in pixels.
type Bounds struct {
	Left, Top, Right, Bottom int
}

// Center returns the tap point for the rectangle.
func (b Bounds) Center() (int, int) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

// Bounds parses the "[l,t][r,b]" attribute.
func (n *Node) Bounds() (Bounds, error) {
	raw := strings.NewReplacer("][", ",", "[", "", "]", "").Replace(n.BoundsRaw)
	fields := strings.Split(raw, ",")
	if len(fields) != 4 {
		return Bounds{}, fmt.Errorf("malformed bounds %q", n.BoundsRaw)
	}
	var v [4]int
	for i, f := range fields {
		px, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Bounds{}, fmt.Errorf("malformed bounds %q: %w", n.BoundsRaw, err)
		}
		v[i] = px
	}
	return Bounds{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}
