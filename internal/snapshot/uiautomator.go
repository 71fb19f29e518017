package snapshot

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/tmsikora/uiquality/internal/uitree"
)

// DefaultDensity is assumed for uiautomator dumps when the caller gives none.
// 2.625 is the xxhdpi density of a typical 1080x1920 phone.
const DefaultDensity = 2.625

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

type xmlNode struct {
	Class       string    `xml:"class,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Text        string    `xml:"text,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	Hint        string    `xml:"hint,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Nodes       []xmlNode `xml:"node"`
}

var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// parseBounds reads uiautomator's "[left,top][right,bottom]" notation.
func parseBounds(s string) (uitree.Rect, error) {
	m := boundsRe.FindStringSubmatch(s)
	if m == nil {
		return uitree.Rect{}, fmt.Errorf("snapshot: malformed bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return uitree.Rect{}, fmt.Errorf("snapshot: bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return uitree.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

func (x xmlNode) toNode() (*uitree.Node, error) {
	r, err := parseBounds(x.Bounds)
	if err != nil {
		return nil, err
	}
	n := &uitree.Node{
		Kind:               uitree.ParseKind(x.Class),
		ID:                 x.ResourceID,
		Bounds:             r,
		Text:               x.Text,
		Hint:               x.Hint,
		ContentDescription: x.ContentDesc,
	}
	for _, c := range x.Nodes {
		child, err := c.toNode()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// DecodeUIAutomator reads an Android "uiautomator dump" hierarchy. The
// screen size is taken from the extent of the top-level windows; density is
// not part of the dump, so the caller supplies it (DefaultDensity when <= 0).
// A dump with several top-level windows is wrapped in a synthetic root.
func DecodeUIAutomator(r io.Reader, density float64) (*Snapshot, error) {
	if density <= 0 {
		density = DefaultDensity
	}
	var h xmlHierarchy
	if err := xml.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("snapshot: decode uiautomator: %w", err)
	}

	s := &Snapshot{Display: uitree.Display{Density: density}}
	var tops []*uitree.Node
	for _, x := range h.Nodes {
		n, err := x.toNode()
		if err != nil {
			return nil, err
		}
		s.Display.WidthPx = max(s.Display.WidthPx, n.Bounds.Right)
		s.Display.HeightPx = max(s.Display.HeightPx, n.Bounds.Bottom)
		tops = append(tops, n)
	}

	switch len(tops) {
	case 0:
	case 1:
		s.Root = tops[0]
	default:
		s.Root = &uitree.Node{
			Kind:     uitree.KindOther,
			Bounds:   uitree.Rect{Right: s.Display.WidthPx, Bottom: s.Display.HeightPx},
			Children: tops,
		}
	}
	uitree.Link(s.Root)
	return s, nil
}
