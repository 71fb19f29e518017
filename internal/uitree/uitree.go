// Package uitree defines the read-only UI tree the analyzer walks. Nodes are
// adapted from a host snapshot once; the analyzer never mutates them.
package uitree

import "strings"

// Kind is the closed set of element categories the analyzer distinguishes.
type Kind int

const (
	KindOther Kind = iota
	KindTextView
	KindEditText
	KindButton
	KindImageView
	KindImageButton
	KindCheckBox
)

// MissingID is substituted for nodes whose host identifier is absent.
const MissingID = "N/A"

var kindNames = map[Kind]string{
	KindOther:       "Other",
	KindTextView:    "TextView",
	KindEditText:    "EditText",
	KindButton:      "Button",
	KindImageView:   "ImageView",
	KindImageButton: "ImageButton",
	KindCheckBox:    "CheckBox",
}

// String returns the short widget name used in reports ("Button", "EditText", ...).
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindOther]
}

// MarshalText encodes the kind by name so JSON reports stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any class name ParseKind understands.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ParseKind maps a host class name onto a Kind. Fully qualified names
// ("android.widget.Button"), short names ("Button") and the AppCompat/Material
// subclasses ("androidx.appcompat.widget.AppCompatButton") are recognised.
// Anything else is KindOther.
func ParseKind(className string) Kind {
	name := strings.TrimSpace(className)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "AppCompat")
	name = strings.TrimPrefix(name, "Material")
	for k, s := range kindNames {
		if k != KindOther && s == name {
			return k
		}
	}
	return KindOther
}

// Rect is a screen-space rectangle in raw pixels. Right and Bottom are exclusive.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns Right-Left, never negative.
func (r Rect) Width() int {
	return max(0, r.Right-r.Left)
}

// Height returns Bottom-Top, never negative.
func (r Rect) Height() int {
	return max(0, r.Bottom-r.Top)
}

// Display carries the host's display metrics for one run.
type Display struct {
	// Density is pixels per density-independent unit.
	Density  float64 `json:"density"`
	WidthPx  int     `json:"width_px"`
	HeightPx int     `json:"height_px"`
}

// Node is one element of the UI tree.
type Node struct {
	Kind               Kind    `json:"class_name"`
	ID                 string  `json:"id,omitempty"`
	Bounds             Rect    `json:"bounds"`
	Text               string  `json:"text,omitempty"`
	Hint               string  `json:"hint,omitempty"`
	ContentDescription string  `json:"content_description,omitempty"`
	Children           []*Node `json:"children,omitempty"`

	// Parent is a non-owning back-reference set by Link. It is only used to
	// enumerate siblings.
	Parent *Node `json:"-"`
}

// Identifier returns the node ID or MissingID when absent.
func (n *Node) Identifier() string {
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return MissingID
	}
	return n.ID
}

// Siblings returns the other non-nil children of the node's parent, in order.
func (n *Node) Siblings() []*Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Parent.Children))
	for _, c := range n.Parent.Children {
		if c == nil || c == n {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Link sets the Parent of every node reachable from root. Each node is
// visited at most once so a cyclic tree does not loop; the walker reports
// the cycle itself.
func Link(root *Node) {
	if root == nil {
		return
	}
	seen := map[*Node]bool{root: true}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range n.Children {
			if c == nil || seen[c] {
				continue
			}
			seen[c] = true
			c.Parent = n
			stack = append(stack, c)
		}
	}
}
