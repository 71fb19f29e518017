package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/tmsikora/uiquality/internal/uitree"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// Stealth opens pages with the stealth evasions applied.
	Stealth bool

	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser captures snapshots of live web pages from Chrome's accessibility
// tree. Web pages are measured in CSS pixels, so captured displays use a
// density of 1.
type Browser struct {
	cfg     BrowserConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// OpenBrowser launches or connects to Chrome.
func OpenBrowser(cfg BrowserConfig) (*Browser, error) {
	cfg.defaults()
	b := &Browser{cfg: cfg}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("snapshot: launch browser: %w", err)
		}
		wsURL = u
		b.lnch = l
		cfg.Logger.Info("snapshot: launched local chrome", "url", wsURL)
	} else {
		cfg.Logger.Info("snapshot: connecting to remote chrome", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("snapshot: connect browser: %w", err)
	}
	b.browser = rb
	return b, nil
}

// Close disconnects from Chrome and stops it if it was launched locally.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	b.cleanup()
	return err
}

func (b *Browser) cleanup() {
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch.Cleanup()
		b.lnch = nil
	}
}

func (b *Browser) newPage() (*rod.Page, error) {
	if b.cfg.Stealth {
		return stealth.Page(b.browser)
	}
	return b.browser.Page(proto.TargetCreateTarget{URL: ""})
}

// Capture navigates a fresh tab to pageURL and converts the page's
// accessibility tree into a Snapshot.
func (b *Browser) Capture(ctx context.Context, pageURL string) (*Snapshot, error) {
	log := b.cfg.Logger
	page, err := b.newPage()
	if err != nil {
		return nil, fmt.Errorf("snapshot: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("snapshot: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("snapshot: wait load timeout", "url", pageURL, "error", err)
	}

	p := page.Context(ctx)
	res, err := p.Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: viewport: %w", err)
	}
	display := uitree.Display{
		Density:  1,
		WidthPx:  res.Value.Get("w").Int(),
		HeightPx: res.Value.Get("h").Int(),
	}

	tree, err := proto.AccessibilityGetFullAXTree{}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("snapshot: accessibility tree: %w", err)
	}

	dom := make(map[proto.DOMBackendNodeID]DOMInfo)
	for _, ax := range tree.Nodes {
		if ax.Ignored || ax.BackendDOMNodeID == 0 || RoleKind(axString(ax.Role)) == uitree.KindOther {
			continue
		}
		dom[ax.BackendDOMNodeID] = describe(p, ax.BackendDOMNodeID, log)
	}

	s := FromAXTree(tree.Nodes, dom, display)
	log.Info("snapshot: captured page", "url", pageURL, "ax_nodes", len(tree.Nodes), "elements", len(dom),
		"viewport", fmt.Sprintf("%dx%d", display.WidthPx, display.HeightPx))
	return s, nil
}

// describe reads the border box and the attributes the analyzer needs for
// one DOM node. Lookup failures leave the fields empty.
func describe(p *rod.Page, id proto.DOMBackendNodeID, log *slog.Logger) DOMInfo {
	var info DOMInfo
	box, err := proto.DOMGetBoxModel{BackendNodeID: id}.Call(p)
	if err != nil {
		log.Debug("snapshot: box model unavailable", "backend_node", id, "error", err)
	} else if box.Model != nil {
		info.Bounds = quadRect(box.Model.Border)
	}

	desc, err := proto.DOMDescribeNode{BackendNodeID: id}.Call(p)
	if err != nil || desc.Node == nil {
		return info
	}
	attrs := desc.Node.Attributes
	for i := 0; i+1 < len(attrs); i += 2 {
		switch attrs[i] {
		case "id":
			info.ID = attrs[i+1]
		case "placeholder":
			info.Placeholder = attrs[i+1]
		}
	}
	return info
}

// quadRect returns the axis-aligned bounding box of a DevTools quad
// (four x,y pairs).
func quadRect(q proto.DOMQuad) uitree.Rect {
	if len(q) < 8 {
		return uitree.Rect{}
	}
	minX, minY, maxX, maxY := q[0], q[1], q[0], q[1]
	for i := 2; i+1 < len(q); i += 2 {
		minX, maxX = min(minX, q[i]), max(maxX, q[i])
		minY, maxY = min(minY, q[i+1]), max(maxY, q[i+1])
	}
	return uitree.Rect{Left: int(minX), Top: int(minY), Right: int(maxX + 0.5), Bottom: int(maxY + 0.5)}
}

// DOMInfo is what Capture reads from the DOM for one accessibility node.
type DOMInfo struct {
	Bounds      uitree.Rect
	ID          string
	Placeholder string
}

// RoleKind maps an ARIA or Chrome accessibility role onto a Kind.
func RoleKind(role string) uitree.Kind {
	switch strings.ToLower(role) {
	case "button", "togglebutton", "popupbutton":
		return uitree.KindButton
	case "textbox", "searchbox", "combobox", "textfield", "textfieldwithcombobox":
		return uitree.KindEditText
	case "img", "image":
		return uitree.KindImageView
	case "checkbox", "switch":
		return uitree.KindCheckBox
	case "statictext", "heading", "paragraph", "label":
		return uitree.KindTextView
	default:
		return uitree.KindOther
	}
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil || v.Value.Nil() {
		return ""
	}
	return v.Value.Str()
}

// FromAXTree builds a Snapshot from a DevTools accessibility tree. Ignored
// nodes are dropped and their children attached to the nearest kept
// ancestor. The descendants of controls are presentational and skipped.
func FromAXTree(nodes []*proto.AccessibilityAXNode, dom map[proto.DOMBackendNodeID]DOMInfo, display uitree.Display) *Snapshot {
	s := &Snapshot{Display: display}
	if len(nodes) == 0 {
		return s
	}

	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	var top *proto.AccessibilityAXNode
	for _, n := range nodes {
		if n == nil {
			continue
		}
		byID[n.NodeID] = n
		if top == nil && n.ParentID == "" {
			top = n
		}
	}
	if top == nil {
		top = nodes[0]
	}

	seen := make(map[proto.AccessibilityAXNodeID]bool, len(nodes))
	var build func(ax *proto.AccessibilityAXNode) []*uitree.Node
	build = func(ax *proto.AccessibilityAXNode) []*uitree.Node {
		if seen[ax.NodeID] {
			return nil
		}
		seen[ax.NodeID] = true

		var node *uitree.Node
		if !ax.Ignored {
			node = convertAX(ax, dom[ax.BackendDOMNodeID])
			if node.Kind != uitree.KindOther && node.Kind != uitree.KindTextView {
				return []*uitree.Node{node}
			}
		}
		var kids []*uitree.Node
		for _, id := range ax.ChildIDs {
			if c, ok := byID[id]; ok {
				kids = append(kids, build(c)...)
			}
		}
		if node == nil {
			return kids
		}
		node.Children = kids
		return []*uitree.Node{node}
	}

	roots := build(top)
	switch len(roots) {
	case 0:
	case 1:
		s.Root = roots[0]
	default:
		s.Root = &uitree.Node{
			Kind:     uitree.KindOther,
			Bounds:   uitree.Rect{Right: display.WidthPx, Bottom: display.HeightPx},
			Children: roots,
		}
	}
	if s.Root != nil && s.Root.Bounds == (uitree.Rect{}) {
		s.Root.Bounds = uitree.Rect{Right: display.WidthPx, Bottom: display.HeightPx}
	}
	uitree.Link(s.Root)
	return s
}

func convertAX(ax *proto.AccessibilityAXNode, info DOMInfo) *uitree.Node {
	kind := RoleKind(axString(ax.Role))
	name := axString(ax.Name)
	n := &uitree.Node{Kind: kind, ID: info.ID, Bounds: info.Bounds}
	switch kind {
	case uitree.KindEditText:
		n.Text = axString(ax.Value)
		n.Hint = info.Placeholder
		if n.Hint == "" {
			n.Hint = axString(ax.Description)
		}
		if n.Hint == "" {
			n.Hint = name
		}
	case uitree.KindImageView, uitree.KindCheckBox:
		n.ContentDescription = name
	case uitree.KindButton, uitree.KindTextView:
		n.Text = name
	}
	return n
}
