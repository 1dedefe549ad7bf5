package models

// Rect is a bounding rectangle in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StyleProperties is the fixed set of computed style properties the editor
// snapshots and lets the panel edit.
var StyleProperties = []string{
	"fontFamily", "fontWeight", "fontSize", "color", "backgroundColor",
	"textAlign", "fontStyle", "textDecoration", "width", "height",
	"paddingTop", "paddingRight", "paddingBottom", "paddingLeft",
	"marginTop", "marginRight", "marginBottom", "marginLeft",
}

// ElementInfo describes the currently selected DOM element. It lives only in
// overlay and panel memory and is replaced whenever a new element is clicked.
type ElementInfo struct {
	ID             string            `json:"id"`
	TagName        string            `json:"tagName"`
	XPath          string            `json:"xpath"`
	Selector       string            `json:"selector"`
	TextContent    string            `json:"textContent"`
	ComputedStyles map[string]string `json:"computedStyles"`
	BoundingRect   Rect              `json:"boundingRect"`
}

// ChangeType distinguishes text edits from style edits.
type ChangeType string

const (
	ChangeText  ChangeType = "text"
	ChangeStyle ChangeType = "style"
)

// ChangeSnapshot carries either a text value or a partial style map,
// never both.
type ChangeSnapshot struct {
	TextContent *string           `json:"textContent,omitempty"`
	Styles      map[string]string `json:"styles,omitempty"`
}

// Change is one recorded semantic edit. At most one Change exists per
// (ElementID, Type) pair; later edits to the same pair update Modified in
// place while Original keeps the value from before the first edit.
type Change struct {
	ID         string         `json:"id"`
	Type       ChangeType     `json:"type"`
	ElementID  string         `json:"elementId"`
	ElementTag string         `json:"elementTag"`
	XPath      string         `json:"xpath"`
	Selector   string         `json:"selector"`
	Timestamp  int64          `json:"timestamp"`
	Original   ChangeSnapshot `json:"original"`
	Modified   ChangeSnapshot `json:"modified"`
}
