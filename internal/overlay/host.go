// Package overlay implements the editing state machine that drives a proxied
// page: element hover and selection, inline text editing, style application
// and change recording. The DOM itself is behind the Host interface, so the
// state machine runs against a fake document in tests and against the
// injected page shim in production.
package overlay

import "github.com/plsfix/plsfix/pkg/models"

// Host is the capability surface the session uses to mutate the page. All
// calls are fire-and-forget commands; the session has no channel to learn
// whether a command landed.
type Host interface {
	ShowHoverOverlay(rect models.Rect)
	HideHoverOverlay()
	ShowSelectionOverlay(rect models.Rect)
	HideSelectionOverlay()
	ShowEditTooltip(rect models.Rect)
	HideEditTooltip()

	SetAttribute(ref, name, value string)
	RemoveAttribute(ref, name string)
	SetText(ref, text string)
	SetStyles(ref string, styles map[string]string)
	BeginInlineEdit(ref string)

	SetEditMode(enabled bool)
}

// NodeSnapshot is what the page shim reports about an element alongside a
// pointer or click event. Ref is the shim's handle for the live node; the
// session only ever addresses nodes through refs and synthetic ids.
type NodeSnapshot struct {
	Ref            string            `json:"ref"`
	Tag            string            `json:"tag"`
	Visible        bool              `json:"visible"`
	OverlayUI      bool              `json:"overlayUi"`
	AssignedID     string            `json:"assignedId,omitempty"`
	Text           string            `json:"text"`
	XPath          string            `json:"xpath"`
	Selector       string            `json:"selector"`
	Rect           models.Rect       `json:"rect"`
	ComputedStyles map[string]string `json:"computedStyles"`
	InlineStyles   map[string]string `json:"inlineStyles"`
}

// Shim event frame types. These ride the same websocket as bus messages but
// are not part of the bus vocabulary; the session consumes them directly.
const (
	EventPointerOver     = "POINTER_OVER"
	EventPointerOut      = "POINTER_OUT"
	EventClicked         = "ELEMENT_CLICKED"
	EventDoubleClicked   = "ELEMENT_DBLCLICKED"
	EventInlineEditEnded = "INLINE_EDIT_ENDED"
	EventKeyPressed      = "KEY_PRESSED"
	EventSelectionMoved  = "SELECTION_MOVED"
)

type (
	pointerOverPayload struct {
		Node NodeSnapshot `json:"node"`
	}
	pointerOutPayload struct {
		Ref string `json:"ref"`
	}
	inlineEditEndedPayload struct {
		Ref       string `json:"ref"`
		Text      string `json:"text"`
		Committed bool   `json:"committed"`
	}
	keyPressedPayload struct {
		Key  string `json:"key"`
		Meta bool   `json:"meta"`
	}
	selectionMovedPayload struct {
		Rect models.Rect `json:"rect"`
	}
)
