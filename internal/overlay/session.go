package overlay

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/pkg/models"
)

const (
	attrID       = "data-plsfix-id"
	attrSelected = "data-plsfix-selected"

	// How far the edit tooltip sits above the selected element.
	tooltipOffset = 40

	// Delay between the shim reporting ready and edit mode enabling, giving
	// the panel time to attach.
	autoEnableDelay = 500 * time.Millisecond

	maxTextSnippet = 100
)

// Tags that never qualify for hover or selection.
var skipTags = map[string]bool{
	"SCRIPT": true, "STYLE": true, "NOSCRIPT": true, "SVG": true,
	"PATH": true, "META": true, "LINK": true, "HEAD": true, "HTML": true,
}

// trackedElement is the session's record of an element that has been touched
// by the editor. Text and Inline mirror the live DOM as far as the session
// has driven it.
type trackedElement struct {
	ID       string
	Ref      string
	Tag      string
	XPath    string
	Selector string
	Text     string
	Inline   map[string]string
}

// originalState is the pre-edit snapshot taken the first time an element is
// selected. Change originals are derived from it.
type originalState struct {
	Text   string
	Styles map[string]string
}

type inlineEdit struct {
	id        string
	startText string
}

// Session owns all editing state for one proxied page load. It reacts to shim
// events and to panel commands arriving over the bus, mutates the page
// through its Host, and emits confirmation messages back onto the bus.
type Session struct {
	mu       sync.Mutex
	log      *zap.Logger
	host     Host
	bus      *bus.Bus
	endpoint *bus.Endpoint
	unsubs   []func()

	enabled    bool
	hoveredRef string
	selected   *trackedElement
	elements   map[string]*trackedElement
	originals  map[string]originalState
	changes    *ChangeLog
	editing    *inlineEdit

	newID func() string
}

// NewSession creates a session wired to b and host and subscribes it to the
// panel-originated command types.
func NewSession(b *bus.Bus, host Host, log *zap.Logger) *Session {
	s := &Session{
		log:       log,
		host:      host,
		bus:       b,
		endpoint:  b.Endpoint(bus.SourceContent),
		elements:  make(map[string]*trackedElement),
		originals: make(map[string]originalState),
		changes:   NewChangeLog(),
		newID:     newElementID,
	}

	s.unsubs = append(s.unsubs,
		s.endpoint.On(bus.ApplyText, s.onApplyText),
		s.endpoint.On(bus.ApplyStyle, s.onApplyStyle),
		s.endpoint.On(bus.RevertChange, s.onRevertChange),
		s.endpoint.On(bus.ToggleEditMode, s.onToggleEditMode),
	)
	return s
}

// newElementID produces a synthetic element id. Stamped onto the element via
// data-plsfix-id so repeated selection reuses it.
func newElementID() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		panic("overlay: crypto/rand failed: " + err.Error())
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return fmt.Sprintf("plsfix-%d-%s", time.Now().UnixMilli(), buf)
}

// Close tears the session down: listeners removed, overlays hidden.
func (s *Session) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.Disable()
}

// HandleFrame is the hub sink for the content connection. Vocabulary messages
// are relayed onto the bus; everything else is treated as a shim event.
func (s *Session) HandleFrame(msg bus.Message) {
	if bus.Known(msg.Type) {
		if msg.Type == bus.Ready {
			// Auto-enable edit mode shortly after the proxied page loads.
			time.AfterFunc(autoEnableDelay, s.Enable)
		}
		s.bus.Publish(msg)
		return
	}

	switch string(msg.Type) {
	case EventPointerOver:
		var p pointerOverPayload
		if msg.Decode(&p) == nil {
			s.PointerOver(p.Node)
		}
	case EventPointerOut:
		var p pointerOutPayload
		if msg.Decode(&p) == nil {
			s.PointerOut(p.Ref)
		}
	case EventClicked:
		var p pointerOverPayload
		if msg.Decode(&p) == nil {
			s.Click(p.Node)
		}
	case EventDoubleClicked:
		var p pointerOverPayload
		if msg.Decode(&p) == nil {
			s.DoubleClick(p.Node)
		}
	case EventInlineEditEnded:
		var p inlineEditEndedPayload
		if msg.Decode(&p) == nil {
			s.InlineEditEnded(p.Ref, p.Text, p.Committed)
		}
	case EventKeyPressed:
		var p keyPressedPayload
		if msg.Decode(&p) == nil {
			s.Key(p.Key, p.Meta)
		}
	case EventSelectionMoved:
		var p selectionMovedPayload
		if msg.Decode(&p) == nil {
			s.SelectionMoved(p.Rect)
		}
	default:
		s.log.Debug("unrecognized shim frame dropped", zap.String("type", string(msg.Type)))
	}
}

// Enable turns edit mode on.
func (s *Session) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return
	}
	s.enabled = true
	s.host.SetEditMode(true)
	s.log.Debug("edit mode enabled")
}

// Disable turns edit mode off and clears all transient visual state.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.enabled = false
	s.clearSelectionLocked()
	s.hoveredRef = ""
	s.host.HideHoverOverlay()
	s.host.SetEditMode(false)
	s.log.Debug("edit mode disabled")
}

// Enabled reports whether edit mode is on.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Changes returns the recorded change list.
func (s *Session) Changes() []models.Change { return s.changes.List() }

func validNode(n NodeSnapshot) bool {
	if n.Tag == "" || n.OverlayUI || !n.Visible {
		return false
	}
	return !skipTags[strings.ToUpper(n.Tag)]
}

// PointerOver draws the dashed hover overlay for a valid, non-selected node.
func (s *Session) PointerOver(n NodeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || !validNode(n) {
		return
	}
	if s.selected != nil && s.selected.Ref == n.Ref {
		return
	}
	s.hoveredRef = n.Ref
	s.host.ShowHoverOverlay(n.Rect)
}

// PointerOut clears the hover overlay when the pointer leaves the hovered
// node.
func (s *Session) PointerOut(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref != s.hoveredRef {
		return
	}
	s.hoveredRef = ""
	s.host.HideHoverOverlay()
}

// Click selects a valid node: assigns a synthetic id on first touch (and
// snapshots the original text and computed styles at that moment), marks it,
// draws the solid overlay plus edit tooltip and announces ELEMENT_SELECTED.
func (s *Session) Click(n NodeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || n.OverlayUI || !validNode(n) {
		return
	}

	if s.selected != nil && s.selected.Ref != n.Ref {
		s.host.RemoveAttribute(s.selected.Ref, attrSelected)
	}

	id := n.AssignedID
	if id == "" {
		id = s.newID()
		s.host.SetAttribute(n.Ref, attrID, id)
	}
	if _, ok := s.originals[id]; !ok {
		s.originals[id] = originalState{
			Text:   n.Text,
			Styles: cloneStyles(n.ComputedStyles),
		}
	}

	el := &trackedElement{
		ID:       id,
		Ref:      n.Ref,
		Tag:      n.Tag,
		XPath:    n.XPath,
		Selector: n.Selector,
		Text:     n.Text,
		Inline:   cloneStyles(n.InlineStyles),
	}
	if el.Inline == nil {
		el.Inline = make(map[string]string)
	}
	s.elements[id] = el
	s.selected = el

	s.host.SetAttribute(n.Ref, attrSelected, "true")
	s.host.ShowSelectionOverlay(n.Rect)
	s.host.ShowEditTooltip(tooltipRect(n.Rect))
	s.host.HideHoverOverlay()

	s.send(bus.ElementSelected, bus.ElementSelectedPayload{Element: elementInfo(n, id)})
}

func tooltipRect(r models.Rect) models.Rect {
	return models.Rect{Left: r.Left, Top: r.Top - tooltipOffset}
}

func elementInfo(n NodeSnapshot, id string) models.ElementInfo {
	text := n.Text
	if len(text) > maxTextSnippet {
		// Truncate on a rune boundary so multi-byte text stays valid.
		runes := []rune(text)
		if len(runes) > maxTextSnippet {
			runes = runes[:maxTextSnippet]
		}
		text = string(runes)
	}
	return models.ElementInfo{
		ID:             id,
		TagName:        n.Tag,
		XPath:          n.XPath,
		Selector:       n.Selector,
		TextContent:    text,
		ComputedStyles: cloneStyles(n.ComputedStyles),
		BoundingRect:   n.Rect,
	}
}

// SelectionMoved tracks scroll/resize of the host document so the selection
// overlay stays aligned with the selected element.
func (s *Session) SelectionMoved(rect models.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return
	}
	s.host.ShowSelectionOverlay(rect)
	s.host.ShowEditTooltip(tooltipRect(rect))
}

// ClearSelection deselects the current element and announces it.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSelectionLocked()
}

func (s *Session) clearSelectionLocked() {
	if s.selected != nil {
		s.host.RemoveAttribute(s.selected.Ref, attrSelected)
		s.selected = nil
	}
	s.host.HideSelectionOverlay()
	s.host.HideEditTooltip()
	s.send(bus.ElementDeselected, nil)
}

// DoubleClick starts inline editing of the already-selected node.
func (s *Session) DoubleClick(n NodeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || !validNode(n) {
		return
	}
	if s.selected == nil || s.selected.Ref != n.Ref {
		return
	}
	s.editing = &inlineEdit{id: s.selected.ID, startText: n.Text}
	s.host.BeginInlineEdit(n.Ref)
}

// InlineEditEnded finishes an inline edit. A committed edit whose text
// differs from the pre-edit text records a text change; a cancelled edit
// (Escape) restores the pre-edit text and records nothing.
func (s *Session) InlineEditEnded(ref, text string, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edit := s.editing
	s.editing = nil
	if edit == nil {
		return
	}
	el, ok := s.elements[edit.id]
	if !ok || el.Ref != ref {
		return
	}
	if !committed {
		s.host.SetText(el.Ref, edit.startText)
		el.Text = edit.startText
		return
	}
	el.Text = text
	if text != edit.startText {
		s.recordText(el, edit.startText, text)
	}
}

// Key handles the session-level shortcuts: Escape clears the selection,
// meta/ctrl+K is reserved for the future AI edit trigger.
func (s *Session) Key(key string, meta bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	switch {
	case key == "Escape":
		s.clearSelectionLocked()
	case meta && (key == "k" || key == "K"):
		s.log.Debug("ai edit shortcut pressed, not implemented")
	}
}

// ApplyText sets the text of a tracked element and records the change.
// Unknown ids are silent no-ops: there is no channel to report failure.
func (s *Session) ApplyText(elementID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[elementID]
	if !ok {
		s.log.Debug("apply text for unknown element dropped", zap.String("elementId", elementID))
		return
	}
	before := el.Text
	s.host.SetText(el.Ref, text)
	el.Text = text
	if text != before {
		s.recordText(el, before, text)
	}
}

// ApplyStyle writes the given properties onto the element's inline style and
// records a style change. Baselines come from the first-selection snapshot
// for untouched properties, or from the current inline value for properties
// the editor already set, so chained edits keep the true original.
func (s *Session) ApplyStyle(elementID string, styles map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[elementID]
	if !ok {
		s.log.Debug("apply style for unknown element dropped", zap.String("elementId", elementID))
		return
	}

	original := make(map[string]string, len(styles))
	orig := s.originals[elementID]
	for prop, value := range styles {
		baseline := el.Inline[prop]
		if baseline == "" {
			baseline = orig.Styles[prop]
		}
		original[prop] = baseline
		el.Inline[prop] = value
	}

	s.host.SetStyles(el.Ref, styles)
	ch := s.changes.RecordStyle(el, original, cloneStyles(styles))
	s.send(bus.ChangeRecorded, bus.ChangeRecordedPayload{Change: ch})
}

func (s *Session) recordText(el *trackedElement, before, after string) {
	ch := s.changes.RecordText(el, before, after)
	s.send(bus.ChangeRecorded, bus.ChangeRecordedPayload{Change: ch})
}

func (s *Session) send(t bus.Type, payload any) {
	if err := s.endpoint.Send(t, payload); err != nil {
		s.log.Warn("bus send failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func (s *Session) onApplyText(msg bus.Message) {
	var p bus.ApplyTextPayload
	if err := msg.Decode(&p); err != nil {
		s.log.Debug("malformed APPLY_TEXT dropped", zap.Error(err))
		return
	}
	s.ApplyText(p.ElementID, p.Text)
}

func (s *Session) onApplyStyle(msg bus.Message) {
	var p bus.ApplyStylePayload
	if err := msg.Decode(&p); err != nil {
		s.log.Debug("malformed APPLY_STYLE dropped", zap.Error(err))
		return
	}
	s.ApplyStyle(p.ElementID, p.Styles)
}

// onRevertChange acknowledges the declared-but-unimplemented revert
// capability. The change log keeps originals intact so a future revert can
// restore from them.
func (s *Session) onRevertChange(msg bus.Message) {
	var p bus.RevertChangePayload
	if err := msg.Decode(&p); err != nil {
		return
	}
	s.log.Info("revert requested, not implemented", zap.String("changeId", p.ChangeID))
}

func (s *Session) onToggleEditMode(msg bus.Message) {
	var p bus.ToggleEditModePayload
	if err := msg.Decode(&p); err != nil {
		return
	}
	if p.Enabled {
		s.Enable()
	} else {
		s.Disable()
	}
}
