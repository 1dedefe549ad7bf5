// Package panel implements the sidepanel: the editing UI surface that shows
// the selected element and the running change list. The panel never mutates
// the proxied DOM itself; every edit goes out over the message bus and its
// state only advances on confirmation messages from the overlay, which stays
// the single source of truth for DOM state.
package panel

import (
	"sync"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/pkg/models"
)

// Tab identifies one of the panel tabs.
type Tab string

const (
	TabDesign  Tab = "design"
	TabChanges Tab = "changes"
	TabPR      Tab = "pr"
	TabAI      Tab = "ai"
)

// Panel client frame types. Like the overlay's shim events these ride the
// websocket but stay off the bus.
const (
	FrameSetTab      = "SET_TAB"
	FramePanelToggle = "PANEL_TOGGLED"
	FramePanelRender = "PANEL_RENDER"
)

type (
	setTabPayload struct {
		Tab Tab `json:"tab"`
	}
	panelTogglePayload struct {
		Open bool `json:"open"`
	}
)

// Output receives rendered panel markup for display.
type Output interface {
	PushRender(html string)
}

// Panel is the sidepanel state machine for one editing session.
type Panel struct {
	mu       sync.Mutex
	log      *zap.Logger
	bus      *bus.Bus
	endpoint *bus.Endpoint
	unsubs   []func()
	output   Output

	open     bool
	tab      Tab
	selected *models.ElementInfo
	changes  []models.Change
}

// New creates a panel bound to b, subscribed to the overlay's confirmation
// messages.
func New(b *bus.Bus, output Output, log *zap.Logger) *Panel {
	p := &Panel{
		log:      log,
		bus:      b,
		endpoint: b.Endpoint(bus.SourcePanel),
		output:   output,
		open:     true,
		tab:      TabDesign,
	}

	p.unsubs = append(p.unsubs,
		p.endpoint.On(bus.ElementSelected, p.onElementSelected),
		p.endpoint.On(bus.ElementDeselected, p.onElementDeselected),
		p.endpoint.On(bus.ChangeRecorded, p.onChangeRecorded),
	)
	return p
}

// Close removes the panel's bus subscriptions.
func (p *Panel) Close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
}

// HandleFrame is the hub sink for the panel connection. Bus-vocabulary frames
// (APPLY_TEXT per keystroke, APPLY_STYLE on field blur, REVERT_CHANGE,
// TOGGLE_EDIT_MODE) are relayed onto the bus; tab switches and open/close are
// presentation state handled locally.
func (p *Panel) HandleFrame(msg bus.Message) {
	if bus.Known(msg.Type) {
		p.bus.Publish(msg)
		return
	}

	switch string(msg.Type) {
	case FrameSetTab:
		var in setTabPayload
		if msg.Decode(&in) == nil {
			p.SetTab(in.Tab)
		}
	case FramePanelToggle:
		var in panelTogglePayload
		if msg.Decode(&in) == nil {
			p.SetOpen(in.Open)
		}
	default:
		p.log.Debug("unrecognized panel frame dropped", zap.String("type", string(msg.Type)))
	}
}

// SetTab switches the active tab.
func (p *Panel) SetTab(tab Tab) {
	switch tab {
	case TabDesign, TabChanges, TabPR, TabAI:
	default:
		return
	}
	p.mu.Lock()
	p.tab = tab
	html := p.renderLocked()
	p.mu.Unlock()
	p.push(html)
}

// SetOpen opens or collapses the panel.
func (p *Panel) SetOpen(open bool) {
	p.mu.Lock()
	p.open = open
	html := p.renderLocked()
	p.mu.Unlock()
	p.push(html)
}

// Selected returns the currently selected element, or nil.
func (p *Panel) Selected() *models.ElementInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return nil
	}
	el := *p.selected
	return &el
}

// Changes returns the recorded change list as the panel knows it.
func (p *Panel) Changes() []models.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Change, len(p.changes))
	copy(out, p.changes)
	return out
}

// EditText pushes the design tab's text field value to the overlay. Called on
// every keystroke; the change list itself only updates when the overlay
// confirms with CHANGE_RECORDED.
func (p *Panel) EditText(text string) {
	id, ok := p.selectedID()
	if !ok {
		return
	}
	p.send(bus.ApplyText, bus.ApplyTextPayload{ElementID: id, Text: text})
}

// CommitStyleField pushes one style property. Called when a style field loses
// focus, not per keystroke, to avoid flooding intermediate values.
func (p *Panel) CommitStyleField(property, value string) {
	id, ok := p.selectedID()
	if !ok {
		return
	}
	p.send(bus.ApplyStyle, bus.ApplyStylePayload{
		ElementID: id,
		Styles:    map[string]string{property: value},
	})
}

// RequestRevert asks the overlay to revert a change. Declared capability; the
// overlay currently drops it.
func (p *Panel) RequestRevert(changeID string) {
	p.send(bus.RevertChange, bus.RevertChangePayload{ChangeID: changeID})
}

// RequestEditMode toggles edit mode on the overlay.
func (p *Panel) RequestEditMode(enabled bool) {
	p.send(bus.ToggleEditMode, bus.ToggleEditModePayload{Enabled: enabled})
}

// selectedID reads the selected element id without holding the lock across a
// bus send.
func (p *Panel) selectedID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return "", false
	}
	return p.selected.ID, true
}

func (p *Panel) send(t bus.Type, payload any) {
	if err := p.endpoint.Send(t, payload); err != nil {
		p.log.Warn("bus send failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func (p *Panel) push(html string) {
	if p.output != nil {
		p.output.PushRender(html)
	}
}

func (p *Panel) onElementSelected(msg bus.Message) {
	var in bus.ElementSelectedPayload
	if err := msg.Decode(&in); err != nil {
		p.log.Debug("malformed ELEMENT_SELECTED dropped", zap.Error(err))
		return
	}
	p.mu.Lock()
	el := in.Element
	p.selected = &el
	html := p.renderLocked()
	p.mu.Unlock()
	p.push(html)
}

func (p *Panel) onElementDeselected(bus.Message) {
	p.mu.Lock()
	p.selected = nil
	html := p.renderLocked()
	p.mu.Unlock()
	p.push(html)
}

// onChangeRecorded coalesces by (elementId, type): a repeat replaces the
// existing entry in place instead of appending a duplicate.
func (p *Panel) onChangeRecorded(msg bus.Message) {
	var in bus.ChangeRecordedPayload
	if err := msg.Decode(&in); err != nil {
		p.log.Debug("malformed CHANGE_RECORDED dropped", zap.Error(err))
		return
	}

	p.mu.Lock()
	replaced := false
	for i, existing := range p.changes {
		if existing.ElementID == in.Change.ElementID && existing.Type == in.Change.Type {
			p.changes[i] = in.Change
			replaced = true
			break
		}
	}
	if !replaced {
		p.changes = append(p.changes, in.Change)
	}
	html := p.renderLocked()
	p.mu.Unlock()
	p.push(html)
}
