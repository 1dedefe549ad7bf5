package overlay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/pkg/models"
)

// FrameHostCommand is the frame type carrying Host commands to the page shim.
const FrameHostCommand = "HOST_COMMAND"

// HostCommand is one DOM instruction for the shim. Op selects the action;
// the other fields are op-specific.
type HostCommand struct {
	Op      string            `json:"op"`
	Ref     string            `json:"ref,omitempty"`
	Name    string            `json:"name,omitempty"`
	Value   string            `json:"value,omitempty"`
	Text    *string           `json:"text,omitempty"`
	Rect    *models.Rect      `json:"rect,omitempty"`
	Styles  map[string]string `json:"styles,omitempty"`
	Enabled bool              `json:"enabled,omitempty"`
}

type hostFrame struct {
	Type    string      `json:"type"`
	Payload HostCommand `json:"payload"`
}

// RemoteHost implements Host by sending command frames to the page shim over
// its websocket. The connection binds after the session exists (the shim
// dials in once the page runs); commands issued before then are dropped,
// consistent with the fire-and-forget contract.
type RemoteHost struct {
	mu   sync.Mutex
	conn *bus.Conn
	log  *zap.Logger
}

// NewRemoteHost creates a host with no connection bound yet.
func NewRemoteHost(log *zap.Logger) *RemoteHost {
	return &RemoteHost{log: log}
}

// Bind attaches the content connection.
func (h *RemoteHost) Bind(conn *bus.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

// Unbind detaches the connection, e.g. when the shim disconnects.
func (h *RemoteHost) Unbind() {
	h.mu.Lock()
	h.conn = nil
	h.mu.Unlock()
}

func (h *RemoteHost) send(cmd HostCommand) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteFrame(hostFrame{Type: FrameHostCommand, Payload: cmd}); err != nil {
		h.log.Debug("host command dropped", zap.String("op", cmd.Op), zap.Error(err))
	}
}

func (h *RemoteHost) ShowHoverOverlay(rect models.Rect) {
	h.send(HostCommand{Op: "showHover", Rect: &rect})
}

func (h *RemoteHost) HideHoverOverlay() { h.send(HostCommand{Op: "hideHover"}) }

func (h *RemoteHost) ShowSelectionOverlay(rect models.Rect) {
	h.send(HostCommand{Op: "showSelection", Rect: &rect})
}

func (h *RemoteHost) HideSelectionOverlay() { h.send(HostCommand{Op: "hideSelection"}) }

func (h *RemoteHost) ShowEditTooltip(rect models.Rect) {
	h.send(HostCommand{Op: "showTooltip", Rect: &rect})
}

func (h *RemoteHost) HideEditTooltip() { h.send(HostCommand{Op: "hideTooltip"}) }

func (h *RemoteHost) SetAttribute(ref, name, value string) {
	h.send(HostCommand{Op: "setAttr", Ref: ref, Name: name, Value: value})
}

func (h *RemoteHost) RemoveAttribute(ref, name string) {
	h.send(HostCommand{Op: "removeAttr", Ref: ref, Name: name})
}

func (h *RemoteHost) SetText(ref, text string) {
	h.send(HostCommand{Op: "setText", Ref: ref, Text: &text})
}

func (h *RemoteHost) SetStyles(ref string, styles map[string]string) {
	h.send(HostCommand{Op: "setStyles", Ref: ref, Styles: styles})
}

func (h *RemoteHost) BeginInlineEdit(ref string) {
	h.send(HostCommand{Op: "beginInlineEdit", Ref: ref})
}

func (h *RemoteHost) SetEditMode(enabled bool) {
	h.send(HostCommand{Op: "setEditMode", Enabled: enabled})
}
