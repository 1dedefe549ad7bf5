package panel

import (
	"sync"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
)

type renderFrame struct {
	Type    string        `json:"type"`
	Payload renderPayload `json:"payload"`
}

type renderPayload struct {
	HTML string `json:"html"`
}

// RemoteOutput pushes rendered panel markup to the panel shim over its
// websocket. The connection binds once the shim dials in; renders before
// that are dropped, the shim requests a fresh render on attach.
type RemoteOutput struct {
	mu   sync.Mutex
	conn *bus.Conn
	log  *zap.Logger
}

// NewRemoteOutput creates an output with no connection bound yet.
func NewRemoteOutput(log *zap.Logger) *RemoteOutput {
	return &RemoteOutput{log: log}
}

// Bind attaches the panel connection.
func (o *RemoteOutput) Bind(conn *bus.Conn) {
	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
}

// Unbind detaches the connection.
func (o *RemoteOutput) Unbind() {
	o.mu.Lock()
	o.conn = nil
	o.mu.Unlock()
}

// PushRender sends the rendered markup to the shim.
func (o *RemoteOutput) PushRender(html string) {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil {
		return
	}
	frame := renderFrame{Type: FramePanelRender, Payload: renderPayload{HTML: html}}
	if err := conn.WriteFrame(frame); err != nil {
		o.log.Debug("panel render dropped", zap.Error(err))
	}
}
