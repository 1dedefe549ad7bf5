// Package bus is the typed publish/subscribe layer the overlay and the
// sidepanel communicate over. Senders and receivers may live in different
// contexts: in-process state machines and remote page shims attached over a
// websocket are bridged onto the same bus.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/plsfix/plsfix/pkg/models"
)

// Source identifies which of the two logical roles sent a message.
type Source string

const (
	SourcePanel   Source = "plsfix-panel"
	SourceContent Source = "plsfix-content"
)

// Type is a message type from the closed editor vocabulary.
type Type string

const (
	ElementSelected   Type = "ELEMENT_SELECTED"
	ElementDeselected Type = "ELEMENT_DESELECTED"
	ChangeRecorded    Type = "CHANGE_RECORDED"
	ApplyText         Type = "APPLY_TEXT"
	ApplyStyle        Type = "APPLY_STYLE"
	RevertChange      Type = "REVERT_CHANGE"
	ToggleEditMode    Type = "TOGGLE_EDIT_MODE"
	Ready             Type = "PLSFIX_READY"

	// Wildcard subscribes a handler to every vocabulary type.
	Wildcard Type = "*"
)

var vocabulary = map[Type]bool{
	ElementSelected:   true,
	ElementDeselected: true,
	ChangeRecorded:    true,
	ApplyText:         true,
	ApplyStyle:        true,
	RevertChange:      true,
	ToggleEditMode:    true,
	Ready:             true,
}

// Known reports whether t belongs to the recognized vocabulary. Receivers
// drop anything else; unrelated traffic may share the transport.
func Known(t Type) bool { return vocabulary[t] }

// Message is one bus datagram. Payload stays raw until a receiver decodes it
// into the payload type matching Type.
type Message struct {
	Type    Type            `json:"type"`
	Source  Source          `json:"source"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("bus: %s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("bus: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Payload shapes, one per vocabulary type that carries data.
type (
	ElementSelectedPayload struct {
		Element models.ElementInfo `json:"element"`
	}
	ChangeRecordedPayload struct {
		Change models.Change `json:"change"`
	}
	ApplyTextPayload struct {
		ElementID string `json:"elementId"`
		Text      string `json:"text"`
	}
	ApplyStylePayload struct {
		ElementID string            `json:"elementId"`
		Styles    map[string]string `json:"styles"`
	}
	RevertChangePayload struct {
		ChangeID string `json:"changeId"`
	}
	ToggleEditModePayload struct {
		Enabled bool `json:"enabled"`
	}
)
