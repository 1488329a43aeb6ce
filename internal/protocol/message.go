// Package protocol defines the tagged messages the runtime emits for the menu
// overlay and the few it accepts back.
// CRC: crc-Protocol.md
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/zot/radial/internal/action"
)

// MessageType identifies the type of protocol message.
type MessageType string

const (
	// Emitted by the runtime
	MsgFrame       MessageType = "frame"
	MsgClear       MessageType = "clear"
	MsgLog         MessageType = "log"
	MsgMenuOpen    MessageType = "menu.open"
	MsgMenuClose   MessageType = "menu.close"
	MsgMenuOptions MessageType = "menu.options"
	MsgMenuSize    MessageType = "menu.size"
	MsgMenuMessage MessageType = "menu.message"
	MsgMenuFocus   MessageType = "menu.focus"
	MsgError       MessageType = "error"

	// Accepted from clients
	MsgRun      MessageType = "run"
	MsgClearAll MessageType = "clear-all"
)

// Message is the base protocol message structure.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// FrameMessage is one canvas frame; Pixels is RGBA, 4 bytes per pixel.
type FrameMessage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

// LogMessage is a script log line.
type LogMessage struct {
	Level  string `json:"level"`
	Module string `json:"module,omitempty"`
	Text   string `json:"text"`
}

// MenuOpenMessage asks the overlay to show a menu.
type MenuOpenMessage struct {
	Options []action.MenuOptionData `json:"options,omitempty"`
}

// MenuOptionsMessage replaces the visible options.
type MenuOptionsMessage struct {
	Options []action.MenuOptionData `json:"options"`
}

// MenuSizeMessage resizes the menu.
type MenuSizeMessage struct {
	Size int `json:"size"`
}

// MenuTextMessage shows a message in the menu center.
type MenuTextMessage struct {
	Text       string `json:"text"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// MenuFocusMessage highlights an option.
type MenuFocusMessage struct {
	ID string `json:"id"`
}

// RunMessage asks the runtime to run an action.
type RunMessage struct {
	Action string `json:"action"`
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ParseMessage parses a raw JSON message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// NewMessage creates a new message with the given type and data.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Message{Type: msgType, Data: raw}, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decoding %s message: %w", m.Type, err)
	}
	return nil
}

// Encode serializes a message to JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
