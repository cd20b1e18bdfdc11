package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Known envelope type discriminators.
const (
	// Commands sent by the relay to a peer.
	TypeExecuteScript  = "execute_script"
	TypeInspectElement = "inspect_element"
	TypeTakeScreenshot = "take_screenshot"

	// Replies posted by a peer in answer to a command.
	TypeScriptResult     = "script_result"
	TypeInspectResult    = "inspect_result"
	TypeScreenshotResult = "screenshot_result"

	// Lifecycle and telemetry produced by a peer.
	TypeConnectionEstablished = "connection_established"
	TypePageLoad              = "page_load"
	TypeConsole               = "console"
	TypeError                 = "error"
	TypeTabUpdated            = "tab_updated"
	TypeTabActivated          = "tab_activated"
	TypeDOMMutation           = "dom_mutation"
	TypeNetworkRequest        = "network_request"
)

const (
	fieldType      = "type"
	fieldTimestamp = "timestamp"
	fieldTabID     = "tabId"
)

// Envelope is the unit exchanged over a connection in both directions.
//
// On the wire it is a flat JSON object: the type, timestamp and tabId keys
// sit next to the type-specific fields, which are kept undecoded in Fields so
// that payloads the relay does not understand pass through untouched.
type Envelope struct {
	Type      string
	Timestamp int64
	TabID     *string
	Fields    map[string]json.RawMessage
}

// NewEnvelope creates an envelope of the given type stamped with the current time.
func NewEnvelope(typ string) *Envelope {
	return &Envelope{
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Fields:    make(map[string]json.RawMessage),
	}
}

// DecodeEnvelope parses a complete inbound message.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, ErrNullEnvelope
	}
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	return env, nil
}

// MarshalJSON flattens the envelope into a single JSON object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Fields)+3)
	for k, v := range e.Fields {
		if isReserved(k) {
			continue
		}
		out[k] = v
	}

	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	out[fieldType] = typ
	out[fieldTimestamp] = json.RawMessage(strconv.FormatInt(e.Timestamp, 10))

	if e.TabID != nil {
		tab, err := json.Marshal(*e.TabID)
		if err != nil {
			return nil, err
		}
		out[fieldTabID] = tab
	} else {
		out[fieldTabID] = json.RawMessage("null")
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null is a no-op.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	var typ string
	if v, ok := raw[fieldType]; ok {
		if err := json.Unmarshal(v, &typ); err != nil {
			return fmt.Errorf("invalid type: %w", err)
		}
	}
	if typ == "" {
		return ErrMissingType
	}

	ts, err := parseTimestamp(raw[fieldTimestamp])
	if err != nil {
		return err
	}

	tabID, err := parseTabID(raw[fieldTabID])
	if err != nil {
		return err
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if isReserved(k) {
			continue
		}
		fields[k] = v
	}

	e.Type = typ
	e.Timestamp = ts
	e.TabID = tabID
	e.Fields = fields
	return nil
}

// Field decodes a single type-specific field into v.
// It reports false when the field is absent.
func (e *Envelope) Field(name string, v any) (bool, error) {
	raw, ok := e.Fields[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("field %s: %w", name, err)
	}
	return true, nil
}

// SetField encodes v and stores it under name.
func (e *Envelope) SetField(name string, v any) error {
	if isReserved(name) {
		return fmt.Errorf("field %s is reserved", name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: field %s: %v", ErrEncode, name, err)
	}
	if e.Fields == nil {
		e.Fields = make(map[string]json.RawMessage)
	}
	e.Fields[name] = data
	return nil
}

// Data returns the type-specific fields as one JSON object.
func (e *Envelope) Data() json.RawMessage {
	if len(e.Fields) == 0 {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Time returns the producer timestamp.
func (e *Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func isReserved(name string) bool {
	return name == fieldType || name == fieldTimestamp || name == fieldTabID
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	return int64(f), nil
}

// parseTabID accepts a string or a number; browsers report tab ids as integers.
func parseTabID(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("invalid tabId: %w", err)
	}
	s = n.String()
	return &s, nil
}
