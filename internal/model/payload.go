package model

import (
	"encoding/json"
	"fmt"
)

// ScriptResult is the reply to an execute_script command.
type ScriptResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InspectResult is the reply to an inspect_element command.
type InspectResult struct {
	Success        bool              `json:"success"`
	Selector       string            `json:"selector,omitempty"`
	HTML           string            `json:"html,omitempty"`
	ComputedStyles map[string]string `json:"computedStyles,omitempty"`
	BoundingBox    *BoundingBox      `json:"boundingBox,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// ScreenshotResult is the reply to a take_screenshot command.
type ScreenshotResult struct {
	Success bool   `json:"success"`
	DataURL string `json:"dataUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ConnectionEstablished is the first message a peer sends after the handshake.
type ConnectionEstablished struct {
	UserAgent string `json:"userAgent,omitempty"`
}

// ConsoleEntry is a console call captured in the page.
type ConsoleEntry struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	URL        string `json:"url,omitempty"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// ErrorEntry is an uncaught error or unhandled rejection captured in the page.
type ErrorEntry struct {
	Message      string `json:"message"`
	StackTrace   string `json:"stackTrace,omitempty"`
	Source       string `json:"source,omitempty"`
	LineNumber   *int   `json:"lineNumber,omitempty"`
	ColumnNumber *int   `json:"columnNumber,omitempty"`
	URL          string `json:"url,omitempty"`
}

// PageLoad reports a completed page load.
type PageLoad struct {
	URL     string         `json:"url"`
	Title   string         `json:"title,omitempty"`
	DOM     string         `json:"dom,omitempty"`
	Console []ConsoleEntry `json:"console,omitempty"`
	Errors  []ErrorEntry   `json:"errors,omitempty"`
}

// TabEvent reports a tab that finished loading or became active.
type TabEvent struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// DOMMutation summarizes a batch of DOM mutations.
type DOMMutation struct {
	Count int    `json:"count"`
	URL   string `json:"url,omitempty"`
}

// NetworkRequest describes a request observed in the page.
type NetworkRequest struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	StatusCode   int               `json:"statusCode"`
	Headers      map[string]string `json:"headers,omitempty"`
	RequestBody  string            `json:"requestBody,omitempty"`
	ResponseBody string            `json:"responseBody,omitempty"`
	Duration     int64             `json:"duration"`
}

// RawPayload holds the fields of an envelope whose type has no typed form.
type RawPayload map[string]json.RawMessage

// Payload decodes the type-specific fields into the variant registered for
// the envelope type. Unrecognized types yield a RawPayload.
func (e *Envelope) Payload() (any, error) {
	var target any
	switch e.Type {
	case TypeScriptResult:
		target = &ScriptResult{}
	case TypeInspectResult:
		target = &InspectResult{}
	case TypeScreenshotResult:
		target = &ScreenshotResult{}
	case TypeConnectionEstablished:
		target = &ConnectionEstablished{}
	case TypePageLoad:
		target = &PageLoad{}
	case TypeConsole:
		target = &ConsoleEntry{}
	case TypeError:
		target = &ErrorEntry{}
	case TypeTabUpdated, TypeTabActivated:
		target = &TabEvent{}
	case TypeDOMMutation:
		target = &DOMMutation{}
	case TypeNetworkRequest:
		target = &NetworkRequest{}
	default:
		raw := make(RawPayload, len(e.Fields))
		for k, v := range e.Fields {
			raw[k] = v
		}
		return raw, nil
	}

	if err := json.Unmarshal(e.Data(), target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return target, nil
}

// NewExecuteScript builds an execute_script command.
func NewExecuteScript(script string, tabID *string) (*Envelope, error) {
	if script == "" {
		return nil, ErrScriptRequired
	}
	env := NewEnvelope(TypeExecuteScript)
	env.TabID = tabID
	if err := env.SetField("script", script); err != nil {
		return nil, err
	}
	return env, nil
}

// NewInspectElement builds an inspect_element command.
func NewInspectElement(selector string, tabID *string) (*Envelope, error) {
	if selector == "" {
		return nil, ErrSelectorRequired
	}
	env := NewEnvelope(TypeInspectElement)
	env.TabID = tabID
	if err := env.SetField("selector", selector); err != nil {
		return nil, err
	}
	return env, nil
}

// NewTakeScreenshot builds a take_screenshot command. An empty selector
// captures the visible tab.
func NewTakeScreenshot(selector string, fullPage bool, tabID *string) (*Envelope, error) {
	env := NewEnvelope(TypeTakeScreenshot)
	env.TabID = tabID
	if selector != "" {
		if err := env.SetField("selector", selector); err != nil {
			return nil, err
		}
	}
	if err := env.SetField("fullPage", fullPage); err != nil {
		return nil, err
	}
	return env, nil
}

// ReplyTypeFor returns the reply discriminator a peer answers the command type with.
func ReplyTypeFor(commandType string) (string, bool) {
	switch commandType {
	case TypeExecuteScript:
		return TypeScriptResult, true
	case TypeInspectElement:
		return TypeInspectResult, true
	case TypeTakeScreenshot:
		return TypeScreenshotResult, true
	}
	return "", false
}
