package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	textGen := gen.OneGenOf(
		gen.AlphaString(),
		gen.OneConstOf(`quote " inside`, "tab\tnewline\n", "ünïcødé ✓", `{"nested":true}`, ""),
	)

	properties.Property("encode then decode preserves type, timestamp, tabId and fields", prop.ForAll(
		func(typ string, ts int64, tabID *string, fields map[string]string) bool {
			if typ == "" {
				typ = TypeConsole
			}
			env := &Envelope{Type: typ, Timestamp: ts, TabID: tabID, Fields: map[string]json.RawMessage{}}
			for k, v := range fields {
				if k == "" || isReserved(k) {
					continue
				}
				if err := env.SetField(k, v); err != nil {
					return false
				}
			}

			data, err := json.Marshal(env)
			if err != nil {
				return false
			}
			decoded, err := DecodeEnvelope(data)
			if err != nil {
				return false
			}

			if decoded.Type != env.Type || decoded.Timestamp != env.Timestamp {
				return false
			}
			if (decoded.TabID == nil) != (env.TabID == nil) {
				return false
			}
			if env.TabID != nil && *decoded.TabID != *env.TabID {
				return false
			}
			if len(decoded.Fields) != len(env.Fields) {
				return false
			}
			for k, v := range env.Fields {
				if string(decoded.Fields[k]) != string(v) {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.Int64(),
		gen.PtrOf(textGen),
		gen.MapOf(gen.AlphaString(), textGen),
	))

	properties.TestingRun(t)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("flat fields are kept", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"script_result","success":true,"result":42,"tabId":"7","timestamp":1700000000000}`))
		require.NoError(t, err)

		assert.Equal(t, TypeScriptResult, env.Type)
		assert.Equal(t, int64(1700000000000), env.Timestamp)
		require.NotNil(t, env.TabID)
		assert.Equal(t, "7", *env.TabID)
		assert.JSONEq(t, `{"success":true,"result":42}`, string(env.Data()))
	})

	t.Run("numeric tab id is normalized", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"tab_activated","tabId":123,"timestamp":1}`))
		require.NoError(t, err)
		require.NotNil(t, env.TabID)
		assert.Equal(t, "123", *env.TabID)
	})

	t.Run("fractional timestamp is truncated", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"console","timestamp":1700000000000.75}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000000), env.Timestamp)
	})

	t.Run("missing timestamp and tab id", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"console"}`))
		require.NoError(t, err)
		assert.Zero(t, env.Timestamp)
		assert.Nil(t, env.TabID)
	})

	failures := map[string]string{
		"malformed json":   `{"type":`,
		"array":            `[1,2,3]`,
		"missing type":     `{"timestamp":1}`,
		"empty type":       `{"type":""}`,
		"non-string type":  `{"type":5}`,
		"bad timestamp":    `{"type":"console","timestamp":"soon"}`,
		"object tab id":    `{"type":"console","tabId":{}}`,
		"plain text frame": `hello`,
	}
	for name, input := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(input))
			assert.Error(t, err)
		})
	}

	t.Run("null", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(" null "))
		assert.True(t, errors.Is(err, ErrNullEnvelope))
	})

	t.Run("missing type is classified", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"result":1}`))
		assert.ErrorIs(t, err, ErrMissingType)
	})
}

func TestEnvelopeMarshalAlwaysCarriesTabID(t *testing.T) {
	env := NewEnvelope(TypeExecuteScript)
	require.NoError(t, env.SetField("script", "document.title"))

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Contains(t, wire, "tabId")
	assert.Nil(t, wire["tabId"])
	assert.Equal(t, "document.title", wire["script"])
	assert.Equal(t, TypeExecuteScript, wire["type"])
}

func TestEnvelopeReservedFieldsCannotBeShadowed(t *testing.T) {
	env := NewEnvelope(TypeConsole)
	assert.Error(t, env.SetField("type", "other"))

	env.Fields["timestamp"] = json.RawMessage(`"shadow"`)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.Timestamp, decoded.Timestamp)
}

func TestEnvelopeMarshalRejectsInvalidRawField(t *testing.T) {
	env := NewEnvelope(TypeConsole)
	env.Fields["broken"] = json.RawMessage(`{not json`)

	_, err := json.Marshal(env)
	assert.Error(t, err)
}

func TestEnvelopePayloadVariants(t *testing.T) {
	cases := []struct {
		input string
		check func(t *testing.T, payload any)
	}{
		{
			input: `{"type":"script_result","success":false,"error":"No active tab found","timestamp":1}`,
			check: func(t *testing.T, payload any) {
				res, ok := payload.(*ScriptResult)
				require.True(t, ok)
				assert.False(t, res.Success)
				assert.Equal(t, "No active tab found", res.Error)
			},
		},
		{
			input: `{"type":"inspect_result","success":true,"selector":"#main","html":"<div></div>","boundingBox":{"x":1,"y":2,"width":3,"height":4},"timestamp":1}`,
			check: func(t *testing.T, payload any) {
				res, ok := payload.(*InspectResult)
				require.True(t, ok)
				assert.Equal(t, "#main", res.Selector)
				require.NotNil(t, res.BoundingBox)
				assert.Equal(t, 3.0, res.BoundingBox.Width)
			},
		},
		{
			input: `{"type":"tab_updated","tabId":"3","url":"https://example.com","title":"Example","timestamp":1}`,
			check: func(t *testing.T, payload any) {
				res, ok := payload.(*TabEvent)
				require.True(t, ok)
				assert.Equal(t, "https://example.com", res.URL)
			},
		},
		{
			input: `{"type":"error","message":"boom","lineNumber":12,"timestamp":1}`,
			check: func(t *testing.T, payload any) {
				res, ok := payload.(*ErrorEntry)
				require.True(t, ok)
				require.NotNil(t, res.LineNumber)
				assert.Equal(t, 12, *res.LineNumber)
			},
		},
		{
			input: `{"type":"custom_probe","anything":[1,2]}`,
			check: func(t *testing.T, payload any) {
				res, ok := payload.(RawPayload)
				require.True(t, ok)
				assert.JSONEq(t, `[1,2]`, string(res["anything"]))
			},
		},
	}

	for _, tc := range cases {
		env, err := DecodeEnvelope([]byte(tc.input))
		require.NoError(t, err)
		payload, err := env.Payload()
		require.NoError(t, err)
		tc.check(t, payload)
	}
}

func TestCommandConstructors(t *testing.T) {
	_, err := NewExecuteScript("", nil)
	assert.ErrorIs(t, err, ErrScriptRequired)

	_, err = NewInspectElement("", nil)
	assert.ErrorIs(t, err, ErrSelectorRequired)

	tab := "12"
	env, err := NewExecuteScript("1+1", &tab)
	require.NoError(t, err)
	assert.Equal(t, TypeExecuteScript, env.Type)
	assert.NotZero(t, env.Timestamp)

	var script string
	found, err := env.Field("script", &script)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1+1", script)

	shot, err := NewTakeScreenshot("", true, nil)
	require.NoError(t, err)
	_, hasSelector := shot.Fields["selector"]
	assert.False(t, hasSelector)
	assert.JSONEq(t, `true`, string(shot.Fields["fullPage"]))

	reply, ok := ReplyTypeFor(TypeInspectElement)
	assert.True(t, ok)
	assert.Equal(t, TypeInspectResult, reply)
	_, ok = ReplyTypeFor("unknown")
	assert.False(t, ok)
}
