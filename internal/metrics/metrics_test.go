package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/browser-bridge/bridge/internal/model"
)

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, model.TypeScriptResult, TypeLabel(model.TypeScriptResult))
	assert.Equal(t, model.TypeTabActivated, TypeLabel(model.TypeTabActivated))
	assert.Equal(t, "other", TypeLabel("made_up_by_peer"))
	assert.Equal(t, "other", TypeLabel(""))
}
