package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleBoolValue(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"Yes"`, true},
		{`"approve"`, true},
		{`"approved"`, true},
		{`"1"`, true},
		{`"no"`, false},
		{`null`, false},
		{`42`, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleBoolValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestFlexibleStringValue(t *testing.T) {
	assert.Equal(t, "hello", FlexibleStringValue(json.RawMessage(`"hello"`)))
	assert.Equal(t, "42", FlexibleStringValue(json.RawMessage(`42`)))
	assert.Equal(t, "true", FlexibleStringValue(json.RawMessage(`true`)))
	assert.Equal(t, "", FlexibleStringValue(json.RawMessage(`null`)))
}

func TestExtractObject(t *testing.T) {
	type verdict struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}

	tests := []struct {
		name    string
		content string
	}{
		{"plain", `{"approve": true, "reason": "matches"}`},
		{"fenced", "```json\n{\"approve\": true, \"reason\": \"matches\"}\n```"},
		{"prose wrapped", `Here is my verdict: {"approve": true, "reason": "matches"} as requested.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v verdict
			require.NoError(t, ExtractObject(tt.content, &v))
			assert.True(t, v.Approve)
			assert.Equal(t, "matches", v.Reason)
		})
	}
}

func TestExtractObject_NoObject(t *testing.T) {
	var v map[string]any
	assert.Error(t, ExtractObject("no json here", &v))
	assert.Error(t, ExtractObject("", &v))
}
