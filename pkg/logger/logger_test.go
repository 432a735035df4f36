package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"", INFO},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInfoCF_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, INFO, "json")
	defer Configure(os.Stderr, INFO, "text")

	InfoCF("pipeline", "proposal.created", map[string]interface{}{
		"id":    "abc",
		"files": 2,
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "proposal.created", record["msg"])
	assert.Equal(t, "pipeline", record["component"])
	assert.Equal(t, "abc", record["id"])
	assert.EqualValues(t, 2, record["files"])
}

func TestDebugCF_BelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, WARN, "text")
	defer Configure(os.Stderr, INFO, "text")

	DebugCF("x", "hidden", nil)
	InfoC("x", "hidden too")
	assert.Empty(t, buf.String())

	WarnC("x", "shown")
	assert.Contains(t, buf.String(), "shown")
}
