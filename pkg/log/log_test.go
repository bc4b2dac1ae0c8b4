package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputCarriesPID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, strconv.Itoa(os.Getpid()), fmtInt(line["pid"]))
	assert.Equal(t, "hello", line["message"])
}

func TestForRunComposesOntoScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := ForRun(WithComponent("control"), "run-123")
	logger.Info().Msg("started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "control", line["component"])
	assert.Equal(t, "run-123", line["run_id"])
}

func fmtInt(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.Itoa(int(n))
	default:
		return ""
	}
}
