package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json")

	logger.Info("Fetched prices", "source", "binance", "count", 3, "error", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Fetched prices", entry["message"])
	assert.Equal(t, "binance", entry["source"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json").With("component", "aggregator")

	logger.Warn("Source skipped")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "aggregator", entry["component"])
}

func TestLogger_OddFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json")

	logger.Info("odd", "dangling")
	logger.Info("non-string key", 42, "value")

	assert.NotContains(t, buf.String(), "dangling")
	assert.NotContains(t, buf.String(), "value")
}

func TestNewNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Debug("nothing")
		logger.Error("nothing", "key", "value")
	})
}
