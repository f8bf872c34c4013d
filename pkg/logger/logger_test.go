package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "staging", LogLevel: "info", LogFormat: "json"}, &buf)

	log.Debug("hidden")
	log.Info("visible")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["message"])
	assert.Equal(t, "staging", lines[0]["env"])
	assert.Equal(t, "info", lines[0]["level"])
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "development", LogLevel: "debug", LogFormat: "console"}, &buf)

	log.Warn("careful")
	assert.Contains(t, buf.String(), "careful")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&config.Config{Env: "development", LogLevel: "debug"}, &buf)

	base.WithRun("run-1").
		WithStage(contracts.StageFilter, contracts.SourceCapacity).
		WithField("rows", 3).
		WithFields(map[string]interface{}{"kept": 2}).
		WithError(errors.New("boom")).
		Warnf("rejected %d", 1)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "S1", line["stage"])
	assert.Equal(t, "capacity", line["source"])
	assert.Equal(t, float64(3), line["rows"])
	assert.Equal(t, float64(2), line["kept"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "rejected 1", line["message"])
}

func TestWithStage_NoSource(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&config.Config{LogLevel: "info"}, &buf).WithStage(contracts.StageJoin, "").Info("join")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "S3", lines[0]["stage"])
	_, hasSource := lines[0]["source"]
	assert.False(t, hasSource)
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("nothing")
	assert.Equal(t, zerolog.Disabled, log.Zerolog().GetLevel())
}
