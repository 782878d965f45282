package logx_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logx.Level{
		"debug":   logx.LevelDebug,
		"INFO":    logx.LevelInfo,
		"warning": logx.LevelWarn,
		" error ": logx.LevelError,
		"off":     logx.LevelOff,
		"verbose": logx.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, logx.ParseLevel(in), in)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_COLOR", "false")
	t.Setenv("LOG_CALLER", "1")
	t.Setenv("LOG_TIME_FORMAT", "unixmilli")

	cfg := logx.LoadFromEnv()
	assert.Equal(t, logx.LevelDebug, cfg.Level)
	assert.Equal(t, logx.FormatJSON, cfg.Format)
	assert.False(t, cfg.EnableColors)
	assert.True(t, cfg.EnableCaller)
	assert.Equal(t, "unixmilli", cfg.TimeFormat)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.NewLogger(&logx.Config{
		Level:        logx.LevelInfo,
		Format:       logx.FormatJSON,
		EnableCaller: true,
		Output:       &buf,
	})

	logger.WithFields(logx.Fields{"queue": "email", "job_id": "42"}).
		WithError(errors.New("smtp down")).
		Warn("jobx: job failed")
	logger.WithField("queue", "email").Debug("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "jobx: job failed", line["message"])
	assert.Equal(t, "email", line["queue"])
	assert.Equal(t, "42", line["job_id"])
	assert.Equal(t, "smtp down", line["error"])
	assert.Contains(t, line["caller"], "logx_test.go:")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.NewLogger(&logx.Config{
		Level:      logx.LevelDebug,
		Format:     logx.FormatConsole,
		TimeFormat: "unix",
		Output:     &buf,
	})

	logger.WithFields(logx.Fields{"b": 2, "a": 1}).Infof("processed %d jobs", 3)

	out := buf.String()
	assert.Contains(t, out, "[INFO ] processed 3 jobs a=1 b=2")
	assert.NotContains(t, out, "\033[")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.NewLogger(&logx.Config{Level: logx.LevelInfo, Format: logx.FormatJSON, Output: &buf})

	logger.SetLevel(logx.LevelOff)
	logger.WithField("k", "v").Error("dropped")
	assert.Empty(t, buf.String())

	logger.SetLevel(logx.LevelError)
	logger.WithField("k", "v").Error("kept")
	assert.Contains(t, buf.String(), "kept")
}
