package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevel(t *testing.T) {
	tests := []struct {
		format string
		level  string
		want   zerolog.Level
	}{
		{"json", "info", zerolog.InfoLevel},
		{"text", "debug", zerolog.DebugLevel},
		{"text", "", zerolog.InfoLevel},
		{"json", "bogus", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		l := Init(Config{Format: tc.format, Level: tc.level, Output: "none"})
		assert.Equal(t, tc.want, l.GetLevel(), "format=%s level=%s", tc.format, tc.level)
	}
}

func TestGetLoggerModuleLevel(t *testing.T) {
	Init(Config{Level: "info", Output: "none", Modules: map[string]string{
		"transfers": "trace",
		"controls":  "nope",
	}})

	require.Equal(t, zerolog.TraceLevel, GetLogger("transfers").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("controls").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("uvc").GetLevel())
}

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	l := Init(Config{Format: "text", Level: "info", Output: "none", Writer: &buf})
	l.Info().Msg("[test] hello")
	l.Debug().Msg("[test] hidden")
	assert.Contains(t, buf.String(), "[test] hello")
	assert.NotContains(t, buf.String(), "hidden")
}
