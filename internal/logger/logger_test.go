package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
)

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prf.log")
	log, err := New(config.LoggingConfig{Level: "warn", Format: "json", OutputPath: path}, false)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry), "exactly one json line expected, got %q", data)
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "prfimport", entry["service"])
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		debug   bool
		info    bool
	}{
		{"configured_error", "error", false, false, false},
		{"unknown_falls_back_to_info", "chatty", false, false, true},
		{"verbose_overrides", "error", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(config.LoggingConfig{Level: tt.level, OutputPath: filepath.Join(t.TempDir(), "x.log")}, tt.verbose)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, log.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.info, log.Core().Enabled(zapcore.InfoLevel))
		})
	}
}
