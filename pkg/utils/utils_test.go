package utils

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateGSTIN(t *testing.T) {
	tests := []struct {
		gstin   string
		wantErr bool
	}{
		{"29ABCDE1234F1Z5", false},
		{"07AAACB2230M1ZT", false},
		{"29ABCDE1234F1Z", true},
		{"29abcde1234f1z5", true},
		{"29ABCDE1234F1X5", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.gstin, func(t *testing.T) {
			err := ValidateGSTIN(tt.gstin)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, "29", StateCode("29ABCDE1234F1Z5"))
	assert.Equal(t, "", StateCode("2"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "customer refused", SanitizeString(" customer\x00 refused\x7f\n"))
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json", Service: "fulfillment"})

	require.NoError(t, err)
	logger.Info("hello")
	assert.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestKeyValueLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	kv := NewKeyValueLogger(zap.New(core))

	kv.Info("Transition applied", "instance_id", "o-1", "to", "CONFIRMED", 42, "dropped")
	kv.Error("Save failed", "error", errors.New("disk full"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"instance_id": "o-1", "to": "CONFIRMED"}, entries[0].ContextMap())
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])
}
