package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	log := New()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewWithOptions_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "debug", Format: "json", Output: &buf})

	require.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithComponent("resolver").Debug("probing")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "resolver", entry["component"])
	assert.Equal(t, "probing", entry["msg"])
}

func TestNewWithOptions_UnknownLevelFallsBack(t *testing.T) {
	log := NewWithOptions(Options{Level: "loud"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.IsLevelEnabled(logrus.ErrorLevel))
}
