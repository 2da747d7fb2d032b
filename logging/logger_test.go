package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ReploidGI0/storefront-cart/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithOutput("warn", &buf)
	assert.Equal(t, logrus.WarnLevel, log.Level)

	log.Info("dropped")
	log.WithField("product_id", 3).Warn("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warning", entry["severity"])
	assert.Equal(t, float64(3), entry["product_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_UnknownLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, logging.New("loud").Level)
}
