package messaging

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopscore/pkg/score"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewAMQPClientDefaults(t *testing.T) {
	client := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "gopscore-results",
	})

	assert.Equal(t, "gopscore-results", client.config.RoutingKey)
	assert.True(t, client.config.Durable)
	assert.False(t, client.config.AutoDelete)
	assert.False(t, client.IsConnected())
}

func TestConnectUnconfigured(t *testing.T) {
	client := NewAMQPClient(testLogger(), AMQPConfig{})

	err := client.Connect()
	assert.Error(t, err)
	assert.False(t, client.IsConnected())
}

func TestPublishWithoutConnection(t *testing.T) {
	client := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "gopscore-results",
	})

	err := client.PublishResult("run-1", score.Result{UtteranceID: "utt1"})
	assert.Error(t, err)
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	client := NewAMQPClient(testLogger(), AMQPConfig{})

	// Must be a no-op, not a panic.
	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestResultMessageJSON(t *testing.T) {
	msg := ResultMessage{
		RunID:              "run-1",
		UtteranceID:        "utt1",
		GOPScore:           -0.5,
		PronunciationScore: 85.0,
		NumPhones:          4,
		Grade:              "Good",
		Timestamp:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "utt1", decoded["utterance_id"])
	assert.Equal(t, "Good", decoded["grade"])
	assert.Equal(t, 85.0, decoded["pronunciation_score"])
}
