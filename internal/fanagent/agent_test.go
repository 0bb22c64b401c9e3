package fanagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/zephyr-platform/internal/fancontrol"
	"github.com/saaga0h/zephyr-platform/pkg/config"
	"github.com/saaga0h/zephyr-platform/pkg/mqtt"
	"github.com/saaga0h/zephyr-platform/pkg/redis"
)

// Mock MQTT client recording published messages
type mockMQTT struct {
	published []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func (m *mockMQTT) Connect(ctx context.Context) error { return nil }
func (m *mockMQTT) Disconnect()                       {}
func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}
func (m *mockMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	m.published = append(m.published, publishedMessage{topic: topic, payload: payload})
	return nil
}
func (m *mockMQTT) IsConnected() bool { return true }

func (m *mockMQTT) topics() []string {
	topics := make([]string, len(m.published))
	for i, p := range m.published {
		topics[i] = p.topic
	}
	return topics
}

// Mock Redis backed by a map
type mockRedis struct {
	data map[string]string
}

func newMockRedis() *mockRedis {
	return &mockRedis{data: make(map[string]string)}
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		m.data[key] = fmt.Sprintf("%v", v)
	}
	return nil
}

func (m *mockRedis) Get(ctx context.Context, key string) (string, bool, error) {
	v, exists := m.data[key]
	return v, exists, nil
}

func (m *mockRedis) Del(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mockRedis) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *mockRedis) Ping(ctx context.Context) error { return nil }
func (m *mockRedis) Close() error                   { return nil }

// Mock MQTT message
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Topic() string   { return m.topic }
func (m *mockMessage) Payload() []byte { return m.payload }
func (m *mockMessage) Ack()            {}

func climateMessage(t *testing.T, zone string, body map[string]interface{}) mqtt.Message {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return &mockMessage{
		topic:   fmt.Sprintf("automation/context/climate/%s", zone),
		payload: payload,
	}
}

func newTestAgent() (*Agent, *mockMQTT, *mockRedis) {
	cfg := config.NewConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	mqttClient := &mockMQTT{}
	redisClient := newMockRedis()
	agent := NewAgent(mqttClient, redisClient, nil, cfg, logger)
	return agent, mqttClient, redisClient
}

func TestHandleClimateMessage_TracksZoneAndFanModes(t *testing.T) {
	agent, _, _ := newTestAgent()

	agent.handleClimateMessage(climateMessage(t, "livingroom", map[string]interface{}{
		"current_temperature": 20.5,
		"target_temperature":  21.0,
		"rate_of_change":      0.2,
		"hvac_mode":           "heat",
		"fan_mode":            "low",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	assert.Equal(t, 1, agent.GetZoneCount())

	state := agent.zones["livingroom"]
	require.NotNil(t, state)
	require.NotNil(t, state.input)
	assert.Equal(t, 20.5, state.input.CurrentTemperature)
	assert.Equal(t, fancontrol.ModeHeat, state.input.HvacMode)
	assert.Equal(t, []string{"low", "medium", "high"}, state.controller.FanModes())
}

func TestHandleClimateMessage_InvalidTopicIgnored(t *testing.T) {
	agent, _, _ := newTestAgent()

	agent.handleClimateMessage(&mockMessage{
		topic:   "automation/context/climate",
		payload: []byte(`{}`),
	})

	assert.Equal(t, 0, agent.GetZoneCount())
}

func TestHandleClimateMessage_MalformedPayloadIgnored(t *testing.T) {
	agent, _, _ := newTestAgent()

	agent.handleClimateMessage(&mockMessage{
		topic:   "automation/context/climate/livingroom",
		payload: []byte(`not json`),
	})

	if state, exists := agent.zones["livingroom"]; exists {
		assert.Nil(t, state.input)
	}
}

func TestEvaluateZone_PublishesCommandOnChange(t *testing.T) {
	agent, mqttClient, _ := newTestAgent()

	// Emergency error forces a fan change
	agent.handleClimateMessage(climateMessage(t, "office", map[string]interface{}{
		"current_temperature": 19.0,
		"target_temperature":  20.0,
		"rate_of_change":      0.0,
		"hvac_mode":           "heat",
		"fan_mode":            "low",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	agent.performTick()

	topics := mqttClient.topics()
	assert.Contains(t, topics, "automation/command/fan/office")
	assert.Contains(t, topics, "automation/context/fan/office")

	var command struct {
		FanMode string `json:"fan_mode"`
		Reason  string `json:"reason"`
	}
	for _, p := range mqttClient.published {
		if p.topic == "automation/command/fan/office" {
			require.NoError(t, json.Unmarshal(p.payload, &command))
		}
	}
	assert.Equal(t, "high", command.FanMode)
	assert.Contains(t, command.Reason, "Emergency")
}

func TestEvaluateZone_NoCommandWhenUnchanged(t *testing.T) {
	agent, mqttClient, _ := newTestAgent()

	agent.handleClimateMessage(climateMessage(t, "office", map[string]interface{}{
		"current_temperature": 21.0,
		"target_temperature":  21.0,
		"rate_of_change":      0.0,
		"hvac_mode":           "heat",
		"fan_mode":            "medium",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	agent.performTick()

	topics := mqttClient.topics()
	assert.NotContains(t, topics, "automation/command/fan/office")
	assert.Contains(t, topics, "automation/context/fan/office")
}

func TestHandleOverrideMessage(t *testing.T) {
	agent, mqttClient, _ := newTestAgent()

	agent.handleClimateMessage(climateMessage(t, "bedroom", map[string]interface{}{
		"current_temperature": 21.0,
		"target_temperature":  21.0,
		"rate_of_change":      0.0,
		"hvac_mode":           "heat",
		"fan_mode":            "low",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	payload, _ := json.Marshal(map[string]string{"fan_mode": "high"})
	agent.handleOverrideMessage(&mockMessage{
		topic:   "automation/override/fan/bedroom",
		payload: payload,
	})

	state := agent.zones["bedroom"]
	require.NotNil(t, state)
	assert.Equal(t, "high", state.input.CurrentFanMode)

	// Override publishes a context message with the override reason
	found := false
	for _, p := range mqttClient.published {
		if p.topic != "automation/context/fan/bedroom" {
			continue
		}
		if strings.Contains(string(p.payload), fancontrol.ReasonManualOverride) {
			found = true
		}
	}
	assert.True(t, found, "expected a context message carrying the override reason")
}

func TestSettingsForZone_AppliesOverrides(t *testing.T) {
	agent, _, _ := newTestAgent()

	deadband := 0.25
	limitTimeout := 20.0
	agent.zoneOverrides = map[string]config.ZoneOverrides{
		"sauna": {Deadband: &deadband, LimitTimeoutMinutes: &limitTimeout},
	}

	control, learn := agent.settingsForZone("sauna")
	assert.Equal(t, 0.25, control.Deadband)
	assert.Equal(t, 20.0, control.LimitTimeout)
	// Untouched fields keep the service defaults
	assert.Equal(t, agent.cfg.SoftError, control.SoftError)
	assert.Equal(t, agent.cfg.MinSamples, learn.MinSamples)

	defaults, _ := agent.settingsForZone("unlisted")
	assert.Equal(t, agent.cfg.Deadband, defaults.Deadband)
}

func TestSettingsForZone_InvalidOverridesFallBack(t *testing.T) {
	agent, _, _ := newTestAgent()

	// Hard below soft is rejected by validation
	hard := 0.1
	agent.zoneOverrides = map[string]config.ZoneOverrides{
		"attic": {HardError: &hard},
	}

	control, _ := agent.settingsForZone("attic")
	assert.Equal(t, fancontrol.DefaultSettings().HardError, control.HardError)
}

func TestZonePersistence_RoundTrip(t *testing.T) {
	agent, _, redisClient := newTestAgent()

	agent.handleClimateMessage(climateMessage(t, "office", map[string]interface{}{
		"current_temperature": 19.0,
		"target_temperature":  20.0,
		"rate_of_change":      0.3,
		"hvac_mode":           "heat",
		"fan_mode":            "low",
		"fan_modes":           []string{"low", "medium", "high"},
	}))
	agent.performTick()

	ctx := context.Background()
	agent.saveAllZones(ctx)

	_, exists := redisClient.data[redis.ControllerSnapshotKey("office")]
	assert.True(t, exists, "controller snapshot should be persisted")
	_, exists = redisClient.data[redis.LearningSnapshotKey("office")]
	assert.True(t, exists, "learning snapshot should be persisted")

	// A fresh agent sharing the store restores the zone on first sight
	cfg := config.NewConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	restored := NewAgent(&mockMQTT{}, redisClient, nil, cfg, logger)

	restored.handleClimateMessage(climateMessage(t, "office", map[string]interface{}{
		"current_temperature": 19.5,
		"target_temperature":  20.0,
		"rate_of_change":      0.3,
		"hvac_mode":           "heat",
		"fan_mode":            "high",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	state := restored.zones["office"]
	require.NotNil(t, state)
	snapshot := state.controller.Snapshot()
	assert.NotNil(t, snapshot.PreviousSlope)
}

func TestPerformTick_SkipsStaleZones(t *testing.T) {
	agent, mqttClient, _ := newTestAgent()

	agent.handleClimateMessage(climateMessage(t, "cellar", map[string]interface{}{
		"current_temperature": 19.0,
		"target_temperature":  20.0,
		"rate_of_change":      0.0,
		"hvac_mode":           "heat",
		"fan_mode":            "low",
		"fan_modes":           []string{"low", "medium", "high"},
	}))

	// Age the input past the staleness cutoff
	agent.zones["cellar"].input.ReceivedAt = time.Now().Add(-time.Hour)

	agent.performTick()

	assert.Empty(t, mqttClient.published)
}
