package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/orchestrator"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// MockMQTTClient records subscriptions and publishes for bridge tests.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []publishedMessage
	publishErr    error
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		subscriptions: make(map[string]paho.MessageHandler),
	}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

// Published returns the payloads sent to topic, oldest first.
func (m *MockMQTTClient) Published(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p.payload)
		}
	}
	return out
}

// SimulateMessage delivers a message through the handler subscribed to filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[filter]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func newTestBridge(t *testing.T, capacity int) (*Bridge, *MockMQTTClient, *registry.Registry) {
	t.Helper()
	g, err := story.NewGraph(story.Meta{ID: "test"}, "hall", []story.Scene{
		{ID: "hall", Text: "Two doors.", Choices: []story.Choice{
			{Label: "Left", Next: "exit"},
			{Label: "Right", Outcome: "Eliminated", Text: "Spikes."},
		}},
		{ID: "exit", Text: "Sunlight.", Outcome: "Victory"},
	})
	if err != nil {
		t.Fatalf("failed to build graph: %v", err)
	}
	reg := registry.New(capacity)
	client := NewMockMQTTClient()
	b := NewBridge(orchestrator.NewManager(g, reg, 0), client, "story/test/", nil)
	return b, client, reg
}

func lastView(t *testing.T, client *MockMQTTClient, topic string) orchestrator.View {
	t.Helper()
	msgs := client.Published(topic)
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", topic)
	}
	var v orchestrator.View
	if err := json.Unmarshal(msgs[len(msgs)-1], &v); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	return v
}

func TestBridge_Topics(t *testing.T) {
	b, _, _ := newTestBridge(t, 20)

	if b.InputTopic() != "story/test/kiosk/+/input" {
		t.Errorf("unexpected input topic %s", b.InputTopic())
	}
	if b.SceneTopic("k1") != "story/test/kiosk/k1/scene" {
		t.Errorf("unexpected scene topic %s", b.SceneTopic("k1"))
	}
	if b.OutcomesTopic() != "story/test/outcomes" {
		t.Errorf("unexpected outcomes topic %s", b.OutcomesTopic())
	}

	cases := map[string]string{
		"story/test/kiosk/k1/input":   "k1",
		"story/test/kiosk/k1/scene":   "",
		"story/test/kiosk//input":     "",
		"story/test/kiosk/a/b/input":  "",
		"other/prefix/kiosk/k1/input": "",
	}
	for topic, want := range cases {
		got, ok := b.KioskID(topic)
		if ok != (want != "") || got != want {
			t.Errorf("KioskID(%q) = %q, %v; want %q", topic, got, ok, want)
		}
	}
}

func TestBridge_PlayThroughToVictory(t *testing.T) {
	b, client, reg := newTestBridge(t, 20)
	if err := client.Subscribe(b.InputTopic(), b.Handler()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	in := b.InputTopic()

	client.SimulateMessage(in, "story/test/kiosk/k1/input", []byte(`{"action":"start","player":"Ana"}`))

	v := lastView(t, client, b.SceneTopic("k1"))
	if v.State != story.StateInSession || v.Scene.ID != "hall" || v.Player != "Ana" {
		t.Fatalf("unexpected start view: %+v", v)
	}
	if k := b.Kiosks().Get("k1"); k == nil || k.SessionID != v.SessionID {
		t.Fatalf("kiosk not bound to session: %+v", k)
	}

	client.SimulateMessage(in, "story/test/kiosk/k1/input", []byte(`{"action":"choose","choice":1}`))

	v = lastView(t, client, b.SceneTopic("k1"))
	if !v.Ended() || v.Outcome.Result != "Victory" {
		t.Fatalf("expected victory view, got %+v", v)
	}

	outcomes := client.Published(b.OutcomesTopic())
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome message, got %d", len(outcomes))
	}
	var out OutcomeMessage
	if err := json.Unmarshal(outcomes[0], &out); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if out.Kiosk != "k1" || out.Player != "Ana" || out.Outcome != "Victory" || !out.Committed {
		t.Errorf("unexpected outcome message: %+v", out)
	}

	if reg.Size() != 1 {
		t.Errorf("expected 1 registry entry, got %d", reg.Size())
	}
}

func TestBridge_ChooseAfterEndReportsError(t *testing.T) {
	b, client, _ := newTestBridge(t, 20)
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"start","player":"Ana"}`))
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"choose","choice":2}`))
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"choose","choice":1}`))

	msgs := client.Published(b.SceneTopic("k1"))
	var em ErrorMessage
	if err := json.Unmarshal(msgs[len(msgs)-1], &em); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if em.Error == "" {
		t.Error("expected an error payload after choosing in a finished session")
	}
	if len(client.Published(b.OutcomesTopic())) != 1 {
		t.Error("outcome must be published once")
	}
}

func TestBridge_RestartReplacesSession(t *testing.T) {
	b, client, reg := newTestBridge(t, 20)
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"start","player":"Ana"}`))
	first := b.Kiosks().Get("k1").SessionID

	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"start","player":"Bruno"}`))
	second := b.Kiosks().Get("k1")

	if second.SessionID == first || second.Player != "Bruno" {
		t.Errorf("expected a new session for Bruno, got %+v", second)
	}
	if reg.Size() != 0 {
		t.Errorf("replacing a session must not record, got %d", reg.Size())
	}
	if v := lastView(t, client, b.SceneTopic("k1")); v.SessionID != second.SessionID {
		t.Errorf("expected view of the new session, got %s", v.SessionID)
	}
}

func TestBridge_End(t *testing.T) {
	b, client, _ := newTestBridge(t, 20)
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"start"}`))
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"end"}`))

	if b.Kiosks().Get("k1") != nil {
		t.Error("kiosk should be released")
	}
	if v := lastView(t, client, b.SceneTopic("k1")); v.State != story.StateNoSession {
		t.Errorf("expected no_session view, got %s", v.State)
	}
}

func TestBridge_BadInput(t *testing.T) {
	events.Clear()
	b, client, _ := newTestBridge(t, 20)

	b.HandleMessage("story/test/kiosk/k9/input", []byte(`not json`))
	b.HandleMessage("story/test/kiosk/k9/input", []byte(`{"action":"dance"}`))
	b.HandleMessage("story/test/kiosk/k9/input", []byte(`{"action":"choose","choice":1}`))

	msgs := client.Published(b.SceneTopic("k9"))
	if len(msgs) != 3 {
		t.Fatalf("expected 3 error replies, got %d", len(msgs))
	}
	for _, m := range msgs {
		var em ErrorMessage
		if err := json.Unmarshal(m, &em); err != nil || em.Error == "" {
			t.Errorf("expected error payload, got %s", m)
		}
	}

	errCount := 0
	for _, e := range events.Snapshot() {
		if e.Name == "kiosk.error" {
			errCount++
		}
	}
	if errCount != 3 {
		t.Errorf("expected 3 kiosk.error events, got %d", errCount)
	}
}

func TestBridge_PublishFailureIsReported(t *testing.T) {
	b, client, _ := newTestBridge(t, 20)
	client.publishErr = errors.New("broker gone")

	// Must not panic; the error reply itself fails and is only logged.
	b.HandleMessage("story/test/kiosk/k1/input", []byte(`{"action":"start","player":"Ana"}`))

	if b.Kiosks().Get("k1") == nil {
		t.Error("session should still be bound when only the publish failed")
	}
}
