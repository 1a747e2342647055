package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/orchestrator"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// Kiosk actions carried in input payloads.
const (
	ActionStart  = "start"
	ActionChoose = "choose"
	ActionEnd    = "end"
)

// Publisher sends a payload to a topic. *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// KioskInput is the JSON payload a kiosk sends on <prefix>/kiosk/<id>/input.
type KioskInput struct {
	Action string `json:"action"`
	Player string `json:"player,omitempty"`
	Choice int    `json:"choice,omitempty"`
}

// OutcomeMessage is published on <prefix>/outcomes when a kiosk session ends.
type OutcomeMessage struct {
	Kiosk     string `json:"kiosk"`
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
	Outcome   string `json:"outcome"`
	Committed bool   `json:"committed"`
}

// ErrorMessage is published to a kiosk's scene topic when its input fails.
type ErrorMessage struct {
	Error string `json:"error"`
}

// Bridge lets MQTT kiosks play sessions on a Manager. Each kiosk id holds
// at most one session.
type Bridge struct {
	manager *orchestrator.Manager
	pub     Publisher
	kiosks  *KioskRegistry
	prefix  string
	logger  *zap.Logger
	now     func() time.Time
}

// NewBridge creates a bridge publishing through pub under the topic prefix.
func NewBridge(manager *orchestrator.Manager, pub Publisher, prefix string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		manager: manager,
		pub:     pub,
		kiosks:  NewKioskRegistry(),
		prefix:  strings.TrimSuffix(prefix, "/"),
		logger:  logger.Named("kiosk"),
		now:     time.Now,
	}
}

// Kiosks returns the kiosk table.
func (b *Bridge) Kiosks() *KioskRegistry {
	return b.kiosks
}

// InputTopic is the filter matching every kiosk's input topic.
func (b *Bridge) InputTopic() string {
	return b.prefix + "/kiosk/+/input"
}

// SceneTopic is where a kiosk receives its views.
func (b *Bridge) SceneTopic(kioskID string) string {
	return b.prefix + "/kiosk/" + kioskID + "/scene"
}

// OutcomesTopic receives one message per finished kiosk session.
func (b *Bridge) OutcomesTopic() string {
	return b.prefix + "/outcomes"
}

// Handler adapts HandleMessage to paho.
func (b *Bridge) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		b.HandleMessage(msg.Topic(), msg.Payload())
	}
}

// KioskID extracts the kiosk id from an input topic.
func (b *Bridge) KioskID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/kiosk/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/input")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// HandleMessage processes one kiosk input message.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	kioskID, ok := b.KioskID(topic)
	if !ok {
		b.logger.Warn("ignoring message on unexpected topic", zap.String("topic", topic))
		return
	}

	var in KioskInput
	if err := json.Unmarshal(payload, &in); err != nil {
		b.fail(kioskID, fmt.Errorf("invalid payload: %w", err))
		return
	}

	events.Emit("info", "kiosk.input", "", map[string]interface{}{
		"kiosk":  kioskID,
		"action": in.Action,
	})

	var err error
	switch in.Action {
	case ActionStart:
		err = b.start(kioskID, in.Player)
	case ActionChoose:
		err = b.choose(kioskID, in.Choice)
	case ActionEnd:
		err = b.end(kioskID)
	default:
		err = fmt.Errorf("unknown action %q", in.Action)
	}
	if err != nil {
		b.fail(kioskID, err)
	}
}

func (b *Bridge) start(kioskID, player string) error {
	if prev := b.kiosks.Unregister(kioskID); prev != nil {
		if err := b.manager.End(prev.SessionID); err != nil && !errors.Is(err, orchestrator.ErrSessionNotFound) {
			return err
		}
	}

	v, err := b.manager.Start(player)
	if err != nil {
		return err
	}
	b.kiosks.Register(&Kiosk{
		ID:        kioskID,
		SessionID: v.SessionID,
		Player:    v.Player,
		LastSeen:  b.now(),
	})
	return b.publishView(kioskID, v)
}

func (b *Bridge) choose(kioskID string, index int) error {
	k := b.kiosks.Get(kioskID)
	if k == nil {
		return errors.New("no session on this kiosk")
	}
	b.kiosks.Touch(kioskID, b.now())

	v, err := b.manager.Choose(k.SessionID, index)
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		b.kiosks.Unregister(kioskID)
		return errors.New("session expired")
	}
	if err != nil {
		return err
	}

	if err := b.publishView(kioskID, v); err != nil {
		return err
	}
	if v.Ended() {
		return b.publishOutcome(kioskID, v)
	}
	return nil
}

func (b *Bridge) end(kioskID string) error {
	k := b.kiosks.Unregister(kioskID)
	if k == nil {
		return errors.New("no session on this kiosk")
	}
	if err := b.manager.End(k.SessionID); err != nil && !errors.Is(err, orchestrator.ErrSessionNotFound) {
		return err
	}
	return b.publishView(kioskID, orchestrator.View{State: story.StateNoSession})
}

// Release ends a kiosk's session without recording it and resets the kiosk.
func (b *Bridge) Release(kioskID, reason string) {
	k := b.kiosks.Unregister(kioskID)
	if k == nil {
		return
	}
	_ = b.manager.End(k.SessionID)

	events.Emit("info", "kiosk.released", reason, map[string]interface{}{
		"kiosk":      kioskID,
		"session_id": k.SessionID,
		"player":     k.Player,
	})
	if err := b.publishView(kioskID, orchestrator.View{State: story.StateNoSession}); err != nil {
		b.logger.Warn("failed to reset kiosk", zap.String("kiosk", kioskID), zap.Error(err))
	}
}

func (b *Bridge) publishView(kioskID string, v orchestrator.View) error {
	return b.publishJSON(b.SceneTopic(kioskID), v)
}

func (b *Bridge) publishOutcome(kioskID string, v orchestrator.View) error {
	msg := OutcomeMessage{
		Kiosk:     kioskID,
		SessionID: v.SessionID,
		Player:    v.Player,
		Committed: v.Committed,
	}
	if v.Outcome != nil {
		msg.Outcome = v.Outcome.Result
	}
	return b.publishJSON(b.OutcomesTopic(), msg)
}

func (b *Bridge) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", topic, err)
	}
	if err := b.pub.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bridge) fail(kioskID string, err error) {
	b.logger.Warn("kiosk input failed", zap.String("kiosk", kioskID), zap.Error(err))
	events.Emit("warn", "kiosk.error", err.Error(), map[string]interface{}{
		"kiosk": kioskID,
	})

	payload, _ := json.Marshal(ErrorMessage{Error: err.Error()})
	if perr := b.pub.Publish(b.SceneTopic(kioskID), payload); perr != nil {
		b.logger.Error("failed to report error to kiosk", zap.String("kiosk", kioskID), zap.Error(perr))
	}
}
