package orchestrator

import (
	"time"

	"github.com/AaronLay10/SentientStory/internal/story"
)

// View is what a player sees after every action: the scene in play, its
// numbered choices and, once the session ended, the outcome.
type View struct {
	SessionID string             `json:"session_id"`
	Player    string             `json:"player"`
	State     story.SessionState `json:"state"`
	Scene     *SceneView         `json:"scene,omitempty"`
	Outcome   *story.Outcome     `json:"outcome,omitempty"`
	Committed bool               `json:"committed"`
}

// SceneView is a scene as rendered to a player.
type SceneView struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Terminal bool         `json:"terminal"`
	Choices  []ChoiceView `json:"choices"`
}

// ChoiceView is one selectable option, addressed by its 1-based Index.
type ChoiceView struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Ended returns true if the view shows a finished session.
func (v View) Ended() bool {
	return v.State == story.StateEnded
}

// NewView renders the engine's current session. Choices are left out once
// the session has ended since none of them can be taken.
func NewView(e *story.Engine) View {
	s := e.Session()
	if s == nil {
		return View{State: story.StateNoSession}
	}

	v := View{
		SessionID: s.ID,
		Player:    s.Player,
		State:     e.State(),
		Committed: s.Committed,
	}

	if scene, err := e.CurrentScene(); err == nil && scene != nil {
		sv := &SceneView{
			ID:       scene.ID,
			Text:     scene.Text,
			Terminal: scene.IsTerminal(),
			Choices:  []ChoiceView{},
		}
		if !s.Ended() {
			for i, c := range scene.Choices {
				sv.Choices = append(sv.Choices, ChoiceView{Index: i + 1, Label: c.Label})
			}
		}
		v.Scene = sv
	}

	if s.Ended() {
		v.Outcome = &story.Outcome{Result: s.Outcome, Text: s.OutcomeText()}
	}
	return v
}

// Summary describes a managed session for operators.
type Summary struct {
	SessionID string             `json:"session_id"`
	Player    string             `json:"player"`
	State     story.SessionState `json:"state"`
	SceneID   string             `json:"scene_id"`
	Outcome   string             `json:"outcome,omitempty"`
	Steps     int                `json:"steps"`
	StartedAt time.Time          `json:"started_at"`
	LastSeen  time.Time          `json:"last_seen"`
}
