package story

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/registry"
)

// Recorder receives one (player, outcome) pair per finished session.
// It reports whether the pair was kept; *registry.Registry satisfies it.
type Recorder interface {
	Record(player, outcome string) bool
}

// Step is the result of a choice. Outcome is non-nil when the session ended.
type Step struct {
	Scene   *Scene
	Outcome *Outcome
}

// Ended returns true if the step finished the session.
func (s Step) Ended() bool {
	return s.Outcome != nil
}

// Engine drives one session at a time over an immutable graph.
// It is not safe for concurrent use; give every player their own Engine.
// Scenes returned by the engine belong to the graph and must not be modified.
type Engine struct {
	graph    *Graph
	recorder Recorder
	session  *Session
}

// NewEngine creates an engine with no active session.
// A nil recorder gets a private registry with the default capacity.
func NewEngine(g *Graph, rec Recorder) *Engine {
	if rec == nil {
		rec = registry.New(registry.DefaultCapacity)
	}
	return &Engine{
		graph:    g,
		recorder: rec,
	}
}

// Graph returns the graph the engine plays.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// StartSession begins a new playthrough at the entry scene, replacing any
// previous session. It never fails.
func (e *Engine) StartSession(player string) *Session {
	if e.session != nil && !e.session.ended {
		e.emit("info", "session.abandoned", map[string]interface{}{
			"scene_id": e.session.SceneID,
		})
	}

	e.session = &Session{
		ID:        uuid.NewString(),
		Player:    NormalizePlayer(player),
		StartedAt: time.Now().UTC(),
	}

	e.emit("info", "session.started", map[string]interface{}{
		"entry": e.graph.Entry(),
	})
	e.enter(e.graph.Scene(e.graph.Entry()))

	return e.session.clone()
}

// CurrentScene returns the scene being shown. After the session ended it
// keeps returning the last scene the player saw.
func (e *Engine) CurrentScene() (*Scene, error) {
	if e.session == nil {
		return nil, fmt.Errorf("current scene: %w", ErrInvalidState)
	}
	return e.graph.Scene(e.session.SceneID), nil
}

// Choose follows the choice at the 1-based index of the current scene.
//
// An index outside the scene's choices is not an error: it ends the session
// with OutcomeInvalidChoice, recorded like any other outcome.
// ErrInvalidState is returned when no session is in play.
func (e *Engine) Choose(index int) (Step, error) {
	if e.session == nil {
		return Step{}, fmt.Errorf("choose: no session: %w", ErrInvalidState)
	}
	if e.session.ended {
		return Step{}, fmt.Errorf("choose: session already ended: %w", ErrInvalidState)
	}

	scene := e.graph.Scene(e.session.SceneID)

	if index < 1 || index > len(scene.Choices) {
		e.emit("warn", "choice.invalid", map[string]interface{}{
			"scene_id": scene.ID,
			"choice":   index,
			"choices":  len(scene.Choices),
		})
		out := &Outcome{Result: OutcomeInvalidChoice, Text: invalidChoiceText}
		e.finish(out)
		return Step{Scene: scene, Outcome: out}, nil
	}

	choice := scene.Choices[index-1]
	e.emit("info", "choice.made", map[string]interface{}{
		"scene_id": scene.ID,
		"choice":   index,
		"label":    choice.Label,
	})

	next, out := choice.Target()
	if out != nil {
		e.finish(out)
		return Step{Scene: scene, Outcome: out}, nil
	}

	target := e.graph.Scene(next)
	e.enter(target)
	if target.IsTerminal() {
		out := &Outcome{Result: target.Outcome, Text: target.Text}
		e.finish(out)
		return Step{Scene: target, Outcome: out}, nil
	}
	return Step{Scene: target}, nil
}

// RegisterOutcome writes the session's outcome to the recorder once.
// It is a no-op when there is no session, the outcome is already committed
// or the player is empty. An unset outcome is recorded as OutcomeFinished.
func (e *Engine) RegisterOutcome() {
	s := e.session
	if s == nil || s.Committed || s.Player == "" {
		return
	}
	if strings.TrimSpace(s.Outcome) == "" {
		s.Outcome = OutcomeFinished
	}

	kept := e.recorder.Record(s.Player, s.Outcome)
	s.Committed = true

	e.emit("info", "outcome.recorded", map[string]interface{}{
		"outcome": s.Outcome,
		"kept":    kept,
	})
	if !kept {
		e.emit("warn", "registry.full", map[string]interface{}{
			"outcome": s.Outcome,
		})
	}
}

// EndSession discards the session without recording anything, as when the
// player returns to the main menu.
func (e *Engine) EndSession() {
	if e.session == nil {
		return
	}
	if !e.session.ended {
		e.emit("info", "session.abandoned", map[string]interface{}{
			"scene_id": e.session.SceneID,
		})
	}
	e.session = nil
}

// State returns where the engine is in the session lifecycle.
func (e *Engine) State() SessionState {
	switch {
	case e.session == nil:
		return StateNoSession
	case e.session.ended:
		return StateEnded
	default:
		return StateInSession
	}
}

// Session returns a copy of the active session, or nil.
func (e *Engine) Session() *Session {
	if e.session == nil {
		return nil
	}
	return e.session.clone()
}

func (e *Engine) enter(scene *Scene) {
	e.session.SceneID = scene.ID
	e.session.Path = append(e.session.Path, scene.ID)
	e.emit("info", "scene.entered", map[string]interface{}{
		"scene_id": scene.ID,
		"terminal": scene.IsTerminal(),
	})
}

func (e *Engine) finish(out *Outcome) {
	e.session.Outcome = out.Result
	e.session.outcomeText = out.Text
	e.session.ended = true

	e.emit("info", "session.ended", map[string]interface{}{
		"scene_id": e.session.SceneID,
		"outcome":  out.Result,
		"steps":    len(e.session.Path),
	})
	e.RegisterOutcome()
}

func (e *Engine) emit(level, name string, fields map[string]interface{}) {
	fields["story_id"] = e.graph.Meta().ID
	if e.session != nil {
		fields["session_id"] = e.session.ID
		fields["player"] = e.session.Player
	}
	events.Emit(level, name, "", fields)
}
