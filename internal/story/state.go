package story

import (
	"strings"
	"time"
)

// DefaultPlayer replaces an empty or whitespace-only player name.
const DefaultPlayer = "Anonymous"

// Outcomes the engine produces on its own.
const (
	OutcomeInvalidChoice = "Out of game — invalid choice"
	OutcomeFinished      = "Match finished"
)

// invalidChoiceText is the narration shown when a choice index matches no choice.
const invalidChoiceText = "You hesitate, fumble at a door that is not there, and the pyramid claims you. The game is over."

// SessionState is the engine's position in the session lifecycle.
type SessionState string

const (
	StateNoSession SessionState = "no_session"
	StateInSession SessionState = "in_session"
	StateEnded     SessionState = "ended"
)

// Session is one playthrough from the entry scene to an outcome.
type Session struct {
	ID        string
	Player    string
	SceneID   string
	Outcome   string
	Committed bool
	StartedAt time.Time
	// Path lists the scenes shown so far, entry first.
	Path []string

	// ended is set once an outcome is reached; outcome text lives alongside.
	ended       bool
	outcomeText string
}

// Ended returns true once the session reached an outcome.
func (s *Session) Ended() bool {
	return s.ended
}

// OutcomeText returns the narration that closed the session.
func (s *Session) OutcomeText() string {
	return s.outcomeText
}

func (s *Session) clone() *Session {
	cpy := *s
	cpy.Path = append([]string{}, s.Path...)
	return &cpy
}

// NormalizePlayer trims a player name and substitutes DefaultPlayer when nothing is left.
func NormalizePlayer(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayer
	}
	return name
}
