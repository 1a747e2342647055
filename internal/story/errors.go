package story

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphConstruction is matched by every error NewGraph returns.
	ErrGraphConstruction = errors.New("invalid scene graph")

	// ErrInvalidState is returned when a session operation is called with no
	// session in play.
	ErrInvalidState = errors.New("invalid session state")
)

// GraphError describes one problem found while building a graph.
// Choice is the 1-based choice index, or -1 when the problem is not tied to a choice.
type GraphError struct {
	SceneID string
	Choice  int
	Reason  string
}

func (e *GraphError) Error() string {
	switch {
	case e.SceneID == "":
		return fmt.Sprintf("scene graph: %s", e.Reason)
	case e.Choice < 0:
		return fmt.Sprintf("scene graph: scene %s: %s", e.SceneID, e.Reason)
	default:
		return fmt.Sprintf("scene graph: scene %s choice %d: %s", e.SceneID, e.Choice, e.Reason)
	}
}

func (e *GraphError) Unwrap() error {
	return ErrGraphConstruction
}
