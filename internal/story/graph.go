package story

import (
	"errors"
	"fmt"
	"strings"
)

// Meta describes a story for menus and credits screens.
type Meta struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	About     string `yaml:"about,omitempty" json:"about,omitempty"`
	HowToPlay string `yaml:"how_to_play,omitempty" json:"how_to_play,omitempty"`
	Credits   string `yaml:"credits,omitempty" json:"credits,omitempty"`
}

// Scene is a node of the story graph.
// A scene with a non-empty Outcome is terminal: entering it ends the session.
type Scene struct {
	ID      string   `yaml:"id" json:"id"`
	Text    string   `yaml:"text" json:"text"`
	Choices []Choice `yaml:"choices,omitempty" json:"choices,omitempty"`
	Outcome string   `yaml:"outcome,omitempty" json:"outcome,omitempty"`
}

// IsTerminal returns true if entering the scene ends the session.
func (s *Scene) IsTerminal() bool {
	return s.Outcome != ""
}

// Choice is an edge leaving a scene. Exactly one of Next or Outcome is set:
// Next names the target scene, Outcome ends the session in place with Text
// as the closing narration.
type Choice struct {
	Label   string `yaml:"label" json:"label"`
	Next    string `yaml:"next,omitempty" json:"next,omitempty"`
	Outcome string `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	Text    string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Target resolves the edge to either a scene id or an inline outcome.
func (c Choice) Target() (sceneID string, outcome *Outcome) {
	if c.Outcome != "" {
		return "", &Outcome{Result: c.Outcome, Text: c.Text}
	}
	return c.Next, nil
}

// Outcome is the terminal classification of a playthrough plus the text shown with it.
type Outcome struct {
	Result string `json:"result"`
	Text   string `json:"text,omitempty"`
}

// Graph is an immutable, validated scene graph.
type Graph struct {
	meta   Meta
	entry  string
	scenes map[string]*Scene
	order  []string
}

// NewGraph validates the scenes and builds a graph.
// Every problem found is reported; the returned error matches ErrGraphConstruction.
func NewGraph(meta Meta, entry string, scenes []Scene) (*Graph, error) {
	g := &Graph{
		meta:   meta,
		entry:  entry,
		scenes: make(map[string]*Scene, len(scenes)),
	}

	var errs []error
	for i := range scenes {
		s := scenes[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			errs = append(errs, &GraphError{Choice: -1, Reason: fmt.Sprintf("scene at position %d has no id", i+1)})
			continue
		}
		if _, dup := g.scenes[s.ID]; dup {
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: -1, Reason: "duplicate scene id"})
			continue
		}
		s.Choices = append([]Choice{}, s.Choices...)
		g.scenes[s.ID] = &s
		g.order = append(g.order, s.ID)
	}

	if entry == "" {
		errs = append(errs, &GraphError{Choice: -1, Reason: "no entry scene"})
	} else if _, ok := g.scenes[entry]; !ok {
		errs = append(errs, &GraphError{SceneID: entry, Choice: -1, Reason: "entry scene not found"})
	}

	for _, id := range g.order {
		errs = append(errs, g.checkScene(g.scenes[id])...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

func (g *Graph) checkScene(s *Scene) []error {
	var errs []error

	if s.IsTerminal() {
		if strings.TrimSpace(s.Outcome) == "" {
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: -1, Reason: "blank outcome"})
		}
		if len(s.Choices) > 0 {
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: -1, Reason: "terminal scene offers choices"})
		}
		return errs
	}
	if len(s.Choices) == 0 {
		errs = append(errs, &GraphError{SceneID: s.ID, Choice: -1, Reason: "scene has no choices and no outcome"})
	}

	for i, c := range s.Choices {
		n := i + 1
		if strings.TrimSpace(c.Label) == "" {
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: n, Reason: "choice has no label"})
		}
		switch {
		case c.Next != "" && c.Outcome != "":
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: n, Reason: "choice sets both next and outcome"})
		case c.Next == "" && c.Outcome == "":
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: n, Reason: "choice has no target"})
		case c.Outcome != "" && strings.TrimSpace(c.Outcome) == "":
			errs = append(errs, &GraphError{SceneID: s.ID, Choice: n, Reason: "blank outcome"})
		case c.Next != "":
			if _, ok := g.scenes[c.Next]; !ok {
				errs = append(errs, &GraphError{SceneID: s.ID, Choice: n, Reason: fmt.Sprintf("dangling target %q", c.Next)})
			}
		}
	}
	return errs
}

// Meta returns the story metadata.
func (g *Graph) Meta() Meta {
	return g.meta
}

// Entry returns the id of the scene every session starts at.
func (g *Graph) Entry() string {
	return g.entry
}

// Scene returns the scene with the given id, or nil if it does not exist.
func (g *Graph) Scene(id string) *Scene {
	return g.scenes[id]
}

// Len returns the number of scenes.
func (g *Graph) Len() int {
	return len(g.order)
}

// SceneIDs returns scene ids in declaration order.
func (g *Graph) SceneIDs() []string {
	return append([]string{}, g.order...)
}

// Unreachable returns the scenes that no path from the entry reaches,
// in declaration order.
func (g *Graph) Unreachable() []string {
	visited := map[string]bool{g.entry: true}
	queue := []string{g.entry}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, c := range g.scenes[current].Choices {
			if c.Next != "" && !visited[c.Next] {
				visited[c.Next] = true
				queue = append(queue, c.Next)
			}
		}
	}

	var out []string
	for _, id := range g.order {
		if !visited[id] {
			out = append(out, id)
		}
	}
	return out
}
