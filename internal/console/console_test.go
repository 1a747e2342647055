package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/story"
)

func testGraph(t *testing.T) *story.Graph {
	t.Helper()
	g, err := story.NewGraph(story.Meta{
		ID:        "test",
		Title:     "Test Story",
		About:     "A short test.",
		HowToPlay: "Type a number.",
		Credits:   "Written for tests.",
	}, "hall", []story.Scene{
		{ID: "hall", Text: "Two doors.", Choices: []story.Choice{
			{Label: "Left", Next: "exit"},
			{Label: "Right", Outcome: "Eliminated", Text: "Spikes."},
		}},
		{ID: "exit", Text: "Sunlight.", Outcome: "Victory"},
	})
	require.NoError(t, err)
	return g
}

func run(t *testing.T, reg *registry.Registry, input ...string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(testGraph(t), reg, strings.NewReader(strings.Join(input, "\n")+"\n"), &out)
	require.NoError(t, c.Run())
	return out.String()
}

func TestRun_QuitFromMenu(t *testing.T) {
	out := run(t, nil, "5")
	assert.Contains(t, out, "Test Story")
	assert.Contains(t, out, "Thanks for playing Test Story")
}

func TestRun_EndOfInputIsNotAnError(t *testing.T) {
	out := run(t, nil)
	assert.Contains(t, out, "1. New game")
}

func TestRun_InfoPages(t *testing.T) {
	out := run(t, nil, "2", "3", "4", "9", "5")
	assert.Contains(t, out, "Written for tests.")
	assert.Contains(t, out, "A short test.")
	assert.Contains(t, out, "Type a number.")
	assert.Contains(t, out, `Unknown option "9"`)
}

func TestRun_PlayToVictoryAndViewRegistry(t *testing.T) {
	reg := registry.New(5)
	out := run(t, reg, "1", "Ana", "1", "2", "5")

	assert.Contains(t, out, "Two doors.")
	assert.Contains(t, out, "  1. Left")
	assert.Contains(t, out, "  0. Back to menu")
	assert.Contains(t, out, "*** Victory ***")
	assert.Contains(t, out, "1. Ana - Victory")
	assert.Equal(t, []registry.Entry{{Player: "Ana", Outcome: "Victory"}}, reg.Entries())
}

func TestRun_InlineOutcomeText(t *testing.T) {
	reg := registry.New(5)
	out := run(t, reg, "1", "Bruno", "2", "1", "5")

	assert.Contains(t, out, "Spikes.")
	assert.Contains(t, out, "*** Eliminated ***")
	assert.Equal(t, "Eliminated", reg.Entries()[0].Outcome)
}

func TestRun_NonNumericChoiceIsInvalid(t *testing.T) {
	reg := registry.New(5)
	out := run(t, reg, "1", "", "left", "1", "5")

	assert.Contains(t, out, story.OutcomeInvalidChoice)
	assert.Equal(t, []registry.Entry{{Player: story.DefaultPlayer, Outcome: story.OutcomeInvalidChoice}}, reg.Entries())
}

func TestRun_BackToMenuDiscardsSession(t *testing.T) {
	reg := registry.New(5)
	out := run(t, reg, "1", "Carla", "0", "6", "5")

	assert.Contains(t, out, "No players recorded yet.")
	assert.Equal(t, 0, reg.Size())
}

func TestRun_FullRegistryDropsSilently(t *testing.T) {
	reg := registry.New(1)
	run(t, reg, "1", "Ana", "1", "1", "1", "Bruno", "1", "1", "5")

	assert.Equal(t, []registry.Entry{{Player: "Ana", Outcome: "Victory"}}, reg.Entries())
	assert.Equal(t, 1, reg.Dropped())
}

func TestRun_BuiltinPyramid(t *testing.T) {
	g, err := story.Builtin("pyramid")
	require.NoError(t, err)

	var out bytes.Buffer
	c := New(g, nil, strings.NewReader("1\nAna\n0\n5\n"), &out)
	require.NoError(t, c.Run())
	assert.Contains(t, out.String(), g.Meta().Title)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("tty closed") }

func TestRun_ReadErrorIsReturned(t *testing.T) {
	var out bytes.Buffer
	c := New(testGraph(t), nil, failingReader{}, &out)
	assert.ErrorContains(t, c.Run(), "tty closed")
}

func TestParseChoice(t *testing.T) {
	assert.Equal(t, 2, parseChoice("2"))
	assert.Equal(t, -1, parseChoice("two"))
	assert.Equal(t, -1, parseChoice(""))
	assert.Equal(t, 0, parseChoice("0"))
}
