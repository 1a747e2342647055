// Package console plays a story on a line-oriented terminal.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// ErrQuit is returned by Run when the player leaves from the main menu.
var ErrQuit = errors.New("player quit")

const rule = "=================================================="

// Console is a terminal front end over one engine and a registry.
type Console struct {
	graph    *story.Graph
	engine   *story.Engine
	registry *registry.Registry
	in       *bufio.Scanner
	out      io.Writer
}

// New creates a console reading commands from in and writing to out.
// A nil reg gets a registry with the default capacity.
func New(g *story.Graph, reg *registry.Registry, in io.Reader, out io.Writer) *Console {
	if reg == nil {
		reg = registry.New(registry.DefaultCapacity)
	}
	return &Console{
		graph:    g,
		engine:   story.NewEngine(g, reg),
		registry: reg,
		in:       bufio.NewScanner(in),
		out:      out,
	}
}

// Run shows the main menu until the player quits or input ends.
// Quitting and end of input both return nil.
func (c *Console) Run() error {
	err := c.menu()
	if errors.Is(err, ErrQuit) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// readLine returns the next trimmed input line, or io.EOF.
func (c *Console) readLine(prompt string) (string, error) {
	c.printf("%s", prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) menu() error {
	meta := c.graph.Meta()
	for {
		c.printf("\n%s\n  %s\n%s\n", rule, meta.Title, rule)
		c.printf("1. New game\n2. Credits\n3. About\n4. How to play\n5. Quit\n6. View registry\n")

		line, err := c.readLine("> ")
		if err != nil {
			return err
		}

		switch line {
		case "1":
			err = c.play()
		case "2":
			c.page("CREDITS", meta.Credits)
		case "3":
			c.page("ABOUT", meta.About)
		case "4":
			c.page("HOW TO PLAY", meta.HowToPlay)
		case "5":
			c.printf("Thanks for playing %s. Until the next adventure!\n", meta.Title)
			return ErrQuit
		case "6":
			c.showRegistry()
		default:
			c.printf("Unknown option %q.\n", line)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Console) page(heading, body string) {
	if body == "" {
		body = "Nothing here yet."
	}
	c.printf("\n%s\n%s\n", heading, strings.TrimRight(body, "\n"))
}

func (c *Console) showRegistry() {
	entries := c.registry.Entries()
	c.printf("\nPLAYER REGISTRY (%d/%d)\n", len(entries), c.registry.Capacity())
	if len(entries) == 0 {
		c.printf("No players recorded yet.\n")
		return
	}
	for i, e := range entries {
		c.printf("%d. %s - %s\n", i+1, e.Player, e.Outcome)
	}
}

// play runs one session from name prompt to outcome.
func (c *Console) play() error {
	name, err := c.readLine("Enter your name, adventurer: ")
	if err != nil {
		return err
	}
	c.engine.StartSession(name)

	for {
		scene, err := c.engine.CurrentScene()
		if err != nil {
			return err
		}
		c.showScene(scene)

		line, err := c.readLine("> ")
		if err != nil {
			c.engine.EndSession()
			return err
		}
		if line == "0" {
			c.engine.EndSession()
			return nil
		}

		step, err := c.engine.Choose(parseChoice(line))
		if err != nil {
			return err
		}
		if step.Ended() {
			return c.showOutcome(step)
		}
	}
}

// parseChoice turns input into a choice index. Anything that is not a
// number maps to -1, which the engine treats as an invalid choice.
func parseChoice(line string) int {
	n, err := strconv.Atoi(line)
	if err != nil {
		return -1
	}
	return n
}

func (c *Console) showScene(scene *story.Scene) {
	c.printf("\n%s\n\n", strings.TrimRight(scene.Text, "\n"))
	for i, ch := range scene.Choices {
		c.printf("  %d. %s\n", i+1, ch.Label)
	}
	c.printf("  0. Back to menu\n")
}

func (c *Console) showOutcome(step story.Step) error {
	if step.Outcome.Text != "" {
		c.printf("\n%s\n", strings.TrimRight(step.Outcome.Text, "\n"))
	}
	c.printf("\n*** %s ***\n", step.Outcome.Result)

	for {
		c.printf("\n1. Back to menu\n2. View registry\n")
		line, err := c.readLine("> ")
		if err != nil {
			return err
		}
		switch line {
		case "1":
			return nil
		case "2":
			c.showRegistry()
			return nil
		default:
			c.printf("Unknown option %q.\n", line)
		}
	}
}
