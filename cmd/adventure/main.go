package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/AaronLay10/SentientStory/internal/console"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/story"
)

func main() {
	storyPath := flag.String("story", "", "path to a story YAML file")
	builtin := flag.String("builtin", "pyramid", "builtin story to play when -story is not set ("+strings.Join(story.Builtins(), ", ")+")")
	capacity := flag.Int("capacity", registry.DefaultCapacity, "player registry capacity")
	flag.Parse()

	var (
		g   *story.Graph
		err error
	)
	if *storyPath != "" {
		g, err = story.Load(*storyPath)
	} else {
		g, err = story.Builtin(*builtin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load story: %v\n", err)
		os.Exit(1)
	}
	if ids := g.Unreachable(); len(ids) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unreachable scenes: %s\n", strings.Join(ids, ", "))
	}

	c := console.New(g, registry.New(*capacity), os.Stdin, os.Stdout)
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
