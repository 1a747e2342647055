package story

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stories/*.yaml
var builtinStories embed.FS

// File is the on-disk form of a story. JSON files load too, since JSON is valid YAML.
type File struct {
	Version int     `yaml:"version"`
	Story   Meta    `yaml:"story"`
	Entry   string  `yaml:"entry"`
	Scenes  []Scene `yaml:"scenes"`
}

// Load reads a story file and builds its graph.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a story document and builds its graph.
func Parse(data []byte) (*Graph, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse story: %w", err)
	}

	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported story version: %d", f.Version)
	}

	return NewGraph(f.Story, f.Entry, f.Scenes)
}

// Builtin loads one of the stories compiled into the binary.
func Builtin(name string) (*Graph, error) {
	data, err := builtinStories.ReadFile(path.Join("stories", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown builtin story %q", name)
	}
	return Parse(data)
}

// Builtins lists the names of the stories compiled into the binary.
func Builtins() []string {
	entries, err := builtinStories.ReadDir("stories")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
