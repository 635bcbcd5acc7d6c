// Package curriculum loads the tech tree that interviews are drawn from.
//
// The tree is Track -> Tier -> Subject -> concepts. A branching tier groups
// its subjects under named options instead of listing them directly.
package curriculum

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed techtree.yaml
var defaultTree []byte

// ErrNotFound is returned when a track or tier name does not resolve.
var ErrNotFound = errors.New("curriculum: not found")

// Tree is the full curriculum.
type Tree struct {
	Tracks []Track `yaml:"tracks" json:"tracks"`
}

// Track is a career path.
type Track struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Tiers       []Tier `yaml:"tiers" json:"tiers"`
}

// Tier is one stage of a track.
type Tier struct {
	Name     string    `yaml:"name" json:"name"`
	Subjects []Subject `yaml:"subjects,omitempty" json:"subjects,omitempty"`
	Options  []Option  `yaml:"options,omitempty" json:"options,omitempty"`
}

// Option is one branch of a branching tier.
type Option struct {
	Name     string    `yaml:"name" json:"name"`
	Subjects []Subject `yaml:"subjects" json:"subjects"`
}

// Subject is a testable skill with its concept list.
type Subject struct {
	Name     string   `yaml:"name" json:"name"`
	Concepts []string `yaml:"concepts" json:"concepts"`
}

// AllSubjects returns the tier's subjects, flattening options in order.
func (t Tier) AllSubjects() []Subject {
	out := append([]Subject(nil), t.Subjects...)
	for _, o := range t.Options {
		out = append(out, o.Subjects...)
	}
	return out
}

// Load decodes a tree from YAML.
func Load(r io.Reader) (*Tree, error) {
	var tree Tree
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode curriculum: %w", err)
	}
	if err := tree.validate(); err != nil {
		return nil, err
	}
	return &tree, nil
}

// LoadFile reads a tree from path. An empty path yields the built-in tree.
func LoadFile(path string) (*Tree, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open curriculum: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Default returns the built-in tree.
func Default() (*Tree, error) {
	return Load(strings.NewReader(string(defaultTree)))
}

func (t *Tree) validate() error {
	if len(t.Tracks) == 0 {
		return errors.New("curriculum has no tracks")
	}
	seen := make(map[string]bool, len(t.Tracks))
	for _, tr := range t.Tracks {
		if tr.Name == "" {
			return errors.New("curriculum track with empty name")
		}
		if seen[tr.Name] {
			return fmt.Errorf("duplicate curriculum track %q", tr.Name)
		}
		seen[tr.Name] = true
	}
	return nil
}

// TrackNames lists tracks in file order.
func (t *Tree) TrackNames() []string {
	names := make([]string, len(t.Tracks))
	for i, tr := range t.Tracks {
		names[i] = tr.Name
	}
	return names
}

// FindTrack resolves a track by exact name, then case-insensitively by
// substring, so "ai engineer" finds "Track 1: AI Engineer".
func (t *Tree) FindTrack(name string) (*Track, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	for i := range t.Tracks {
		if t.Tracks[i].Name == name {
			return &t.Tracks[i], true
		}
	}
	lower := strings.ToLower(name)
	for i := range t.Tracks {
		if strings.Contains(strings.ToLower(t.Tracks[i].Name), lower) {
			return &t.Tracks[i], true
		}
	}
	return nil, false
}

// FindTier resolves a tier within a track using the same matching rules.
func (tr *Track) FindTier(name string) (*Tier, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	for i := range tr.Tiers {
		if tr.Tiers[i].Name == name {
			return &tr.Tiers[i], true
		}
	}
	lower := strings.ToLower(name)
	for i := range tr.Tiers {
		if strings.Contains(strings.ToLower(tr.Tiers[i].Name), lower) {
			return &tr.Tiers[i], true
		}
	}
	return nil, false
}

// Subjects returns every subject under track and tier.
func (t *Tree) Subjects(track, tier string) ([]Subject, error) {
	tr, ok := t.FindTrack(track)
	if !ok {
		return nil, fmt.Errorf("track %q: %w", track, ErrNotFound)
	}
	ti, ok := tr.FindTier(tier)
	if !ok {
		return nil, fmt.Errorf("tier %q in %s: %w", tier, tr.Name, ErrNotFound)
	}
	return ti.AllSubjects(), nil
}

// Context renders a short plain-text view of the tree for prompting. With
// no track it summarizes every track; with a track it lists that track's
// tiers; with both it lists the tier's subjects.
func (t *Tree) Context(track, tier string) string {
	var b strings.Builder
	if strings.TrimSpace(track) == "" {
		b.WriteString("[Available Tracks]\n")
		for _, tr := range t.Tracks {
			fmt.Fprintf(&b, "- %s: %s\n", tr.Name, tr.Description)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	tr, ok := t.FindTrack(track)
	if !ok {
		return "Selected track information not found."
	}

	if strings.TrimSpace(tier) == "" {
		fmt.Fprintf(&b, "[Selected Track: %s]\nAvailable Tiers:\n", tr.Name)
		for _, ti := range tr.Tiers {
			fmt.Fprintf(&b, "- %s\n", ti.Name)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	ti, ok := tr.FindTier(tier)
	if !ok {
		return fmt.Sprintf("Selected tier %q not found in %s.", tier, tr.Name)
	}
	fmt.Fprintf(&b, "[Current Focus: %s]\nContents:\n", ti.Name)
	for _, s := range ti.Subjects {
		fmt.Fprintf(&b, "- %s\n", s.Name)
	}
	for _, o := range ti.Options {
		fmt.Fprintf(&b, "- %s:\n", o.Name)
		for _, s := range o.Subjects {
			fmt.Fprintf(&b, "  - %s\n", s.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
