// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Static is a fixed in-memory catalog, loaded from a YAML file or seeded
// directly. Used for local deployments and tests.
type Static struct {
	mu     sync.RWMutex
	tracks map[string]Track
}

// NewStatic builds a Static catalog from the given tracks.
func NewStatic(tracks ...Track) *Static {
	s := &Static{tracks: make(map[string]Track, len(tracks))}
	for _, t := range tracks {
		s.tracks[t.Ref] = t
	}
	return s
}

// LoadStatic reads a YAML track list from path. Durations use Go duration
// syntax ("3m12s").
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc struct {
		Tracks []struct {
			Ref        string `yaml:"ref"`
			Title      string `yaml:"title"`
			Artist     string `yaml:"artist"`
			Duration   string `yaml:"duration"`
			ContentRef string `yaml:"content_ref"`
		} `yaml:"tracks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	tracks := make([]Track, 0, len(doc.Tracks))
	for _, raw := range doc.Tracks {
		t := Track{Ref: raw.Ref, Title: raw.Title, Artist: raw.Artist, ContentRef: raw.ContentRef}
		if raw.Duration != "" {
			d, err := time.ParseDuration(raw.Duration)
			if err != nil {
				return nil, fmt.Errorf("catalog: track %s: bad duration %q: %w", raw.Ref, raw.Duration, err)
			}
			t.Duration = d
		}
		tracks = append(tracks, t)
	}
	return NewStatic(tracks...), nil
}

func (s *Static) ResolveTrack(_ context.Context, ref string) (*Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	cp := t
	return &cp, nil
}

var _ Resolver = (*Static)(nil)
