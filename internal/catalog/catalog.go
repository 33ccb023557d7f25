// SPDX-License-Identifier: MIT

// Package catalog resolves opaque track references to playable metadata.
// The engine only reads from the catalog, never writes.
package catalog

import (
	"context"
	"errors"
	"time"
)

// Track is the resolved metadata for one track reference.
type Track struct {
	Ref        string        `json:"ref"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Duration   time.Duration `json:"duration"`
	ContentRef string        `json:"content_ref"`
}

// ErrNotFound signals that a track reference is unknown to the catalog.
var ErrNotFound = errors.New("catalog: track not found")

// Resolver is the catalog collaborator contract.
type Resolver interface {
	ResolveTrack(ctx context.Context, ref string) (*Track, error)
}
