// Package imaging defines the image generation collaborator contract for
// scene reference images and per-object reference cards. Implementations
// are vendor adapters; the core only depends on this interface.
package imaging

import (
	"context"

	"sceneforge/internal/types"
)

// SceneReference is the whole-scene rendering guiding downstream extraction
// and asset style.
type SceneReference struct {
	ImageBytes []byte // inline payload, or
	ImageURL   string // remote reference; at least one is set
	PromptUsed string
	ElapsedS   float64
}

// CardResult is one per-object reference card.
type CardResult struct {
	ObjectID   string
	CardBytes  []byte
	CardURL    string
	PromptUsed string
	ElapsedS   float64
}

// Client generates reference imagery. Failure kinds follow the error
// taxonomy: upstream_transport and upstream_rate_limited are retryable,
// upstream_auth, invalid_input, and upstream_refused fail fast.
type Client interface {
	// GenerateSceneReference renders a single whole-scene image.
	GenerateSceneReference(ctx context.Context, sessionID, text, style string) (*SceneReference, error)

	// GenerateObjectCards renders one card per object, returning results of
	// the same length and order as the input.
	GenerateObjectCards(ctx context.Context, sessionID string, objects []*types.Object, sceneRefPath string) ([]*CardResult, error)
}
