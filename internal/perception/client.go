// Package perception defines the VLM collaborator contract for object and
// constraint extraction, plus the production Gemini-backed implementation.
// The core holds one interface-typed handle; swapping implementations is a
// constructor-time choice.
package perception

import (
	"context"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

// VLMClient extracts structured scene content from natural language,
// optionally guided by the scene reference image.
type VLMClient interface {
	// ExtractObjects turns the scene request into an object inventory.
	// Every returned object conforms to the object validation rules; the
	// session id is used for correlation only.
	ExtractObjects(ctx context.Context, sessionID string, req *types.SceneRequest, sceneRefPath string) (*types.ObjectSet, error)

	// ExtractConstraints derives spatial relations between the extracted
	// objects. Returned relations reference object ids from the inventory;
	// objects appear as source in ordered runs before ever appearing as
	// target, so the directional subgraph stays acyclic by construction.
	ExtractConstraints(ctx context.Context, text string, objects *types.ObjectSet, sceneRefPath string) ([]*constraint.SpatialConstraint, error)
}
