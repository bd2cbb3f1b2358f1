// Package meshgen defines the 3D asset generation collaborator contract:
// text or reference card in, textured mesh out.
package meshgen

import (
	"context"

	"sceneforge/internal/types"
)

// AssetResult is one generated mesh.
type AssetResult struct {
	ObjectID string
	MeshFile string // path to the generated file (caller moves it under the session dir)
	Format   types.AssetFormat
	Bytes    int64
	Checksum string // "sha256:<hex>"
	Metadata map[string]any
}

// Client generates textured meshes. Size hints are world extents in meters;
// generators normalize meshes so the uniform height-based scale restores
// true size downstream.
type Client interface {
	// GenerateFromCard builds a mesh from a per-object reference card.
	GenerateFromCard(ctx context.Context, objectID, cardPath string, sizeHint types.Vec3) (*AssetResult, error)

	// GenerateFromDescription builds a mesh from text only, used when the
	// card stage failed for the object.
	GenerateFromDescription(ctx context.Context, objectID, text, style string) (*AssetResult, error)
}
