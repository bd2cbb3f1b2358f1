// Package assembly builds the instruction bundle handed to the downstream
// 3D assembly host. The core never calls the host directly; it only writes
// the bundle into the session directory, and an out-of-process adapter
// invokes the host.
package assembly

import (
	"context"
	"fmt"

	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// Bundle is the assembly instruction triple. The object name map follows
// the convention that downstream host names equal object ids.
type Bundle struct {
	ManifestPath  string               `json:"asset_manifest"`
	LayoutPath    string               `json:"layout_solution"`
	ObjectNameMap *types.ObjectNameMap `json:"object_name_map"`
}

// Host is the downstream assembly collaborator. It accepts the bundle by
// filesystem path; invocation lives outside the core.
type Host interface {
	Assemble(ctx context.Context, sessionDir, bundlePath string) error
}

// WriteObjectMap persists blender_object_map.json for the successful assets
// in the manifest, completing the assemble stage.
func WriteObjectMap(st *store.Store, manifest *types.AssetManifest) (*types.ObjectNameMap, error) {
	ids := manifest.Succeeded()
	if len(ids) == 0 {
		return nil, types.NewError(types.ErrAssetGeneration, "assembly",
			"no usable assets in manifest; nothing to assemble").
			WithActions("inspect asset_manifest.json for per-object errors")
	}
	m := types.IdentityNameMap(ids)
	if err := st.WriteJSON(store.FileObjectMap, m); err != nil {
		return nil, err
	}
	return m, nil
}

// BundlePaths resolves a session's current bundle: the manifest plus the
// latest layout solution version.
func BundlePaths(st *store.Store) (*Bundle, error) {
	layoutV := st.LatestVersion(store.PatternLayout)
	if layoutV == 0 {
		return nil, types.NewError(types.ErrFileNotFound, "assembly", "no layout solution present")
	}
	if !st.FilePresent(store.FileManifest) {
		return nil, types.NewError(types.ErrFileNotFound, "assembly", "no asset manifest present")
	}

	var m types.ObjectNameMap
	if err := st.ReadJSON(store.FileObjectMap, &m); err != nil {
		return nil, err
	}
	return &Bundle{
		ManifestPath:  store.FileManifest,
		LayoutPath:    fmt.Sprintf(store.PatternLayout, layoutV),
		ObjectNameMap: &m,
	}, nil
}
