package types

// AssetFormat names a supported mesh container format.
type AssetFormat string

const (
	FormatGLB  AssetFormat = "glb"
	FormatGLTF AssetFormat = "gltf"
	FormatFBX  AssetFormat = "fbx"
	FormatOBJ  AssetFormat = "obj"
)

// ValidFormat reports whether f is one of the supported mesh formats.
func ValidFormat(f AssetFormat) bool {
	switch f {
	case FormatGLB, FormatGLTF, FormatFBX, FormatOBJ:
		return true
	}
	return false
}

// AssetEntry describes one generated (or retrieved) mesh file. The path is
// relative to the session directory so the manifest stays relocatable.
type AssetEntry struct {
	AssetPath string         `json:"asset_path"`
	Format    AssetFormat    `json:"format"`
	SizeBytes int64          `json:"size_bytes"`
	Checksum  string         `json:"checksum"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AssetManifest records every asset produced for a session. Failed objects
// keep an entry with Error set so a partial manifest is still complete
// evidence of what happened.
type AssetManifest struct {
	Version     string                 `json:"version"`
	Assets      map[string]*AssetEntry `json:"assets"`
	TotalAssets int                    `json:"total_assets"`
	TotalSizeMB float64                `json:"total_size_mb"`
}

// NewAssetManifest returns an empty v1 manifest.
func NewAssetManifest() *AssetManifest {
	return &AssetManifest{Version: "v1", Assets: make(map[string]*AssetEntry)}
}

// Add records an entry and updates totals. Entries with Error set do not
// count toward asset totals.
func (m *AssetManifest) Add(objectID string, e *AssetEntry) {
	m.Assets[objectID] = e
	if e.Error == "" {
		m.TotalAssets++
		m.TotalSizeMB += float64(e.SizeBytes) / (1024 * 1024)
	}
}

// Succeeded returns the object ids with a usable asset, in no particular order.
func (m *AssetManifest) Succeeded() []string {
	ids := make([]string, 0, len(m.Assets))
	for id, e := range m.Assets {
		if e.Error == "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ObjectNameMap is the assembly-host naming contract: downstream object
// names equal object ids.
type ObjectNameMap struct {
	NamingConvention string            `json:"naming_convention"`
	Mapping          map[string]string `json:"mapping"`
}

// IdentityNameMap builds the identity mapping over the given object ids.
func IdentityNameMap(ids []string) *ObjectNameMap {
	m := &ObjectNameMap{
		NamingConvention: "object_name_equals_id",
		Mapping:          make(map[string]string, len(ids)),
	}
	for _, id := range ids {
		m.Mapping[id] = id
	}
	return m
}
