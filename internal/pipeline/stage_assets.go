package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sceneforge/internal/config"
	"sceneforge/internal/executor"
	"sceneforge/internal/logging"
	"sceneforge/internal/meshgen"
	"sceneforge/internal/retrieval"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// assetsStage produces one mesh per object under assets/ plus the asset
// manifest. The catalog is consulted first when retrieval is enabled; a
// hit above the threshold reuses the stored mesh without spending a
// generation job. Generation jobs run through the 3D executor; a failed
// object gets a manifest entry with its error, and the stage completes as
// long as the manifest can be written.
type assetsStage struct {
	gen     meshgen.Client
	exec    *executor.Executor
	catalog *retrieval.Catalog
	cfg     *config.Config
}

func (s *assetsStage) Name() types.StageName { return types.StageAssets }

func (s *assetsStage) Complete(st *store.Store) bool {
	return allPresent(st, store.FileManifest)
}

func (s *assetsStage) Hydrate(data *StageData) error {
	var m types.AssetManifest
	if err := data.Store.ReadJSON(store.FileManifest, &m); err != nil {
		return err
	}
	data.Manifest = &m
	return nil
}

func (s *assetsStage) Run(ctx context.Context, data *StageData) error {
	objects := data.Objects.Objects
	manifest := types.NewAssetManifest()

	// Catalog hits are resolved before batching so reused assets never
	// occupy a generation slot.
	pending := make([]*types.Object, 0, len(objects))
	for _, obj := range objects {
		entry, hit := s.lookup(obj, data)
		if hit {
			manifest.Add(obj.ObjectID, entry)
			continue
		}
		pending = append(pending, obj)
	}

	jobs := make([]executor.Job[*meshgen.AssetResult], len(pending))
	for i, obj := range pending {
		obj := obj
		jobs[i] = func(ctx context.Context) (*meshgen.AssetResult, string, error) {
			if card, ok := data.CardPaths[obj.ObjectID]; ok {
				res, err := s.gen.GenerateFromCard(ctx, obj.ObjectID, data.Store.Path(card), obj.Size)
				return res, upstreamID(res), err
			}
			res, err := s.gen.GenerateFromDescription(ctx, obj.ObjectID, obj.VisualDesc, data.Objects.SceneStyle)
			return res, upstreamID(res), err
		}
	}

	results := executor.RunBatch(ctx, s.exec, jobs)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for i, res := range results {
		obj := pending[i]
		if !res.Success {
			perr := types.AsPipelineError(res.Err, string(types.StageAssets))
			manifest.Add(obj.ObjectID, &types.AssetEntry{Error: string(perr.Code) + ": " + perr.Message})
			logging.Assets("Asset for %s failed after %d attempts: %v", obj.ObjectID, res.Attempts, res.Err)
			continue
		}
		entry, err := s.ingest(data, obj, res.Value)
		if err != nil {
			manifest.Add(obj.ObjectID, &types.AssetEntry{Error: err.Error()})
			logging.Assets("Asset for %s could not be ingested: %v", obj.ObjectID, err)
			continue
		}
		manifest.Add(obj.ObjectID, entry)
		if s.catalog != nil {
			if err := s.catalog.Record(obj, entry, data.Store.Path(entry.AssetPath)); err != nil {
				logging.Retrieval("Catalog record failed for %s: %v", obj.ObjectID, err)
			}
		}
	}

	// Required objects must have a usable asset; optional ones may fail
	// and still leave a completable partial manifest.
	for _, obj := range objects {
		e := manifest.Assets[obj.ObjectID]
		if obj.MustExist && (e == nil || e.Error != "") {
			_ = data.Store.WriteJSON(store.FileManifest, manifest)
			data.Manifest = manifest
			return types.NewError(types.ErrAssetGeneration, string(types.StageAssets),
				fmt.Sprintf("required object %s has no usable asset", obj.ObjectID)).
				WithActions("inspect asset_manifest.json, then resume from the assets stage")
		}
	}

	if err := data.Store.WriteJSON(store.FileManifest, manifest); err != nil {
		return err
	}
	data.Manifest = manifest
	logging.Assets("Asset manifest written: %d usable of %d objects (%.1f MB)",
		manifest.TotalAssets, len(objects), manifest.TotalSizeMB)
	return nil
}

// lookup consults the catalog and, on a hit at or above the threshold,
// copies the stored mesh into the session's assets directory.
func (s *assetsStage) lookup(obj *types.Object, data *StageData) (*types.AssetEntry, bool) {
	if s.catalog == nil || !s.cfg.Retrieval.Enabled {
		return nil, false
	}
	match, err := s.catalog.Lookup(obj)
	if err != nil {
		logging.Retrieval("Catalog lookup failed for %s: %v", obj.ObjectID, err)
		return nil, false
	}
	if match == nil || match.Score < s.cfg.Retrieval.Threshold {
		return nil, false
	}

	rel := filepath.Join(store.DirAssets, obj.ObjectID+"."+string(match.Format))
	if err := copyFile(match.AssetPath, data.Store.Path(rel)); err != nil {
		logging.Retrieval("Catalog hit for %s unusable: %v", obj.ObjectID, err)
		return nil, false
	}
	logging.Retrieval("Reused catalog asset for %s (score %.2f)", obj.ObjectID, match.Score)
	return &types.AssetEntry{
		AssetPath: rel,
		Format:    match.Format,
		SizeBytes: match.SizeBytes,
		Checksum:  match.Checksum,
		Metadata:  map[string]any{"source": "catalog", "score": match.Score},
	}, true
}

// ingest moves a generated mesh under assets/ and fills in size and
// checksum when the generator left them blank.
func (s *assetsStage) ingest(data *StageData, obj *types.Object, res *meshgen.AssetResult) (*types.AssetEntry, error) {
	if res == nil || res.MeshFile == "" {
		return nil, fmt.Errorf("generator returned no mesh file")
	}
	format := res.Format
	if !types.ValidFormat(format) {
		format = types.FormatGLB
	}

	rel := filepath.Join(store.DirAssets, obj.ObjectID+"."+string(format))
	dst := data.Store.Path(rel)
	if err := copyFile(res.MeshFile, dst); err != nil {
		return nil, fmt.Errorf("failed to ingest mesh for %s: %w", obj.ObjectID, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	checksum := res.Checksum
	if checksum == "" {
		checksum, err = sha256File(dst)
		if err != nil {
			return nil, err
		}
	}

	return &types.AssetEntry{
		AssetPath: rel,
		Format:    format,
		SizeBytes: info.Size(),
		Checksum:  checksum,
		Metadata:  res.Metadata,
	}, nil
}

func upstreamID(res *meshgen.AssetResult) string {
	if res == nil {
		return ""
	}
	if id, ok := res.Metadata["job_id"].(string); ok {
		return id
	}
	return ""
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), ".asset-*")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}
