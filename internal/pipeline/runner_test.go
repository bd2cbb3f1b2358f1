package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"

	"sceneforge/internal/config"
	"sceneforge/internal/constraint"
	"sceneforge/internal/executor"
	"sceneforge/internal/imaging"
	"sceneforge/internal/meshgen"
	"sceneforge/internal/session"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// =============================================================================
// MOCK COLLABORATORS
// =============================================================================

type mockVLM struct {
	objects        *types.ObjectSet
	relations      []*constraint.SpatialConstraint
	objectsErr     error
	constraintsErr error
	extractCalls   int
}

func (m *mockVLM) ExtractObjects(ctx context.Context, sessionID string, req *types.SceneRequest, sceneRefPath string) (*types.ObjectSet, error) {
	m.extractCalls++
	if m.objectsErr != nil {
		return nil, m.objectsErr
	}
	return m.objects, nil
}

func (m *mockVLM) ExtractConstraints(ctx context.Context, text string, objects *types.ObjectSet, sceneRefPath string) ([]*constraint.SpatialConstraint, error) {
	if m.constraintsErr != nil {
		return nil, m.constraintsErr
	}
	return m.relations, nil
}

type mockImaging struct {
	sceneErr   error
	cardErr    map[string]error
	smallCards map[string]bool // renders a truncated card for these objects
}

// fake PNG payload comfortably above the QC floor
var pngBytes = make([]byte, 2048)

func (m *mockImaging) GenerateSceneReference(ctx context.Context, sessionID, text, style string) (*imaging.SceneReference, error) {
	if m.sceneErr != nil {
		return nil, m.sceneErr
	}
	return &imaging.SceneReference{ImageBytes: pngBytes}, nil
}

func (m *mockImaging) GenerateObjectCards(ctx context.Context, sessionID string, objects []*types.Object, sceneRefPath string) ([]*imaging.CardResult, error) {
	out := make([]*imaging.CardResult, 0, len(objects))
	for _, obj := range objects {
		if err, ok := m.cardErr[obj.ObjectID]; ok {
			return nil, err
		}
		bytes := pngBytes
		if m.smallCards[obj.ObjectID] {
			bytes = make([]byte, 100)
		}
		out = append(out, &imaging.CardResult{ObjectID: obj.ObjectID, CardBytes: bytes})
	}
	return out, nil
}

type mockMesh struct {
	failIDs map[string]bool
	calls   int
}

func (m *mockMesh) generate(objectID string) (*meshgen.AssetResult, error) {
	m.calls++
	if m.failIDs[objectID] {
		return nil, types.NewError(types.ErrUpstreamRefused, "meshgen",
			fmt.Sprintf("generation refused for %s", objectID))
	}
	f, err := os.CreateTemp("", "mesh-*.glb")
	if err != nil {
		return nil, err
	}
	f.WriteString("glb-payload")
	f.Close()
	return &meshgen.AssetResult{
		ObjectID: objectID,
		MeshFile: f.Name(),
		Format:   types.FormatGLB,
	}, nil
}

func (m *mockMesh) GenerateFromCard(ctx context.Context, objectID, cardPath string, sizeHint types.Vec3) (*meshgen.AssetResult, error) {
	return m.generate(objectID)
}

func (m *mockMesh) GenerateFromDescription(ctx context.Context, objectID, text, style string) (*meshgen.AssetResult, error) {
	return m.generate(objectID)
}

// =============================================================================
// FIXTURES
// =============================================================================

func testObjects() *types.ObjectSet {
	return &types.ObjectSet{
		SceneStyle: "scandinavian",
		Objects: []*types.Object{
			{ObjectID: "desk_01", Name: "desk", Category: "table", Size: types.Vec3{X: 1.2, Y: 0.6, Z: 0.75}, VisualDesc: "oak desk"},
			{ObjectID: "chair_01", Name: "chair", Category: "seating", Size: types.Vec3{X: 0.5, Y: 0.5, Z: 0.9}, VisualDesc: "desk chair"},
			{ObjectID: "lamp_01", Name: "lamp", Category: "lighting", Size: types.Vec3{X: 0.2, Y: 0.2, Z: 0.4}, VisualDesc: "brass lamp"},
		},
	}
}

func testRelations(t *testing.T) []*constraint.SpatialConstraint {
	t.Helper()
	near, err := constraint.New(constraint.Near, "chair_01", "desk_01")
	if err != nil {
		t.Fatal(err)
	}
	on, err := constraint.New(constraint.On, "lamp_01", "desk_01")
	if err != nil {
		t.Fatal(err)
	}
	return []*constraint.SpatialConstraint{near, on}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Executor.RetryDelayS = 0.001
	cfg.Solver.TimeoutS = 10
	return cfg
}

func testRunner(t *testing.T, cfg *config.Config, vlm *mockVLM, img *mockImaging, mesh *mockMesh) *Runner {
	t.Helper()
	exCfg := executor.Config{Capacity: 2, MaxRetries: 1}
	return NewRunner(Deps{
		Config:    cfg,
		Sessions:  session.NewManager(cfg.Workspace, cfg.Pipeline.MaxSessionRetries),
		VLM:       vlm,
		Imaging:   img,
		MeshGen:   mesh,
		ImageExec: executor.New("image", exCfg),
		MeshExec:  executor.New("threed", exCfg),
	})
}

func request() *types.SceneRequest {
	return &types.SceneRequest{Text: "a study with a desk, a chair and a lamp on the desk"}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	resp, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if !resp.OK {
		t.Error("expected ok response")
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	for _, rel := range []string{
		store.FileSceneRef, store.FileObjects, store.FileManifest, store.FileObjectMap,
	} {
		if !st.ArtifactPresent(rel) {
			t.Errorf("expected artifact %s", rel)
		}
	}
	if st.LatestVersion(store.PatternConstraints) == 0 {
		t.Error("expected constraints_v1.json")
	}
	if st.LatestVersion(store.PatternLayout) == 0 {
		t.Error("expected a layout solution version")
	}
	if !st.DirPresent(store.DirCards) || !st.DirPresent(store.DirAssets) {
		t.Error("expected cards and assets directories")
	}

	var state types.SessionState
	if err := st.ReadJSON(store.FileStatus, &state); err != nil {
		t.Fatal(err)
	}
	if state.Status != types.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", state.Status)
	}
	if state.ProgressPercent != 100 {
		t.Errorf("expected 100%%, got %d", state.ProgressPercent)
	}
}

func TestRunStopsAtUntilStage(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	resp, err := runner.Run(context.Background(), RunOptions{
		Request:    request(),
		UntilStage: types.StageExtract,
	})
	if err != nil {
		t.Fatalf("partial run failed: %v", err)
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	if !st.FilePresent(store.FileObjects) {
		t.Error("extract output missing")
	}
	if st.DirPresent(store.DirCards) {
		t.Error("cards stage must not have run")
	}

	var state types.SessionState
	st.ReadJSON(store.FileStatus, &state)
	if state.Status != types.StatusPartial {
		t.Errorf("expected PARTIAL after until_stage, got %s", state.Status)
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	first, err := runner.Run(context.Background(), RunOptions{
		Request:    request(),
		UntilStage: types.StageCards,
	})
	if err != nil {
		t.Fatal(err)
	}
	if vlm.extractCalls != 1 {
		t.Fatalf("expected 1 extraction call, got %d", vlm.extractCalls)
	}

	second, err := runner.Run(context.Background(), RunOptions{SessionID: first.SessionID})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if vlm.extractCalls != 1 {
		t.Errorf("resume must not re-extract: %d calls", vlm.extractCalls)
	}
	// Stages already done are reused, not re-run, but the rerun still
	// reports the full stage list.
	if len(second.StagesCompleted) != 7 {
		t.Errorf("rerun must report every stage, got %v", second.StagesCompleted)
	}
	found := make(map[string]bool, len(second.StagesCompleted))
	for _, name := range second.StagesCompleted {
		found[name] = true
	}
	for _, name := range []types.StageName{types.StageSceneRef, types.StageExtract, types.StageCards} {
		if !found[string(name)] {
			t.Errorf("reused stage %s missing from stages_completed", name)
		}
	}

	var state types.SessionState
	store.New(cfg.Workspace, first.SessionID).ReadJSON(store.FileStatus, &state)
	if state.Status != types.StatusCompleted {
		t.Errorf("expected COMPLETED after resume, got %s", state.Status)
	}
}

func TestRerunOfCompletedSessionReportsFullStageList(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	first, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err != nil {
		t.Fatal(err)
	}

	rerun, err := runner.Run(context.Background(), RunOptions{SessionID: first.SessionID})
	if err != nil {
		t.Fatalf("no-op rerun failed: %v", err)
	}
	if len(rerun.StagesCompleted) != 7 {
		t.Fatalf("no-op rerun must report the full stage list, got %v", rerun.StagesCompleted)
	}
	if vlm.extractCalls != 1 {
		t.Errorf("no-op rerun must not re-run stages: %d extraction calls", vlm.extractCalls)
	}

	var state types.SessionState
	store.New(cfg.Workspace, first.SessionID).ReadJSON(store.FileStatus, &state)
	if state.Status != types.StatusCompleted {
		t.Errorf("rerun must leave the session COMPLETED, got %s", state.Status)
	}
}

func TestFailurePersistsLastError(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{
		objects:    testObjects(),
		objectsErr: types.NewError(types.ErrUpstreamAuth, "perception", "invalid key"),
	}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	_, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err == nil {
		t.Fatal("expected failure")
	}
	if types.CodeOf(err) != types.ErrUpstreamAuth {
		t.Errorf("expected upstream_auth, got %s", types.CodeOf(err))
	}

	ids, _ := store.ListSessions(cfg.Workspace)
	if len(ids) != 1 {
		t.Fatalf("expected 1 session, got %d", len(ids))
	}
	st := store.New(cfg.Workspace, ids[0])

	last, rerr := st.ReadLastError()
	if rerr != nil {
		t.Fatalf("last_error.json missing: %v", rerr)
	}
	if last.FailedStage != string(types.StageExtract) {
		t.Errorf("expected failed_stage extract, got %s", last.FailedStage)
	}
	if last.Error.Code != types.ErrUpstreamAuth {
		t.Errorf("expected upstream_auth in last error, got %s", last.Error.Code)
	}

	var state types.SessionState
	st.ReadJSON(store.FileStatus, &state)
	if state.Status != types.StatusFailed {
		t.Errorf("expected FAILED, got %s", state.Status)
	}
	if len(state.Errors) == 0 {
		t.Error("expected error history entry")
	}
}

func TestPartialAssetsCompleteWithPartialManifest(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	mesh := &mockMesh{failIDs: map[string]bool{"lamp_01": true}}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, mesh)

	resp, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err != nil {
		t.Fatalf("partial asset failure must not fail the pipeline: %v", err)
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	var manifest types.AssetManifest
	if err := st.ReadJSON(store.FileManifest, &manifest); err != nil {
		t.Fatal(err)
	}
	if len(manifest.Assets) != 3 {
		t.Fatalf("manifest must record every object, got %d entries", len(manifest.Assets))
	}
	if manifest.Assets["lamp_01"].Error == "" {
		t.Error("failed object must carry its error in the manifest")
	}
	if manifest.TotalAssets != 2 {
		t.Errorf("expected 2 usable assets, got %d", manifest.TotalAssets)
	}

	var state types.SessionState
	st.ReadJSON(store.FileStatus, &state)
	if state.Status != types.StatusPartial {
		t.Errorf("expected PARTIAL for a partial manifest, got %s", state.Status)
	}
	if last, err := st.ReadLastError(); err == nil && last.FailedStage != "" {
		t.Errorf("failed_stage must not be set for a partial manifest, got %s", last.FailedStage)
	}
}

func TestRequiredObjectFailureStopsAssets(t *testing.T) {
	cfg := testConfig(t)
	objects := testObjects()
	objects.Objects[0].MustExist = true // desk_01 required
	vlm := &mockVLM{objects: objects, relations: testRelations(t)}
	mesh := &mockMesh{failIDs: map[string]bool{"desk_01": true}}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, mesh)

	_, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err == nil {
		t.Fatal("expected failure when a required object has no asset")
	}
	if types.CodeOf(err) != types.ErrAssetGeneration {
		t.Errorf("expected asset_generation_failed, got %s", types.CodeOf(err))
	}
}

func TestLayoutRegenerationOnSolverFailure(t *testing.T) {
	cfg := testConfig(t)
	// A 5x5 room cannot honor far (>= 8m horizontal); relaxation on the
	// second attempt turns it soft and the layout settles.
	far, err := constraint.New(constraint.Far, "chair_01", "desk_01")
	if err != nil {
		t.Fatal(err)
	}
	vlm := &mockVLM{objects: testObjects(), relations: []*constraint.SpatialConstraint{far}}
	runner := testRunner(t, cfg, vlm, &mockImaging{}, &mockMesh{})

	req := request()
	req.Constraints = &types.RequestConstraints{RoomSizeHint: []float64{5, 5, 3}}
	resp, err := runner.Run(context.Background(), RunOptions{Request: req, UntilStage: types.StageLayout})
	if err != nil {
		t.Fatalf("expected relaxation to recover the layout: %v", err)
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	if st.LatestVersion(store.PatternTrace) == 0 {
		t.Error("failed attempt must persist a dfs trace")
	}
	if v := st.LatestVersion(store.PatternConstraints); v < 2 {
		t.Errorf("expected a regenerated constraints version, got v%d", v)
	}
	if st.LatestVersion(store.PatternLayout) == 0 {
		t.Error("expected a layout solution after regeneration")
	}
}

func TestQCGateDropsUndersizedCards(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.QCEnabled = true
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	img := &mockImaging{smallCards: map[string]bool{"desk_01": true}}
	runner := testRunner(t, cfg, vlm, img, &mockMesh{})

	resp, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err != nil {
		t.Fatalf("pipeline with qc failed: %v", err)
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	if !st.FilePresent(store.FileQCReport) {
		t.Fatal("qc stage must write its report")
	}
	var report struct {
		Checked int      `json:"checked"`
		Dropped []string `json:"dropped"`
	}
	if err := st.ReadJSON(store.FileQCReport, &report); err != nil {
		t.Fatal(err)
	}
	if report.Checked != 3 {
		t.Errorf("qc must check every card, got %d", report.Checked)
	}
	if len(report.Dropped) != 1 || report.Dropped[0] != "desk_01" {
		t.Errorf("expected desk_01 dropped, got %v", report.Dropped)
	}
	if st.FilePresent("object_cards/desk_01.png") {
		t.Error("dropped card file must be removed")
	}

	// The object with a dropped card still gets an asset via the
	// description fallback.
	var manifest types.AssetManifest
	st.ReadJSON(store.FileManifest, &manifest)
	if e := manifest.Assets["desk_01"]; e == nil || e.Error != "" {
		t.Error("object with dropped card must fall back to description generation")
	}
}

func TestCardFailureFallsBackToDescription(t *testing.T) {
	cfg := testConfig(t)
	vlm := &mockVLM{objects: testObjects(), relations: testRelations(t)}
	img := &mockImaging{cardErr: map[string]error{
		"chair_01": types.NewError(types.ErrUpstreamRefused, "imaging", "content filter"),
	}}
	mesh := &mockMesh{}
	runner := testRunner(t, cfg, vlm, img, mesh)

	resp, err := runner.Run(context.Background(), RunOptions{Request: request()})
	if err != nil {
		t.Fatalf("single card failure must not fail the pipeline: %v", err)
	}

	st := store.New(cfg.Workspace, resp.SessionID)
	if st.FilePresent("object_cards/chair_01.png") {
		t.Error("failed card must not be written")
	}
	var manifest types.AssetManifest
	st.ReadJSON(store.FileManifest, &manifest)
	if e := manifest.Assets["chair_01"]; e == nil || e.Error != "" {
		t.Error("cardless object must still get an asset via description fallback")
	}
}
