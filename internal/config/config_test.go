package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 2, cfg.Executor.Capacity)
	require.Equal(t, 3, cfg.Executor.MaxRetries)
	require.Equal(t, 0.1, cfg.Solver.SamplingResolution)
	require.Equal(t, []float64{10, 10, 3}, cfg.Solver.RoomSize)
	require.True(t, cfg.Solver.UniformScaleFromHeight)
	require.Equal(t, 3, cfg.Pipeline.MaxLayoutAttempts)
	require.False(t, cfg.Pipeline.QCEnabled)
	require.False(t, cfg.Retrieval.Enabled)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	ws := t.TempDir()

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.Equal(t, ws, cfg.Workspace)

	want := DefaultConfig()
	want.Workspace = ws
	want.Retrieval.CatalogPath = filepath.Join(ws, ".sceneforge", "asset_catalog.db")
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("loaded config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoadMergesWorkspaceFile(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, ".sceneforge")
	require.NoError(t, os.MkdirAll(dir, 0755))
	yaml := []byte("executor:\n  capacity: 5\nsolver:\n  timeout_s: 60\npipeline:\n  qc_enabled: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Executor.Capacity)
	require.Equal(t, 60.0, cfg.Solver.TimeoutS)
	require.True(t, cfg.Pipeline.QCEnabled)
	// untouched keys keep their defaults
	require.Equal(t, 3, cfg.Executor.MaxRetries)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, ".sceneforge")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("executor: ["), 0644))

	_, err := Load(ws)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VLM_API_KEY", "vlm-key")
	t.Setenv("THREED_BASE_URL", "https://mesh.example.com")
	t.Setenv("ASSET_RETRIEVAL_ENABLED", "true")
	t.Setenv("ASSET_RETRIEVAL_THRESHOLD", "0.9")
	t.Setenv("REVIEW_STAGES", "layout, assets")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "vlm-key", cfg.Services.VLM.APIKey)
	require.Equal(t, "https://mesh.example.com", cfg.Services.ThreeD.BaseURL)
	require.True(t, cfg.Retrieval.Enabled)
	require.Equal(t, 0.9, cfg.Retrieval.Threshold)
	require.Equal(t, []string{"layout", "assets"}, cfg.Pipeline.ReviewStages)
	require.True(t, cfg.ReviewRequired("layout"))
	require.False(t, cfg.ReviewRequired("cards"))
}

func TestGeminiKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "shared-key")
	t.Setenv("VLM_API_KEY", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "shared-key", cfg.Services.VLM.APIKey)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ws := t.TempDir()
	cfg := DefaultConfig()
	cfg.Workspace = ws
	cfg.Executor.Capacity = 4
	cfg.Pipeline.ReviewStages = []string{"layout"}
	cfg.Retrieval.CatalogPath = filepath.Join(ws, ".sceneforge", "asset_catalog.db")
	require.NoError(t, cfg.Save())

	loaded, err := Load(ws)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/ws"
	require.NoError(t, cfg.Validate())

	cfg.Executor.Capacity = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workspace = "/tmp/ws"
	cfg.Solver.RoomSize = []float64{10, 10}
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	require.Error(t, cfg.Validate(), "empty workspace must be rejected")
}

func TestTimeoutParsing(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Hour, cfg.ReviewTimeoutDuration())

	cfg.Pipeline.ReviewTimeout = "30m"
	require.Equal(t, 30*time.Minute, cfg.ReviewTimeoutDuration())

	svc := ServiceConfig{Timeout: "bogus"}
	require.Equal(t, 120*time.Second, svc.TimeoutDuration())

	svc.Timeout = "45s"
	require.Equal(t, 45*time.Second, svc.TimeoutDuration())
}
