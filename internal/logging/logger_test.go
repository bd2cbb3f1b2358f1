package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func reset(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		Close()
		apply(Settings{})
		logsDir = ""
		workspace = ""
	})
}

func TestInitializeDisabledWritesNothing(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	if err := Initialize(ws, Settings{DebugMode: false, Level: "info"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Get(CategoryPipeline).Info("should be dropped")

	if _, err := os.Stat(filepath.Join(ws, ".sceneforge", "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory created in production mode (stat err = %v)", err)
	}
}

func TestInitializeDebugModeWritesCategoryFile(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	settings := Settings{DebugMode: true, Level: "debug"}
	if err := Initialize(ws, settings); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("IsDebugMode() = false after debug Initialize")
	}

	Get(CategorySolver).Info("placed %d objects", 3)
	Close()

	entries, err := os.ReadDir(filepath.Join(ws, ".sceneforge", "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	var found bool
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_solver.log") {
			continue
		}
		found = true
		data, err := os.ReadFile(filepath.Join(ws, ".sceneforge", "logs", e.Name()))
		if err != nil {
			t.Fatalf("reading solver log: %v", err)
		}
		if !strings.Contains(string(data), "placed 3 objects") {
			t.Errorf("solver log missing entry, got %q", data)
		}
	}
	if !found {
		t.Error("no solver log file written")
	}
}

func TestCategoryToggleFromSettings(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	settings := Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"solver": false},
	}
	if err := Initialize(ws, settings); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if IsCategoryEnabled(CategorySolver) {
		t.Error("solver category enabled despite categories override")
	}
	if !IsCategoryEnabled(CategoryPipeline) {
		t.Error("pipeline category disabled without an override")
	}

	// Reconfigure flips the toggle without reinitializing.
	Reconfigure(Settings{DebugMode: true, Level: "info"})
	if !IsCategoryEnabled(CategorySolver) {
		t.Error("solver category still disabled after Reconfigure")
	}
}

func TestLevelFiltering(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	if err := Initialize(ws, Settings{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	l := Get(CategoryExecutor)
	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	Close()

	entries, err := os.ReadDir(filepath.Join(ws, ".sceneforge", "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_executor.log") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(ws, ".sceneforge", "logs", e.Name()))
		if err != nil {
			t.Fatalf("reading executor log: %v", err)
		}
		if strings.Contains(string(data), "info line") || strings.Contains(string(data), "debug line") {
			t.Errorf("below-threshold entries written at warn level: %q", data)
		}
		if !strings.Contains(string(data), "warn line") {
			t.Errorf("warn entry missing: %q", data)
		}
	}
}
