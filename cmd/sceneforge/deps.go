package main

import (
	"context"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/executor"
	"sceneforge/internal/imaging"
	"sceneforge/internal/logging"
	"sceneforge/internal/meshgen"
	"sceneforge/internal/perception"
	"sceneforge/internal/pipeline"
	"sceneforge/internal/retrieval"
	"sceneforge/internal/session"
	"sceneforge/internal/types"
)

// buildRunner wires the pipeline's collaborators from config. The catalog
// is optional; everything else fails here rather than mid-run so a typo'd
// key is caught before any upstream spend.
func buildRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, func(), error) {
	vlm, err := perception.NewGenAIClient(ctx, perception.GenAIConfig{
		APIKey: cfg.Services.VLM.APIKey,
		Model:  cfg.Services.VLM.Model,
	})
	if err != nil {
		return nil, nil, err
	}
	img, err := imaging.NewGenAIClient(ctx, imaging.GenAIConfig{
		APIKey: cfg.Services.Image.APIKey,
		Model:  cfg.Services.Image.Model,
	})
	if err != nil {
		return nil, nil, err
	}
	mesh, err := meshgen.NewHTTPClient(meshgen.HTTPConfig{
		BaseURL:      cfg.Services.ThreeD.BaseURL,
		APIKey:       cfg.Services.ThreeD.APIKey,
		Timeout:      cfg.Services.ThreeD.TimeoutDuration(),
		PollInterval: time.Duration(cfg.Executor.PollIntervalS * float64(time.Second)),
		PollErrorMax: cfg.Executor.PollErrorMax,
	})
	if err != nil {
		return nil, nil, err
	}

	var catalog *retrieval.Catalog
	cleanup := func() {}
	if cfg.Retrieval.Enabled {
		catalog, err = retrieval.Open(cfg.Retrieval.CatalogPath)
		if err != nil {
			// Retrieval is a shortcut, not a dependency: degrade to
			// generation-only and keep going.
			logging.Retrieval("Asset catalog unavailable, continuing without retrieval: %v", err)
			catalog = nil
		} else {
			cleanup = func() { catalog.Close() }
		}
	}

	execCfg := executor.Config{
		Capacity:      cfg.Executor.Capacity,
		MaxRetries:    cfg.Executor.MaxRetries,
		RetryDelay:    time.Duration(cfg.Executor.RetryDelayS * float64(time.Second)),
		PerJobTimeout: time.Duration(cfg.Executor.PerJobTimeoutS * float64(time.Second)),
		PollInterval:  time.Duration(cfg.Executor.PollIntervalS * float64(time.Second)),
		PollErrorMax:  cfg.Executor.PollErrorMax,
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Config:    cfg,
		Sessions:  session.NewManager(cfg.Workspace, cfg.Pipeline.MaxSessionRetries),
		VLM:       vlm,
		Imaging:   img,
		MeshGen:   mesh,
		Catalog:   catalog,
		ImageExec: executor.New("image", execCfg),
		MeshExec:  executor.New("threed", execCfg),
	})
	return runner, cleanup, nil
}

// parseStage validates a --from-stage / --until-stage flag value.
func parseStage(s string) (types.StageName, error) {
	if s == "" {
		return "", nil
	}
	for _, name := range types.StageOrder {
		if string(name) == s {
			return name, nil
		}
	}
	return "", types.NewError(types.ErrInvalidInput, "cli",
		"unknown stage "+s).
		WithActions("valid stages: scene_ref, extract, cards, qc, constraints, layout, assets, assemble")
}
