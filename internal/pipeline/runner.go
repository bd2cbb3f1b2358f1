package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/executor"
	"sceneforge/internal/imaging"
	"sceneforge/internal/logging"
	"sceneforge/internal/meshgen"
	"sceneforge/internal/perception"
	"sceneforge/internal/retrieval"
	"sceneforge/internal/session"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// Deps wires the runner's collaborators. All handles are interface-typed
// except the session manager and catalog, which are local.
type Deps struct {
	Config   *config.Config
	Sessions *session.Manager
	VLM      perception.VLMClient
	Imaging  imaging.Client
	MeshGen  meshgen.Client
	Catalog  *retrieval.Catalog // nil when retrieval is disabled

	// One executor per external service so each capacity bound applies
	// process-wide for that service.
	ImageExec *executor.Executor
	MeshExec  *executor.Executor
}

// RunOptions selects what to run. SessionID empty means create a new
// session from Request; otherwise the named session is resumed.
type RunOptions struct {
	SessionID  string
	Request    *types.SceneRequest
	FromStage  types.StageName // re-enter here even if outputs exist
	UntilStage types.StageName // inclusive stop point
}

// Runner executes the stage graph for one session at a time.
type Runner struct {
	deps   Deps
	stages []Stage
}

// NewRunner builds the canonical stage list. The qc stage is included only
// when enabled in config; its absence never blocks resumption because
// completion is probed per stage, not positionally.
func NewRunner(deps Deps) *Runner {
	r := &Runner{deps: deps}
	for _, name := range types.StageOrder {
		if name == types.StageQC && !deps.Config.Pipeline.QCEnabled {
			continue
		}
		r.stages = append(r.stages, r.newStage(name))
	}
	return r
}

func (r *Runner) newStage(name types.StageName) Stage {
	switch name {
	case types.StageSceneRef:
		return &sceneRefStage{client: r.deps.Imaging, exec: r.deps.ImageExec}
	case types.StageExtract:
		return &extractStage{vlm: r.deps.VLM}
	case types.StageCards:
		return &cardsStage{client: r.deps.Imaging, exec: r.deps.ImageExec}
	case types.StageQC:
		return &qcStage{}
	case types.StageConstraints:
		return &constraintsStage{vlm: r.deps.VLM, cfg: r.deps.Config}
	case types.StageLayout:
		return &layoutStage{cfg: r.deps.Config}
	case types.StageAssets:
		return &assetsStage{
			gen:     r.deps.MeshGen,
			exec:    r.deps.MeshExec,
			catalog: r.deps.Catalog,
			cfg:     r.deps.Config,
		}
	case types.StageAssemble:
		return &assembleStage{}
	default:
		panic(fmt.Sprintf("unknown stage %q", name))
	}
}

// Run executes the pipeline: creates or loads the session, skips stages
// whose declared outputs already exist, runs the rest in order, and
// persists a failure record before returning any error.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*types.SuccessResponse, error) {
	st, state, req, err := r.openSession(opts)
	if err != nil {
		return nil, err
	}

	data := &StageData{
		SessionID: state.SessionID,
		Store:     st,
		State:     state,
		Request:   req,
		CardPaths: make(map[string]string),
		Timings:   make(map[types.StageName]float64),
	}

	var completed, skipped []string
	reached := opts.FromStage == ""
	stopped := false

	for i, stage := range r.stages {
		name := stage.Name()

		if !reached {
			// Stages before the requested entry point are hydrated
			// without a completion check; their artifacts must exist.
			if name != opts.FromStage {
				if err := stage.Hydrate(data); err != nil {
					return nil, r.fail(st, state, name, types.WrapError(
						types.ErrFileNotFound, string(name),
						fmt.Errorf("stage %s required before from_stage but not hydratable: %w", name, err)))
				}
				skipped = append(skipped, string(name))
				completed = append(completed, string(name))
				continue
			}
			reached = true
			// fall through: the entry stage always re-runs
		} else if stage.Complete(st) {
			if err := stage.Hydrate(data); err != nil {
				return nil, r.fail(st, state, name, types.WrapError(
					types.ErrSessionCorrupted, string(name),
					fmt.Errorf("stage %s outputs present but unreadable: %w", name, err)))
			}
			logging.Pipeline("Stage %s complete; skipping", name)
			skipped = append(skipped, string(name))
			completed = append(completed, string(name))
			if name == opts.UntilStage {
				stopped = true
				break
			}
			continue
		}

		progress := i * 100 / len(r.stages)
		if err := r.deps.Sessions.UpdateStatus(st, state, types.StageStatus[name], name, progress); err != nil {
			return nil, err
		}

		timer := logging.StartTimer("pipeline", string(name))
		start := time.Now()
		runErr := stage.Run(ctx, data)
		data.Timings[name] = time.Since(start).Seconds()
		timer.Stop()

		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				// Interruption is not a pipeline failure; leave the
				// session resumable and surface cancellation as-is.
				_ = r.deps.Sessions.UpdateStatus(st, state, types.StatusPartial, name, progress)
				return nil, runErr
			}
			return nil, r.fail(st, state, name, runErr)
		}
		if !stage.Complete(st) {
			return nil, r.fail(st, state, name, types.NewError(
				types.ErrInternal, string(name),
				fmt.Sprintf("stage %s returned success but declared outputs are missing", name)))
		}
		completed = append(completed, string(name))

		if r.deps.Config.ReviewRequired(string(name)) {
			if err := waitForApproval(ctx, st, name, r.deps.Config.ReviewTimeoutDuration()); err != nil {
				return nil, r.fail(st, state, name, err)
			}
		}
		if name == opts.UntilStage {
			stopped = true
			break
		}
	}

	status := types.StatusCompleted
	if stopped {
		status = types.StatusPartial
	} else if data.Manifest != nil && data.Objects != nil &&
		len(data.Manifest.Succeeded()) < len(data.Objects.Objects) {
		status = types.StatusPartial
	}
	if err := r.deps.Sessions.UpdateStatus(st, state, status, "", 100); err != nil {
		return nil, err
	}

	return &types.SuccessResponse{
		OK:              true,
		SessionID:       state.SessionID,
		WorkspacePath:   st.Dir(),
		Artifacts:       r.artifacts(st),
		StagesCompleted: completed,
		Message:         r.message(status, completed, skipped),
	}, nil
}

func (r *Runner) openSession(opts RunOptions) (*store.Store, *types.SessionState, *types.SceneRequest, error) {
	if opts.SessionID == "" {
		if opts.Request == nil {
			return nil, nil, nil, types.NewError(types.ErrInvalidInput, "pipeline",
				"no session id and no scene request given")
		}
		st, state, err := r.deps.Sessions.CreateSession(opts.Request)
		if err != nil {
			return nil, nil, nil, err
		}
		logging.Session("Created session %s", state.SessionID)
		return st, state, opts.Request, nil
	}

	st, state, req, err := r.deps.Sessions.Load(opts.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if state.Status.Terminal() && state.Status != types.StatusCompleted {
		if err := r.deps.Sessions.IncrementRetry(st, state); err != nil {
			return nil, nil, nil, err
		}
	}
	logging.Session("Resuming session %s (status %s, retry %d/%d)",
		state.SessionID, state.Status, state.RetryCount, state.MaxRetries)
	return st, state, req, nil
}

// fail records the error in the session history, writes last_error.json,
// marks the session FAILED, and returns the classified error.
func (r *Runner) fail(st *store.Store, state *types.SessionState, stage types.StageName, err error) error {
	perr := types.AsPipelineError(err, string(stage)).
		WithDetail("session_id", state.SessionID)
	_ = r.deps.Sessions.AddError(st, state, stage, perr)
	_ = r.deps.Sessions.UpdateStatus(st, state, types.StatusFailed, stage, state.ProgressPercent)

	resp := &types.FailureResponse{
		SessionID:   state.SessionID,
		FailedStage: string(stage),
		Error:       perr,
		Logs:        &types.FailureLogs{RunLog: ".sceneforge/logs/pipeline.log"},
	}
	if v := st.LatestVersion(store.PatternTrace); v > 0 {
		resp.Logs.Trace = fmt.Sprintf(store.PatternTrace, v)
	}
	if werr := st.WriteLastError(resp); werr != nil {
		logging.Pipeline("Failed to persist last_error.json: %v", werr)
	}
	logging.Pipeline("Stage %s failed: %v", stage, perr)
	return perr
}

// artifacts lists the key session artifacts that exist right now.
func (r *Runner) artifacts(st *store.Store) map[string]string {
	out := make(map[string]string)
	for key, rel := range map[string]string{
		"scene_ref":  store.FileSceneRef,
		"objects":    store.FileObjects,
		"manifest":   store.FileManifest,
		"object_map": store.FileObjectMap,
	} {
		if st.FilePresent(rel) {
			out[key] = rel
		}
	}
	for key, pattern := range map[string]string{
		"constraints":     store.PatternConstraints,
		"layout_solution": store.PatternLayout,
		"floor_plan":      store.PatternFloorPlan,
	} {
		if v := st.LatestVersion(pattern); v > 0 {
			out[key] = fmt.Sprintf(pattern, v)
		}
	}
	if st.DirPresent(store.DirCards) {
		out["object_cards"] = store.DirCards
	}
	if st.DirPresent(store.DirAssets) {
		out["assets"] = store.DirAssets
	}
	return out
}

func (r *Runner) message(status types.SessionStatus, completed, skipped []string) string {
	switch status {
	case types.StatusCompleted:
		return fmt.Sprintf("scene pipeline completed: %d stages run, %d reused from earlier runs", len(completed)-len(skipped), len(skipped))
	default:
		return fmt.Sprintf("scene pipeline partially completed: %d stages run, %d reused from earlier runs", len(completed)-len(skipped), len(skipped))
	}
}
