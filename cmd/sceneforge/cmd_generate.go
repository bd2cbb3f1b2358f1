package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sceneforge/internal/pipeline"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
	"sceneforge/internal/ux"
)

var (
	genStyle      string
	genMaxObjects int
	genRoomSize   []float64
	genUntilStage string
)

// generateCmd runs the full pipeline for a new scene description.
var generateCmd = &cobra.Command{
	Use:   "generate [scene description]",
	Short: "Generate a 3D scene from a natural-language description",
	Long: `Creates a new session and runs the pipeline end to end.

The description should name concrete objects and their spatial relations:

  sceneforge generate "a cozy reading corner with an armchair by the window,
  a floor lamp behind it and a small bookshelf against the wall"

On failure the session stays on disk; fix the cause and run
'sceneforge resume <session-id>' to continue from the failed stage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genStyle, "style", "", "style directive applied to all imagery and assets")
	generateCmd.Flags().IntVar(&genMaxObjects, "max-objects", 0, "cap on extracted objects (0 = no cap)")
	generateCmd.Flags().Float64SliceVar(&genRoomSize, "room-size", nil, "room size in meters as L,W,H")
	generateCmd.Flags().StringVar(&genUntilStage, "until-stage", "", "stop after this stage (inclusive)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	until, err := parseStage(genUntilStage)
	if err != nil {
		return err
	}

	req := &types.SceneRequest{
		Text:  strings.Join(args, " "),
		Style: genStyle,
	}
	if genMaxObjects > 0 || len(genRoomSize) > 0 {
		req.Constraints = &types.RequestConstraints{
			MaxObjects:   genMaxObjects,
			RoomSizeHint: genRoomSize,
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	runner, cleanup, err := buildRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := runner.Run(ctx, pipeline.RunOptions{Request: req, UntilStage: until})
	if err != nil {
		return reportFailure(err)
	}
	fmt.Print(ux.RenderSuccess(resp))
	return nil
}

// reportFailure renders the persisted failure record when one exists and
// returns the original error for exit-code mapping.
func reportFailure(err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted; session is resumable.")
		return err
	}
	var perr *types.PipelineError
	if errors.As(err, &perr) {
		resp := &types.FailureResponse{Error: perr}
		if last := readLastError(perr); last != nil {
			resp = last
		}
		fmt.Print(ux.RenderFailure(resp))
	}
	return err
}

// readLastError loads last_error.json for the session the error names, if
// any. Purely cosmetic; failure to read it just falls back to the error.
func readLastError(perr *types.PipelineError) *types.FailureResponse {
	id, ok := perr.Details["session_id"].(string)
	if !ok || id == "" {
		return nil
	}
	resp, err := store.New(cfg.Workspace, id).ReadLastError()
	if err != nil {
		return nil
	}
	return resp
}
