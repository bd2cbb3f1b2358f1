package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sceneforge/internal/pipeline"
	"sceneforge/internal/ux"
)

var (
	resumeFromStage  string
	resumeUntilStage string
)

// resumeCmd re-runs an existing session from its first incomplete stage.
var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a failed or interrupted session",
	Long: `Re-runs the pipeline for an existing session. Stages whose artifacts
already exist are skipped; use --from-stage to force a stage to re-run even
when its outputs are present (for example after editing a constraints file).`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFromStage, "from-stage", "", "re-enter the pipeline at this stage")
	resumeCmd.Flags().StringVar(&resumeUntilStage, "until-stage", "", "stop after this stage (inclusive)")
}

func runResume(cmd *cobra.Command, args []string) error {
	from, err := parseStage(resumeFromStage)
	if err != nil {
		return err
	}
	until, err := parseStage(resumeUntilStage)
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	runner, cleanup, err := buildRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := runner.Run(ctx, pipeline.RunOptions{
		SessionID:  args[0],
		FromStage:  from,
		UntilStage: until,
	})
	if err != nil {
		return reportFailure(err)
	}
	fmt.Print(ux.RenderSuccess(resp))
	return nil
}
