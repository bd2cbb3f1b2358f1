// sceneforge turns natural-language room descriptions into placed,
// collision-free 3D scenes: reference imagery, object inventory, spatial
// constraints, a solved layout, generated assets, and an assembly bundle,
// all persisted per session under the workspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sceneforge/internal/config"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sceneforge",
	Short: "sceneforge - text to assembled 3D scene pipeline",
	Long: `sceneforge runs a staged pipeline from a natural-language scene
description to an assembly-ready 3D scene:

  scene_ref -> extract -> cards -> constraints -> layout -> assets -> assemble

Every stage persists its artifacts under <workspace>/sessions/<id>/, so an
interrupted or failed run resumes from the first incomplete stage. Layout
failures persist a solver trace and relax the constraint set before retrying.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		cfg, err = config.Load(workspace)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		return logging.Initialize(workspace, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: current directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall run timeout (0 = none)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// runContext returns the command context wired to SIGINT/SIGTERM and the
// optional overall timeout.
func runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if timeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, timeout)
		return tctx, func() { tcancel(); stop() }
	}
	return ctx, stop
}

// exitCode maps the error taxonomy onto stable process exit codes so
// calling scripts can branch without parsing output.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch types.CodeOf(err) {
	case types.ErrInvalidInput:
		return 2
	case types.ErrConfig:
		return 6
	case types.ErrUpstreamTransport, types.ErrUpstreamRateLimited,
		types.ErrUpstreamRefused, types.ErrUpstreamAuth,
		types.ErrSolverTimeout, types.ErrLLM:
		return 7
	case types.ErrImageGeneration:
		return 8
	case types.ErrAssetGeneration:
		return 9
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
