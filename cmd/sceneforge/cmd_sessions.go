// Session management commands: listing sessions and inspecting one
// session's state and artifacts.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sceneforge/internal/session"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
	"sceneforge/internal/ux"
)

// sessionsCmd manages stored sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and inspect sessions",
	Long: `List stored sessions and inspect their state.

Subcommands:
  list  - List all sessions in the workspace (default)
  show  - Show one session's state and artifacts`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions in the workspace",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's state and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ids, err := store.ListSessions(cfg.Workspace)
	if err != nil {
		return err
	}

	rows := make([]ux.SessionRow, 0, len(ids))
	for _, id := range ids {
		var state types.SessionState
		if err := store.New(cfg.Workspace, id).ReadJSON(store.FileStatus, &state); err != nil {
			rows = append(rows, ux.SessionRow{SessionID: id, Status: "UNREADABLE"})
			continue
		}
		rows = append(rows, ux.SessionRow{
			SessionID: id,
			Status:    state.Status,
			Stage:     state.CurrentStage,
			Progress:  state.ProgressPercent,
			Errors:    len(state.Errors),
		})
	}
	fmt.Print(ux.RenderSessionList(rows))
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	mgr := session.NewManager(cfg.Workspace, cfg.Pipeline.MaxSessionRetries)
	st, state, req, err := mgr.Load(args[0])
	if err != nil {
		return err
	}

	out := map[string]any{
		"state":   state,
		"request": req,
	}
	if resp, err := st.ReadLastError(); err == nil {
		out["last_error"] = resp
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
