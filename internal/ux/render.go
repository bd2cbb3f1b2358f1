// Package ux renders pipeline results and session summaries for the CLI.
// Rendering is pure string construction; nothing here touches the session
// directory or the terminal directly.
package ux

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sceneforge/internal/types"
)

// Semantic colors, same in both terminal modes.
var (
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Destructive = lipgloss.Color("#e53935")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#808a99")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(Info)
	mutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	keyStyle     = lipgloss.NewStyle().Foreground(Info).Width(18)
)

const rule = "──────────────────────────────────────────────────"

// RenderSuccess formats a completed pipeline run.
func RenderSuccess(resp *types.SuccessResponse) string {
	var b strings.Builder
	b.WriteString(successStyle.Render("✓ "+resp.Message) + "\n")
	b.WriteString(mutedStyle.Render(rule) + "\n")
	b.WriteString(keyStyle.Render("session") + resp.SessionID + "\n")
	b.WriteString(keyStyle.Render("directory") + resp.WorkspacePath + "\n")
	if len(resp.StagesCompleted) > 0 {
		b.WriteString(keyStyle.Render("stages run") + strings.Join(resp.StagesCompleted, ", ") + "\n")
	}

	keys := make([]string, 0, len(resp.Artifacts))
	for k := range resp.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString(titleStyle.Render("artifacts") + "\n")
		for _, k := range keys {
			b.WriteString("  " + keyStyle.Render(k) + resp.Artifacts[k] + "\n")
		}
	}
	return b.String()
}

// RenderFailure formats a failed run with its suggested actions.
func RenderFailure(resp *types.FailureResponse) string {
	var b strings.Builder
	header := "✗ pipeline failed"
	if resp.FailedStage != "" {
		header = fmt.Sprintf("✗ pipeline failed at stage %s", resp.FailedStage)
	}
	b.WriteString(errorStyle.Render(header) + "\n")
	b.WriteString(mutedStyle.Render(rule) + "\n")
	if resp.SessionID != "" {
		b.WriteString(keyStyle.Render("session") + resp.SessionID + "\n")
	}
	if resp.Error != nil {
		b.WriteString(keyStyle.Render("code") + string(resp.Error.Code) + "\n")
		b.WriteString(keyStyle.Render("message") + resp.Error.Message + "\n")
		if resp.Error.Retryable {
			b.WriteString(keyStyle.Render("retryable") + "yes; resume the session to retry\n")
		}
		if len(resp.Error.SuggestedActions) > 0 {
			b.WriteString(titleStyle.Render("suggested actions") + "\n")
			for _, a := range resp.Error.SuggestedActions {
				b.WriteString("  • " + a + "\n")
			}
		}
	}
	if resp.Logs != nil && resp.Logs.Trace != "" {
		b.WriteString(keyStyle.Render("solver trace") + resp.Logs.Trace + "\n")
	}
	return b.String()
}

// SessionRow is one line of the sessions listing.
type SessionRow struct {
	SessionID string
	Status    types.SessionStatus
	Stage     types.StageName
	Progress  int
	Errors    int
}

// RenderSessionList formats the sessions table, newest first.
func RenderSessionList(rows []SessionRow) string {
	if len(rows) == 0 {
		return mutedStyle.Render("No sessions found.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions") + "\n")
	b.WriteString(mutedStyle.Render(rule) + "\n")
	for _, r := range rows {
		status := statusStyle(r.Status).Render(fmt.Sprintf("%-11s", string(r.Status)))
		line := fmt.Sprintf("%s  %s  %3d%%", r.SessionID, status, r.Progress)
		if r.Stage != "" {
			line += "  " + mutedStyle.Render("@"+string(r.Stage))
		}
		if r.Errors > 0 {
			line += "  " + warnStyle.Render(fmt.Sprintf("%d errors", r.Errors))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(mutedStyle.Render(rule) + "\n")
	b.WriteString(fmt.Sprintf("Total: %d sessions\n", len(rows)))
	return b.String()
}

// StageLine formats one progress line emitted while a stage runs.
func StageLine(stage types.StageName, status types.SessionStatus) string {
	return infoStyle.Render("▸ ") + string(stage) + mutedStyle.Render(" ("+string(status)+")")
}

func statusStyle(s types.SessionStatus) lipgloss.Style {
	switch s {
	case types.StatusCompleted:
		return successStyle
	case types.StatusFailed:
		return errorStyle
	case types.StatusPartial:
		return warnStyle
	default:
		return infoStyle
	}
}
