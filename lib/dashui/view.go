// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stripesight/stripesight/investigation"
)

// phaseLabels maps phase keys to their dashboard names.
var phaseLabels = map[investigation.PhaseKey]string{
	investigation.PhaseUploadAndParse:     "Upload & Parse",
	investigation.PhaseReverseImageSearch: "Reverse Image Search",
	investigation.PhaseTigerDetection:     "Tiger Detection",
	investigation.PhaseStripeAnalysis:     "Stripe Analysis",
	investigation.PhaseReportGeneration:   "Report Generation",
	investigation.PhaseComplete:           "Complete",
}

// statusGlyphs maps statuses to their single-cell markers.
var statusGlyphs = map[investigation.Status]string{
	investigation.StatusPending:   "○",
	investigation.StatusRunning:   "◐",
	investigation.StatusCompleted: "●",
	investigation.StatusError:     "✗",
}

// progressBarWidth is the inner width of a model progress bar.
const progressBarWidth = 20

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "initializing..."
	}

	sections := []string{
		model.renderHeader(),
		model.renderPhases(),
		model.renderModels(),
		model.renderMetrics(),
		model.renderActivityHeading(),
		model.logView.View(),
		model.renderStatusBar(),
	}
	return strings.Join(sections, "\n")
}

// renderHeader is the top line: investigation id and connectivity.
func (model Model) renderHeader() string {
	headerStyle := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true)
	title := headerStyle.Render("Investigation " + model.view.InvestigationID)

	var badge string
	switch model.view.Connection {
	case investigation.ConnConnected:
		badge = lipgloss.NewStyle().Foreground(model.theme.ConnLive).Render("LIVE")
	case investigation.ConnConnecting:
		badge = model.spinner.View() + " connecting"
	case investigation.ConnReconnecting:
		badge = model.spinner.View() + " reconnecting"
	default:
		badge = lipgloss.NewStyle().Foreground(model.theme.ConnDown).Render("OFFLINE")
	}

	gap := model.width - lipgloss.Width(title) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + badge
}

// renderPhases lists the pipeline phases in order with their status
// markers, highlighting the current phase.
func (model Model) renderPhases() string {
	lines := make([]string, 0, len(model.view.Phases))
	current := model.view.Metrics.CurrentPhase

	for _, phase := range model.view.Phases {
		marker := lipgloss.NewStyle().
			Foreground(model.theme.StatusColor(phase.Status)).
			Render(statusGlyphs[phase.Status])

		label := phaseLabels[phase.Key]
		if label == "" {
			label = string(phase.Key)
		}

		style := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		pointer := "  "
		if phase.Key == current {
			style = lipgloss.NewStyle().Foreground(model.theme.NormalText)
			pointer = "▶ "
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", pointer, marker, style.Render(label)))
	}
	return strings.Join(lines, "\n")
}

// renderModels shows one row per detection model: progress bar,
// status, and score when reported.
func (model Model) renderModels() string {
	heading := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Render(
		fmt.Sprintf("Models (%d/%d done)", model.view.Metrics.CompletedModels, model.view.Metrics.TotalModels))
	lines := []string{heading}

	for _, detector := range model.view.Models {
		marker := lipgloss.NewStyle().
			Foreground(model.theme.StatusColor(detector.Status)).
			Render(statusGlyphs[detector.Status])

		detail := ""
		switch {
		case detector.Status == investigation.StatusError:
			detail = lipgloss.NewStyle().Foreground(model.theme.StatusError).Render(detector.ErrorMessage)
		case detector.Score != nil:
			detail = fmt.Sprintf("score %.2f", *detector.Score)
		}

		lines = append(lines, fmt.Sprintf("  %s %-16s %s %3.0f%%  %s",
			marker, detector.ID, renderBar(detector.Progress), detector.Progress, detail))
	}
	return strings.Join(lines, "\n")
}

// renderBar draws a fixed-width progress bar for a [0,100] value.
func renderBar(progress float64) string {
	filled := int(progress / 100 * progressBarWidth)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}

// renderMetrics is the derived-state summary line: overall progress,
// the agreement badge, and the weighted mean score.
func (model Model) renderMetrics() string {
	metrics := model.view.Metrics

	agreement := metrics.Agreement
	badge := lipgloss.NewStyle().
		Foreground(model.theme.TierColor(agreement.Tier)).
		Render(fmt.Sprintf("%d/%d agree (%s)", agreement.AgreeingCount, agreement.TotalCount, agreement.Tier))

	parts := []string{
		fmt.Sprintf("Overall %d%%", metrics.OverallCompletionPercent),
		badge,
	}
	if metrics.WeightedMeanScore != nil {
		parts = append(parts, fmt.Sprintf("mean score %.2f", *metrics.WeightedMeanScore))
	}
	return lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(strings.Join(parts, "  ·  "))
}

func (model Model) renderActivityHeading() string {
	follow := "paused"
	if model.view.AutoScroll {
		follow = "following"
	}
	return lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).
		Render(fmt.Sprintf("Activity (%d) — %s", len(model.view.Activity), follow))
}

// renderActivity formats the activity log for the viewport, oldest
// first so the newest entry is the bottom line.
func (model Model) renderActivity() string {
	if len(model.view.Activity) == 0 {
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no activity yet")
	}

	lines := make([]string, 0, len(model.view.Activity))
	for _, entry := range model.view.Activity {
		stamp := lipgloss.NewStyle().Foreground(model.theme.FaintText).
			Render(entry.Timestamp.Format("15:04:05"))

		message := entry.Message
		switch entry.Type {
		case investigation.ActivityMatchFound:
			message = lipgloss.NewStyle().Foreground(model.theme.MatchFound).Bold(true).Render(message)
		case investigation.ActivityError:
			message = lipgloss.NewStyle().Foreground(model.theme.LogError).Render(message)
		}
		lines = append(lines, fmt.Sprintf("%s  %s", stamp, message))
	}
	return strings.Join(lines, "\n")
}

// renderStatusBar is the bottom line: the keyboard help, or a log
// notice when a background goroutine reported a problem.
func (model Model) renderStatusBar() string {
	if model.logNotice != "" {
		color := model.theme.StatusRunning
		if model.logNoticeLevel >= slog.LevelError {
			color = model.theme.LogError
		}
		return lipgloss.NewStyle().Foreground(color).Render(model.logNotice)
	}
	help := "j/k scroll · f follow · g/G top/bottom · q quit"
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(help)
}
