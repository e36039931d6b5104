// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stripesight/stripesight/investigation"
)

// RefreshMsg tells the model that the engine's derived state changed.
// The goroutine pumping engine.Notify() sends it via program.Send.
type RefreshMsg struct{}

// minViewportHeight keeps the activity log visible even on terminals
// too short for the full chrome.
const minViewportHeight = 3

// Model is the bubbletea model for the investigation dashboard.
type Model struct {
	engine *investigation.Engine
	theme  Theme
	keys   KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// view is the engine snapshot being rendered. Refreshed on
	// RefreshMsg, never mutated locally.
	view investigation.View

	spinner spinner.Model
	logView viewport.Model

	// logNotice briefly replaces the help line when a background
	// goroutine logged a warning or error.
	logNotice      string
	logNoticeLevel slog.Level
}

// NewModel creates the dashboard model for an engine. The caller
// owns the engine; the model only snapshots it.
func NewModel(engine *investigation.Engine) Model {
	indicator := spinner.New()
	indicator.Spinner = spinner.MiniDot
	indicator.Style = lipgloss.NewStyle().Foreground(DefaultTheme.StatusRunning)

	return Model{
		engine:  engine,
		theme:   DefaultTheme,
		keys:    DefaultKeyMap,
		view:    engine.View(),
		spinner: indicator,
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return model.spinner.Tick
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.updateLayout()
		model.ready = true
		return model, nil

	case RefreshMsg:
		model.view = model.engine.View()
		// Model rows can appear mid-run, which changes how much
		// height the viewport gets.
		if model.ready {
			model.updateLayout()
		} else {
			model.refreshLogContent()
		}
		return model, nil

	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command

	case logRecordMsg:
		model.logNotice = message.Summary
		model.logNoticeLevel = message.Level
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{}
		})

	case logRecordFadeMsg:
		model.logNotice = ""
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.MouseMsg:
		switch message.Button {
		case tea.MouseButtonWheelUp:
			model.logView.LineUp(3)
			model.reportScroll()
		case tea.MouseButtonWheelDown:
			model.logView.LineDown(3)
			model.reportScroll()
		}
		return model, nil
	}

	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.FollowToggle):
		follow := !model.engine.AutoScroll()
		model.engine.SetAutoScroll(follow)
		if follow {
			model.logView.GotoBottom()
		}
		return model, nil

	case key.Matches(message, model.keys.Home):
		model.logView.GotoTop()
		model.reportScroll()
		return model, nil

	case key.Matches(message, model.keys.End):
		model.logView.GotoBottom()
		model.reportScroll()
		return model, nil

	case key.Matches(message, model.keys.Up):
		model.logView.LineUp(1)
		model.reportScroll()
		return model, nil

	case key.Matches(message, model.keys.Down):
		model.logView.LineDown(1)
		model.reportScroll()
		return model, nil

	case key.Matches(message, model.keys.PageUp):
		model.logView.HalfViewUp()
		model.reportScroll()
		return model, nil

	case key.Matches(message, model.keys.PageDown):
		model.logView.HalfViewDown()
		model.reportScroll()
		return model, nil
	}

	return model, nil
}

// reportScroll tells the engine where the viewport sits relative to
// the newest entry. The engine decides whether the log stays pinned.
func (model *Model) reportScroll() {
	distance := model.logView.TotalLineCount() - (model.logView.YOffset + model.logView.Height)
	if distance < 0 {
		distance = 0
	}
	model.engine.ObserveScroll(distance)
}

// refreshLogContent re-renders the activity log into the viewport
// and, when the engine says the log is pinned, jumps to the newest
// entry.
func (model *Model) refreshLogContent() {
	model.logView.SetContent(model.renderActivity())
	if model.engine.AutoScroll() {
		model.logView.GotoBottom()
	}
}

// updateLayout distributes the terminal height: everything above the
// activity log is fixed-height chrome, the viewport gets the rest.
func (model *Model) updateLayout() {
	chromeHeight := model.chromeHeight()
	viewportHeight := model.height - chromeHeight
	if viewportHeight < minViewportHeight {
		viewportHeight = minViewportHeight
	}
	model.logView.Width = model.width
	model.logView.Height = viewportHeight
	model.refreshLogContent()
}

// chromeHeight is the fixed row count above and below the viewport:
// the header line, one line per phase, a models heading plus one
// line per model, the metrics line, the activity heading, and the
// status bar.
func (model *Model) chromeHeight() int {
	return 1 + // header
		len(model.view.Phases) +
		1 + len(model.view.Models) + // models heading + rows
		1 + // metrics line
		1 + // activity heading
		1 // status bar
}
