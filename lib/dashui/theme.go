// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/stripesight/stripesight/investigation"
)

// Theme defines the color palette for the dashboard. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Phase and model statuses.
	StatusPending   lipgloss.Color
	StatusRunning   lipgloss.Color
	StatusCompleted lipgloss.Color
	StatusError     lipgloss.Color

	// Agreement tiers.
	TierHigh    lipgloss.Color
	TierGood    lipgloss.Color
	TierWarning lipgloss.Color
	TierLow     lipgloss.Color

	// Connection states.
	ConnLive lipgloss.Color
	ConnDown lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Activity log accents.
	MatchFound lipgloss.Color
	LogError   lipgloss.Color
}

// StatusColor returns the color for a phase or model status.
func (theme Theme) StatusColor(status investigation.Status) lipgloss.Color {
	switch status {
	case investigation.StatusRunning:
		return theme.StatusRunning
	case investigation.StatusCompleted:
		return theme.StatusCompleted
	case investigation.StatusError:
		return theme.StatusError
	default:
		return theme.StatusPending
	}
}

// TierColor returns the color for an agreement tier.
func (theme Theme) TierColor(tier investigation.Tier) lipgloss.Color {
	switch tier {
	case investigation.TierHigh:
		return theme.TierHigh
	case investigation.TierGood:
		return theme.TierGood
	case investigation.TierWarning:
		return theme.TierWarning
	default:
		return theme.TierLow
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	StatusPending:   lipgloss.Color("240"), // dim gray
	StatusRunning:   lipgloss.Color("220"), // yellow/amber
	StatusCompleted: lipgloss.Color("114"), // green
	StatusError:     lipgloss.Color("196"), // red

	TierHigh:    lipgloss.Color("114"), // green
	TierGood:    lipgloss.Color("150"), // pale green
	TierWarning: lipgloss.Color("220"), // amber
	TierLow:     lipgloss.Color("196"), // red

	ConnLive: lipgloss.Color("114"),
	ConnDown: lipgloss.Color("196"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	MatchFound: lipgloss.Color("208"), // orange, the tiger tone
	LogError:   lipgloss.Color("196"),
}
