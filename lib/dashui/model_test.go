// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stripesight/stripesight/investigation"
)

// testEngine builds an engine with a short run already applied: two
// phases done, one running, two models reporting.
func testEngine(t *testing.T) *investigation.Engine {
	t.Helper()
	engine := investigation.NewEngine(investigation.Config{InvestigationID: "inv-7"})

	frames := []string{
		`{"type":"phase_event","data":{"phase":"upload_and_parse","status":"completed","timestamp":1}}`,
		`{"type":"phase_event","data":{"phase":"reverse_image_search","status":"completed","timestamp":2}}`,
		`{"type":"phase_event","data":{"phase":"tiger_detection","status":"running","timestamp":3}}`,
		`{"type":"model_event","data":{"model":"stripe-cnn","status":"completed","progress":100,"score":0.94}}`,
		`{"type":"model_event","data":{"model":"wild-id","status":"running","progress":40}}`,
	}
	for _, frame := range frames {
		engine.Process([]byte(frame))
	}
	engine.SetConnectionState(investigation.ConnConnected)
	return engine
}

// step runs one message through Update and returns the new model.
func step(t *testing.T, model Model, message tea.Msg) Model {
	t.Helper()
	updated, _ := model.Update(message)
	next, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T", updated)
	}
	return next
}

func newSizedModel(t *testing.T, engine *investigation.Engine) Model {
	t.Helper()
	model := NewModel(engine)
	model = step(t, model, tea.WindowSizeMsg{Width: 100, Height: 40})
	model = step(t, model, RefreshMsg{})
	return model
}

func TestViewRendersEngineSnapshot(t *testing.T) {
	t.Parallel()
	model := newSizedModel(t, testEngine(t))
	output := model.View()

	for _, want := range []string{
		"Investigation inv-7",
		"LIVE",
		"Tiger Detection",
		"stripe-cnn",
		"score 0.94",
		"wild-id",
		"Models (1/2 done)",
		"1/2 agree",
		"Overall 33%",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestViewBeforeFirstSizeMsg(t *testing.T) {
	t.Parallel()
	model := NewModel(testEngine(t))
	if got := model.View(); !strings.Contains(got, "initializing") {
		t.Errorf("pre-layout View: got %q", got)
	}
}

func TestFollowToggleKeyFlipsEngineState(t *testing.T) {
	t.Parallel()
	engine := testEngine(t)
	model := newSizedModel(t, engine)

	if !engine.AutoScroll() {
		t.Fatal("engine should start in follow mode")
	}
	model = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if engine.AutoScroll() {
		t.Error("follow toggle did not pause the log")
	}
	model = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !engine.AutoScroll() {
		t.Error("follow toggle did not resume the log")
	}
	_ = model
}

func TestScrollingAwayFromBottomPausesFollow(t *testing.T) {
	t.Parallel()
	engine := testEngine(t)
	// Flood the log so the viewport has plenty to scroll through.
	for i := 0; i < 80; i++ {
		engine.Process([]byte(fmt.Sprintf(
			`{"type":"agent_update","data":{"agent_type":"detector","status":"active","current_task":"step %d","last_update":%d}}`, i, 100+i)))
	}

	model := NewModel(engine)
	model = step(t, model, tea.WindowSizeMsg{Width: 100, Height: 20})
	model = step(t, model, RefreshMsg{})

	// Jump to the top: far beyond the pin tolerance.
	model = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	if engine.AutoScroll() {
		t.Error("scrolling to the top should pause following")
	}

	// Back to the bottom: inside the tolerance again.
	model = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	if !engine.AutoScroll() {
		t.Error("returning to the bottom should resume following")
	}
}

func TestQuitKey(t *testing.T) {
	t.Parallel()
	model := newSizedModel(t, testEngine(t))
	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if command == nil {
		t.Fatal("quit key produced no command")
	}
	if message := command(); message != (tea.QuitMsg{}) {
		t.Errorf("quit key: got %T", message)
	}
}

func TestErrorPhaseRendersErrorGlyph(t *testing.T) {
	t.Parallel()
	engine := testEngine(t)
	engine.Process([]byte(`{"type":"phase_event","data":{"phase":"tiger_detection","status":"error","timestamp":4}}`))

	model := newSizedModel(t, engine)
	if output := model.View(); !strings.Contains(output, "✗") {
		t.Error("View missing error marker")
	}
}

func TestOfflineBadgeWhenDisconnected(t *testing.T) {
	t.Parallel()
	engine := testEngine(t)
	engine.SetConnectionState(investigation.ConnDisconnected)

	model := newSizedModel(t, engine)
	if output := model.View(); !strings.Contains(output, "OFFLINE") {
		t.Error("View missing OFFLINE badge")
	}
}
