// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package ensembledef provides parsing and validation for ensemble
// definitions: the set of detection models expected to report on an
// investigation, with their weights for the weighted mean score.
//
// Ensemble definitions are authored on disk as JSONC files (JSON
// extended with comments and trailing commas). The definition is
// optional — without one, the engine discovers models from the
// stream with weight 1 — but with one the dashboard can render the
// full model roster before the first model event arrives.
package ensembledef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Ensemble is a parsed ensemble definition.
type Ensemble struct {
	// Name identifies the ensemble in logs and the dashboard header.
	Name string `json:"name"`

	// Description is free-form documentation.
	Description string `json:"description,omitempty"`

	// AgreementThreshold overrides the configured minimum score that
	// counts as agreement. Zero means "use the configured default".
	AgreementThreshold float64 `json:"agreement_threshold,omitempty"`

	// Models lists the expected detection models.
	Models []ModelDef `json:"models"`
}

// ModelDef declares one detection model of the ensemble.
type ModelDef struct {
	// ID is the model identifier as it appears in stream events.
	ID string `json:"id"`

	// Weight is the model's weight in the weighted mean score.
	// Zero means weight 1.
	Weight float64 `json:"weight,omitempty"`
}

// modelIDPattern matches valid model identifiers: start with a
// letter, followed by letters, digits, underscores, dots, or
// hyphens. Anchored to the full string.
var modelIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into an Ensemble.
func Parse(data []byte) (*Ensemble, error) {
	stripped := jsonc.ToJSON(data)

	var ensemble Ensemble
	if err := json.Unmarshal(stripped, &ensemble); err != nil {
		return nil, fmt.Errorf("parsing ensemble: %w", err)
	}
	return &ensemble, nil
}

// ReadFile reads a JSONC ensemble file from disk and parses it.
func ReadFile(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ensemble, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ensemble, nil
}

// NameFromPath extracts an ensemble name from a file path by
// stripping the directory prefix and the file extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Validate checks an Ensemble for structural issues. Returns a list
// of human-readable issue descriptions; an empty list means the
// ensemble is valid.
func Validate(ensemble *Ensemble) []string {
	var issues []string

	if len(ensemble.Models) == 0 {
		issues = append(issues, "ensemble has no models (at least one model is required)")
	}

	if ensemble.AgreementThreshold < 0 || ensemble.AgreementThreshold > 1 {
		issues = append(issues, fmt.Sprintf(
			"agreement_threshold must be in [0, 1], got %v", ensemble.AgreementThreshold))
	}

	// Model ids must be unique: stream events address models by id,
	// so a duplicate would make two declared models share one state.
	seen := make(map[string]int, len(ensemble.Models))
	for index, model := range ensemble.Models {
		prefix := fmt.Sprintf("models[%d]", index)

		if model.ID == "" {
			issues = append(issues, fmt.Sprintf("%s: id is required", prefix))
			continue
		}
		prefix = fmt.Sprintf("%s %q", prefix, model.ID)

		if !modelIDPattern.MatchString(model.ID) {
			issues = append(issues, fmt.Sprintf(
				"%s: id must match [A-Za-z][A-Za-z0-9_.-]*", prefix))
		}
		if firstIndex, exists := seen[model.ID]; exists {
			issues = append(issues, fmt.Sprintf(
				"%s: duplicate model id (first used at models[%d])", prefix, firstIndex))
		} else {
			seen[model.ID] = index
		}
		if model.Weight < 0 {
			issues = append(issues, fmt.Sprintf(
				"%s: weight must not be negative, got %v", prefix, model.Weight))
		}
	}

	return issues
}

// EffectiveWeight returns the model's weight with the zero-value
// default applied.
func (m ModelDef) EffectiveWeight() float64 {
	if m.Weight == 0 {
		return 1
	}
	return m.Weight
}
