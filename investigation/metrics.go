// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import "math"

// ConnectionState is the lifecycle state of the stream subscription,
// as last reported by the connection manager.
type ConnectionState string

const (
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnDisconnected ConnectionState = "disconnected"
)

// Metrics is the display-ready projection of engine state. It has no
// state of its own: DeriveMetrics recomputes every field from the
// trackers on each call, so the values can never diverge from the
// canonical phase and model records.
type Metrics struct {
	// OverallCompletionPercent is round(completedPhases/totalPhases*100).
	// Phases in error contribute nothing; their failure is visible
	// through per-phase status and the badge instead.
	OverallCompletionPercent int

	// CurrentPhase is the pipeline's current phase key, or empty when
	// nothing has started.
	CurrentPhase PhaseKey

	// IsLive is true exactly when the subscription is connected.
	IsLive bool

	// Agreement is the ensemble agreement badge.
	Agreement Agreement

	// CompletedModels and TotalModels summarize the ensemble.
	CompletedModels int
	TotalModels     int

	// WeightedMeanScore is the weight-weighted mean of all reported
	// model scores, when at least one model has reported one.
	WeightedMeanScore *float64
}

// DeriveMetrics computes the projection from current tracker state.
func DeriveMetrics(phases *PhaseTracker, models *ModelTracker, connection ConnectionState, threshold float64) Metrics {
	metrics := Metrics{
		OverallCompletionPercent: completionPercent(phases.CompletedCount(), phases.Count()),
		IsLive:                   connection == ConnConnected,
		Agreement:                AgreementForModels(models.Models(), threshold),
		CompletedModels:          models.CompletedCount(),
		TotalModels:              models.Count(),
	}

	if current, ok := phases.Current(); ok {
		metrics.CurrentPhase = current.Key
	}

	var weightSum, scoreSum float64
	for _, model := range models.Models() {
		if model.Score == nil {
			continue
		}
		weight := model.Weight
		if weight <= 0 {
			weight = 1
		}
		weightSum += weight
		scoreSum += weight * *model.Score
	}
	if weightSum > 0 {
		mean := scoreSum / weightSum
		metrics.WeightedMeanScore = &mean
	}

	return metrics
}

func completionPercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
