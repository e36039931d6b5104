// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import "math"

// Tier is the qualitative cross-model agreement bucket shown as the
// dashboard badge.
type Tier string

const (
	TierHigh    Tier = "high"
	TierGood    Tier = "good"
	TierWarning Tier = "warning"
	TierLow     Tier = "low"
)

// Tier ratio cut-offs, inclusive of the lower bound. The ratio is
// evaluated at two-decimal precision so that the sixths an ensemble of
// six models produces land where the documented thresholds say: 5/6
// (0.8333) reads as 0.83 and is high, 4/6 (0.6667) reads as 0.67 and
// is good.
const (
	tierHighRatio    = 0.83
	tierGoodRatio    = 0.67
	tierWarningRatio = 0.50
)

// Agreement is the result of the ensemble agreement calculation.
type Agreement struct {
	// AgreeingCount is the number of models whose score is at or
	// above the agreement threshold.
	AgreeingCount int

	// TotalCount is the number of models considered.
	TotalCount int

	Tier Tier
}

// ComputeAgreement derives the agreement tier from per-model scores
// and the configured score threshold. Pure: no state, no side
// effects — always re-derivable from current tracker state, never a
// source of truth itself.
//
// An empty ensemble yields TierLow with zero counts; there is no
// separate "no data" result.
func ComputeAgreement(scores []float64, threshold float64) Agreement {
	agreeing := 0
	for _, score := range scores {
		if score >= threshold {
			agreeing++
		}
	}
	return agreementFromCounts(agreeing, len(scores))
}

// AgreementForModels derives agreement over a tracked model set. All
// models count toward the total; only models that have reported a
// score can agree. Equally pure — a projection of tracker state.
func AgreementForModels(models []Model, threshold float64) Agreement {
	agreeing := 0
	for _, model := range models {
		if model.Score != nil && *model.Score >= threshold {
			agreeing++
		}
	}
	return agreementFromCounts(agreeing, len(models))
}

// agreementFromCounts buckets an agreeing/total pair into a tier.
func agreementFromCounts(agreeing, total int) Agreement {
	result := Agreement{AgreeingCount: agreeing, TotalCount: total, Tier: TierLow}
	if total == 0 {
		return result
	}

	ratio := math.Round(float64(agreeing)/float64(total)*100) / 100
	switch {
	case ratio >= tierHighRatio:
		result.Tier = TierHigh
	case ratio >= tierGoodRatio:
		result.Tier = TierGood
	case ratio >= tierWarningRatio:
		result.Tier = TierWarning
	}
	return result
}
