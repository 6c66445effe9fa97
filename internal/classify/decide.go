// Package classify owns the embedding and classifier models and turns a
// profile's descriptions into a label and probability.
package classify

import (
	"math"

	"github.com/jonathan/feed-copilot/internal/types"
)

// Decide picks the most probable label from a classifier output distribution.
// Ties go to the lowest index. Proba is floor(max*100). An index with no entry
// in labels yields types.LabelUnknown.
func Decide(dist []float64, labels []string) types.ClassificationResult {
	if len(dist) == 0 {
		return types.ClassificationResult{Label: types.LabelUnknown, Proba: 0}
	}

	best := 0
	for i := 1; i < len(dist); i++ {
		if dist[i] > dist[best] {
			best = i
		}
	}

	label := types.LabelUnknown
	if best < len(labels) {
		label = labels[best]
	}

	return types.ClassificationResult{
		Label: label,
		Proba: int(math.Floor(dist[best] * 100)),
	}
}
